// Package fetch serializes paginated fetches from an external source behind
// a single rate-limited worker, so a minimum spacing between outbound
// requests holds no matter how many concurrent callers are in flight.
package fetch

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrFetcherClosed is returned for fetches submitted after Close.
var ErrFetcherClosed = errors.New("fetch: fetcher is closed")

// Page is one page of items plus the opaque continuation cursor for the
// next page. An empty Next signals the end of pagination.
type Page struct {
	Items []string `json:"items"`
	Next  string   `json:"next"`
}

// PageFetcher is the external paginated source a Fetcher serializes access to.
type PageFetcher interface {
	FetchPage(ctx context.Context, url, cursor string) (Page, error)
}

type request struct {
	ctx    context.Context
	url    string
	cursor string
	reply  chan result
}

type result struct {
	page Page
	err  error
}

// Fetcher funnels every fetch through one long-lived worker goroutine. The
// worker is the sole owner of the timing state, dequeues requests FIFO,
// waits out the remaining inter-request interval, performs the fetch, and
// answers the caller's private reply channel. It starts lazily on first use
// and runs until Close.
type Fetcher struct {
	source   PageFetcher
	limiter  *rate.Limiter
	requests chan request
	quit     chan struct{}
	logger   *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithLogger enables logging; by default all logs are discarded.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher creates a Fetcher over source. minInterval is the minimum
// spacing between outbound requests, enforced across all callers.
func NewFetcher(source PageFetcher, minInterval time.Duration, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source:   source,
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		requests: make(chan request),
		quit:     make(chan struct{}),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch submits one page request and blocks until the worker answers, the
// caller's context is done, or the fetcher closes. Callers never busy-wait;
// they suspend on their private reply channel.
func (f *Fetcher) Fetch(ctx context.Context, url, cursor string) (Page, error) {
	f.startOnce.Do(func() { go f.work() })

	req := request{ctx: ctx, url: url, cursor: cursor, reply: make(chan result, 1)}
	select {
	case f.requests <- req:
	case <-f.quit:
		return Page{}, ErrFetcherClosed
	case <-ctx.Done():
		return Page{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.page, res.err
	case <-ctx.Done():
		return Page{}, ctx.Err()
	}
}

// work owns the rate limiter. A failed fetch is surfaced to the waiting
// caller only; the worker keeps serving subsequent requests.
func (f *Fetcher) work() {
	for {
		select {
		case <-f.quit:
			// Answer anything already queued so no caller is left hanging.
			for {
				select {
				case req := <-f.requests:
					req.reply <- result{err: ErrFetcherClosed}
				default:
					return
				}
			}
		case req := <-f.requests:
			if err := f.limiter.Wait(req.ctx); err != nil {
				req.reply <- result{err: err}
				continue
			}
			page, err := f.source.FetchPage(req.ctx, req.url, req.cursor)
			if err != nil {
				f.logger.Debug("page fetch failed",
					slog.String("url", req.url),
					slog.String("cursor", req.cursor),
					slog.Any("error", err))
			}
			req.reply <- result{page: page, err: err}
		}
	}
}

// Close stops the worker. In-flight requests are still answered; queued and
// later requests fail with ErrFetcherClosed.
func (f *Fetcher) Close() {
	f.closeOnce.Do(func() { close(f.quit) })
}

// Pages returns the lazy page sequence for url, following continuation
// cursors until the source reports no more. A fetch failure yields once
// with the error and ends the sequence; nothing is retried here. The
// sequence is restartable per caller, and a caller that stops iterating
// simply stops advancing its own pagination.
func (f *Fetcher) Pages(ctx context.Context, url string) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		cursor := ""
		for {
			page, err := f.Fetch(ctx, url, cursor)
			if err != nil {
				yield(Page{}, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			if page.Next == "" {
				return
			}
			cursor = page.Next
		}
	}
}

// Documents flattens Pages into a stream of raw document strings. A failure
// ends the stream rather than surfacing a value, matching the document
// source contract; the error is logged for operators.
func (f *Fetcher) Documents(ctx context.Context, url string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for page, err := range f.Pages(ctx, url) {
			if err != nil {
				f.logger.Debug("document stream aborted",
					slog.String("url", url),
					slog.Any("error", err))
				return
			}
			for _, item := range page.Items {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// Package ingest wires document sources through the transition extractor
// into a Store: one producer per source feeds (context, token) pairs onto a
// bounded channel, and a single consumer drains the channel into the store.
package ingest

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/prattlebot/prattle/pkg/chain"
	"github.com/prattlebot/prattle/pkg/tokenize"
)

// DocumentSource produces a lazy sequence of raw document strings. A source
// that fails simply ends its sequence.
type DocumentSource interface {
	Documents(ctx context.Context) iter.Seq[string]
}

// SourceFunc adapts a function to the DocumentSource interface.
type SourceFunc func(ctx context.Context) iter.Seq[string]

// Documents implements DocumentSource.
func (f SourceFunc) Documents(ctx context.Context) iter.Seq[string] { return f(ctx) }

// Stats summarizes one pipeline run.
type Stats struct {
	Documents int // documents pulled from all sources
	Pairs     int // (context, token) pairs emitted by producers
	Inserted  int // pairs committed to the store
	Failed    int // pairs the store rejected
}

type pair struct {
	from chain.Context
	to   string
}

// Pipeline ingests documents into a Store.
type Pipeline struct {
	store     chain.Store
	buffer    int
	tokenizer func(string) []string
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBuffer sets the bounded channel's capacity. Default: 256.
func WithBuffer(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// WithTokenizer replaces the default tokenizer (tokenize.Normalize).
func WithTokenizer(fn func(string) []string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.tokenizer = fn
		}
	}
}

// WithLogger enables logging; by default all logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pipeline targeting store.
func New(store chain.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		buffer:    256,
		tokenizer: tokenize.Normalize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests every source until all are exhausted or ctx is cancelled,
// and reports what was moved. A source that fails stops emitting without
// affecting the other producers or the consumer; a store insert that fails
// is counted and logged, not fatal. Every pair already on the channel when
// the producers stop is drained into the store before Run returns, even
// during shutdown. Run returns ctx's error when cancelled.
func (p *Pipeline) Run(ctx context.Context, sources ...DocumentSource) (Stats, error) {
	pairs := make(chan pair, p.buffer)
	var docCount, pairCount atomic.Int64

	producers, prodCtx := errgroup.WithContext(ctx)
	for _, src := range sources {
		producers.Go(func() error {
			for doc := range src.Documents(prodCtx) {
				docCount.Add(1)
				tokens := p.tokenizer(doc)
				for from, to := range chain.Transitions(tokens, p.store.Order()) {
					select {
					case pairs <- pair{from: from, to: to}:
						pairCount.Add(1)
					case <-prodCtx.Done():
						return prodCtx.Err()
					}
				}
			}
			return nil
		})
	}

	// Producers own the channel; closing it after they all stop is what lets
	// the consumer drain every buffered pair before exiting.
	go func() {
		_ = producers.Wait()
		close(pairs)
	}()

	// Inserts use an uncancellable context so pairs buffered before shutdown
	// still reach the store.
	insertCtx := context.WithoutCancel(ctx)
	var inserted, failed int
	for pr := range pairs {
		if err := p.store.Insert(insertCtx, pr.from, pr.to); err != nil {
			failed++
			p.logger.Debug("insert failed",
				slog.String("context", pr.from.Key()),
				slog.String("token", pr.to),
				slog.Any("error", err))
			continue
		}
		inserted++
	}

	stats := Stats{
		Documents: int(docCount.Load()),
		Pairs:     int(pairCount.Load()),
		Inserted:  inserted,
		Failed:    failed,
	}
	p.logger.Info("ingestion finished",
		slog.Int("documents", stats.Documents),
		slog.Int("pairs", stats.Pairs),
		slog.Int("inserted", stats.Inserted),
		slog.Int("failed", stats.Failed))
	return stats, ctx.Err()
}

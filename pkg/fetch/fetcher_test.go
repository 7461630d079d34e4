package fetch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeSource is a scriptable PageFetcher that records when each request
// was dispatched by the worker.
type fakeSource struct {
	mu    sync.Mutex
	times []time.Time
	calls int

	// pages maps cursor -> page. An unknown cursor yields an error.
	pages map[string]Page
	// failCursor, if set, makes that cursor fail once.
	failCursor string
	failErr    error
}

func (s *fakeSource) FetchPage(_ context.Context, _, cursor string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times = append(s.times, time.Now())
	s.calls++

	if s.failCursor != "" && cursor == s.failCursor {
		s.failCursor = ""
		return Page{}, s.failErr
	}
	page, ok := s.pages[cursor]
	if !ok {
		return Page{}, fmt.Errorf("unknown cursor %q", cursor)
	}
	return page, nil
}

func (s *fakeSource) dispatchTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.times)
}

// pagedSource builds a source serving n single-item pages chained by
// numeric cursors.
func pagedSource(n int) *fakeSource {
	pages := make(map[string]Page, n)
	cursor := ""
	for i := range n {
		next := ""
		if i < n-1 {
			next = strconv.Itoa(i + 1)
		}
		pages[cursor] = Page{Items: []string{fmt.Sprintf("doc %d", i)}, Next: next}
		cursor = next
	}
	return &fakeSource{pages: pages}
}

func TestFetchSpacing(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{pages: map[string]Page{"": {Items: []string{"x"}}}}

	const interval = 50 * time.Millisecond
	f := NewFetcher(src, interval)
	defer f.Close()

	// Hammer the fetcher from several goroutines at once; the worker must
	// still space the outbound requests.
	const n = 5
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Fetch(ctx, "http://example.test", ""); err != nil {
				t.Errorf("Fetch() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	times := src.dispatchTimes()
	if len(times) != n {
		t.Fatalf("expected %d dispatches, got %d", n, len(times))
	}
	slices.SortFunc(times, func(a, b time.Time) int { return a.Compare(b) })
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < interval-10*time.Millisecond {
			t.Errorf("dispatch %d followed %d after only %v", i, i-1, gap)
		}
	}
}

func TestFetchPassesResult(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{pages: map[string]Page{
		"":   {Items: []string{"a", "b"}, Next: "p2"},
		"p2": {Items: []string{"c"}},
	}}
	f := NewFetcher(src, time.Millisecond)
	defer f.Close()

	page, err := f.Fetch(ctx, "http://example.test", "")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if !slices.Equal(page.Items, []string{"a", "b"}) || page.Next != "p2" {
		t.Errorf("Fetch() = %+v", page)
	}
}

func TestFetchContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{pages: map[string]Page{"": {}}}
	f := NewFetcher(src, time.Millisecond)
	defer f.Close()

	if _, err := f.Fetch(ctx, "http://example.test", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() with cancelled context: got %v, want context.Canceled", err)
	}
}

func TestWorkerSurvivesFailedFetch(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		pages:      map[string]Page{"": {Items: []string{"x"}}},
		failCursor: "bad",
		failErr:    errors.New("upstream down"),
	}
	f := NewFetcher(src, time.Millisecond)
	defer f.Close()

	if _, err := f.Fetch(ctx, "http://example.test", "bad"); err == nil {
		t.Fatal("expected the scripted failure to surface")
	}

	// The worker must keep serving after a failure.
	page, err := f.Fetch(ctx, "http://example.test", "")
	if err != nil {
		t.Fatalf("Fetch() after failure: %v", err)
	}
	if !slices.Equal(page.Items, []string{"x"}) {
		t.Errorf("Fetch() = %+v", page)
	}
}

func TestFetchAfterClose(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{pages: map[string]Page{"": {}}}
	f := NewFetcher(src, time.Millisecond)

	if _, err := f.Fetch(ctx, "http://example.test", ""); err != nil {
		t.Fatal(err)
	}
	f.Close()
	f.Close() // idempotent

	if _, err := f.Fetch(ctx, "http://example.test", ""); !errors.Is(err, ErrFetcherClosed) {
		t.Errorf("Fetch() after Close: got %v, want ErrFetcherClosed", err)
	}
}

func TestPages(t *testing.T) {
	ctx := context.Background()
	src := pagedSource(3)
	f := NewFetcher(src, time.Millisecond)
	defer f.Close()

	var got []string
	for page, err := range f.Pages(ctx, "http://example.test") {
		if err != nil {
			t.Fatalf("Pages() yielded error: %v", err)
		}
		got = append(got, page.Items...)
	}
	if want := []string{"doc 0", "doc 1", "doc 2"}; !slices.Equal(got, want) {
		t.Errorf("Pages() produced %v, want %v", got, want)
	}
}

func TestPagesEarlyBreak(t *testing.T) {
	ctx := context.Background()
	src := pagedSource(3)
	f := NewFetcher(src, time.Millisecond)
	defer f.Close()

	for page, err := range f.Pages(ctx, "http://example.test") {
		if err != nil {
			t.Fatal(err)
		}
		if slices.Contains(page.Items, "doc 1") {
			break
		}
	}
	if src.calls != 2 {
		t.Errorf("expected 2 fetches before break, got %d", src.calls)
	}
}

func TestPagesSurfacesError(t *testing.T) {
	ctx := context.Background()
	src := pagedSource(3)
	src.failCursor = "1"
	src.failErr = errors.New("upstream down")
	f := NewFetcher(src, time.Millisecond)
	defer f.Close()

	var pages int
	var sawErr error
	for _, err := range f.Pages(ctx, "http://example.test") {
		if err != nil {
			sawErr = err
			continue
		}
		pages++
	}
	if pages != 1 {
		t.Errorf("expected 1 good page before the failure, got %d", pages)
	}
	if sawErr == nil {
		t.Error("expected the failure to be yielded")
	}
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	src := pagedSource(3)
	f := NewFetcher(src, time.Millisecond)
	defer f.Close()

	var got []string
	for doc := range f.Documents(ctx, "http://example.test") {
		got = append(got, doc)
	}
	if want := []string{"doc 0", "doc 1", "doc 2"}; !slices.Equal(got, want) {
		t.Errorf("Documents() produced %v, want %v", got, want)
	}
}

func TestDocumentsEndsOnError(t *testing.T) {
	ctx := context.Background()
	src := pagedSource(3)
	src.failCursor = "2"
	src.failErr = errors.New("upstream down")
	f := NewFetcher(src, time.Millisecond)
	defer f.Close()

	var got []string
	for doc := range f.Documents(ctx, "http://example.test") {
		got = append(got, doc)
	}
	// The stream ends quietly at the failure point.
	if want := []string{"doc 0", "doc 1"}; !slices.Equal(got, want) {
		t.Errorf("Documents() produced %v, want %v", got, want)
	}
}

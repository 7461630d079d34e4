package chain

import (
	"context"
	"errors"
)

// Walker produces an unbounded lazy token sequence by repeatedly sampling
// the store and sliding the context window. A walk is not restartable;
// create a new Walker to walk again. The chain does not self-terminate, so
// callers must cap how many tokens they consume.
type Walker struct {
	store   Store
	current Context
	dead    bool
}

// NewWalker starts a walk at the given seed context.
func NewWalker(store Store, seed Context) (*Walker, error) {
	if err := checkOrder(store.Order(), seed); err != nil {
		return nil, err
	}
	return &Walker{store: store, current: seed}, nil
}

// Context returns the walker's current window.
func (w *Walker) Context() Context { return w.current }

// Next samples the next token under the current context, slides the window,
// and returns the token. Once the walk reaches a context with no recorded
// transitions it returns ErrNoTransitions, and every later call does too.
func (w *Walker) Next(ctx context.Context) (string, error) {
	if w.dead {
		return "", ErrNoTransitions
	}
	tok, err := w.store.Sample(ctx, w.current)
	if err != nil {
		if errors.Is(err, ErrNoTransitions) {
			w.dead = true
		}
		return "", err
	}
	w.current = w.current.Shift(tok)
	return tok, nil
}

// Stream returns a channel carrying up to max tokens from the walk (all of
// them when max <= 0). The channel closes on a dead end, the cap, a store
// failure, or context cancellation.
func (w *Walker) Stream(ctx context.Context, max int) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for i := 0; max <= 0 || i < max; i++ {
			tok, err := w.Next(ctx)
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- tok:
			}
		}
	}()
	return out
}

// generateOptions is used by Generate to configure default options.
type generateOptions struct {
	maxTokens int
	seed      *Context
}

// GenerateOption configures a Generate call.
type GenerateOption func(*generateOptions)

// WithMaxTokens caps the number of tokens returned, seed window included.
// Default: 100.
func WithMaxTokens(n int) GenerateOption {
	return func(o *generateOptions) { o.maxTokens = n }
}

// WithSeed starts generation from the given context instead of one drawn
// via SampleAny.
func WithSeed(seed Context) GenerateOption {
	return func(o *generateOptions) { o.seed = &seed }
}

// Generate walks the store and returns the sampled tokens, beginning with
// the seed window itself. The walk ends at the token cap or the first dead
// end, whichever comes first. Without an explicit seed, an empty store
// returns ErrEmptyStore.
func Generate(ctx context.Context, store Store, opts ...GenerateOption) ([]string, error) {
	options := &generateOptions{maxTokens: 100}
	for _, opt := range opts {
		opt(options)
	}

	var seed Context
	if options.seed != nil {
		seed = *options.seed
	} else {
		var err error
		if seed, err = store.SampleAny(ctx); err != nil {
			return nil, err
		}
	}

	w, err := NewWalker(store, seed)
	if err != nil {
		return nil, err
	}

	out := seed.Tokens()
	for len(out) < options.maxTokens {
		tok, err := w.Next(ctx)
		if errors.Is(err, ErrNoTransitions) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, nil
}

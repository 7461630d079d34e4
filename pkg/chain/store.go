package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
)

var (
	// ErrNoTransitions is returned by Sample when a context has no recorded
	// transitions. It is an expected steady-state outcome, not a failure.
	ErrNoTransitions = errors.New("chain: no transitions recorded for context")
	// ErrEmptyStore is returned by SampleAny when the store holds no contexts.
	ErrEmptyStore = errors.New("chain: store has no contexts")
	// ErrOrderMismatch is returned when a context's length does not match the
	// store's configured order.
	ErrOrderMismatch = errors.New("chain: context length does not match store order")
)

// keySeparator joins tokens into serialized context keys. Tokens produced by
// the tokenize package never contain whitespace, so a single space round-trips.
const keySeparator = " "

// Context is an immutable, ordered window of n tokens used as a transition
// key. Two contexts are equal iff all n tokens match in order.
type Context struct {
	tokens []string
}

// NewContext builds a Context from the given tokens. The tokens are copied,
// so the caller may reuse its slice.
func NewContext(tokens ...string) Context {
	c := Context{tokens: make([]string, len(tokens))}
	copy(c.tokens, tokens)
	return c
}

// ParseKey reconstructs a Context from its serialized key form.
func ParseKey(key string) Context {
	if key == "" {
		return Context{}
	}
	return Context{tokens: strings.Split(key, keySeparator)}
}

// Order returns the number of tokens in the window.
func (c Context) Order() int { return len(c.tokens) }

// Tokens returns a copy of the window's tokens, oldest first.
func (c Context) Tokens() []string {
	return slices.Clone(c.tokens)
}

// Shift returns a new Context with the oldest token dropped and next
// appended, leaving the receiver unchanged.
func (c Context) Shift(next string) Context {
	if len(c.tokens) == 0 {
		return c
	}
	tokens := make([]string, len(c.tokens))
	copy(tokens, c.tokens[1:])
	tokens[len(tokens)-1] = next
	return Context{tokens: tokens}
}

// Key serializes the context deterministically; equal contexts always
// produce equal keys.
func (c Context) Key() string { return strings.Join(c.tokens, keySeparator) }

// Equal reports whether both contexts hold the same tokens in order.
func (c Context) Equal(other Context) bool {
	return slices.Equal(c.tokens, other.tokens)
}

func (c Context) String() string { return c.Key() }

// Store records weighted transitions between a Context and its observed next
// tokens, and answers weighted-random queries over them.
type Store interface {
	// Insert increases the occurrence count for (from, to) by one. It never
	// errors on a previously unseen context.
	Insert(ctx context.Context, from Context, to string) error
	// InsertBatch is equivalent to repeated Insert, preserving multiplicities.
	InsertBatch(ctx context.Context, from Context, tos []string) error
	// Sample draws a next token with probability proportional to its recorded
	// count under from. It returns ErrNoTransitions when from is unknown.
	Sample(ctx context.Context, from Context) (string, error)
	// SampleAny returns an arbitrarily chosen existing context to seed
	// generation, or ErrEmptyStore when the store holds none.
	SampleAny(ctx context.Context) (Context, error)
	// Order returns the context window length the store was configured with.
	Order() int
}

// checkOrder rejects contexts whose length does not match the store's order.
// Mismatches are reported immediately rather than coerced.
func checkOrder(order int, from Context) error {
	if from.Order() != order {
		return fmt.Errorf("%w: context has %d tokens, store order is %d", ErrOrderMismatch, from.Order(), order)
	}
	return nil
}

// discardLogger is the default for store types; SetLogger enables output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

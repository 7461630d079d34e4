package chain

import "iter"

// Transitions returns the lazy sequence of (context, next token) pairs found
// by sliding a window of order+1 tokens over the input: the first order
// tokens form the context, the last is the observed next token. It yields
// len(tokens)-order pairs when len(tokens) > order and nothing otherwise.
// The sequence is pure and restartable; iterating it never mutates tokens.
func Transitions(tokens []string, order int) iter.Seq2[Context, string] {
	return func(yield func(Context, string) bool) {
		if order < 1 || len(tokens) <= order {
			return
		}
		for i := 0; i+order < len(tokens); i++ {
			if !yield(NewContext(tokens[i:i+order]...), tokens[i+order]) {
				return
			}
		}
	}
}

// TransitionsSeq applies the same windowing to a streamed token sequence.
// Only the current window is held in memory, so it is safe over unbounded
// input.
func TransitionsSeq(tokens iter.Seq[string], order int) iter.Seq2[Context, string] {
	return func(yield func(Context, string) bool) {
		if order < 1 {
			return
		}
		window := make([]string, 0, order)
		for tok := range tokens {
			if len(window) < order {
				window = append(window, tok)
				continue
			}
			if !yield(NewContext(window...), tok) {
				return
			}
			copy(window, window[1:])
			window[order-1] = tok
		}
	}
}

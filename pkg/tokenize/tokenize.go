// Package tokenize splits raw text into the token stream consumed by the
// chain package, and joins generated tokens back into readable output.
// Words are lower-cased; punctuation marks stand alone as their own tokens.
package tokenize

import (
	"bufio"
	"io"
	"iter"
	"regexp"
	"strings"
)

var (
	// wordRegex finds sequences of word characters OR single instances of
	// common punctuation.
	wordRegex = regexp.MustCompile(`[\w']+|[.,!?;]`)
	// noSpaceRegex matches tokens that don't get a separator put before them.
	noSpaceRegex = regexp.MustCompile(`^[.,!?;]`)
)

// Normalize lower-cases raw text and splits it into word and punctuation
// tokens. It is pure and deterministic.
func Normalize(raw string) []string {
	return wordRegex.FindAllString(strings.ToLower(raw), -1)
}

// Join renders a token sequence as text. Tokens are separated by single
// spaces, except that punctuation attaches directly to the preceding token.
func Join(tokens []string) string {
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 && !noSpaceRegex.MatchString(tok) {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return b.String()
}

// Scanner tokenizes an io.Reader incrementally, holding at most one line's
// tokens in memory at a time.
type Scanner struct {
	scanner *bufio.Scanner
	buffer  []string
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{scanner: bufio.NewScanner(r)}
}

// Next returns the next token from the stream. It returns io.EOF as the
// error when the stream is fully consumed.
func (s *Scanner) Next() (string, error) {
	for len(s.buffer) == 0 { // Loop until we have tokens
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		s.buffer = Normalize(s.scanner.Text())
	}

	tok := s.buffer[0]
	s.buffer = s.buffer[1:]
	return tok, nil
}

// Tokens adapts the scanner to a lazy token sequence. A read error ends the
// sequence; callers needing the error should use Next directly.
func (s *Scanner) Tokens() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			tok, err := s.Next()
			if err != nil {
				return
			}
			if !yield(tok) {
				return
			}
		}
	}
}

package tokenizer

import (
	"fmt"
	"slices"
	"strings"
)

// Char assigns one token to every unique rune of a corpus, ordered by
// code point.
type Char struct {
	runes []rune
	ids   map[rune]int
}

var _ Tokenizer = (*Char)(nil)

// NewChar builds the vocabulary of corpus.
func NewChar(corpus string) *Char {
	ids := make(map[rune]int)
	for _, r := range corpus {
		ids[r] = 0
	}
	runes := make([]rune, 0, len(ids))
	for r := range ids {
		runes = append(runes, r)
	}
	slices.Sort(runes)
	for i, r := range runes {
		ids[r] = i
	}
	return &Char{runes: runes, ids: ids}
}

// Encode implements Tokenizer.
func (c *Char) Encode(text string) ([]int, error) {
	out := make([]int, 0, len(text))
	for _, r := range text {
		id, ok := c.ids[r]
		if !ok {
			return nil, fmt.Errorf("rune %q: %w", r, ErrUnknownToken)
		}
		out = append(out, id)
	}
	return out, nil
}

// Decode implements Tokenizer.
func (c *Char) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(c.runes) {
			return "", invalidID(id, len(c.runes))
		}
		sb.WriteRune(c.runes[id])
	}
	return sb.String(), nil
}

// VocabSize implements Tokenizer.
func (c *Char) VocabSize() int { return len(c.runes) }

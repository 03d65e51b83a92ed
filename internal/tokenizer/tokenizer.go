package tokenizer

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownToken is returned when text contains something the
	// vocabulary cannot represent.
	ErrUnknownToken = errors.New("unknown token")

	// ErrInvalidID is returned when decoding an ID outside the vocabulary.
	ErrInvalidID = errors.New("token id out of range")
)

// Tokenizer converts between text and token IDs in [0, VocabSize()).
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int, error)

	// Decode converts token IDs back to text.
	Decode(ids []int) (string, error)

	// VocabSize returns the total vocabulary size.
	VocabSize() int
}

func invalidID(id, vocab int) error {
	return fmt.Errorf("id %d not in [0, %d): %w", id, vocab, ErrInvalidID)
}

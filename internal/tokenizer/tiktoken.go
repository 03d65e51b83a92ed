package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// encodingCL100kBase is the encoding name for GPT-4 and GPT-3.5-turbo.
	encodingCL100kBase = "cl100k_base"
	// encodingP50kBase is the encoding name for GPT-3.
	encodingP50kBase = "p50k_base"
	// encodingR50kBase is the encoding name for older GPT-3 models.
	encodingR50kBase = "r50k_base"
)

// TikToken wraps the pkoukk/tiktoken-go library for OpenAI tokenizers.
//
// Supported encodings:
//   - cl100k_base: GPT-4, GPT-3.5-turbo
//   - p50k_base: GPT-3, Codex
//   - r50k_base: GPT-3, davinci-002, babbage-002
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

var _ Tokenizer = (*TikToken)(nil)

// NewTikToken creates a TikToken tokenizer with the given encoding.
// Encodings are fetched on first use and cached by tiktoken-go.
func NewTikToken(encodingName string) (*TikToken, error) {
	switch encodingName {
	case encodingCL100kBase, encodingP50kBase, encodingR50kBase:
	default:
		return nil, fmt.Errorf("unsupported tiktoken encoding %q", encodingName)
	}
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: encoding, name: encodingName}, nil
}

// Encode implements Tokenizer. Special tokens are encoded as plain text.
func (t *TikToken) Encode(text string) ([]int, error) {
	return t.encoding.Encode(text, nil, nil), nil
}

// Decode implements Tokenizer.
func (t *TikToken) Decode(ids []int) (string, error) {
	vocab := t.VocabSize()
	for _, id := range ids {
		if id < 0 || id >= vocab {
			return "", invalidID(id, vocab)
		}
	}
	return t.encoding.Decode(ids), nil
}

// VocabSize returns the number of ordinary (non-special) tokens.
func (t *TikToken) VocabSize() int {
	if t.name == encodingCL100kBase {
		return 100256
	}
	return 50257
}

// Name returns the encoding name.
func (t *TikToken) Name() string {
	return t.name
}

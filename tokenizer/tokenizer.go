// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer provides text tokenization for training and inference.
//
// Supported tokenizers:
//   - Char: one token per unique character of a corpus
//   - SentencePiece: greedy longest match over a .vocab piece list
//   - TikToken: OpenAI BPE encodings (cl100k_base, p50k_base, r50k_base)
//
// Example usage:
//
//	import "github.com/born-ml/femtogpt/tokenizer"
//
//	tok, err := tokenizer.LoadSentencePiece("vocab_file.vocab")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tokens, err := tok.Encode("Hello, world!")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	text, err := tok.Decode(tokens)
package tokenizer

import (
	"io"

	"github.com/born-ml/femtogpt/internal/tokenizer"
)

// Tokenizer converts between text and token IDs.
type Tokenizer = tokenizer.Tokenizer

// Errors returned by Encode and Decode.
var (
	ErrUnknownToken = tokenizer.ErrUnknownToken
	ErrInvalidID    = tokenizer.ErrInvalidID
)

// Char is a character-level tokenizer.
type Char = tokenizer.Char

// NewChar builds a character vocabulary from corpus, ordered by code point.
func NewChar(corpus string) *Char {
	return tokenizer.NewChar(corpus)
}

// SentencePiece is a tokenizer over a SentencePiece .vocab file.
type SentencePiece = tokenizer.SentencePiece

// LoadSentencePiece reads a .vocab file of "piece<TAB>score" lines.
func LoadSentencePiece(path string) (*SentencePiece, error) {
	return tokenizer.LoadSentencePiece(path)
}

// ReadSentencePiece parses a .vocab stream.
func ReadSentencePiece(r io.Reader) (*SentencePiece, error) {
	return tokenizer.ReadSentencePiece(r)
}

// TikToken wraps an OpenAI BPE encoding.
type TikToken = tokenizer.TikToken

// NewTikToken loads a tiktoken encoding by name.
//
// Example:
//
//	tok, err := tokenizer.NewTikToken("cl100k_base")
func NewTikToken(encodingName string) (*TikToken, error) {
	return tokenizer.NewTikToken(encodingName)
}

// Package tokenizer maps text to token IDs and back.
//
// Three vocabularies are provided:
//   - Char: one token per unique rune of a corpus, in sorted order
//   - SentencePiece: pieces from a SentencePiece .vocab file, greedy longest match
//   - TikToken: OpenAI BPE encodings (cl100k_base, p50k_base, r50k_base)
//
// Example usage:
//
//	tok, err := tokenizer.LoadSentencePiece("vocab_file.vocab")
//	if err != nil {
//	    return err
//	}
//	ids, err := tok.Encode("Hello, world!")
//	text, err := tok.Decode(ids)
package tokenizer

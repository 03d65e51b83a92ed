package tokenizer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// spaceMarker stands for a space inside SentencePiece pieces.
const spaceMarker = "▁"

// SentencePiece tokenizes with the pieces of a SentencePiece .vocab file
// ("piece<TAB>score" per line, ID = line number). Encoding is greedy
// longest match; runes no piece covers map to the unknown piece.
type SentencePiece struct {
	pieces   []string
	ids      map[string]int
	maxRunes int
	unk      int // -1 when the vocabulary has no <unk>
}

var _ Tokenizer = (*SentencePiece)(nil)

// LoadSentencePiece reads a .vocab file.
func LoadSentencePiece(path string) (*SentencePiece, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab file: %w", err)
	}
	defer f.Close()

	sp, err := ReadSentencePiece(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sp, nil
}

// ReadSentencePiece parses a .vocab stream.
func ReadSentencePiece(r io.Reader) (*SentencePiece, error) {
	sp := &SentencePiece{ids: make(map[string]int), unk: -1}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		piece, _, _ := strings.Cut(text, "\t")
		if piece == "" {
			return nil, fmt.Errorf("line %d: empty piece", line)
		}
		if _, dup := sp.ids[piece]; dup {
			return nil, fmt.Errorf("line %d: duplicate piece %q", line, piece)
		}
		id := len(sp.pieces)
		sp.ids[piece] = id
		sp.pieces = append(sp.pieces, piece)
		if piece == "<unk>" {
			sp.unk = id
		}
		sp.maxRunes = max(sp.maxRunes, len([]rune(piece)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	if len(sp.pieces) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	return sp, nil
}

// Encode implements Tokenizer.
func (sp *SentencePiece) Encode(text string) ([]int, error) {
	runes := []rune(strings.ReplaceAll(text, " ", spaceMarker))
	var out []int
	for i := 0; i < len(runes); {
		n := min(sp.maxRunes, len(runes)-i)
		for ; n > 0; n-- {
			if id, ok := sp.ids[string(runes[i:i+n])]; ok {
				out = append(out, id)
				break
			}
		}
		if n == 0 {
			if sp.unk < 0 {
				return nil, fmt.Errorf("rune %q: %w", runes[i], ErrUnknownToken)
			}
			out = append(out, sp.unk)
			n = 1
		}
		i += n
	}
	return out, nil
}

// Decode implements Tokenizer. Control pieces such as <s> decode to nothing.
func (sp *SentencePiece) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(sp.pieces) {
			return "", invalidID(id, len(sp.pieces))
		}
		piece := sp.pieces[id]
		if isControl(piece) {
			continue
		}
		sb.WriteString(piece)
	}
	return strings.ReplaceAll(sb.String(), spaceMarker, " "), nil
}

// VocabSize implements Tokenizer.
func (sp *SentencePiece) VocabSize() int { return len(sp.pieces) }

func isControl(piece string) bool {
	return len(piece) > 2 && strings.HasPrefix(piece, "<") && strings.HasSuffix(piece, ">")
}

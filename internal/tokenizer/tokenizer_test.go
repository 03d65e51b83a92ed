package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChar(t *testing.T) {
	tok := NewChar("hello world\n")
	assert.Equal(t, 9, tok.VocabSize()) // \n ' ' d e h l o r w

	ids, err := tok.Encode("\nhold")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 6, 5, 2}, ids)

	text, err := tok.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "\nhold", text)

	_, err = tok.Encode("hex")
	assert.ErrorIs(t, err, ErrUnknownToken)
	_, err = tok.Decode([]int{9})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestCharUnicode(t *testing.T) {
	tok := NewChar("ÿaé")
	ids, err := tok.Encode("éaÿ")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, ids)
}

const vocab = "<unk>\t0\n<s>\t0\n</s>\t0\n▁the\t-1.5\n▁\t-2\nthe\t-3\nt\t-4\nh\t-4\ne\t-4\n▁c\t-5\nc\t-5\na\t-5\n"

func TestSentencePiece(t *testing.T) {
	sp, err := ReadSentencePiece(strings.NewReader(vocab))
	require.NoError(t, err)
	assert.Equal(t, 12, sp.VocabSize())

	ids, err := sp.Encode("the cat")
	require.NoError(t, err)
	assert.Equal(t, []int{5, 9, 11, 6}, ids)

	text, err := sp.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "the cat", text)

	ids, err = sp.Encode(" thez")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0}, ids, "longest match then <unk>")

	text, err = sp.Decode([]int{1, 3, 2})
	require.NoError(t, err)
	assert.Equal(t, " the", text)

	_, err = sp.Decode([]int{-1})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestSentencePieceWithoutUnk(t *testing.T) {
	sp, err := ReadSentencePiece(strings.NewReader("a\t0\nb\t0\n"))
	require.NoError(t, err)
	_, err = sp.Encode("abc")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestReadSentencePieceErrors(t *testing.T) {
	for name, input := range map[string]string{
		"empty":     "",
		"duplicate": "a\t0\na\t1\n",
		"no piece":  "\t0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSentencePiece(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestLoadSentencePieceMissingFile(t *testing.T) {
	_, err := LoadSentencePiece("does-not-exist.vocab")
	assert.Error(t, err)
}

func TestTikTokenUnsupported(t *testing.T) {
	tok, err := NewTikToken("invalid_encoding_xyz")
	assert.Error(t, err)
	assert.Nil(t, tok)
}

func TestTikTokenRoundtrip(t *testing.T) {
	tok, err := NewTikToken("cl100k_base")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	assert.Equal(t, 100256, tok.VocabSize())
	assert.Equal(t, "cl100k_base", tok.Name())

	for _, text := range []string{"Hello, world!", "  leading spaces", "unicode: ñ 日本"} {
		ids, err := tok.Encode(text)
		require.NoError(t, err)
		for _, id := range ids {
			assert.Less(t, id, tok.VocabSize())
		}
		got, err := tok.Decode(ids)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}

	_, err = tok.Decode([]int{tok.VocabSize()})
	assert.ErrorIs(t, err, ErrInvalidID)
}

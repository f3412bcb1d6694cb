package scanner

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokens(t *testing.T, input string) []Token {
	t.Helper()
	s := New([]byte(input), Config{})
	var out []Token
	for {
		tok, err := s.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, tok)
	}
}

func TestScanNumbers(t *testing.T) {
	toks := tokens(t, "42 -17 3.14 +0.5 .25")
	require.Len(t, toks, 5)
	assert.True(t, toks[0].IsInt)
	assert.EqualValues(t, 42, toks[0].Int)
	assert.EqualValues(t, -17, toks[1].Int)
	assert.False(t, toks[2].IsInt)
	assert.InDelta(t, 3.14, toks[2].Float, 1e-9)
	assert.InDelta(t, 0.5, toks[3].Float, 1e-9)
	assert.InDelta(t, 0.25, toks[4].Float, 1e-9)
}

func TestScanIndirectReference(t *testing.T) {
	toks := tokens(t, "12 0 R")
	require.Len(t, toks, 1)
	assert.Equal(t, TokenRef, toks[0].Type)
	assert.EqualValues(t, 12, toks[0].Int)
	assert.Equal(t, 0, toks[0].Gen)
}

func TestScanNumberPairIsNotReference(t *testing.T) {
	toks := tokens(t, "12 0 obj")
	require.Len(t, toks, 3)
	assert.Equal(t, TokenNumber, toks[0].Type)
	assert.Equal(t, TokenNumber, toks[1].Type)
	assert.Equal(t, TokenKeyword, toks[2].Type)
	assert.Equal(t, "obj", toks[2].Str)
}

func TestScanLiteralStringEscapes(t *testing.T) {
	toks := tokens(t, `(a\(b\)c\\d\n)`)
	require.Len(t, toks, 1)
	assert.Equal(t, TokenString, toks[0].Type)
	assert.Equal(t, "a(b)c\\d\n", string(toks[0].Bytes))
}

func TestScanNestedParensInString(t *testing.T) {
	toks := tokens(t, "(outer (inner) tail)")
	require.Len(t, toks, 1)
	assert.Equal(t, "outer (inner) tail", string(toks[0].Bytes))
}

func TestScanHexString(t *testing.T) {
	toks := tokens(t, "<48656C6C6F>")
	require.Len(t, toks, 1)
	assert.True(t, toks[0].Hex)
	assert.Equal(t, "Hello", string(toks[0].Bytes))
}

func TestScanHexStringOddDigits(t *testing.T) {
	// A final missing digit reads as zero.
	toks := tokens(t, "<ABC>")
	require.Len(t, toks, 1)
	assert.Equal(t, []byte{0xAB, 0xC0}, toks[0].Bytes)
}

func TestScanNameWithHexEscape(t *testing.T) {
	toks := tokens(t, "/A#20B")
	require.Len(t, toks, 1)
	assert.Equal(t, TokenName, toks[0].Type)
	assert.Equal(t, "A B", toks[0].Str)
}

func TestScanBooleanAndNull(t *testing.T) {
	toks := tokens(t, "true false null")
	require.Len(t, toks, 3)
	assert.Equal(t, TokenBoolean, toks[0].Type)
	assert.True(t, toks[0].Bool)
	assert.False(t, toks[1].Bool)
	assert.Equal(t, TokenNull, toks[2].Type)
}

func TestScanDictAndArrayDelimiters(t *testing.T) {
	toks := tokens(t, "<< /K [1 2] >>")
	require.GreaterOrEqual(t, len(toks), 6)
	assert.Equal(t, TokenDict, toks[0].Type)
	assert.Equal(t, TokenName, toks[1].Type)
	assert.Equal(t, TokenArray, toks[2].Type)
}

func TestScanSkipsComments(t *testing.T) {
	toks := tokens(t, "% header comment\n42")
	require.Len(t, toks, 1)
	assert.EqualValues(t, 42, toks[0].Int)
}

func TestScanStreamWithLengthHint(t *testing.T) {
	payload := "binary endstream inside"
	input := "stream\n" + payload + "\nendstream"
	s := New([]byte(input), Config{})
	s.SetNextStreamLength(int64(len(payload)))
	tok, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenStream, tok.Type)
	assert.Equal(t, payload, string(tok.Bytes))
}

func TestScanStreamWithoutHintSearchesEndstream(t *testing.T) {
	input := "stream\npayload bytes\nendstream"
	s := New([]byte(input), Config{})
	tok, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenStream, tok.Type)
	assert.Equal(t, "payload bytes", string(tok.Bytes))
}

func TestSeekAndPosition(t *testing.T) {
	s := New([]byte("1 2 3"), Config{})
	_, err := s.Next()
	require.NoError(t, err)
	require.NoError(t, s.SeekTo(4))
	tok, err := s.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 3, tok.Int)
	assert.Error(t, s.SeekTo(99))
}

func TestStringLengthLimit(t *testing.T) {
	s := New([]byte("(abcdefgh)"), Config{MaxStringLength: 4})
	_, err := s.Next()
	assert.Error(t, err)
}

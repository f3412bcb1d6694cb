package parser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfpipe/parser"
	"github.com/wudi/pdfpipe/pdftest"
	"github.com/wudi/pdfpipe/raw"
	"github.com/wudi/pdfpipe/security"
)

func parse(t *testing.T, data []byte, password string) (*raw.Document, error) {
	t.Helper()
	p := parser.NewDocumentParser(parser.Config{Password: password})
	return p.Parse(context.Background(), data)
}

func TestParsePlainDocument(t *testing.T) {
	data, err := pdftest.PlainBytes()
	require.NoError(t, err)

	doc, err := parse(t, data, "")
	require.NoError(t, err)
	assert.False(t, doc.Encrypted)
	assert.Equal(t, "1.4", doc.Version)
	assert.Len(t, doc.Objects, 5)

	cat, ok := doc.Objects[raw.ObjectRef{Num: 1}]
	require.True(t, ok)
	dict, ok := cat.(raw.Dictionary)
	require.True(t, ok)
	typ, ok := dict.Get(raw.NameLiteral("Type"))
	require.True(t, ok)
	assert.Equal(t, "Catalog", typ.(raw.Name).Value())
}

func TestParseDecryptsStringsAndStreams(t *testing.T) {
	data, err := pdftest.EncryptedBytes("pw")
	require.NoError(t, err)

	doc, err := parse(t, data, "pw")
	require.NoError(t, err)
	assert.True(t, doc.Encrypted)
	require.NotNil(t, doc.EncryptRef)

	// Content stream comes back as written.
	obj, ok := doc.Objects[raw.ObjectRef{Num: 4}]
	require.True(t, ok)
	stream, ok := obj.(raw.Stream)
	require.True(t, ok)
	assert.Contains(t, string(stream.RawData()), "(Hello) Tj")

	// Info string too.
	info := doc.Objects[raw.ObjectRef{Num: 5}].(raw.Dictionary)
	title, ok := info.Get(raw.NameLiteral("Title"))
	require.True(t, ok)
	assert.Equal(t, []byte("fixture document"), title.(raw.String).Value())
}

func TestParseWrongPassword(t *testing.T) {
	data, err := pdftest.EncryptedBytes("right")
	require.NoError(t, err)

	_, err = parse(t, data, "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, security.ErrInvalidPassword)
}

func TestParseAES256Document(t *testing.T) {
	data, err := pdftest.EncryptedAES256Bytes("s3cret")
	require.NoError(t, err)

	doc, err := parse(t, data, "s3cret")
	require.NoError(t, err)
	assert.True(t, doc.Encrypted)

	stream := doc.Objects[raw.ObjectRef{Num: 4}].(raw.Stream)
	assert.Contains(t, string(stream.RawData()), "(Hello) Tj")
}

func TestParseGarbage(t *testing.T) {
	_, err := parse(t, []byte("%PDF-1.4\nthis is not a body"), "")
	assert.Error(t, err)
}

func TestParseInputSizeLimit(t *testing.T) {
	data, err := pdftest.PlainBytes()
	require.NoError(t, err)

	p := parser.NewDocumentParser(parser.Config{Limits: security.Limits{MaxInputSize: 16}})
	_, err = p.Parse(context.Background(), data)
	assert.Error(t, err)
}

func TestParseMissingStartxrefRepairs(t *testing.T) {
	data, err := pdftest.PlainBytes()
	require.NoError(t, err)

	// Cut the tail so startxref is gone; the repair scan still finds
	// every object header and the trailer dictionary.
	idx := len(data) - 1
	for ; idx > 0; idx-- {
		if string(data[idx:min(idx+9, len(data))]) == "startxref" {
			break
		}
	}
	require.Positive(t, idx)

	doc, err := parse(t, data[:idx], "")
	require.NoError(t, err)
	assert.Len(t, doc.Objects, 5)
}

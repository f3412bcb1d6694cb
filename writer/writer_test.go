package writer_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfpipe/parser"
	"github.com/wudi/pdfpipe/pdftest"
	"github.com/wudi/pdfpipe/raw"
	"github.com/wudi/pdfpipe/writer"
)

func TestWritePlainDocument(t *testing.T) {
	data, err := pdftest.PlainBytes()
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, "%PDF-1.4\n"))
	assert.Contains(t, out, "1 0 obj")
	assert.Contains(t, out, "/Type /Catalog")
	assert.Contains(t, out, "stream")
	assert.Contains(t, out, "xref")
	assert.Contains(t, out, "trailer")
	assert.True(t, strings.HasSuffix(out, "%%EOF\n"))
	assert.NotContains(t, out, "/Encrypt")
}

func TestWriteDropsEncryptAndPrevFromTrailer(t *testing.T) {
	doc := pdftest.MinimalDocument()
	doc.Trailer.Set(raw.NameLiteral("Prev"), raw.NumberInt(12345))
	doc.Trailer.Set(raw.NameLiteral("Encrypt"), raw.Ref(9, 0))

	data, err := pdftest.Bytes(doc, writer.Config{})
	require.NoError(t, err)
	tail := string(data[strings.LastIndex(string(data), "trailer"):])
	assert.NotContains(t, tail, "/Prev")
	assert.NotContains(t, tail, "/Encrypt")
}

func TestWriteEncryptedInstallsDictionary(t *testing.T) {
	data, err := pdftest.EncryptedBytes("pw")
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "/Encrypt")
	assert.Contains(t, out, "/Filter /Standard")
	assert.Contains(t, out, "/ID")
	// Stream payload must not survive in the clear.
	assert.NotContains(t, out, "(Hello) Tj")
}

func TestSerializeObject(t *testing.T) {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Count"), raw.NumberInt(3))
	d.Set(raw.NameLiteral("Kids"), raw.NewArray(raw.Ref(3, 0)))

	out, err := writer.NewWriter().SerializeObject(raw.ObjectRef{Num: 2}, d)
	require.NoError(t, err)
	s := string(out)
	assert.True(t, strings.HasPrefix(s, "2 0 obj\n"))
	assert.Contains(t, s, "/Count 3")
	assert.Contains(t, s, "[3 0 R]")
	assert.True(t, strings.HasSuffix(s, "endobj\n"))
}

func TestSerializeStringEscaping(t *testing.T) {
	d := raw.Dict()
	d.Set(raw.NameLiteral("S"), raw.Str([]byte(`with (parens) and \ backslash`)))
	out, err := writer.NewWriter().SerializeObject(raw.ObjectRef{Num: 1}, d)
	require.NoError(t, err)
	assert.Contains(t, string(out), `(with \(parens\) and \\ backslash)`)
}

func TestSerializeNameEscaping(t *testing.T) {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Custom Tag"), raw.NameLiteral("A B#C"))
	d.Set(raw.NameLiteral("Paren(Key)"), raw.NameLiteral("plain"))

	out, err := writer.NewWriter().SerializeObject(raw.ObjectRef{Num: 1}, d)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "/Custom#20Tag /A#20B#23C")
	assert.Contains(t, s, "/Paren#28Key#29 /plain")
}

// Names with bytes outside the regular character set must survive a full
// write-then-parse cycle, both as dictionary keys and as values.
func TestWriteEscapedNamesRoundTrip(t *testing.T) {
	doc := pdftest.MinimalDocument()
	info := doc.Objects[raw.ObjectRef{Num: 5}].(*raw.DictObj)
	info.Set(raw.NameLiteral("Custom Tag"), raw.NameLiteral("A B"))

	data, err := pdftest.Bytes(doc, writer.Config{})
	require.NoError(t, err)
	assert.Contains(t, string(data), "/Custom#20Tag /A#20B")

	back, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), data)
	require.NoError(t, err)
	got := back.Objects[raw.ObjectRef{Num: 5}].(raw.Dictionary)
	v, ok := got.Get(raw.NameLiteral("Custom Tag"))
	require.True(t, ok)
	assert.Equal(t, "A B", v.(raw.Name).Value())
}

func TestSerializeHexString(t *testing.T) {
	d := raw.Dict()
	d.Set(raw.NameLiteral("ID"), raw.HexStr([]byte{0xde, 0xad}))
	out, err := writer.NewWriter().SerializeObject(raw.ObjectRef{Num: 1}, d)
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(string(out)), "<dead>")
}

func TestWriteHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := writer.NewWriter().Write(ctx, pdftest.MinimalDocument(), &buf, writer.Config{})
	assert.ErrorIs(t, err, context.Canceled)
}

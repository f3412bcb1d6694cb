package xref

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfpipe/raw"
)

// buildFile assembles a minimal classic-xref file with two tiny objects.
func buildFile(t *testing.T) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	off1 := int64(b.Len())
	b.WriteString("1 0 obj\n<</Type /Catalog>>\nendobj\n")
	off2 := int64(b.Len())
	b.WriteString("2 0 obj\n42\nendobj\n")
	xrefOff := int64(b.Len())
	b.WriteString("xref\n0 3\n")
	b.WriteString("0000000000 65535 f \n")
	fmt.Fprintf(&b, "%010d 00000 n \n", off1)
	fmt.Fprintf(&b, "%010d 00000 n \n", off2)
	b.WriteString("trailer\n<</Size 3 /Root 1 0 R>>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return []byte(b.String())
}

func TestResolveClassicTable(t *testing.T) {
	data := buildFile(t)
	r := NewResolver(ResolverConfig{})
	table, err := r.Resolve(context.Background(), data)
	require.NoError(t, err)

	off, gen, ok := table.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 0, gen)
	assert.Equal(t, "1 0 obj", string(data[off:off+7]))

	_, _, ok = table.Lookup(2)
	assert.True(t, ok)
	_, _, ok = table.Lookup(99)
	assert.False(t, ok)

	trailer := r.Trailer()
	require.NotNil(t, trailer)
	root, ok := trailer.Get(raw.NameLiteral("Root"))
	require.True(t, ok)
	assert.Equal(t, 1, root.(raw.Reference).Ref().Num)
}

func TestResolvePrevChainNewestWins(t *testing.T) {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	oldOff := int64(b.Len())
	b.WriteString("1 0 obj\n(old)\nendobj\n")
	newOff := int64(b.Len())
	b.WriteString("1 0 obj\n(new)\nendobj\n")

	oldXref := int64(b.Len())
	fmt.Fprintf(&b, "xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", oldOff)
	b.WriteString("trailer\n<</Size 2>>\n")

	newXref := int64(b.Len())
	fmt.Fprintf(&b, "xref\n1 1\n%010d 00000 n \n", newOff)
	fmt.Fprintf(&b, "trailer\n<</Size 2 /Prev %d>>\n", oldXref)
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", newXref)

	r := NewResolver(ResolverConfig{})
	table, err := r.Resolve(context.Background(), []byte(b.String()))
	require.NoError(t, err)

	off, _, ok := table.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, newOff, off, "the update must shadow the base section")
}

func TestResolvePrevLoopDetected(t *testing.T) {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	xrefOff := int64(b.Len())
	fmt.Fprintf(&b, "xref\n0 1\n0000000000 65535 f \n")
	fmt.Fprintf(&b, "trailer\n<</Size 1 /Prev %d>>\n", xrefOff)
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefOff)

	r := NewResolver(ResolverConfig{DisableRepair: true})
	_, err := r.Resolve(context.Background(), []byte(b.String()))
	assert.Error(t, err)
}

func TestRepairRecoversWithoutStartxref(t *testing.T) {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	off1 := int64(b.Len())
	b.WriteString("1 0 obj\n<</Type /Catalog>>\nendobj\n")
	b.WriteString("2 0 obj\n(text)\nendobj\n")
	b.WriteString("trailer\n<</Size 3 /Root 1 0 R>>\n")
	// No xref table, no startxref.

	r := NewResolver(ResolverConfig{})
	table, err := r.Resolve(context.Background(), []byte(b.String()))
	require.NoError(t, err)

	off, _, ok := table.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, off1, off)
	_, _, ok = table.Lookup(2)
	assert.True(t, ok)

	root, ok := r.Trailer().Get(raw.NameLiteral("Root"))
	require.True(t, ok)
	assert.Equal(t, 1, root.(raw.Reference).Ref().Num)
}

func TestRepairDisabled(t *testing.T) {
	r := NewResolver(ResolverConfig{DisableRepair: true})
	_, err := r.Resolve(context.Background(), []byte("no pdf structure here"))
	assert.Error(t, err)
}

func TestStartXRefOffsetRejectsMissing(t *testing.T) {
	_, err := startXRefOffset([]byte("plain text"))
	assert.Error(t, err)
}

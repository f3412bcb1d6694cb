package decrypt

import (
	"context"
	"errors"
	"io"

	"github.com/wudi/pdfpipe/parser"
	"github.com/wudi/pdfpipe/raw"
	"github.com/wudi/pdfpipe/recovery"
	"github.com/wudi/pdfpipe/security"
	"github.com/wudi/pdfpipe/writer"
)

// documentOpener is the production Opener: parse with the candidate
// password, rewrite through the writer with the encryption dictionary
// dropped.
type documentOpener struct {
	limits security.Limits
}

// NewDocumentOpener returns an Opener backed by the parser and writer
// packages.
func NewDocumentOpener(limits security.Limits) Opener {
	return &documentOpener{limits: limits.OrDefaults()}
}

func (o *documentOpener) Open(ctx context.Context, data []byte, password string) (Handle, error) {
	p := parser.NewDocumentParser(parser.Config{
		Recovery: recovery.NewLenientStrategy(),
		Limits:   o.limits,
		Password: password,
	})
	doc, err := p.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	return &documentHandle{doc: doc}, nil
}

type documentHandle struct {
	doc    *raw.Document
	closed bool
}

func (h *documentHandle) Encrypted() bool { return h.doc.Encrypted }

func (h *documentHandle) Strip(ctx context.Context, w io.Writer) error {
	if h.closed {
		return errors.New("document already closed")
	}
	if h.doc.EncryptRef != nil {
		delete(h.doc.Objects, *h.doc.EncryptRef)
	}
	return writer.NewWriter().Write(ctx, h.doc, w, writer.Config{})
}

func (h *documentHandle) Close() error {
	if h.closed {
		return errors.New("document already closed")
	}
	h.closed = true
	h.doc = nil
	return nil
}

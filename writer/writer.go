// Package writer re-serializes a raw.Document into a complete PDF file:
// header, body objects, classic xref table, and trailer.
package writer

import (
	"context"
	"io"

	"github.com/wudi/pdfpipe/raw"
)

type Config struct {
	// Encrypt, when set, protects the output with the Standard security
	// handler. Nil writes plaintext.
	Encrypt *EncryptOptions
}

type EncryptOptions struct {
	UserPassword  string
	OwnerPassword string
	Permissions   raw.Permissions
	// AES256 selects V5/R6; the default is the 40-bit RC4 scheme.
	AES256 bool
	// PlainMetadata leaves metadata streams unencrypted (AES-256 only).
	PlainMetadata bool
}

type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

func NewWriter() Writer { return &impl{} }

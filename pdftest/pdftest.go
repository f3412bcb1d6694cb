// Package pdftest builds small in-memory documents for tests.
package pdftest

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wudi/pdfpipe/raw"
	"github.com/wudi/pdfpipe/writer"
)

// MinimalDocument returns a one-page document: catalog, page tree, page,
// and a content stream, with an Info dictionary carrying a string that
// exercises string encryption.
func MinimalDocument() *raw.Document {
	content := []byte("BT /F1 12 Tf 72 720 Td (Hello) Tj ET")

	doc := &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{},
		Trailer: raw.Dict(),
		Version: "1.4",
	}

	catDict := raw.Dict()
	catDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catDict.Set(raw.NameLiteral("Pages"), raw.Ref(2, 0))
	doc.Objects[raw.ObjectRef{Num: 1}] = catDict

	pagesDict := raw.Dict()
	pagesDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pagesDict.Set(raw.NameLiteral("Kids"), raw.NewArray(raw.Ref(3, 0)))
	pagesDict.Set(raw.NameLiteral("Count"), raw.NumberInt(1))
	doc.Objects[raw.ObjectRef{Num: 2}] = pagesDict

	pageDict := raw.Dict()
	pageDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
	pageDict.Set(raw.NameLiteral("Parent"), raw.Ref(2, 0))
	pageDict.Set(raw.NameLiteral("MediaBox"),
		raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
	pageDict.Set(raw.NameLiteral("Contents"), raw.Ref(4, 0))
	doc.Objects[raw.ObjectRef{Num: 3}] = pageDict

	streamDict := raw.Dict()
	streamDict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(content))))
	doc.Objects[raw.ObjectRef{Num: 4}] = raw.NewStream(streamDict, content)

	infoDict := raw.Dict()
	infoDict.Set(raw.NameLiteral("Title"), raw.Str([]byte("fixture document")))
	doc.Objects[raw.ObjectRef{Num: 5}] = infoDict

	doc.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))
	doc.Trailer.Set(raw.NameLiteral("Info"), raw.Ref(5, 0))
	return doc
}

// Bytes serializes doc with the given writer config.
func Bytes(doc *raw.Document, cfg writer.Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := writer.NewWriter().Write(context.Background(), doc, &buf, cfg); err != nil {
		return nil, fmt.Errorf("serialize fixture: %w", err)
	}
	return buf.Bytes(), nil
}

// PlainBytes serializes a minimal unencrypted document.
func PlainBytes() ([]byte, error) {
	return Bytes(MinimalDocument(), writer.Config{})
}

// EncryptedBytes serializes a minimal document protected with the given
// user password using the 40-bit RC4 scheme.
func EncryptedBytes(userPassword string) ([]byte, error) {
	return Bytes(MinimalDocument(), writer.Config{Encrypt: &writer.EncryptOptions{
		UserPassword:  userPassword,
		OwnerPassword: userPassword + "-owner",
		Permissions:   raw.AllPermissions(),
	}})
}

// EncryptedAES256Bytes serializes a minimal document protected with the
// given user password using the AES-256 scheme.
func EncryptedAES256Bytes(userPassword string) ([]byte, error) {
	return Bytes(MinimalDocument(), writer.Config{Encrypt: &writer.EncryptOptions{
		UserPassword:  userPassword,
		OwnerPassword: userPassword + "-owner",
		Permissions:   raw.AllPermissions(),
		AES256:        true,
	}})
}

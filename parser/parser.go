// Package parser turns buffered PDF bytes into a raw.Document, selecting
// and authenticating the security handler declared in the trailer.
package parser

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wudi/pdfpipe/raw"
	"github.com/wudi/pdfpipe/recovery"
	"github.com/wudi/pdfpipe/security"
	"github.com/wudi/pdfpipe/xref"
)

// Config controls high-level parsing (xref resolution + object loading).
type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
	Password string
}

// DocumentParser builds a raw.Document from a complete in-memory file.
// The same parser may be reused; each Parse call is independent.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	cfg.Limits = cfg.Limits.OrDefaults()
	return &DocumentParser{cfg: cfg}
}

func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	if int64(len(data)) > p.cfg.Limits.MaxInputSize {
		return nil, fmt.Errorf("input of %d bytes exceeds limit %d", len(data), p.cfg.Limits.MaxInputSize)
	}

	resolver := xref.NewResolver(xref.ResolverConfig{
		MaxXRefDepth: p.cfg.Limits.MaxXRefDepth,
		Recovery:     p.cfg.Recovery,
	})
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	trailer := resolver.Trailer()

	sec, encRef, err := p.selectSecurity(ctx, data, table, trailer)
	if err != nil {
		return nil, fmt.Errorf("security setup: %w", err)
	}

	builder := (&ObjectLoaderBuilder{}).
		WithData(data).
		WithXRef(table).
		WithSecurity(sec).
		WithLimits(p.cfg.Limits).
		WithRecovery(p.cfg.Recovery)
	if encRef != nil {
		builder.WithSkipDecrypt(map[raw.ObjectRef]bool{*encRef: true})
	}
	loader, err := builder.Build()
	if err != nil {
		return nil, err
	}

	doc := &raw.Document{
		Objects:     make(map[raw.ObjectRef]raw.Object),
		Trailer:     trailer,
		Version:     detectHeaderVersion(data),
		Encrypted:   sec.IsEncrypted(),
		EncryptRef:  encRef,
		Permissions: sec.Permissions(),
	}

	for _, objNum := range table.Objects() {
		if objNum == 0 {
			continue // free list head
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, gen, found := table.Lookup(objNum)
		if !found {
			continue
		}
		ref := raw.ObjectRef{Num: objNum, Gen: gen}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load object %d: %w", objNum, err)
		}
		doc.Objects[ref] = obj
	}

	return doc, nil
}

// selectSecurity builds and authenticates the handler declared by the
// trailer /Encrypt entry, returning the entry's indirect ref (if any) so
// the loader can exempt it from decryption.
func (p *DocumentParser) selectSecurity(ctx context.Context, data []byte, table xref.Table, trailer raw.Dictionary) (security.Handler, *raw.ObjectRef, error) {
	if trailer == nil {
		return security.NoopHandler(), nil, nil
	}
	encObj, ok := trailer.Get(raw.NameLiteral("Encrypt"))
	if !ok {
		return security.NoopHandler(), nil, nil
	}

	var encDict *raw.DictObj
	var encRef *raw.ObjectRef
	switch v := encObj.(type) {
	case *raw.DictObj:
		encDict = v
	case raw.RefObj:
		loader, err := (&ObjectLoaderBuilder{}).
			WithData(data).
			WithXRef(table).
			WithSecurity(security.NoopHandler()).
			WithLimits(p.cfg.Limits).
			WithRecovery(p.cfg.Recovery).
			Build()
		if err != nil {
			return nil, nil, err
		}
		obj, err := loader.Load(ctx, v.R)
		if err != nil {
			return nil, nil, fmt.Errorf("load encrypt dictionary: %w", err)
		}
		encDict, _ = obj.(*raw.DictObj)
		r := v.R
		encRef = &r
	}
	if encDict == nil {
		return security.NoopHandler(), nil, nil
	}

	handler, err := (&security.HandlerBuilder{}).
		WithEncryptDict(encDict).
		WithTrailer(trailer).
		Build()
	if err != nil {
		return nil, nil, err
	}
	if err := handler.Authenticate(p.cfg.Password); err != nil {
		return nil, nil, fmt.Errorf("authenticate: %w", err)
	}
	return handler, encRef, nil
}

func detectHeaderVersion(data []byte) string {
	const prefix = "%PDF-"
	idx := bytes.Index(data[:min(len(data), 1024)], []byte(prefix))
	if idx < 0 {
		return ""
	}
	rest := data[idx+len(prefix):]
	end := 0
	for end < len(rest) && end < 8 && rest[end] != '\r' && rest[end] != '\n' && rest[end] != ' ' {
		end++
	}
	return string(rest[:end])
}

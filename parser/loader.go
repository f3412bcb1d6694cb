package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdfpipe/raw"
	"github.com/wudi/pdfpipe/recovery"
	"github.com/wudi/pdfpipe/scanner"
	"github.com/wudi/pdfpipe/security"
	"github.com/wudi/pdfpipe/xref"
)

// ObjectLoader materializes indirect objects, decrypting their strings and
// stream payloads in place when the document is encrypted.
type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	data        []byte
	xrefTable   xref.Table
	security    security.Handler
	limits      security.Limits
	recovery    recovery.Strategy
	skipDecrypt map[raw.ObjectRef]bool
}

func (b *ObjectLoaderBuilder) WithData(data []byte) *ObjectLoaderBuilder {
	b.data = data
	return b
}
func (b *ObjectLoaderBuilder) WithXRef(table xref.Table) *ObjectLoaderBuilder {
	b.xrefTable = table
	return b
}
func (b *ObjectLoaderBuilder) WithSecurity(h security.Handler) *ObjectLoaderBuilder {
	b.security = h
	return b
}
func (b *ObjectLoaderBuilder) WithLimits(l security.Limits) *ObjectLoaderBuilder {
	b.limits = l
	return b
}
func (b *ObjectLoaderBuilder) WithRecovery(s recovery.Strategy) *ObjectLoaderBuilder {
	b.recovery = s
	return b
}

// WithSkipDecrypt marks objects whose strings stay raw, such as the
// /Encrypt dictionary itself.
func (b *ObjectLoaderBuilder) WithSkipDecrypt(refs map[raw.ObjectRef]bool) *ObjectLoaderBuilder {
	b.skipDecrypt = refs
	return b
}

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.data == nil || b.xrefTable == nil {
		return nil, errors.New("data and xref table required")
	}
	sec := b.security
	if sec == nil {
		sec = security.NoopHandler()
	}
	return &objectLoader{
		data:        b.data,
		xrefTable:   b.xrefTable,
		security:    sec,
		limits:      b.limits.OrDefaults(),
		recovery:    b.recovery,
		skipDecrypt: b.skipDecrypt,
		cache:       make(map[raw.ObjectRef]raw.Object),
	}, nil
}

type objectLoader struct {
	data        []byte
	xrefTable   xref.Table
	security    security.Handler
	limits      security.Limits
	recovery    recovery.Strategy
	skipDecrypt map[raw.ObjectRef]bool

	mu    sync.Mutex
	cache map[raw.ObjectRef]raw.Object
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load(ref, 0)
}

// load assumes the loader mutex is held.
func (o *objectLoader) load(ref raw.ObjectRef, depth int) (raw.Object, error) {
	if depth > o.limits.MaxIndirectDepth {
		return nil, errors.New("max indirect depth exceeded")
	}
	if obj, ok := o.cache[ref]; ok {
		return obj, nil
	}
	offset, gen, found := o.xrefTable.Lookup(ref.Num)
	if !found {
		return nil, fmt.Errorf("object %d not in xref", ref.Num)
	}

	obj, err := o.scanObject(ref.Num, offset, gen, depth)
	if err != nil {
		return nil, err
	}
	if !o.skipDecrypt[ref] {
		obj, err = o.decryptObject(raw.ObjectRef{Num: ref.Num, Gen: gen}, obj)
		if err != nil {
			return nil, err
		}
	}
	o.cache[ref] = obj
	return obj, nil
}

func (o *objectLoader) scanObject(objNum int, offset int64, gen, depth int) (raw.Object, error) {
	// A fresh scanner per object avoids shared cursor complications.
	sc := scanner.New(o.data, scanner.Config{
		Recovery:        o.recovery,
		MaxStringLength: o.limits.MaxStringLength,
		MaxStreamLength: o.limits.MaxStreamLength,
	})
	if err := sc.SeekTo(offset); err != nil {
		return nil, err
	}
	tr := &tokenReader{s: sc}

	// Expect "<num> <gen> obj".
	tokNum, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tokNum.Type != scanner.TokenNumber || !tokNum.IsInt || int(tokNum.Int) != objNum {
		return nil, fmt.Errorf("object header mismatch at offset %d: want %d", offset, objNum)
	}
	tokGen, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tokGen.Type != scanner.TokenNumber || !tokGen.IsInt {
		return nil, errors.New("object header generation missing")
	}
	tokObj, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tokObj.Type != scanner.TokenKeyword || tokObj.Str != "obj" {
		return nil, errors.New("expected obj keyword")
	}

	obj, err := parseObject(tr, o.recovery, objNum, gen)
	if err != nil {
		return nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		length, err := o.resolveStreamLength(dict, depth)
		if err != nil {
			return nil, err
		}
		sc.SetNextStreamLength(length)
		if streamTok, err := tr.next(); err == nil {
			if streamTok.Type == scanner.TokenStream {
				obj = raw.NewStream(dict, streamTok.Bytes)
			} else {
				tr.unread(streamTok)
			}
		}
	}
	return obj, nil
}

// resolveStreamLength returns the stream /Length, following one level of
// indirection, or -1 when no usable value exists.
func (o *objectLoader) resolveStreamLength(dict *raw.DictObj, depth int) (int64, error) {
	val, ok := dict.Get(raw.NameLiteral("Length"))
	if !ok {
		return -1, nil
	}
	switch v := val.(type) {
	case raw.NumberObj:
		return v.Int(), nil
	case raw.RefObj:
		obj, err := o.load(v.R, depth+1)
		if err != nil {
			return 0, fmt.Errorf("resolve stream length %v: %w", v.R, err)
		}
		if num, ok := obj.(raw.NumberObj); ok {
			return num.Int(), nil
		}
		return -1, nil
	default:
		return -1, nil
	}
}

func (o *objectLoader) decryptObject(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	if !o.security.IsEncrypted() {
		return obj, nil
	}
	switch v := obj.(type) {
	case raw.StringObj:
		dec, err := o.security.Decrypt(ref.Num, ref.Gen, v.Value(), security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: dec, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		for i, item := range v.Items {
			dec, err := o.decryptObject(ref, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
		return v, nil
	case *raw.DictObj:
		for key, item := range v.KV {
			dec, err := o.decryptObject(ref, item)
			if err != nil {
				return nil, err
			}
			v.KV[key] = dec
		}
		return v, nil
	case *raw.StreamObj:
		if v.Dict != nil {
			if _, err := o.decryptObject(ref, v.Dict); err != nil {
				return nil, err
			}
		}
		if !o.shouldDecryptStream(v.Dict) {
			return v, nil
		}
		class := security.DataClassStream
		if isMetadataStream(v.Dict) {
			class = security.DataClassMetadataStream
		}
		dec, err := o.security.Decrypt(ref.Num, ref.Gen, v.Data, class)
		if err != nil {
			return nil, err
		}
		v.Data = dec
		if v.Dict != nil {
			v.Dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(dec))))
		}
		return v, nil
	default:
		return obj, nil
	}
}

func (o *objectLoader) shouldDecryptStream(dict *raw.DictObj) bool {
	if isMetadataStream(dict) {
		return o.security.EncryptMetadata()
	}
	return true
}

func isMetadataStream(d *raw.DictObj) bool {
	if d == nil {
		return false
	}
	if v, ok := d.Get(raw.NameLiteral("Type")); ok {
		if n, ok := v.(raw.NameObj); ok && n.Val == "Metadata" {
			return true
		}
	}
	return false
}

// Token-to-object parsing, tuned for full object bodies. The xref package
// keeps its own smaller copy for trailer dictionaries.

type tokenReader struct {
	s   scanner.Scanner
	buf []scanner.Token
}

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func parseObject(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case scanner.TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenRef:
		return raw.Ref(int(tok.Int), tok.Gen), nil
	case scanner.TokenArray:
		return parseArray(tr, rec, objNum, gen)
	case scanner.TokenDict:
		return parseDict(tr, rec, objNum, gen)
	}
	return nil, fmt.Errorf("unexpected token at offset %d", tok.Pos)
}

func parseArray(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	arr := raw.NewArray()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		tr.unread(tok)
		item, err := parseObject(tr, rec, objNum, gen)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func parseDict(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
				err := errors.New("unexpected endobj in dictionary")
				if rec != nil && rec.OnError(err, recovery.Location{ObjectNum: objNum, ObjectGen: gen, Component: "parser"}) != recovery.ActionFail {
					tr.unread(tok)
					return d, nil
				}
				return nil, err
			}
			return nil, fmt.Errorf("expected name key at offset %d", tok.Pos)
		}
		key := tok.Str
		val, err := parseObject(tr, rec, objNum, gen)
		if err != nil {
			return nil, err
		}
		d.Set(raw.NameLiteral(key), val)
	}
}

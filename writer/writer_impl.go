package writer

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/wudi/pdfpipe/raw"
	"github.com/wudi/pdfpipe/security"
)

type impl struct{}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	if obj == nil {
		return nil, errors.New("nil object")
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	buf.Write(serializePrimitive(obj))
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	objects := make(map[raw.ObjectRef]raw.Object, len(doc.Objects))
	for ref, obj := range doc.Objects {
		objects[ref] = obj
	}
	trailer := buildTrailer(doc.Trailer)

	if cfg.Encrypt != nil {
		if err := encryptObjects(objects, trailer, doc.MaxObjectNum()+1, cfg.Encrypt); err != nil {
			return fmt.Errorf("encrypt output: %w", err)
		}
	}

	ordered := make([]raw.ObjectRef, 0, len(objects))
	for ref := range objects {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Num < ordered[j].Num })
	if len(ordered) == 0 {
		return errors.New("document has no objects")
	}

	var buf bytes.Buffer
	version := doc.Version
	if version == "" {
		version = "1.7"
	}
	buf.WriteString("%PDF-" + version + "\n%\xE2\xE3\xCF\xD3\n")

	offsets := make(map[int]int64, len(ordered))
	gens := make(map[int]int, len(ordered))
	for _, ref := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		offsets[ref.Num] = int64(buf.Len())
		gens[ref.Num] = ref.Gen
		serialized, err := w.SerializeObject(ref, objects[ref])
		if err != nil {
			return fmt.Errorf("serialize object %d: %w", ref.Num, err)
		}
		buf.Write(serialized)
	}

	maxObjNum := ordered[len(ordered)-1].Num
	xrefOffset := int64(buf.Len())
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxObjNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxObjNum; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", off, gens[i])
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(maxObjNum+1)))
	buf.WriteString("trailer\n")
	buf.Write(serializePrimitive(trailer))
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

// buildTrailer copies the entries worth carrying into a rewritten file.
// Size is recomputed; Prev and Encrypt never survive a full rewrite.
func buildTrailer(src raw.Dictionary) *raw.DictObj {
	out := raw.Dict()
	if src == nil {
		return out
	}
	for _, key := range []string{"Root", "Info", "ID"} {
		if v, ok := src.Get(raw.NameLiteral(key)); ok {
			out.Set(raw.NameLiteral(key), v)
		}
	}
	return out
}

// encryptObjects protects every string and stream in place and installs
// the /Encrypt dictionary as a new indirect object.
func encryptObjects(objects map[raw.ObjectRef]raw.Object, trailer *raw.DictObj, encNum int, opts *EncryptOptions) error {
	fileID := make([]byte, 16)
	if _, err := rand.Read(fileID); err != nil {
		return err
	}

	var encDict *raw.DictObj
	var err error
	if opts.AES256 {
		encDict, err = security.BuildAES256Encryption(opts.UserPassword, opts.OwnerPassword, opts.Permissions, !opts.PlainMetadata)
	} else {
		encDict, err = security.BuildStandardEncryption(opts.UserPassword, opts.OwnerPassword, opts.Permissions, fileID)
	}
	if err != nil {
		return err
	}

	handler, err := (&security.HandlerBuilder{}).
		WithEncryptDict(encDict).
		WithFileID(fileID).
		Build()
	if err != nil {
		return err
	}
	if err := handler.Authenticate(opts.UserPassword); err != nil {
		return fmt.Errorf("key setup: %w", err)
	}

	for ref, obj := range objects {
		enc, err := encryptObject(handler, ref, obj)
		if err != nil {
			return err
		}
		objects[ref] = enc
	}

	encRef := raw.ObjectRef{Num: encNum}
	objects[encRef] = encDict
	trailer.Set(raw.NameLiteral("Encrypt"), raw.Ref(encRef.Num, 0))
	trailer.Set(raw.NameLiteral("ID"), raw.NewArray(raw.HexStr(fileID), raw.HexStr(fileID)))
	return nil
}

// encryptObject returns a copy of obj with strings and stream payloads
// encrypted; containers are rebuilt so the caller's tree is untouched.
func encryptObject(h security.Handler, ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		enc, err := h.Encrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: enc, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, item := range v.Items {
			enc, err := encryptObject(h, ref, item)
			if err != nil {
				return nil, err
			}
			out.Append(enc)
		}
		return out, nil
	case *raw.DictObj:
		out := raw.Dict()
		for key, item := range v.KV {
			enc, err := encryptObject(h, ref, item)
			if err != nil {
				return nil, err
			}
			out.Set(raw.NameLiteral(key), enc)
		}
		return out, nil
	case *raw.StreamObj:
		class := security.DataClassStream
		if isMetadataStream(v.Dict) {
			if !h.EncryptMetadata() {
				return v, nil
			}
			class = security.DataClassMetadataStream
		}
		encDict, err := encryptObject(h, ref, v.Dict)
		if err != nil {
			return nil, err
		}
		data, err := h.Encrypt(ref.Num, ref.Gen, v.Data, class)
		if err != nil {
			return nil, err
		}
		dict := encDict.(*raw.DictObj)
		dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(data))))
		return raw.NewStream(dict, data), nil
	default:
		return obj, nil
	}
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

func serializePrimitive(o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NameObj:
		return serializeName(v.Value())
	case raw.NumberObj:
		if v.IsInteger() {
			return []byte(strconv.FormatInt(v.Int(), 10))
		}
		return []byte(strconv.FormatFloat(v.Float(), 'f', -1, 64))
	case raw.BoolObj:
		if v.Value() {
			return []byte("true")
		}
		return []byte("false")
	case raw.NullObj:
		return []byte("null")
	case raw.StringObj:
		return serializeString(v)
	case raw.RefObj:
		return []byte(fmt.Sprintf("%d %d R", v.Ref().Num, v.Ref().Gen))
	case *raw.ArrayObj:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.Write(serializePrimitive(it))
		}
		b.WriteByte(']')
		return b.Bytes()
	case *raw.DictObj:
		var b bytes.Buffer
		b.WriteString("<<")
		keys := make([]string, 0, len(v.KV))
		for k := range v.KV {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.Write(serializeName(k))
			b.WriteByte(' ')
			b.Write(serializePrimitive(v.KV[k]))
		}
		b.WriteString(">>")
		return b.Bytes()
	case *raw.StreamObj:
		var b bytes.Buffer
		b.Write(serializePrimitive(v.Dict))
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
		return b.Bytes()
	default:
		return []byte("null")
	}
}

// serializeName writes a name with #xx escapes for every byte that is not
// a regular printable character. Parsed names hold decoded values, so '#'
// itself must be escaped on the way back out.
func serializeName(value string) []byte {
	var b bytes.Buffer
	b.WriteByte('/')
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < 0x21 || c > 0x7E || c == '#' || isDelimiterByte(c) {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.Bytes()
}

func isDelimiterByte(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// serializeString escapes the characters a literal string cannot carry
// raw. Decrypted payloads are arbitrary bytes, so this must be exact, not
// best-effort: backslash, parentheses, and CR (which readers normalize).
func serializeString(s raw.StringObj) []byte {
	if s.Hex {
		var b bytes.Buffer
		b.WriteByte('<')
		for _, c := range s.Bytes {
			fmt.Fprintf(&b, "%02X", c)
		}
		b.WriteByte('>')
		return b.Bytes()
	}
	var b bytes.Buffer
	b.WriteByte('(')
	for _, c := range s.Bytes {
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '(':
			b.WriteString(`\(`)
		case ')':
			b.WriteString(`\)`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

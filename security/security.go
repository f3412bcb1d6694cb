// Package security implements the PDF Standard security handler:
// password authentication, per-object decryption, and the encrypt-side
// builders used to produce protected documents.
package security

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfpipe/raw"
)

// ErrInvalidPassword reports that a supplied password does not unlock the
// document. It is an expected outcome, not a structural failure; callers
// classify it with errors.Is.
var ErrInvalidPassword = errors.New("security: invalid password")

// ErrUnsupportedEncryption reports an encryption scheme this handler
// cannot process.
var ErrUnsupportedEncryption = errors.New("security: unsupported encryption")

// DataClass identifies the kind of payload being encrypted or decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
	DataClassMetadataStream
)

type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Permissions() raw.Permissions
	EncryptMetadata() bool
}

// HandlerBuilder assembles a Handler from a document's /Encrypt dictionary
// and trailer. A nil encrypt dictionary yields the pass-through handler.
type HandlerBuilder struct {
	encryptDict raw.Dictionary
	trailer     raw.Dictionary
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d raw.Dictionary) *HandlerBuilder {
	b.encryptDict = d
	return b
}
func (b *HandlerBuilder) WithTrailer(d raw.Dictionary) *HandlerBuilder { b.trailer = d; return b }
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder         { b.fileID = id; return b }

func (b *HandlerBuilder) Build() (Handler, error) {
	if b.encryptDict == nil {
		return noEncryptionHandler{}, nil
	}
	if name := nameVal(b.encryptDict, "Filter"); name != "" && name != "Standard" {
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupportedEncryption, name)
	}
	v := int64(1)
	if n, ok := numberVal(b.encryptDict, "V"); ok && n > 0 {
		v = n
	}
	if v == 3 || v > 5 {
		return nil, fmt.Errorf("%w: V=%d", ErrUnsupportedEncryption, v)
	}
	r := int64(2)
	if n, ok := numberVal(b.encryptDict, "R"); ok {
		r = n
	}
	if r < 2 || r > 6 {
		return nil, fmt.Errorf("%w: R=%d", ErrUnsupportedEncryption, r)
	}
	keyLen := 40
	if v >= 5 {
		keyLen = 256
	}
	if n, ok := numberVal(b.encryptDict, "Length"); ok && n > 0 {
		keyLen = int(n)
	}
	if v >= 4 && keyLen < 128 {
		keyLen = 128
	}
	if keyLen%8 != 0 {
		return nil, fmt.Errorf("%w: key length %d not a multiple of 8", ErrUnsupportedEncryption, keyLen)
	}

	oEntry, _ := stringBytes(b.encryptDict, "O")
	uEntry, _ := stringBytes(b.encryptDict, "U")
	oe, _ := stringBytes(b.encryptDict, "OE")
	ue, _ := stringBytes(b.encryptDict, "UE")
	permsEntry, _ := stringBytes(b.encryptDict, "Perms")
	pVal, _ := numberVal(b.encryptDict, "P")

	id := b.fileID
	if len(id) == 0 && b.trailer != nil {
		id = fileIDFromTrailer(b.trailer)
	}
	encryptMeta := true
	if bv, ok := boolVal(b.encryptDict, "EncryptMetadata"); ok {
		encryptMeta = bv
	}

	baseAlgo := algoRC4
	if v >= 4 {
		baseAlgo = algoAES
	}
	cryptFilters, err := parseCryptFilters(b.encryptDict, baseAlgo)
	if err != nil {
		return nil, err
	}
	streamAlgo, err := resolveCryptFilter(b.encryptDict, "StmF", baseAlgo, cryptFilters)
	if err != nil {
		return nil, err
	}
	stringAlgo, err := resolveCryptFilter(b.encryptDict, "StrF", baseAlgo, cryptFilters)
	if err != nil {
		return nil, err
	}

	return &standardHandler{
		v:           int(v),
		r:           int(r),
		lengthBits:  keyLen,
		oEntry:      oEntry,
		uEntry:      uEntry,
		oe:          oe,
		ue:          ue,
		permsEntry:  permsEntry,
		p:           int32(pVal),
		fileID:      id,
		encryptMeta: encryptMeta,
		streamAlgo:  streamAlgo,
		stringAlgo:  stringAlgo,
	}, nil
}

type cryptAlgo int

const (
	algoUnset cryptAlgo = iota
	algoNone
	algoRC4
	algoAES
)

type standardHandler struct {
	key         []byte
	v           int
	r           int
	lengthBits  int
	oEntry      []byte
	uEntry      []byte
	oe          []byte
	ue          []byte
	permsEntry  []byte
	p           int32
	fileID      []byte
	encryptMeta bool
	authed      bool
	streamAlgo  cryptAlgo
	stringAlgo  cryptAlgo
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.encryptMeta }

func (h *standardHandler) Authenticate(password string) error {
	var err error
	if h.r >= 5 {
		err = h.authenticateAES256([]byte(password))
	} else {
		err = h.authenticateLegacy([]byte(password))
	}
	if err != nil {
		return err
	}
	h.authed = true
	return nil
}

func (h *standardHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if err := h.requireAuth(); err != nil {
		return nil, err
	}
	algo := h.algoFor(class)
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, objNum, gen, h.r, algo == algoAES)
	if algo == algoAES {
		return aesDecryptPadded(key, data)
	}
	return rc4Crypt(key, data)
}

func (h *standardHandler) Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if err := h.requireAuth(); err != nil {
		return nil, err
	}
	algo := h.algoFor(class)
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, objNum, gen, h.r, algo == algoAES)
	if algo == algoAES {
		return aesEncryptPadded(key, data)
	}
	return rc4Crypt(key, data)
}

func (h *standardHandler) requireAuth() error {
	if h.authed {
		return nil
	}
	return h.Authenticate("")
}

func (h *standardHandler) algoFor(class DataClass) cryptAlgo {
	switch class {
	case DataClassString:
		if h.stringAlgo != algoUnset {
			return h.stringAlgo
		}
	case DataClassStream, DataClassMetadataStream:
		if h.streamAlgo != algoUnset {
			return h.streamAlgo
		}
	}
	if h.v >= 4 {
		return algoAES
	}
	return algoRC4
}

func (h *standardHandler) Permissions() raw.Permissions {
	return raw.Permissions{
		Print:             h.p&0x4 != 0,
		Modify:            h.p&0x8 != 0,
		Copy:              h.p&0x10 != 0,
		ModifyAnnotations: h.p&0x20 != 0,
		FillForms:         h.p&0x100 != 0,
		ExtractAccessible: h.p&0x200 != 0,
		Assemble:          h.p&0x400 != 0,
		PrintHighQuality:  h.p&0x800 != 0,
	}
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool         { return false }
func (noEncryptionHandler) Authenticate(string) error { return nil }
func (noEncryptionHandler) EncryptMetadata() bool     { return false }
func (noEncryptionHandler) Permissions() raw.Permissions {
	return raw.AllPermissions()
}
func (noEncryptionHandler) Decrypt(_, _ int, data []byte, _ DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Encrypt(_, _ int, data []byte, _ DataClass) ([]byte, error) {
	return data, nil
}

// NoopHandler returns a reusable pass-through handler for unencrypted files.
func NoopHandler() Handler { return noEncryptionHandler{} }

func parseCryptFilters(dict raw.Dictionary, base cryptAlgo) (map[string]cryptAlgo, error) {
	out := make(map[string]cryptAlgo)
	cfObj, ok := dict.Get(raw.NameLiteral("CF"))
	if !ok {
		return out, nil
	}
	cfDict, ok := cfObj.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("%w: CF is not a dictionary", ErrUnsupportedEncryption)
	}
	for name, obj := range cfDict.KV {
		entryDict, ok := obj.(*raw.DictObj)
		if !ok {
			return nil, fmt.Errorf("%w: crypt filter %s is not a dictionary", ErrUnsupportedEncryption, name)
		}
		algo := base
		if cfm := nameVal(entryDict, "CFM"); cfm != "" {
			switch cfm {
			case "V2":
				algo = algoRC4
			case "AESV2", "AESV3":
				algo = algoAES
			case "None":
				algo = algoNone
			default:
				return nil, fmt.Errorf("%w: crypt filter method %s", ErrUnsupportedEncryption, cfm)
			}
		}
		out[name] = algo
	}
	return out, nil
}

func resolveCryptFilter(dict raw.Dictionary, key string, base cryptAlgo, filters map[string]cryptAlgo) (cryptAlgo, error) {
	name := nameVal(dict, key)
	switch name {
	case "":
		return base, nil
	case "Identity":
		return algoNone, nil
	}
	if algo, ok := filters[name]; ok {
		return algo, nil
	}
	return algoUnset, fmt.Errorf("%w: crypt filter %s not defined", ErrUnsupportedEncryption, name)
}

func fileIDFromTrailer(trailer raw.Dictionary) []byte {
	if trailer == nil {
		return nil
	}
	idObj, ok := trailer.Get(raw.NameLiteral("ID"))
	if !ok {
		return nil
	}
	arr, ok := idObj.(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := arr.Items[0].(raw.StringObj); ok {
		return s.Value()
	}
	return nil
}

// Dictionary accessor helpers.

func numberVal(dict raw.Dictionary, key string) (int64, bool) {
	if dict == nil {
		return 0, false
	}
	if v, ok := dict.Get(raw.NameLiteral(key)); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return n.Int(), true
		}
	}
	return 0, false
}

func stringBytes(dict raw.Dictionary, key string) ([]byte, bool) {
	if dict == nil {
		return nil, false
	}
	if v, ok := dict.Get(raw.NameLiteral(key)); ok {
		if s, ok := v.(raw.StringObj); ok {
			return s.Value(), true
		}
	}
	return nil, false
}

func boolVal(dict raw.Dictionary, key string) (bool, bool) {
	if dict == nil {
		return false, false
	}
	if v, ok := dict.Get(raw.NameLiteral(key)); ok {
		if b, ok := v.(raw.BoolObj); ok {
			return b.V, true
		}
	}
	return false, false
}

func nameVal(dict raw.Dictionary, key string) string {
	if dict == nil {
		return ""
	}
	if v, ok := dict.Get(raw.NameLiteral(key)); ok {
		if n, ok := v.(raw.NameObj); ok {
			return n.Val
		}
	}
	return ""
}

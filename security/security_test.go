package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfpipe/raw"
)

func buildHandler(t *testing.T, enc *raw.DictObj, fileID []byte) Handler {
	t.Helper()
	b := &HandlerBuilder{}
	h, err := b.WithEncryptDict(enc).WithFileID(fileID).Build()
	require.NoError(t, err)
	return h
}

func TestLegacyAuthenticateAndRoundtrip(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	enc, err := BuildStandardEncryption("user", "owner", raw.AllPermissions(), fileID)
	require.NoError(t, err)

	h := buildHandler(t, enc, fileID)
	require.True(t, h.IsEncrypted())
	require.NoError(t, h.Authenticate("user"))

	plain := []byte("confidential stream payload")
	ct, err := h.Encrypt(7, 0, plain, DataClassStream)
	require.NoError(t, err)
	assert.NotEqual(t, plain, ct)

	back, err := h.Decrypt(7, 0, ct, DataClassStream)
	require.NoError(t, err)
	assert.Equal(t, plain, back)
}

func TestLegacyOwnerPassword(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	enc, err := BuildStandardEncryption("user", "owner", raw.AllPermissions(), fileID)
	require.NoError(t, err)

	h := buildHandler(t, enc, fileID)
	assert.NoError(t, h.Authenticate("owner"))
}

func TestLegacyWrongPassword(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	enc, err := BuildStandardEncryption("user", "owner", raw.AllPermissions(), fileID)
	require.NoError(t, err)

	h := buildHandler(t, enc, fileID)
	err = h.Authenticate("nope")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestLegacyObjectKeysDiffer(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	enc, err := BuildStandardEncryption("", "", raw.AllPermissions(), fileID)
	require.NoError(t, err)

	h := buildHandler(t, enc, fileID)
	require.NoError(t, h.Authenticate(""))

	plain := []byte("same plaintext")
	a, err := h.Encrypt(1, 0, plain, DataClassString)
	require.NoError(t, err)
	b, err := h.Encrypt(2, 0, plain, DataClassString)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "per-object keys must differ")
}

func TestAES256AuthenticateAndRoundtrip(t *testing.T) {
	enc, err := BuildAES256Encryption("usér", "ownér", raw.AllPermissions(), true)
	require.NoError(t, err)

	h := buildHandler(t, enc, nil)
	require.NoError(t, h.Authenticate("usér"))

	plain := []byte("aes protected data")
	ct, err := h.Encrypt(3, 0, plain, DataClassStream)
	require.NoError(t, err)
	assert.NotEqual(t, plain, ct)

	back, err := h.Decrypt(3, 0, ct, DataClassStream)
	require.NoError(t, err)
	assert.Equal(t, plain, back)
}

func TestAES256OwnerAndWrongPassword(t *testing.T) {
	enc, err := BuildAES256Encryption("user", "owner", raw.AllPermissions(), true)
	require.NoError(t, err)

	h := buildHandler(t, enc, nil)
	assert.NoError(t, h.Authenticate("owner"))

	h = buildHandler(t, enc, nil)
	assert.ErrorIs(t, h.Authenticate("bogus"), ErrInvalidPassword)
}

func TestAES256PermissionsSurviveSealing(t *testing.T) {
	perms := raw.Permissions{Print: true, Copy: true}
	enc, err := BuildAES256Encryption("pw", "pw-owner", perms, true)
	require.NoError(t, err)

	h := buildHandler(t, enc, nil)
	require.NoError(t, h.Authenticate("pw"))

	got := h.Permissions()
	assert.True(t, got.Print)
	assert.True(t, got.Copy)
	assert.False(t, got.Modify)
	assert.False(t, got.Assemble)
}

func TestDecryptRequiresAuthentication(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	enc, err := BuildStandardEncryption("user", "owner", raw.AllPermissions(), fileID)
	require.NoError(t, err)

	h := buildHandler(t, enc, fileID)
	_, err = h.Decrypt(1, 0, []byte("x"), DataClassStream)
	assert.Error(t, err)
}

func TestUnsupportedScheme(t *testing.T) {
	enc := raw.Dict()
	enc.Set(raw.NameLiteral("Filter"), raw.NameLiteral("Standard"))
	enc.Set(raw.NameLiteral("V"), raw.NumberInt(3))
	enc.Set(raw.NameLiteral("R"), raw.NumberInt(3))

	b := &HandlerBuilder{}
	_, err := b.WithEncryptDict(enc).Build()
	assert.ErrorIs(t, err, ErrUnsupportedEncryption)
}

func TestNoopHandlerPassesThrough(t *testing.T) {
	h := NoopHandler()
	assert.False(t, h.IsEncrypted())
	data := []byte("plain")
	out, err := h.Decrypt(1, 0, data, DataClassString)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestPadPassword(t *testing.T) {
	p := padPassword(nil)
	assert.Len(t, p, 32)
	assert.Equal(t, passwordPadding, p)

	p = padPassword([]byte("abc"))
	assert.Len(t, p, 32)
	assert.Equal(t, []byte("abc"), p[:3])
	assert.Equal(t, passwordPadding[:29], p[3:])
}

func TestPermissionsValue(t *testing.T) {
	assert.Equal(t, int32(-4), PermissionsValue(raw.AllPermissions()))

	none := PermissionsValue(raw.Permissions{})
	assert.Zero(t, none&0x4)
	assert.Zero(t, none&0x10)
	assert.NotZero(t, PermissionsValue(raw.Permissions{Print: true})&0x4)
}

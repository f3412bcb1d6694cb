package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[decrypt]
passwords = ["secret1", "secret2"]

[limits]
max_input_size = 1048576
max_xref_depth = 10
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, []string{"secret1", "secret2"}, f.Decrypt.Passwords)
	assert.EqualValues(t, 1048576, f.Limits.MaxInputSize)
	assert.Equal(t, 10, f.Limits.MaxXRefDepth)

	limits := f.SecurityLimits()
	assert.EqualValues(t, 1048576, limits.MaxInputSize)
	assert.Zero(t, limits.MaxStreamLength, "unset values stay zero for downstream defaults")
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("[decrypt]\npassphrases = [\"x\"]\n"))
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Decrypt.Passwords)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdfpipe.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Decrypt.Passwords, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

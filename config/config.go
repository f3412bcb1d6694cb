// Package config loads pipeline settings from a TOML file.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/wudi/pdfpipe/security"
)

type File struct {
	Decrypt Decrypt `toml:"decrypt"`
	Limits  Limits  `toml:"limits"`
}

type Decrypt struct {
	// Passwords are tried in order after the built-in empty password.
	Passwords []string `toml:"passwords"`
}

type Limits struct {
	MaxInputSize     int64 `toml:"max_input_size"`
	MaxStringLength  int64 `toml:"max_string_length"`
	MaxStreamLength  int64 `toml:"max_stream_length"`
	MaxIndirectDepth int   `toml:"max_indirect_depth"`
	MaxXRefDepth     int   `toml:"max_xref_depth"`
}

// Load reads and parses a TOML config file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML config bytes. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &f, nil
}

// SecurityLimits converts the configured limits, leaving zero values to
// be filled with defaults downstream.
func (f *File) SecurityLimits() security.Limits {
	return security.Limits{
		MaxInputSize:     f.Limits.MaxInputSize,
		MaxStringLength:  f.Limits.MaxStringLength,
		MaxStreamLength:  f.Limits.MaxStreamLength,
		MaxIndirectDepth: f.Limits.MaxIndirectDepth,
		MaxXRefDepth:     f.Limits.MaxXRefDepth,
	}
}

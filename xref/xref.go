// Package xref locates and parses classic PDF cross-reference tables.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wudi/pdfpipe/raw"
	"github.com/wudi/pdfpipe/recovery"
	"github.com/wudi/pdfpipe/scanner"
)

// Table holds object offsets resolved from the xref chain.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	Objects() []int
	Type() string
}

// Resolver locates and parses xref information in a buffered PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
	// Trailer returns the file trailer dictionary after a successful Resolve.
	Trailer() raw.Dictionary
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	// DisableRepair turns off the brute-force reconstruction fallback.
	DisableRepair bool
}

const defaultMaxXRefDepth = 50

func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = defaultMaxXRefDepth
	}
	return &tableResolver{cfg: cfg}
}

type entry struct {
	offset int64
	gen    int
}

type table struct {
	entries map[int]entry
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok {
		return 0, 0, false
	}
	return e.offset, e.gen, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string { return "table" }

type tableResolver struct {
	cfg     ResolverConfig
	trailer raw.Dictionary
}

func (t *tableResolver) Trailer() raw.Dictionary { return t.trailer }

func (t *tableResolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	tbl, trailer, err := t.resolveChain(ctx, data)
	if err == nil {
		t.trailer = trailer
		return tbl, nil
	}
	if t.cfg.DisableRepair {
		return nil, err
	}
	tbl, trailer, rerr := repair(ctx, data)
	if rerr != nil {
		return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	t.trailer = trailer
	return tbl, nil
}

func (t *tableResolver) resolveChain(ctx context.Context, data []byte) (Table, raw.Dictionary, error) {
	offset, err := startXRefOffset(data)
	if err != nil {
		return nil, nil, err
	}

	entries := make(map[int]entry)
	var trailer *raw.DictObj
	seen := make(map[int64]bool)

	for depth := 0; depth < t.cfg.MaxXRefDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if seen[offset] {
			return nil, nil, errors.New("xref Prev chain loop")
		}
		seen[offset] = true

		section, err := parseSection(data, offset)
		if err != nil {
			return nil, nil, err
		}
		// Entries from newer sections take precedence over Prev sections.
		for num, e := range section.entries {
			if _, ok := entries[num]; !ok {
				entries[num] = e
			}
		}
		if trailer == nil {
			trailer = section.trailer
		}

		prevObj, ok := section.trailer.Get(raw.NameLiteral("Prev"))
		if !ok {
			break
		}
		prev, ok := prevObj.(raw.NumberObj)
		if !ok || !prev.IsInteger() {
			return nil, nil, errors.New("trailer Prev is not an integer")
		}
		offset = prev.Int()
	}

	if trailer == nil {
		return nil, nil, errors.New("trailer not found")
	}
	if len(entries) == 0 {
		return nil, nil, errors.New("xref table has no in-use entries")
	}
	return &table{entries: entries}, trailer, nil
}

// startXRefOffset finds the last startxref marker and parses the offset
// on the following line.
func startXRefOffset(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := data[idx+len("startxref"):]
	for _, line := range strings.SplitN(string(rest), "\n", 3) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		val, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse startxref: %w", err)
		}
		if val <= 0 || val >= int64(len(data)) {
			return 0, fmt.Errorf("xref offset out of range: %d", val)
		}
		return val, nil
	}
	return 0, errors.New("startxref offset missing")
}

type section struct {
	entries map[int]entry
	trailer *raw.DictObj
}

// parseSection reads one "xref ... trailer <<...>>" section at offset.
func parseSection(data []byte, offset int64) (*section, error) {
	sc := scanner.New(data, scanner.Config{})
	if err := sc.SeekTo(offset); err != nil {
		return nil, err
	}
	tok, err := sc.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenKeyword || tok.Str != "xref" {
		return nil, fmt.Errorf("xref keyword not found at offset %d", offset)
	}

	out := &section{entries: make(map[int]entry)}
	for {
		tok, err = sc.Next()
		if err != nil {
			return nil, fmt.Errorf("xref section truncated: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("invalid xref subsection header at %d", tok.Pos)
		}
		start := int(tok.Int)
		countTok, err := sc.Next()
		if err != nil || countTok.Type != scanner.TokenNumber || !countTok.IsInt {
			return nil, errors.New("invalid xref subsection count")
		}
		count := int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err := sc.Next()
			if err != nil || offTok.Type != scanner.TokenNumber || !offTok.IsInt {
				return nil, errors.New("invalid xref entry offset")
			}
			genTok, err := sc.Next()
			if err != nil || genTok.Type != scanner.TokenNumber || !genTok.IsInt {
				return nil, errors.New("invalid xref entry generation")
			}
			kindTok, err := sc.Next()
			if err != nil || kindTok.Type != scanner.TokenKeyword {
				return nil, errors.New("invalid xref entry kind")
			}
			switch kindTok.Str {
			case "n":
				out.entries[start+i] = entry{offset: offTok.Int, gen: int(genTok.Int)}
			case "f":
				// free entry
			default:
				return nil, fmt.Errorf("invalid xref entry kind %q", kindTok.Str)
			}
		}
	}

	dictTok, err := sc.Next()
	if err != nil {
		return nil, fmt.Errorf("trailer dictionary missing: %w", err)
	}
	if dictTok.Type != scanner.TokenDict {
		return nil, errors.New("trailer is not a dictionary")
	}
	dict, err := parseDict(sc)
	if err != nil {
		return nil, fmt.Errorf("parse trailer: %w", err)
	}
	out.trailer = dict
	return out, nil
}

// Minimal token-to-object parsing for trailer dictionaries. The object
// loader keeps its own copy tuned for full object parsing.

func parseDict(sc scanner.Scanner) (*raw.DictObj, error) {
	d := raw.Dict()
	for {
		tok, err := sc.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("expected name key at %d", tok.Pos)
		}
		val, err := parseValue(sc)
		if err != nil {
			return nil, err
		}
		d.Set(raw.NameLiteral(tok.Str), val)
	}
}

func parseValue(sc scanner.Scanner) (raw.Object, error) {
	tok, err := sc.Next()
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
	case scanner.TokenDict:
		return parseDict(sc)
	case scanner.TokenArray:
		arr := raw.NewArray()
		for {
			pos := sc.Position()
			end, err := sc.Next()
			if err != nil {
				return nil, err
			}
			if end.Type == scanner.TokenKeyword && end.Str == "]" {
				return arr, nil
			}
			if err := sc.SeekTo(pos); err != nil {
				return nil, err
			}
			item, err := parseValue(sc)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	}
	return nil, fmt.Errorf("unexpected token at %d", tok.Pos)
}

package xref

import (
	"context"
	"errors"
	"io"

	"github.com/wudi/pdfpipe/raw"
	"github.com/wudi/pdfpipe/scanner"
)

// repair scans the whole file for "<num> <gen> obj" patterns and trailer
// dictionaries to reconstruct a usable table when the xref chain is damaged.
func repair(ctx context.Context, data []byte) (Table, raw.Dictionary, error) {
	sc := scanner.New(data, scanner.Config{})
	entries := make(map[int]entry)
	var lastTrailer *raw.DictObj

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		tok, err := sc.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Re-sync one byte past the failure and keep scanning.
			if serr := sc.SeekTo(sc.Position() + 1); serr != nil {
				break
			}
			continue
		}

		switch {
		case tok.Type == scanner.TokenNumber && tok.IsInt:
			genTok, err := sc.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return finishRepair(entries, lastTrailer)
				}
				continue
			}
			if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
				continue
			}
			kwTok, err := sc.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return finishRepair(entries, lastTrailer)
				}
				continue
			}
			if kwTok.Type == scanner.TokenKeyword && kwTok.Str == "obj" {
				// Later definitions shadow earlier ones (incremental updates).
				entries[int(tok.Int)] = entry{offset: tok.Pos, gen: int(genTok.Int)}
				continue
			}
			// genTok itself may start an object header.
			if err := sc.SeekTo(genTok.Pos); err != nil {
				return nil, nil, err
			}
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			dictTok, err := sc.Next()
			if err != nil || dictTok.Type != scanner.TokenDict {
				continue
			}
			if dict, err := parseDict(sc); err == nil {
				lastTrailer = dict
			}
		}
	}

	return finishRepair(entries, lastTrailer)
}

func finishRepair(entries map[int]entry, trailer *raw.DictObj) (Table, raw.Dictionary, error) {
	if len(entries) == 0 {
		return nil, nil, errors.New("no object headers found")
	}
	if trailer == nil {
		return nil, nil, errors.New("no trailer dictionary found")
	}
	return &table{entries: entries}, trailer, nil
}

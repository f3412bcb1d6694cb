// Package scanner tokenizes PDF syntax from a fully buffered document.
package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/pdfpipe/recovery"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // integer or real
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect reference 'N G R'
	TokenStream                   // stream payload (keyword through endstream)
	TokenKeyword                  // obj, endobj, trailer, '>>', ']', ...
)

// Token is one lexical unit. Which fields are meaningful depends on Type:
// Str for names and keywords, Bytes for strings and stream payloads,
// Int/Float/IsInt for numbers, Int/Gen for references.
type Token struct {
	Type  TokenType
	Pos   int64
	Str   string
	Bytes []byte
	Hex   bool
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int
}

type Config struct {
	MaxStringLength int64
	MaxStreamLength int64
	Recovery        recovery.Strategy
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	SeekTo(offset int64) error
	// SetNextStreamLength supplies the resolved /Length for the next
	// stream payload; negative clears the hint.
	SetNextStreamLength(n int64)
}

type pdfScanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
}

// New returns a scanner over the complete document bytes. The whole input
// is held in memory so callers can seek freely between objects.
func New(data []byte, cfg Config) Scanner {
	return &pdfScanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) SeekTo(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek to %d out of range [0,%d]", offset, len(s.data))
	}
	s.pos = offset
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *pdfScanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenKeyword, Str: "]", Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	}
	if isNumberStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
}

func (s *pdfScanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // consume '/'
	var out []byte
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) {
			hi, okHi := fromHex(s.data[s.pos+1])
			lo, okLo := fromHex(s.data[s.pos+2])
			if okHi && okLo {
				out = append(out, hi<<4|lo)
				s.pos += 3
				continue
			}
		}
		out = append(out, c)
		s.pos++
	}
	return Token{Type: TokenName, Str: string(out), Pos: start}, nil
}

func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // consume '('
	var out []byte
	depth := 1
	for s.pos < int64(len(s.data)) {
		if s.cfg.MaxStringLength > 0 && int64(len(out)) > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("string at %d exceeds limit %d", start, s.cfg.MaxStringLength)
		}
		c := s.data[s.pos]
		switch c {
		case '\\':
			s.pos++
			if s.pos >= int64(len(s.data)) {
				return Token{}, errors.New("unterminated string escape")
			}
			e := s.data[s.pos]
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				// line continuation, swallow optional LF
				if s.peekAhead(1) == '\n' {
					s.pos++
				}
			case '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2 && s.pos+1 < int64(len(s.data)); i++ {
						n := s.data[s.pos+1]
						if n < '0' || n > '7' {
							break
						}
						val = val<<3 | int(n-'0')
						s.pos++
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
			s.pos++
		case '(':
			depth++
			out = append(out, c)
			s.pos++
		case ')':
			depth--
			s.pos++
			if depth == 0 {
				return Token{Type: TokenString, Bytes: out, Pos: start}, nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
			s.pos++
		}
	}
	return Token{}, fmt.Errorf("unterminated string at %d", start)
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // consume '<'
	var out []byte
	var hi byte
	havePair := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			if havePair {
				out = append(out, hi<<4)
			}
			return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
		}
		if isWhitespace(c) {
			s.pos++
			continue
		}
		v, ok := fromHex(c)
		if !ok {
			return Token{}, fmt.Errorf("invalid hex digit %q at %d", c, s.pos)
		}
		if havePair {
			out = append(out, hi<<4|v)
			havePair = false
		} else {
			hi = v
			havePair = true
		}
		if s.cfg.MaxStringLength > 0 && int64(len(out)) > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("hex string at %d exceeds limit %d", start, s.cfg.MaxStringLength)
		}
		s.pos++
	}
	return Token{}, fmt.Errorf("unterminated hex string at %d", start)
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	first, err := s.scanNumber()
	if err != nil {
		return Token{}, err
	}
	if !first.IsInt || first.Int < 0 {
		return first, nil
	}
	// Lookahead for "G R".
	save := s.pos
	s.skipWSAndComments()
	if s.pos < int64(len(s.data)) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
		second, err := s.scanNumber()
		if err == nil && second.IsInt && second.Int >= 0 {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isWhitespace(s.data[s.pos+1]) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				return Token{Type: TokenRef, Int: first.Int, Gen: int(second.Int), Pos: start}, nil
			}
		}
	}
	s.pos = save
	return first, nil
}

func (s *pdfScanner) scanNumber() (Token, error) {
	start := s.pos
	end := s.pos
	for end < int64(len(s.data)) && isNumberStart(s.data[end]) {
		end++
	}
	lit := string(s.data[start:end])
	s.pos = end
	if !bytes.ContainsAny([]byte(lit), ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start}, nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return Token{}, fmt.Errorf("invalid number %q at %d", lit, start)
	}
	return Token{Type: TokenNumber, Float: f, Pos: start}, nil
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	end := s.pos
	for end < int64(len(s.data)) && isRegular(s.data[end]) {
		end++
	}
	word := string(s.data[start:end])
	s.pos = end
	switch word {
	case "true":
		return Token{Type: TokenBoolean, Bool: true, Pos: start}, nil
	case "false":
		return Token{Type: TokenBoolean, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	}
	return Token{Type: TokenKeyword, Str: word, Pos: start}, nil
}

// scanStream consumes the payload following the stream keyword through the
// matching endstream keyword, using the caller-supplied length hint when
// one was set.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	// The keyword is followed by CRLF or LF.
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	hint := s.nextStreamLen
	s.nextStreamLen = -1

	var payload []byte
	if hint >= 0 && s.pos+hint <= int64(len(s.data)) {
		if s.cfg.MaxStreamLength > 0 && hint > s.cfg.MaxStreamLength {
			return Token{}, fmt.Errorf("stream at %d exceeds limit %d", start, s.cfg.MaxStreamLength)
		}
		payload = s.data[s.pos : s.pos+hint]
		s.pos += hint
		rest := s.data[s.pos:]
		idx := bytes.Index(rest, []byte("endstream"))
		if idx < 0 {
			return Token{}, fmt.Errorf("endstream not found after stream at %d", start)
		}
		s.pos += int64(idx) + int64(len("endstream"))
		return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
	}

	// No usable hint: trust the endstream keyword.
	rest := s.data[s.pos:]
	idx := bytes.Index(rest, []byte("endstream"))
	if idx < 0 {
		return Token{}, fmt.Errorf("endstream not found after stream at %d", start)
	}
	payload = rest[:idx]
	// Strip the EOL that belongs to the keyword, not the payload.
	payload = bytes.TrimSuffix(payload, []byte("\n"))
	payload = bytes.TrimSuffix(payload, []byte("\r"))
	if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
		return Token{}, fmt.Errorf("stream at %d exceeds limit %d", start, s.cfg.MaxStreamLength)
	}
	s.pos += int64(idx) + int64(len("endstream"))
	return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
}

func isWhitespace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isWhitespace(c) && !isDelimiter(c) }

func isNumberStart(c byte) bool {
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

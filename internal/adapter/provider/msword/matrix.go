package msword

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatrixError reports where a row literal stopped parsing.
type MatrixError struct {
	Offset int
	Msg    string
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("invalid matrix at offset %d: %s", e.Offset, e.Msg)
}

// ParseMatrix reads a list of rows written either as a Python literal,
// [['a','b'],('c','d')], or as JSON, [["a","b"],["c","d"]]. Numbers and
// booleans keep their literal text; None and null become empty cells.
func ParseMatrix(s string) ([][]string, error) {
	p := &matrixParser{src: s}
	p.skipSpace()
	rows, err := list(p, func() ([]string, error) {
		return list(p, p.scalar)
	})
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return rows, nil
}

type matrixParser struct {
	src string
	pos int
}

func (p *matrixParser) errorf(format string, args ...any) error {
	return &MatrixError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *matrixParser) skipSpace() {
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

// list parses "[item, item, ...]" or "(item, ...)" allowing a trailing comma.
func list[T any](p *matrixParser, item func() (T, error)) ([]T, error) {
	if p.pos >= len(p.src) {
		return nil, p.errorf("expected a list")
	}
	var closing byte
	switch p.src[p.pos] {
	case '[':
		closing = ']'
	case '(':
		closing = ')'
	default:
		return nil, p.errorf("expected '[' or '('")
	}
	p.pos++

	out := []T{}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated list")
		}
		if p.src[p.pos] == closing {
			p.pos++
			return out, nil
		}
		v, err := item()
		if err != nil {
			return nil, err
		}
		out = append(out, v)

		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated list")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case closing:
		default:
			return nil, p.errorf("expected ',' or '%c'", closing)
		}
	}
}

func (p *matrixParser) scalar() (string, error) {
	if p.pos >= len(p.src) {
		return "", p.errorf("expected a value")
	}
	switch c := p.src[p.pos]; {
	case c == '\'' || c == '"':
		return p.quoted(c)
	case c == '[' || c == '(':
		return "", p.errorf("cells must be scalar values")
	default:
		start := p.pos
		for p.pos < len(p.src) && !strings.ContainsRune(",])} \t\r\n", rune(p.src[p.pos])) {
			p.pos++
		}
		word := p.src[start:p.pos]
		switch word {
		case "":
			return "", p.errorf("expected a value")
		case "None", "null":
			return "", nil
		case "True", "true":
			return "True", nil
		case "False", "false":
			return "False", nil
		}
		if _, err := strconv.ParseFloat(word, 64); err != nil {
			p.pos = start
			return "", p.errorf("unquoted value %q", word)
		}
		return word, nil
	}
}

func (p *matrixParser) quoted(quote byte) (string, error) {
	start := p.pos
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\' && p.pos+1 < len(p.src):
			p.pos++
			switch e := p.src[p.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"', '/':
				b.WriteByte(e)
			case 'u':
				if p.pos+4 >= len(p.src) {
					return "", p.errorf("short unicode escape")
				}
				n, err := strconv.ParseUint(p.src[p.pos+1:p.pos+5], 16, 32)
				if err != nil {
					return "", p.errorf("invalid unicode escape")
				}
				b.WriteRune(rune(n))
				p.pos += 4
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	p.pos = start
	return "", p.errorf("unterminated string")
}

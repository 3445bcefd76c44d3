package edn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/sente-lite/wire"
)

// parser is a minimal recursive-descent reader over a string cursor.
type parser struct {
	src string
	pos int
}

func (p *parser) skipWS() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',':
			p.pos++
		case c == ';':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) readValue() (any, error) {
	p.skipWS()
	c, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("edn: unexpected end of input")
	}
	switch {
	case c == '[':
		return p.readSeq('[', ']')
	case c == '#':
		return p.readSet()
	case c == '{':
		return p.readMap()
	case c == '"':
		return p.readString()
	case c == ':':
		return p.readSymbol(true)
	case isSymbolStart(c):
		return p.readAtom()
	default:
		return nil, fmt.Errorf("edn: unexpected character %q at offset %d", c, p.pos)
	}
}

func (p *parser) readSeq(open, close byte) ([]any, error) {
	p.pos++ // consume open
	var out []any
	for {
		p.skipWS()
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("edn: unterminated vector")
		}
		if c == close {
			p.pos++
			return out, nil
		}
		v, err := p.readValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (p *parser) readSet() (wire.Set, error) {
	p.pos++ // consume '#'
	c, ok := p.peek()
	if !ok || c != '{' {
		return nil, fmt.Errorf("edn: expected '{' after '#'")
	}
	vals, err := p.readSeq('{', '}')
	if err != nil {
		return nil, err
	}
	return wire.Set(vals), nil
}

func (p *parser) readMap() (map[string]any, error) {
	p.pos++ // consume '{'
	out := make(map[string]any)
	for {
		p.skipWS()
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("edn: unterminated map")
		}
		if c == '}' {
			p.pos++
			return out, nil
		}
		key, err := p.readValue()
		if err != nil {
			return nil, err
		}
		keyStr, err := mapKeyString(key)
		if err != nil {
			return nil, err
		}
		p.skipWS()
		val, err := p.readValue()
		if err != nil {
			return nil, err
		}
		out[keyStr] = val
	}
}

// mapKeyString normalizes a decoded map key to a plain Go string,
// stripping the leading ':' from keywords. Only keyword and string
// keys are supported; this matches every shape sente-lite's own
// system/extension events use (spec §4.1).
func mapKeyString(key any) (string, error) {
	switch t := key.(type) {
	case wire.Symbol:
		if t.Namespace != "" {
			return t.Namespace + "/" + t.Name, nil
		}
		return t.Name, nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("edn: unsupported map key type %T", key)
	}
}

func (p *parser) readString() (string, error) {
	p.pos++ // consume opening quote
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", fmt.Errorf("edn: unterminated string")
		}
		c := p.src[p.pos]
		if c == '"' {
			p.pos++
			return b.String(), nil
		}
		if c == '\\' {
			p.pos++
			if p.pos >= len(p.src) {
				return "", fmt.Errorf("edn: unterminated escape")
			}
			switch p.src[p.pos] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(p.src[p.pos])
			}
			p.pos++
			continue
		}
		b.WriteByte(c)
		p.pos++
	}
}

func (p *parser) readSymbol(keyword bool) (wire.Symbol, error) {
	start := p.pos
	if keyword {
		p.pos++ // consume ':'
		start = p.pos
	}
	for p.pos < len(p.src) && isSymbolChar(p.src[p.pos]) {
		p.pos++
	}
	tok := p.src[start:p.pos]
	if tok == "" {
		return wire.Symbol{}, fmt.Errorf("edn: empty symbol/keyword")
	}
	sym, err := wire.ParseSymbol(tok, keyword)
	if err != nil {
		return wire.Symbol{}, err
	}
	return sym, nil
}

// readAtom dispatches among nil/true/false/numbers/symbols, all of
// which begin with an ordinary symbol-start character.
func (p *parser) readAtom() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && isSymbolChar(p.src[p.pos]) {
		p.pos++
	}
	tok := p.src[start:p.pos]
	switch tok {
	case "nil":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if looksNumeric(tok) {
		if strings.ContainsAny(tok, ".eE") {
			f, err := strconv.ParseFloat(tok, 64)
			if err == nil {
				return f, nil
			}
		} else {
			i, err := strconv.ParseInt(tok, 10, 64)
			if err == nil {
				return i, nil
			}
		}
	}
	sym, err := wire.ParseSymbol(tok, false)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func looksNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	if c >= '0' && c <= '9' {
		return true
	}
	if (c == '-' || c == '+') && len(tok) > 1 {
		c2 := tok[1]
		return c2 >= '0' && c2 <= '9'
	}
	return false
}

func isSymbolStart(c byte) bool {
	return isSymbolChar(c) && c != '#'
}

func isSymbolChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case strings.IndexByte("+-_*!?.$%&=<>/", c) >= 0:
		return true
	default:
		return false
	}
}

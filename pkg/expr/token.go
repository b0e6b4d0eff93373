package expr

import (
	"fmt"
	"strings"
	"unicode"
)

// tokenKind identifies a lexical token class.
type tokenKind int

const (
	tEOF tokenKind = iota
	tNumber
	tString // raw string literal text, escapes decoded, interpolation preserved
	tIdent
	tField // @name
	tOp    // + - * / == != < <= > >= && || ! ? : |> ->
	tLParen
	tRParen
	tLBracket
	tRBracket
	tComma
	tKeyword // if then else and or not fn true false null
)

var keywords = map[string]bool{
	"if": true, "then": true, "else": true,
	"and": true, "or": true, "not": true,
	"fn": true, "true": true, "false": true, "null": true,
}

// token is a single lexeme with its position in the source.
type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer scans expression source into tokens.
type lexer struct {
	src    string
	pos    int
	tokens []token
}

// lex tokenizes the whole source up front. Expressions are short, so a
// streaming lexer buys nothing here.
func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.kind == tEOF {
			return l.tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case c >= '0' && c <= '9':
		return l.lexNumber(start), nil

	case c == '"':
		return l.lexString(start)

	case c == '@':
		l.pos++
		for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
			l.pos++
		}
		if l.pos == start+1 {
			return token{}, fmt.Errorf("expr: position %d: '@' must be followed by a field name", start)
		}
		return token{kind: tField, text: l.src[start+1 : l.pos], pos: start}, nil

	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
			l.pos++
		}
		word := l.src[start:l.pos]
		if keywords[word] {
			return token{kind: tKeyword, text: word, pos: start}, nil
		}
		return token{kind: tIdent, text: word, pos: start}, nil
	}

	// Multi-char operators first.
	for _, op := range []string{"|>", "->", "==", "!=", "<=", ">=", "&&", "||"} {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += 2
			return token{kind: tOp, text: op, pos: start}, nil
		}
	}

	l.pos++
	switch c {
	case '+', '-', '*', '/', '<', '>', '!', '?', ':':
		return token{kind: tOp, text: string(c), pos: start}, nil
	case '(':
		return token{kind: tLParen, text: "(", pos: start}, nil
	case ')':
		return token{kind: tRParen, text: ")", pos: start}, nil
	case '[':
		return token{kind: tLBracket, text: "[", pos: start}, nil
	case ']':
		return token{kind: tRBracket, text: "]", pos: start}, nil
	case ',':
		return token{kind: tComma, text: ",", pos: start}, nil
	}

	return token{}, fmt.Errorf("expr: position %d: unexpected character %q", start, c)
}

func (l *lexer) lexNumber(start int) token {
	for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' &&
		l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
		l.pos++
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
	}
	return token{kind: tNumber, text: l.src[start:l.pos], pos: start}
}

// lexString scans a double-quoted literal. Escape sequences are decoded,
// except \{ which is kept as an escaped brace so the interpolation splitter
// can distinguish it from an embed delimiter. Text inside an unescaped
// {...} embed is kept verbatim, and a quote there opens a nested string
// literal rather than closing this one, so embeds like {startsWith(@s, "a")}
// survive the round trip through the splitter's sub-parse.
func (l *lexer) lexString(start int) (token, error) {
	l.pos++ // opening quote
	var b strings.Builder
	depth := 0
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if depth > 0 {
			switch c {
			case '{':
				depth++
			case '}':
				depth--
			case '"':
				b.WriteByte(c)
				l.pos++
				for l.pos < len(l.src) && l.src[l.pos] != '"' {
					if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
						b.WriteByte(l.src[l.pos])
						l.pos++
					}
					b.WriteByte(l.src[l.pos])
					l.pos++
				}
				if l.pos >= len(l.src) {
					return token{}, fmt.Errorf("expr: position %d: unterminated string", start)
				}
			}
			b.WriteByte(l.src[l.pos])
			l.pos++
			continue
		}
		switch c {
		case '"':
			l.pos++
			return token{kind: tString, text: b.String(), pos: start}, nil
		case '{':
			depth++
			b.WriteByte(c)
			l.pos++
		case '\\':
			if l.pos+1 >= len(l.src) {
				return token{}, fmt.Errorf("expr: position %d: unterminated escape", l.pos)
			}
			esc := l.src[l.pos+1]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '{', '}':
				b.WriteByte('\\')
				b.WriteByte(esc)
			default:
				return token{}, fmt.Errorf("expr: position %d: unknown escape \\%c", l.pos, esc)
			}
			l.pos += 2
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	if depth > 0 {
		return token{}, fmt.Errorf("expr: position %d: unterminated interpolation", start)
	}
	return token{}, fmt.Errorf("expr: position %d: unterminated string", start)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isIdentChar(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

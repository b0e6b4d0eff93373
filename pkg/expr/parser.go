package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Rx is one parsed reactive expression: source text, parsed form, and the
// set of declared fields it reads. Immutable once built.
type Rx struct {
	Source string
	Root   Node
	Deps   []string
}

// Parse builds an Rx from expression source text.
func Parse(source string) (*Rx, error) {
	tokens, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tEOF {
		return nil, fmt.Errorf("expr: position %d: unexpected %q after expression", tok.pos, tok.text)
	}
	return &Rx{Source: source, Root: root, Deps: depsOf(root)}, nil
}

// FromNode builds an Rx from an already-constructed tree, re-rendering
// canonical source text. The inliner uses this so both runtimes consume the
// expanded expression through the same door as hand-written source.
func FromNode(root Node) *Rx {
	return &Rx{Source: Print(root), Root: root, Deps: depsOf(root)}
}

// Binding powers, low to high. Pipe sits between comparison and additive
// so that "@s |> trim() |> length() > 3" reads naturally.
const (
	precTernary = 1
	precOr      = 2
	precAnd     = 3
	precEq      = 4
	precCmp     = 5
	precPipe    = 6
	precAdd     = 7
	precMul     = 8
	precUnary   = 9
)

var binaryPrec = map[string]int{
	"or": precOr, "||": precOr,
	"and": precAnd, "&&": precAnd,
	"==": precEq, "!=": precEq,
	"<": precCmp, "<=": precCmp, ">": precCmp, ">=": precCmp,
	"|>": precPipe,
	"+":  precAdd, "-": precAdd,
	"*": precMul, "/": precMul,
}

// normalizeOp unifies symbolic boolean operators with the keyword forms so
// downstream consumers see a single operator set.
func normalizeOp(op string) string {
	switch op {
	case "&&":
		return "and"
	case "||":
		return "or"
	default:
		return op
	}
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.peek()
	if tok.kind != kind {
		return tok, fmt.Errorf("expr: position %d: expected %s, found %q", tok.pos, what, tok.text)
	}
	return p.advance(), nil
}

// parseExpr is the Pratt loop: a prefix form followed by infix operators of
// at least minPrec binding power.
func (p *parser) parseExpr(minPrec int) (Node, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()

		// Keyword operators and symbolic operators both participate.
		var op string
		switch {
		case tok.kind == tOp && tok.text != "!" && tok.text != "->" && tok.text != ":":
			op = tok.text
		case tok.kind == tKeyword && (tok.text == "and" || tok.text == "or"):
			op = tok.text
		default:
			return left, nil
		}

		if op == "?" {
			if precTernary < minPrec {
				return left, nil
			}
			p.advance()
			left, err = p.parseTernary(left)
			if err != nil {
				return nil, err
			}
			continue
		}

		prec, ok := binaryPrec[op]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.advance()

		if op == "|>" {
			left, err = p.parsePipe(left)
			if err != nil {
				return nil, err
			}
			continue
		}

		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: normalizeOp(op), L: left, R: right}
	}
}

// parseTernary finishes cond ? a : b after the '?' has been consumed.
// Normalized to the same Cond node as if/then/else.
func (p *parser) parseTernary(cond Node) (Node, error) {
	thenN, err := p.parseExpr(precTernary)
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tOp || tok.text != ":" {
		return nil, fmt.Errorf("expr: position %d: expected ':' in conditional, found %q", tok.pos, tok.text)
	}
	p.advance()
	elseN, err := p.parseExpr(precTernary)
	if err != nil {
		return nil, err
	}
	return &Cond{If: cond, Then: thenN, Else: elseN}, nil
}

// parsePipe desugars x |> fn(a, b) into fn(x, a, b). The right-hand side
// must be a call (a bare name is treated as a zero-extra-arg call), so no
// pipe node survives parsing.
func (p *parser) parsePipe(piped Node) (Node, error) {
	tok := p.peek()
	if tok.kind != tIdent {
		return nil, fmt.Errorf("expr: position %d: right side of |> must be a function call", tok.pos)
	}
	p.advance()
	name := tok.text

	args := []Node{piped}
	if p.peek().kind == tLParen {
		rest, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		args = append(args, rest...)
	}
	return &Call{Name: name, Args: args}, nil
}

func (p *parser) parsePrefix() (Node, error) {
	tok := p.peek()

	switch tok.kind {
	case tNumber:
		p.advance()
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("expr: position %d: bad number %q", tok.pos, tok.text)
		}
		return &Num{Val: v}, nil

	case tString:
		p.advance()
		return parseStringParts(tok.text, tok.pos)

	case tField:
		p.advance()
		return &FieldRef{Name: tok.text}, nil

	case tIdent:
		p.advance()
		if p.peek().kind == tLParen {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &Call{Name: tok.text, Args: args}, nil
		}
		return &Ident{Name: tok.text}, nil

	case tKeyword:
		switch tok.text {
		case "true":
			p.advance()
			return &Bool{Val: true}, nil
		case "false":
			p.advance()
			return &Bool{Val: false}, nil
		case "null":
			p.advance()
			return &Null{}, nil
		case "not":
			p.advance()
			x, err := p.parseExpr(precUnary)
			if err != nil {
				return nil, err
			}
			return &Unary{Op: "not", X: x}, nil
		case "if":
			return p.parseIf()
		case "fn":
			return p.parseLambda()
		}

	case tOp:
		switch tok.text {
		case "-":
			p.advance()
			x, err := p.parseExpr(precUnary)
			if err != nil {
				return nil, err
			}
			return &Unary{Op: "-", X: x}, nil
		case "!":
			p.advance()
			x, err := p.parseExpr(precUnary)
			if err != nil {
				return nil, err
			}
			return &Unary{Op: "not", X: x}, nil
		}

	case tLParen:
		p.advance()
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil

	case tLBracket:
		return p.parseList()
	}

	return nil, fmt.Errorf("expr: position %d: unexpected %q", tok.pos, tok.text)
}

// parseIf handles if cond then a [else b]. The elseless form defaults
// to null.
func (p *parser) parseIf() (Node, error) {
	p.advance() // if
	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tKeyword || tok.text != "then" {
		return nil, fmt.Errorf("expr: position %d: expected 'then', found %q", tok.pos, tok.text)
	}
	p.advance()
	thenN, err := p.parseExpr(precTernary)
	if err != nil {
		return nil, err
	}

	var elseN Node
	if tok := p.peek(); tok.kind == tKeyword && tok.text == "else" {
		p.advance()
		elseN, err = p.parseExpr(precTernary)
		if err != nil {
			return nil, err
		}
	}
	return &Cond{If: cond, Then: thenN, Else: elseN}, nil
}

// parseLambda handles fn x -> body.
func (p *parser) parseLambda() (Node, error) {
	p.advance() // fn
	param, err := p.expect(tIdent, "lambda parameter")
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tOp || tok.text != "->" {
		return nil, fmt.Errorf("expr: position %d: expected '->', found %q", tok.pos, tok.text)
	}
	p.advance()
	body, err := p.parseExpr(precTernary)
	if err != nil {
		return nil, err
	}
	return &Lambda{Param: param.text, Body: body}, nil
}

func (p *parser) parseArgs() ([]Node, error) {
	p.advance() // (
	var args []Node
	if p.peek().kind == tRParen {
		p.advance()
		return args, nil
	}
	for {
		arg, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		tok := p.peek()
		if tok.kind == tComma {
			p.advance()
			continue
		}
		if tok.kind == tRParen {
			p.advance()
			return args, nil
		}
		return nil, fmt.Errorf("expr: position %d: expected ',' or ')', found %q", tok.pos, tok.text)
	}
}

func (p *parser) parseList() (Node, error) {
	p.advance() // [
	list := &List{}
	if p.peek().kind == tRBracket {
		p.advance()
		return list, nil
	}
	for {
		item, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
		tok := p.peek()
		if tok.kind == tComma {
			p.advance()
			continue
		}
		if tok.kind == tRBracket {
			p.advance()
			return list, nil
		}
		return nil, fmt.Errorf("expr: position %d: expected ',' or ']', found %q", tok.pos, tok.text)
	}
}

// parseStringParts splits a decoded string literal on unescaped {...}
// embeds and parses each embed as a sub-expression. A literal with no
// embeds stays a plain Str.
func parseStringParts(s string, pos int) (Node, error) {
	var parts []Node
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, &Str{Val: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 < len(s) && (s[i+1] == '{' || s[i+1] == '}') {
				lit.WriteByte(s[i+1])
				i++
				continue
			}
			lit.WriteByte(c)
		case '{':
			depth := 1
			j := i + 1
			for ; j < len(s) && depth > 0; j++ {
				switch s[j] {
				case '{':
					depth++
				case '}':
					depth--
				case '"':
					// String literal inside the embed: braces and quotes in
					// it do not delimit.
					for j++; j < len(s) && s[j] != '"'; j++ {
						if s[j] == '\\' {
							j++
						}
					}
					if j >= len(s) {
						return nil, fmt.Errorf("expr: position %d: unterminated interpolation", pos+i)
					}
				}
			}
			if depth != 0 {
				return nil, fmt.Errorf("expr: position %d: unterminated interpolation", pos+i)
			}
			sub, err := Parse(s[i+1 : j-1])
			if err != nil {
				return nil, fmt.Errorf("expr: position %d: in interpolation: %w", pos+i, err)
			}
			flush()
			parts = append(parts, sub.Root)
			i = j - 1
		case '}':
			return nil, fmt.Errorf("expr: position %d: '}' outside interpolation", pos+i)
		default:
			lit.WriteByte(c)
		}
	}

	if len(parts) == 0 {
		return &Str{Val: lit.String()}, nil
	}
	flush()
	if len(parts) == 1 {
		if str, ok := parts[0].(*Str); ok {
			return str, nil
		}
	}
	return &Interp{Parts: parts}, nil
}

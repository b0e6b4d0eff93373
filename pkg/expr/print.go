package expr

import (
	"strconv"
	"strings"
)

// Print renders a tree back to parseable source text. Output is fully
// parenthesized rather than minimal: the only consumer is the inliner,
// which needs Parse(Print(n)) to reproduce n exactly, and canonical
// parentheses make that property trivial to keep.
func Print(n Node) string {
	var b strings.Builder
	printNode(&b, n)
	return b.String()
}

func printNode(b *strings.Builder, n Node) {
	switch t := n.(type) {
	case *Num:
		b.WriteString(strconv.FormatFloat(t.Val, 'f', -1, 64))
	case *Str:
		printString(b, t.Val)
	case *Bool:
		if t.Val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case *Null:
		b.WriteString("null")
	case *List:
		b.WriteByte('[')
		for i, it := range t.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			printNode(b, it)
		}
		b.WriteByte(']')
	case *FieldRef:
		b.WriteByte('@')
		b.WriteString(t.Name)
	case *Ident:
		b.WriteString(t.Name)
	case *Unary:
		if t.Op == "not" {
			b.WriteString("(not ")
		} else {
			b.WriteString("(-")
		}
		printNode(b, t.X)
		b.WriteByte(')')
	case *Binary:
		b.WriteByte('(')
		printNode(b, t.L)
		b.WriteByte(' ')
		b.WriteString(t.Op)
		b.WriteByte(' ')
		printNode(b, t.R)
		b.WriteByte(')')
	case *Cond:
		b.WriteString("(if ")
		printNode(b, t.If)
		b.WriteString(" then ")
		printNode(b, t.Then)
		if t.Else != nil {
			b.WriteString(" else ")
			printNode(b, t.Else)
		}
		b.WriteByte(')')
	case *Call:
		b.WriteString(t.Name)
		b.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			printNode(b, a)
		}
		b.WriteByte(')')
	case *Lambda:
		b.WriteString("(fn ")
		b.WriteString(t.Param)
		b.WriteString(" -> ")
		printNode(b, t.Body)
		b.WriteByte(')')
	case *Interp:
		b.WriteByte('"')
		for _, p := range t.Parts {
			if s, ok := p.(*Str); ok {
				b.WriteString(escapeStringBody(s.Val))
				continue
			}
			b.WriteByte('{')
			printNode(b, p)
			b.WriteByte('}')
		}
		b.WriteByte('"')
	}
}

func printString(b *strings.Builder, s string) {
	b.WriteByte('"')
	b.WriteString(escapeStringBody(s))
	b.WriteByte('"')
}

func escapeStringBody(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '{':
			b.WriteString(`\{`)
		case '}':
			b.WriteString(`\}`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

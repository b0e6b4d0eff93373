package expr

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"
)

// Env binds reactive field names to their current values for one
// evaluation. Lambda parameters are layered on top internally.
type Env map[string]any

// Arity is a function name plus argument count, the unit of builtin and
// fragment lookup.
type Arity struct {
	Name  string
	Count int
}

// Builtins enumerates the whitelisted call surface: every name/arity the
// interpreter implements and the transpiler can emit. The two runtimes and
// Validate all read this one table.
var Builtins = map[Arity]bool{
	{"length", 1}: true, {"count", 1}: true,
	{"trim", 1}: true, {"upper", 1}: true, {"lower", 1}: true,
	{"contains", 2}: true, {"startsWith", 2}: true, {"endsWith", 2}: true,
	{"slice", 2}: true, {"slice", 3}: true,
	{"replace", 3}: true, {"matches", 2}: true,
	{"join", 2}: true, {"member", 2}: true, {"concat", 2}: true,
	{"map", 2}: true, {"filter", 2}: true, {"reject", 2}: true,
	{"get", 2}: true, {"get", 3}: true, {"getIn", 2}: true,
	{"isNil", 1}: true, {"humanize", 1}: true, {"toNumber", 1}: true,
	{"validCardNumber", 1}: true,
}

// lambdaArg reports whether argument i of builtin name is the lambda slot.
func lambdaArg(name string, i int) bool {
	return (name == "map" || name == "filter" || name == "reject") && i == 1
}

// Eval interprets rx against env. It returns a Go error only for
// structural defects Validate would have rejected (free identifiers,
// unknown calls); value-level failures evaluate to the ErrValue sentinel
// or NaN and never fail.
func Eval(rx *Rx, env Env) (any, error) {
	ev := &evaluator{env: env}
	return ev.eval(rx.Root)
}

type evaluator struct {
	env    Env
	scopes []scope // lambda bindings, innermost last
}

type scope struct {
	name string
	val  any
}

func (ev *evaluator) lookup(name string) (any, bool) {
	for i := len(ev.scopes) - 1; i >= 0; i-- {
		if ev.scopes[i].name == name {
			return ev.scopes[i].val, true
		}
	}
	return nil, false
}

func (ev *evaluator) eval(n Node) (any, error) {
	switch t := n.(type) {
	case *Num:
		return t.Val, nil
	case *Str:
		return t.Val, nil
	case *Bool:
		return t.Val, nil
	case *Null:
		return nil, nil
	case *FieldRef:
		return ev.env[t.Name], nil
	case *Ident:
		if v, ok := ev.lookup(t.Name); ok {
			return v, nil
		}
		return nil, fmt.Errorf("expr: unbound identifier %q", t.Name)
	case *List:
		items := make([]any, len(t.Items))
		for i, it := range t.Items {
			v, err := ev.eval(it)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case *Unary:
		return ev.evalUnary(t)
	case *Binary:
		return ev.evalBinary(t)
	case *Cond:
		c, err := ev.eval(t.If)
		if err != nil {
			return nil, err
		}
		if Truthy(c) {
			return ev.eval(t.Then)
		}
		if t.Else == nil {
			return nil, nil
		}
		return ev.eval(t.Else)
	case *Call:
		return ev.evalCall(t)
	case *Interp:
		var b strings.Builder
		for _, p := range t.Parts {
			v, err := ev.eval(p)
			if err != nil {
				return nil, err
			}
			b.WriteString(ToString(v))
		}
		return b.String(), nil
	case *Lambda:
		return nil, fmt.Errorf("expr: lambda outside map/filter/reject")
	}
	return nil, fmt.Errorf("expr: unknown node %T", n)
}

func (ev *evaluator) evalUnary(u *Unary) (any, error) {
	x, err := ev.eval(u.X)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case "not":
		return !Truthy(x), nil
	case "-":
		n, _ := ToNumber(x)
		return -n, nil
	}
	return nil, fmt.Errorf("expr: unknown unary %q", u.Op)
}

func (ev *evaluator) evalBinary(b *Binary) (any, error) {
	// and/or short-circuit and return the deciding operand, like the
	// client's && and ||.
	if b.Op == "and" || b.Op == "or" {
		l, err := ev.eval(b.L)
		if err != nil {
			return nil, err
		}
		if b.Op == "and" {
			if !Truthy(l) {
				return l, nil
			}
		} else if Truthy(l) {
			return l, nil
		}
		return ev.eval(b.R)
	}

	l, err := ev.eval(b.L)
	if err != nil {
		return nil, err
	}
	r, err := ev.eval(b.R)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case "+":
		if isStringish(l) || isStringish(r) {
			return ToString(l) + ToString(r), nil
		}
		ln, _ := ToNumber(l)
		rn, _ := ToNumber(r)
		return ln + rn, nil
	case "-", "*", "/":
		ln, _ := ToNumber(l)
		rn, _ := ToNumber(r)
		switch b.Op {
		case "-":
			return ln - rn, nil
		case "*":
			return ln * rn, nil
		default:
			// Floating-point division: x/0 is ±Inf, 0/0 is NaN.
			return ln / rn, nil
		}
	case "==":
		return StrictEquals(l, r), nil
	case "!=":
		return !StrictEquals(l, r), nil
	case "<", "<=", ">", ">=":
		return compare(b.Op, l, r), nil
	}
	return nil, fmt.Errorf("expr: unknown operator %q", b.Op)
}

// isStringish: operands that make + mean concatenation. Lists coerce to
// strings under + in the client runtime, so they count.
func isStringish(v any) bool {
	switch v.(type) {
	case string, []any:
		return true
	}
	return false
}

func compare(op string, l, r any) bool {
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs
		case "<=":
			return ls <= rs
		case ">":
			return ls > rs
		default:
			return ls >= rs
		}
	}
	ln, _ := ToNumber(l)
	rn, _ := ToNumber(r)
	if math.IsNaN(ln) || math.IsNaN(rn) {
		return false
	}
	switch op {
	case "<":
		return ln < rn
	case "<=":
		return ln <= rn
	case ">":
		return ln > rn
	default:
		return ln >= rn
	}
}

func (ev *evaluator) evalCall(c *Call) (any, error) {
	if !Builtins[Arity{c.Name, len(c.Args)}] {
		return nil, fmt.Errorf("expr: unknown function %s/%d", c.Name, len(c.Args))
	}

	args := make([]any, len(c.Args))
	var lambdas = make([]*Lambda, len(c.Args))
	for i, a := range c.Args {
		if lam, ok := a.(*Lambda); ok && lambdaArg(c.Name, i) {
			lambdas[i] = lam
			continue
		}
		v, err := ev.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch c.Name {
	case "length", "count":
		switch v := args[0].(type) {
		case string:
			return float64(StringLength(v)), nil
		case []any:
			return float64(len(v)), nil
		case nil:
			return ErrValue{Reason: "length of null"}, nil
		default:
			return ErrValue{Reason: "length of non-collection"}, nil
		}
	case "trim":
		return strings.TrimSpace(ToString(args[0])), nil
	case "upper":
		return strings.ToUpper(ToString(args[0])), nil
	case "lower":
		return strings.ToLower(ToString(args[0])), nil
	case "contains":
		return strings.Contains(strings.ToLower(ToString(args[0])), strings.ToLower(ToString(args[1]))), nil
	case "startsWith":
		return strings.HasPrefix(ToString(args[0]), ToString(args[1])), nil
	case "endsWith":
		return strings.HasSuffix(ToString(args[0]), ToString(args[1])), nil
	case "slice":
		to := math.Inf(1)
		if len(args) == 3 {
			to, _ = ToNumber(args[2])
		}
		from, _ := ToNumber(args[1])
		return sliceValue(args[0], from, to), nil
	case "replace":
		re, err := regexp.Compile(ToString(args[1]))
		if err != nil {
			return ErrValue{Reason: "bad pattern: " + err.Error()}, nil
		}
		return re.ReplaceAllString(ToString(args[0]), ToString(args[2])), nil
	case "matches":
		re, err := regexp.Compile(ToString(args[1]))
		if err != nil {
			return ErrValue{Reason: "bad pattern: " + err.Error()}, nil
		}
		return re.MatchString(ToString(args[0])), nil
	case "join":
		list, ok := args[0].([]any)
		if !ok {
			return ErrValue{Reason: "join of non-list"}, nil
		}
		parts := make([]string, len(list))
		for i, it := range list {
			parts[i] = ToString(it)
		}
		return strings.Join(parts, ToString(args[1])), nil
	case "member":
		list, ok := args[1].([]any)
		if !ok {
			return false, nil
		}
		for _, it := range list {
			if StrictEquals(args[0], it) {
				return true, nil
			}
		}
		return false, nil
	case "concat":
		a, aok := args[0].([]any)
		b, bok := args[1].([]any)
		if !aok || !bok {
			return ErrValue{Reason: "concat of non-list"}, nil
		}
		out := make([]any, 0, len(a)+len(b))
		out = append(out, a...)
		return append(out, b...), nil
	case "map", "filter", "reject":
		list, ok := args[0].([]any)
		if !ok {
			return ErrValue{Reason: c.Name + " of non-list"}, nil
		}
		lam := lambdas[1]
		if lam == nil {
			return nil, fmt.Errorf("expr: %s requires an inline fn argument", c.Name)
		}
		var out []any
		for _, it := range list {
			ev.scopes = append(ev.scopes, scope{name: lam.Param, val: it})
			v, err := ev.eval(lam.Body)
			ev.scopes = ev.scopes[:len(ev.scopes)-1]
			if err != nil {
				return nil, err
			}
			switch c.Name {
			case "map":
				out = append(out, v)
			case "filter":
				if Truthy(v) {
					out = append(out, it)
				}
			case "reject":
				if !Truthy(v) {
					out = append(out, it)
				}
			}
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case "get":
		m, ok := args[0].(map[string]any)
		var v any
		if ok {
			v = m[ToString(args[1])]
		}
		if v == nil {
			if len(args) == 3 {
				return args[2], nil
			}
			return nil, nil
		}
		return v, nil
	case "getIn":
		path, ok := args[1].([]any)
		if !ok {
			return nil, nil
		}
		cur := args[0]
		for _, k := range path {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, nil
			}
			cur = m[ToString(k)]
			if cur == nil {
				return nil, nil
			}
		}
		return cur, nil
	case "isNil":
		return args[0] == nil, nil
	case "humanize":
		return Humanize(ToString(args[0])), nil
	case "toNumber":
		n, ok := ToNumber(args[0])
		if !ok {
			return ErrValue{Reason: fmt.Sprintf("toNumber(%q)", ToString(args[0]))}, nil
		}
		return n, nil
	case "validCardNumber":
		return ValidCardNumber(ToString(args[0])), nil
	}
	return nil, fmt.Errorf("expr: unimplemented builtin %s/%d", c.Name, len(c.Args))
}

// sliceValue implements the client .slice() semantics for strings and
// lists: negative indices count from the end, out-of-range clamps.
func sliceValue(v any, from, to float64) any {
	switch t := v.(type) {
	case string:
		// UTF-16 code units, the same unit length counts with.
		units := utf16.Encode([]rune(t))
		lo, hi := sliceBounds(len(units), from, to)
		return string(utf16.Decode(units[lo:hi]))
	case []any:
		lo, hi := sliceBounds(len(t), from, to)
		out := make([]any, hi-lo)
		copy(out, t[lo:hi])
		return out
	default:
		return ErrValue{Reason: "slice of non-collection"}
	}
}

func sliceBounds(n int, from, to float64) (int, int) {
	norm := func(f float64) int {
		if math.IsInf(f, 1) {
			return n
		}
		i := int(f)
		if i < 0 {
			i += n
		}
		if i < 0 {
			return 0
		}
		if i > n {
			return n
		}
		return i
	}
	lo, hi := norm(from), norm(to)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Humanize turns snake_cased text into spaced words with the first word
// capitalized: "first_name" -> "First name".
func Humanize(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// ValidCardNumber is the Luhn checksum over the digits of s; non-digit
// separators (spaces, dashes) are ignored. Fewer than 12 digits fails.
func ValidCardNumber(s string) bool {
	var digits []int
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	if len(digits) < 12 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

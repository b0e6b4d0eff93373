// Package transpile compiles parsed reactive expressions to client-side
// JavaScript with the same semantics as the server interpreter in package
// expr.
//
// Compile is total: an expression that cannot be transpiled produces a
// marker that evaluates to undefined, annotated with the offending
// construct, so artifact generation never fails over one field. Validate
// is the pre-flight gate a caller uses before relying on optimistic
// behavior for a field.
//
// Guarded operations (null-safe length, regex with bad patterns) compile
// to small arrow IIFEs that degrade to NaN, matching the interpreter's
// ErrValue sentinel. The named validators (validCardNumber, humanize,
// toNumber) compile to calls into the shared client validator library
// rather than being inlined.
package transpile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mirageui/mirage/pkg/expr"
)

// ValidatorsLib is the global object the emitted code expects the shared
// client validator library under.
const ValidatorsLib = "MirageValidators"

// StateParam is the parameter name generated functions receive the
// client-resident state record under; field references compile to
// properties of it.
const StateParam = "state"

// Validate statically checks that rx is fully within the transpilable
// whitelist. A nil result means Compile will emit real code and the two
// runtimes agree on the expression; an error names the first construct
// outside the whitelist.
func Validate(rx *expr.Rx) error {
	return validateNode(rx.Root, nil)
}

func validateNode(n expr.Node, bound []string) error {
	switch t := n.(type) {
	case *expr.Num, *expr.Str, *expr.Bool, *expr.Null, *expr.FieldRef:
		return nil
	case *expr.Ident:
		for _, b := range bound {
			if b == t.Name {
				return nil
			}
		}
		return fmt.Errorf("unbound identifier %q (inlinable fragments must be expanded first)", t.Name)
	case *expr.List:
		for _, it := range t.Items {
			if err := validateNode(it, bound); err != nil {
				return err
			}
		}
		return nil
	case *expr.Unary:
		return validateNode(t.X, bound)
	case *expr.Binary:
		if err := validateNode(t.L, bound); err != nil {
			return err
		}
		return validateNode(t.R, bound)
	case *expr.Cond:
		if err := validateNode(t.If, bound); err != nil {
			return err
		}
		if err := validateNode(t.Then, bound); err != nil {
			return err
		}
		if t.Else != nil {
			return validateNode(t.Else, bound)
		}
		return nil
	case *expr.Call:
		if !expr.Builtins[expr.Arity{Name: t.Name, Count: len(t.Args)}] {
			return fmt.Errorf("unknown function %s/%d", t.Name, len(t.Args))
		}
		for i, a := range t.Args {
			if lam, ok := a.(*expr.Lambda); ok {
				if !isLambdaSlot(t.Name, i) {
					return fmt.Errorf("inline fn not allowed as argument %d of %s", i+1, t.Name)
				}
				if err := validateNode(lam.Body, append(bound, lam.Param)); err != nil {
					return err
				}
				continue
			}
			if isLambdaSlot(t.Name, i) {
				return fmt.Errorf("%s requires an inline fn as argument %d", t.Name, i+1)
			}
			if err := validateNode(a, bound); err != nil {
				return err
			}
		}
		return nil
	case *expr.Lambda:
		return fmt.Errorf("inline fn outside map/filter/reject")
	case *expr.Interp:
		for _, p := range t.Parts {
			if err := validateNode(p, bound); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported node %T", n)
}

func isLambdaSlot(name string, i int) bool {
	return (name == "map" || name == "filter" || name == "reject") && i == 1
}

// Compile translates rx to a JavaScript expression over StateParam.
// It is pure and total: expressions outside the whitelist compile to an
// undefined marker carrying the reason, so the field silently falls back
// to server-confirmed updates.
func Compile(rx *expr.Rx) string {
	if err := Validate(rx); err != nil {
		return fmt.Sprintf("undefined /* mirage: untranspilable: %s */", commentSafe(err.Error()))
	}
	return emit(rx.Root)
}

// commentSafe keeps the reason from terminating the block comment early.
func commentSafe(s string) string {
	return strings.ReplaceAll(s, "*/", "*\\/")
}

func emit(n expr.Node) string {
	switch t := n.(type) {
	case *expr.Num:
		return strconv.FormatFloat(t.Val, 'f', -1, 64)
	case *expr.Str:
		return jsString(t.Val)
	case *expr.Bool:
		if t.Val {
			return "true"
		}
		return "false"
	case *expr.Null:
		return "null"
	case *expr.List:
		items := make([]string, len(t.Items))
		for i, it := range t.Items {
			items[i] = emit(it)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case *expr.FieldRef:
		return StateParam + "." + t.Name
	case *expr.Ident:
		return t.Name
	case *expr.Unary:
		if t.Op == "not" {
			return "(!(" + emit(t.X) + "))"
		}
		return "(-(" + emit(t.X) + "))"
	case *expr.Binary:
		return emitBinary(t)
	case *expr.Cond:
		elseJS := "null"
		if t.Else != nil {
			elseJS = emit(t.Else)
		}
		return "((" + emit(t.If) + ") ? (" + emit(t.Then) + ") : (" + elseJS + "))"
	case *expr.Call:
		return emitCall(t)
	case *expr.Interp:
		parts := make([]string, 0, len(t.Parts)+1)
		parts = append(parts, `""`)
		for _, p := range t.Parts {
			parts = append(parts, "("+emit(p)+")")
		}
		return "(" + strings.Join(parts, " + ") + ")"
	}
	return "undefined"
}

var jsBinaryOp = map[string]string{
	"+": "+", "-": "-", "*": "*", "/": "/",
	"==": "===", "!=": "!==",
	"<": "<", "<=": "<=", ">": ">", ">=": ">=",
	"and": "&&", "or": "||",
}

func emitBinary(b *expr.Binary) string {
	return "((" + emit(b.L) + ") " + jsBinaryOp[b.Op] + " (" + emit(b.R) + "))"
}

// str coerces an emitted operand to a string the way the interpreter's
// ToString does, via JS string concatenation.
func str(jsExpr string) string {
	return `("" + (` + jsExpr + `))`
}

func emitCall(c *expr.Call) string {
	arg := func(i int) string { return emit(c.Args[i]) }

	switch c.Name {
	case "length", "count":
		return `((v) => (v != null && v.length !== undefined ? v.length : NaN))(` + arg(0) + `)`
	case "trim":
		return str(arg(0)) + `.trim()`
	case "upper":
		return str(arg(0)) + `.toUpperCase()`
	case "lower":
		return str(arg(0)) + `.toLowerCase()`
	case "contains":
		return str(arg(0)) + `.toLowerCase().includes(` + str(arg(1)) + `.toLowerCase())`
	case "startsWith":
		return str(arg(0)) + `.startsWith(` + str(arg(1)) + `)`
	case "endsWith":
		return str(arg(0)) + `.endsWith(` + str(arg(1)) + `)`
	case "slice":
		to := "undefined"
		if len(c.Args) == 3 {
			to = arg(2)
		}
		return `((v, f, t) => (Array.isArray(v) ? v.slice(f, t) : ("" + v).slice(f, t)))(` +
			arg(0) + `, ` + arg(1) + `, ` + to + `)`
	case "replace":
		return `((s, p, r) => { try { return s.replace(new RegExp(p, "g"), r); } catch (e) { return NaN; } })(` +
			str(arg(0)) + `, ` + str(arg(1)) + `, ` + str(arg(2)) + `)`
	case "matches":
		return `((s, p) => { try { return new RegExp(p).test(s); } catch (e) { return NaN; } })(` +
			str(arg(0)) + `, ` + str(arg(1)) + `)`
	case "join":
		return `((v, s) => (Array.isArray(v) ? v.map((x) => (x === null ? "null" : "" + x)).join(s) : NaN))(` +
			arg(0) + `, ` + str(arg(1)) + `)`
	case "member":
		return `((x, l) => (Array.isArray(l) ? l.includes(x) : false))(` + arg(0) + `, ` + arg(1) + `)`
	case "concat":
		return `((a, b) => (Array.isArray(a) && Array.isArray(b) ? a.concat(b) : NaN))(` + arg(0) + `, ` + arg(1) + `)`
	case "map", "filter", "reject":
		lam := c.Args[1].(*expr.Lambda)
		body := emit(lam.Body)
		var inner string
		switch c.Name {
		case "map":
			inner = `l.map((` + lam.Param + `) => (` + body + `))`
		case "filter":
			inner = `l.filter((` + lam.Param + `) => (` + body + `))`
		case "reject":
			inner = `l.filter((` + lam.Param + `) => (!(` + body + `)))`
		}
		return `((l) => (Array.isArray(l) ? ` + inner + ` : NaN))(` + arg(0) + `)`
	case "get":
		def := "null"
		if len(c.Args) == 3 {
			def = arg(2)
		}
		return `((m, k, d) => (m != null && typeof m === "object" ? (m[k] ?? d) : d))(` +
			arg(0) + `, ` + str(arg(1)) + `, ` + def + `)`
	case "getIn":
		return `((m, p) => { if (!Array.isArray(p)) return null; let c = m; for (const k of p) { ` +
			`if (c == null || typeof c !== "object") return null; c = c["" + k] ?? null; if (c === null) return null; } return c; })(` +
			arg(0) + `, ` + arg(1) + `)`
	case "isNil":
		return `((` + arg(0) + `) == null)`
	case "humanize":
		return ValidatorsLib + `.humanize(` + str(arg(0)) + `)`
	case "toNumber":
		return ValidatorsLib + `.toNumber(` + arg(0) + `)`
	case "validCardNumber":
		return ValidatorsLib + `.validCardNumber(` + str(arg(0)) + `)`
	}
	return "undefined"
}

// jsString renders a Go string as a JS string literal. JSON escaping is a
// strict subset of JS string syntax.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

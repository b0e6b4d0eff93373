// Package artifact turns a declared unit into its client runtime module:
// one JS function per generatable action and derived field, plus the
// metadata the client runtime needs for incremental recomputation. The
// writer half stores modules content-addressed so unchanged builds never
// touch the filesystem.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mirageui/mirage/internal/metrics"
	"github.com/mirageui/mirage/internal/trace"
	"github.com/mirageui/mirage/pkg/decl"
	"github.com/mirageui/mirage/pkg/graph"
	"github.com/mirageui/mirage/pkg/transpile"
)

// Module is one generated client module.
type Module struct {
	Unit string
	Text string

	// Derives lists the derived-field functions the module exports,
	// in declaration order.
	Derives []string
	// Actions lists the action functions the module exports.
	Actions []string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Generate produces the client module for one unit. The second result is
// false when nothing in the unit qualifies for optimistic generation,
// which is a normal outcome for server-only units, not an error.
// Ineligible fields and actions degrade silently to server-side
// evaluation; each degradation is logged at debug and counted.
func Generate(ctx context.Context, u *decl.Unit, g *graph.Graph) (*Module, bool) {
	log := slog.Default().With("unit", u.Name)

	var b strings.Builder
	var derives, actions []string

	// The transpile stage proper: validating and compiling every candidate
	// expression.
	_, span := trace.Start(ctx, trace.SpanTranspile, u.Name)

	for _, f := range u.Fields() {
		if f.Expr == nil || f.Kind == decl.KindState {
			continue
		}
		if !f.Optimistic {
			// Not opted in: server-confirmed updates only, and not a
			// degradation.
			continue
		}
		if !identRe.MatchString(f.Name) {
			degrade(log, "field", f.Name, "name is not a valid identifier")
			continue
		}
		if err := transpile.Validate(f.Expr); err != nil {
			degrade(log, "field", f.Name, err.Error())
			continue
		}
		fmt.Fprintf(&b, "const %s = (%s) => (%s);\n",
			f.Name, transpile.StateParam, transpile.Compile(f.Expr))
		derives = append(derives, f.Name)
	}

	for _, a := range u.Actions() {
		body, ok := actionBody(log, a)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "const %s = (%s, value) => (%s);\n",
			a.Name, transpile.StateParam, body)
		actions = append(actions, a.Name)
	}
	trace.End(span, nil)

	if len(derives) == 0 && len(actions) == 0 {
		return nil, false
	}

	mod := &Module{Unit: u.Name, Derives: derives, Actions: actions}
	mod.Text = assemble(u, g, b.String(), derives, actions)
	return mod, true
}

// actionBody renders an action as a JS state-delta object literal.
// Any op outside the generatable set disqualifies the whole action.
func actionBody(log *slog.Logger, a decl.Action) (string, bool) {
	if a.Remote || a.Navigates {
		degrade(log, "action", a.Name, "has remote or navigation side effects")
		return "", false
	}
	if !identRe.MatchString(a.Name) {
		degrade(log, "action", a.Name, "name is not a valid identifier")
		return "", false
	}
	if len(a.Ops) == 0 {
		degrade(log, "action", a.Name, "has no state operations")
		return "", false
	}

	parts := make([]string, 0, len(a.Ops))
	for _, op := range a.Ops {
		if !identRe.MatchString(op.Field) {
			degrade(log, "action", a.Name, "targets a non-identifier field")
			return "", false
		}
		target := transpile.StateParam + "." + op.Field

		switch op.Kind {
		case decl.OpSet:
			parts = append(parts, op.Field+": value")
		case decl.OpDelta:
			parts = append(parts, fmt.Sprintf("%s: %s + (%s)", op.Field, target, jsNumber(op.By)))
		case decl.OpUpdate:
			offset, ok := ProbeAdditive(op.Fn)
			if !ok {
				degrade(log, "action", a.Name, "update function is not a constant additive offset")
				return "", false
			}
			parts = append(parts, fmt.Sprintf("%s: %s + (%s)", op.Field, target, jsNumber(offset)))
		case decl.OpExpr:
			if op.Expr == nil {
				degrade(log, "action", a.Name, "expression op without expression")
				return "", false
			}
			if err := transpile.Validate(op.Expr); err != nil {
				degrade(log, "action", a.Name, err.Error())
				return "", false
			}
			parts = append(parts, op.Field+": "+transpile.Compile(op.Expr))
		default:
			degrade(log, "action", a.Name, "unknown operation kind")
			return "", false
		}
	}
	return "({ " + strings.Join(parts, ", ") + " })", true
}

// assemble wraps the generated functions with the module metadata and
// export list. Everything iterates in a deterministic order so the text,
// and therefore the content hash, is stable across builds.
func assemble(u *decl.Unit, g *graph.Graph, fns string, derives, actions []string) string {
	var b strings.Builder
	b.WriteString("// Code generated by mirage. DO NOT EDIT.\n")
	fmt.Fprintf(&b, "// unit: %s\n\n", u.Name)
	b.WriteString(fns)
	b.WriteByte('\n')

	var stateNames []string
	for _, f := range u.Fields() {
		if f.Kind == decl.KindState {
			stateNames = append(stateNames, f.Name)
		}
	}
	fmt.Fprintf(&b, "const __fields__ = %s;\n", jsStringArray(stateNames))

	b.WriteString("const __defaults__ = {\n")
	for _, f := range u.Fields() {
		if f.Kind != decl.KindState {
			continue
		}
		fmt.Fprintf(&b, "  %s: %s,\n", jsKey(f.Name), jsValue(f.Default))
	}
	b.WriteString("};\n")

	fmt.Fprintf(&b, "const __derives__ = %s;\n", jsStringArray(derives))

	b.WriteString("const __graph__ = {\n")
	for _, name := range g.Order() {
		fmt.Fprintf(&b, "  %s: %s,\n", jsKey(name), jsStringArray(g.Entry(name).Deps))
	}
	b.WriteString("};\n")

	b.WriteString("const __animated__ = [\n")
	for _, cfg := range u.AnimatedConfigs() {
		fmt.Fprintf(&b, "  { field: %s, phaseField: %s, async: %t, preserveDom: %t, duration: %d, type: %q },\n",
			jsValue(cfg.Field), jsValue(cfg.PhaseField()),
			cfg.AsyncCompanion != "", cfg.PreserveDomDuringExit,
			cfg.Duration.Milliseconds(), "transition")
	}
	b.WriteString("];\n\n")

	exports := make([]string, 0, len(derives)+len(actions)+5)
	exports = append(exports, derives...)
	exports = append(exports, actions...)
	exports = append(exports, "__fields__", "__defaults__", "__derives__", "__graph__", "__animated__")
	fmt.Fprintf(&b, "export { %s };\n", strings.Join(exports, ", "))
	return b.String()
}

func degrade(log *slog.Logger, kind, name, reason string) {
	log.Debug("excluded from optimistic generation", "kind", kind, "name", name, "reason", reason)
	metrics.RecordFieldDegraded()
}

func jsNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// jsKey renders an object key, quoting only when needed.
func jsKey(name string) string {
	if identRe.MatchString(name) {
		return name
	}
	return jsValue(name)
}

// jsValue renders any declared default as a JS literal. JSON is a strict
// subset of JS expression syntax here, so json.Marshal does the escaping.
func jsValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func jsStringArray(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = jsValue(n)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// SortModules orders modules by unit name, the order the writer and the
// manifest use.
func SortModules(mods []*Module) {
	sort.Slice(mods, func(i, j int) bool { return mods[i].Unit < mods[j].Unit })
}

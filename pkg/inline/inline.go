// Package inline expands references to named expression fragments by
// syntactic substitution, so both runtimes see a single self-contained
// expression with no shared-function dependency.
//
// A fragment is referenced like a builtin call; Expand replaces the call
// node with the fragment body, parameter references substituted with the
// actual argument trees, and repeats until no fragment calls remain. The
// result is re-rendered to source through expr.FromNode so the transpiler
// and the interpreter consume identical input.
package inline

import (
	"fmt"

	"github.com/mirageui/mirage/pkg/expr"
)

// MaxDepth bounds recursive expansion. A fragment set that still contains
// fragment calls after this many passes is (transitively) self-referential,
// which is a build error.
const MaxDepth = 32

// Fragment is one named expression fragment: the interchange record the
// authoring layer declares.
type Fragment struct {
	Name       string
	ParamNames []string
	Body       *expr.Rx
}

// Table maps name/arity to fragments. Lookup is by both name and arity, so
// get/2 and get/3 style overloads coexist.
type Table map[expr.Arity]*Fragment

// NewTable builds a table from fragments. Duplicate name/arity pairs are
// an error.
func NewTable(fragments ...*Fragment) (Table, error) {
	t := make(Table, len(fragments))
	for _, f := range fragments {
		key := expr.Arity{Name: f.Name, Count: len(f.ParamNames)}
		if _, exists := t[key]; exists {
			return nil, fmt.Errorf("inline: duplicate fragment %s/%d", f.Name, len(f.ParamNames))
		}
		t[key] = f
	}
	return t, nil
}

// Merge layers local over imported: local definitions win when both define
// the same name/arity.
func Merge(imported, local Table) Table {
	out := make(Table, len(imported)+len(local))
	for k, v := range imported {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}

// Expand substitutes fragment calls in rx until none remain and returns a
// fresh Rx with recomputed source and deps. Builtin calls are left alone.
// Exceeding MaxDepth returns an error identifying the fragment chain's
// entry point.
func Expand(rx *expr.Rx, table Table) (*expr.Rx, error) {
	if len(table) == 0 {
		return rx, nil
	}
	root, changed, err := expandNode(rx.Root, table, 0)
	if err != nil {
		return nil, err
	}
	if !changed {
		return rx, nil
	}
	return expr.FromNode(root), nil
}

func expandNode(n expr.Node, table Table, depth int) (expr.Node, bool, error) {
	if depth > MaxDepth {
		return nil, false, fmt.Errorf("inline: expansion depth exceeded %d; fragment set is recursive", MaxDepth)
	}

	switch t := n.(type) {
	case *expr.Call:
		args := make([]expr.Node, len(t.Args))
		changed := false
		for i, a := range t.Args {
			na, c, err := expandNode(a, table, depth)
			if err != nil {
				return nil, false, err
			}
			args[i] = na
			changed = changed || c
		}

		frag, ok := table[expr.Arity{Name: t.Name, Count: len(args)}]
		if !ok {
			if !changed {
				return t, false, nil
			}
			return &expr.Call{Name: t.Name, Args: args}, true, nil
		}

		bindings := make(map[string]expr.Node, len(frag.ParamNames))
		for i, p := range frag.ParamNames {
			bindings[p] = args[i]
		}
		body := substitute(frag.Body.Root, bindings)

		// The substituted body may itself reference fragments.
		out, _, err := expandNode(body, table, depth+1)
		if err != nil {
			return nil, false, fmt.Errorf("inline: expanding %s/%d: %w", t.Name, len(args), err)
		}
		return out, true, nil

	case *expr.List:
		items := make([]expr.Node, len(t.Items))
		changed := false
		for i, it := range t.Items {
			ni, c, err := expandNode(it, table, depth)
			if err != nil {
				return nil, false, err
			}
			items[i] = ni
			changed = changed || c
		}
		if !changed {
			return t, false, nil
		}
		return &expr.List{Items: items}, true, nil

	case *expr.Unary:
		x, c, err := expandNode(t.X, table, depth)
		if err != nil {
			return nil, false, err
		}
		if !c {
			return t, false, nil
		}
		return &expr.Unary{Op: t.Op, X: x}, true, nil

	case *expr.Binary:
		l, cl, err := expandNode(t.L, table, depth)
		if err != nil {
			return nil, false, err
		}
		r, cr, err := expandNode(t.R, table, depth)
		if err != nil {
			return nil, false, err
		}
		if !cl && !cr {
			return t, false, nil
		}
		return &expr.Binary{Op: t.Op, L: l, R: r}, true, nil

	case *expr.Cond:
		ifN, ci, err := expandNode(t.If, table, depth)
		if err != nil {
			return nil, false, err
		}
		thenN, ct, err := expandNode(t.Then, table, depth)
		if err != nil {
			return nil, false, err
		}
		var elseN expr.Node
		ce := false
		if t.Else != nil {
			elseN, ce, err = expandNode(t.Else, table, depth)
			if err != nil {
				return nil, false, err
			}
		}
		if !ci && !ct && !ce {
			return t, false, nil
		}
		return &expr.Cond{If: ifN, Then: thenN, Else: elseN}, true, nil

	case *expr.Lambda:
		body, c, err := expandNode(t.Body, table, depth)
		if err != nil {
			return nil, false, err
		}
		if !c {
			return t, false, nil
		}
		return &expr.Lambda{Param: t.Param, Body: body}, true, nil

	case *expr.Interp:
		parts := make([]expr.Node, len(t.Parts))
		changed := false
		for i, p := range t.Parts {
			np, c, err := expandNode(p, table, depth)
			if err != nil {
				return nil, false, err
			}
			parts[i] = np
			changed = changed || c
		}
		if !changed {
			return t, false, nil
		}
		return &expr.Interp{Parts: parts}, true, nil

	default:
		return n, false, nil
	}
}

// substitute replaces parameter identifiers with argument trees. Lambda
// parameters shadow fragment parameters of the same name.
func substitute(n expr.Node, bindings map[string]expr.Node) expr.Node {
	switch t := n.(type) {
	case *expr.Ident:
		if arg, ok := bindings[t.Name]; ok {
			return arg
		}
		return t
	case *expr.List:
		items := make([]expr.Node, len(t.Items))
		for i, it := range t.Items {
			items[i] = substitute(it, bindings)
		}
		return &expr.List{Items: items}
	case *expr.Unary:
		return &expr.Unary{Op: t.Op, X: substitute(t.X, bindings)}
	case *expr.Binary:
		return &expr.Binary{Op: t.Op, L: substitute(t.L, bindings), R: substitute(t.R, bindings)}
	case *expr.Cond:
		var elseN expr.Node
		if t.Else != nil {
			elseN = substitute(t.Else, bindings)
		}
		return &expr.Cond{If: substitute(t.If, bindings), Then: substitute(t.Then, bindings), Else: elseN}
	case *expr.Call:
		args := make([]expr.Node, len(t.Args))
		for i, a := range t.Args {
			args[i] = substitute(a, bindings)
		}
		return &expr.Call{Name: t.Name, Args: args}
	case *expr.Lambda:
		if _, shadowed := bindings[t.Param]; shadowed {
			inner := make(map[string]expr.Node, len(bindings)-1)
			for k, v := range bindings {
				if k != t.Param {
					inner[k] = v
				}
			}
			return &expr.Lambda{Param: t.Param, Body: substitute(t.Body, inner)}
		}
		return &expr.Lambda{Param: t.Param, Body: substitute(t.Body, bindings)}
	case *expr.Interp:
		parts := make([]expr.Node, len(t.Parts))
		for i, p := range t.Parts {
			parts[i] = substitute(p, bindings)
		}
		return &expr.Interp{Parts: parts}
	default:
		return n
	}
}

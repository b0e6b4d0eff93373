package decl

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/mirageui/mirage/internal/errors"
)

// UnitExt is the extension unit declaration files carry.
const UnitExt = ".ui.hcl"

// HCL schema for unit files. One file may declare several units.

type hclRoot struct {
	Units []hclUnit `hcl:"unit,block"`
}

type hclUnit struct {
	Name     string        `hcl:"name,label"`
	States   []hclState    `hcl:"state,block"`
	Deriveds []hclExprDecl `hcl:"derived,block"`
	Valids   []hclExprDecl `hcl:"validity,block"`
	Errors   []hclExprDecl `hcl:"error,block"`
	Funcs    []hclFunc     `hcl:"func,block"`
	Actions  []hclAction   `hcl:"action,block"`
	Animated []hclAnimated `hcl:"animated,block"`
}

type hclState struct {
	Name       string    `hcl:"name,label"`
	Default    cty.Value `hcl:"default,optional"`
	Optimistic bool      `hcl:"optimistic,optional"`
	Async      bool      `hcl:"async,optional"`
	Storage    string    `hcl:"storage,optional"`
}

type hclExprDecl struct {
	Name       string `hcl:"name,label"`
	Expr       string `hcl:"expr"`
	Optimistic bool   `hcl:"optimistic,optional"`
}

type hclFunc struct {
	Name   string   `hcl:"name,label"`
	Params []string `hcl:"params"`
	Expr   string   `hcl:"expr"`
}

type hclAction struct {
	Name     string     `hcl:"name,label"`
	Remote   bool       `hcl:"remote,optional"`
	Navigate bool       `hcl:"navigate,optional"`
	Sets     []hclSet   `hcl:"set,block"`
	Deltas   []hclDelta `hcl:"delta,block"`
}

type hclSet struct {
	Field string `hcl:"field"`
}

type hclDelta struct {
	Field string  `hcl:"field"`
	By    float64 `hcl:"by"`
}

type hclAnimated struct {
	Field          string `hcl:"field,label"`
	DurationMS     int64  `hcl:"duration_ms,optional"`
	AsyncCompanion string `hcl:"async_companion,optional"`
	PreserveDom    bool   `hcl:"preserve_dom_during_exit,optional"`
}

// LoadDir parses every *.ui.hcl file under dir into Units, sorted by unit
// name for determinism. Declaration order within a unit follows file
// order.
func LoadDir(dir string) ([]*Unit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New("E120").WithDetailf("reading %s", dir).Wrap(err)
	}

	var units []*Unit
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), UnitExt) {
			continue
		}
		loaded, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		units = append(units, loaded...)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units, nil
}

// LoadFile parses one unit declaration file.
func LoadFile(path string) ([]*Unit, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, errors.New("E120").WithDetail(diags.Error())
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, errors.New("E120").WithDetail(diags.Error())
	}

	units := make([]*Unit, 0, len(root.Units))
	for _, hu := range root.Units {
		u, err := buildUnit(hu)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

func exprOpts(d hclExprDecl) []FieldOption {
	if d.Optimistic {
		return []FieldOption{Optimistic()}
	}
	return nil
}

func buildUnit(hu hclUnit) (*Unit, error) {
	u := NewUnit(hu.Name)

	for _, s := range hu.States {
		def, err := ctyToGo(s.Default)
		if err != nil {
			return nil, errors.New("E120").WithUnit(hu.Name).WithField(s.Name).Wrap(err)
		}
		var opts []FieldOption
		if s.Optimistic {
			opts = append(opts, Optimistic())
		}
		if s.Async {
			opts = append(opts, Async())
		}
		switch s.Storage {
		case "", "ephemeral":
		case "persistent":
			opts = append(opts, PersistentClient())
		case "url":
			opts = append(opts, URLTier())
		default:
			return nil, errors.New("E120").WithUnit(hu.Name).WithField(s.Name).
				WithDetailf("unknown storage tier %q", s.Storage)
		}
		u.State(s.Name, def, opts...)
	}

	for _, d := range hu.Deriveds {
		u.Derived(d.Name, d.Expr, exprOpts(d)...)
	}
	for _, v := range hu.Valids {
		u.Validity(v.Name, v.Expr, exprOpts(v)...)
	}
	for _, e := range hu.Errors {
		u.ErrorField(e.Name, e.Expr, exprOpts(e)...)
	}
	for _, f := range hu.Funcs {
		u.Func(f.Name, f.Params, f.Expr)
	}

	for _, a := range hu.Actions {
		action := Action{Name: a.Name, Remote: a.Remote, Navigates: a.Navigate}
		for _, s := range a.Sets {
			action.Ops = append(action.Ops, Op{Field: s.Field, Kind: OpSet})
		}
		for _, d := range a.Deltas {
			action.Ops = append(action.Ops, Op{Field: d.Field, Kind: OpDelta, By: d.By})
		}
		u.Action(action)
	}

	for _, an := range hu.Animated {
		u.Animated(AnimatedConfig{
			Field:                 an.Field,
			AsyncCompanion:        an.AsyncCompanion,
			PreserveDomDuringExit: an.PreserveDom,
			Duration:              time.Duration(an.DurationMS) * time.Millisecond,
		})
	}

	return u, u.Err()
}

// ctyToGo converts an HCL attribute value to the engine's runtime value
// space (nil, float64, string, bool, []any, map[string]any).
func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() || v == cty.NilVal {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := []any{}
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := map[string]any{}
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out[kv.AsString()] = gv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decl: unsupported default value type %s", ty.FriendlyName())
	}
}

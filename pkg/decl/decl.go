// Package decl is the explicit registry the authoring layer populates with
// one unit's reactive declarations: state, derived, validity and error
// fields, actions, named expression fragments, and animated-field
// configurations. A populated Unit is ordinary data handed to the graph
// builder and the artifact generator; nothing accumulates implicitly.
package decl

import (
	"strings"
	"time"

	"github.com/mirageui/mirage/internal/errors"
	"github.com/mirageui/mirage/pkg/expr"
	"github.com/mirageui/mirage/pkg/inline"
)

// Kind classifies a reactive field.
type Kind int

const (
	KindState Kind = iota
	KindDerived
	KindValidity
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindDerived:
		return "derived"
	case KindValidity:
		return "validity"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// StorageTier is where a state field's value lives between sessions.
type StorageTier int

const (
	TierEphemeral StorageTier = iota
	TierPersistentClient
	TierURL
)

// Field is one declared reactive field. State fields may lack an
// expression (externally mutated); derived, validity and error fields
// always carry one.
type Field struct {
	Name       string
	Kind       Kind
	Tier       StorageTier
	Default    any
	Optimistic bool
	Async      bool
	Expr       *expr.Rx

	// DeclIndex is the declaration position inside the unit, used as the
	// deterministic tie-break in recomputation order.
	DeclIndex int
}

// OpKind classifies one action operation.
type OpKind int

const (
	// OpSet assigns the action's input value to the field.
	OpSet OpKind = iota
	// OpDelta adds a declared constant to the field. This is the explicit
	// tag that makes an additive update generatable without probing.
	OpDelta
	// OpUpdate transforms the field through a Go function. Generation
	// probes the function for a constant additive offset and fails closed.
	OpUpdate
	// OpExpr assigns the result of a whitelisted expression.
	OpExpr
)

// Op is a single state mutation inside an action.
type Op struct {
	Field string
	Kind  OpKind
	By    float64       // OpDelta
	Fn    func(any) any // OpUpdate
	Expr  *expr.Rx      // OpExpr
}

// Action is a named user action. Remote and Navigates mark side effects
// that disqualify it from optimistic generation.
type Action struct {
	Name      string
	Ops       []Op
	Remote    bool
	Navigates bool
}

// AnimatedConfig configures one animatable field. The graph builder
// derives two companion entries mechanically, "<field>Phase" and
// "<field>Ghost"; neither is declared by hand.
type AnimatedConfig struct {
	Field                 string
	AsyncCompanion        string
	PreserveDomDuringExit bool
	Duration              time.Duration
}

// PhaseField returns the name of the mechanically derived phase field.
func (c AnimatedConfig) PhaseField() string {
	return c.Field + "Phase"
}

// GhostField returns the name of the mechanically derived ghost field,
// which holds the retained exit content while the phase is exiting.
func (c AnimatedConfig) GhostField() string {
	return c.Field + "Ghost"
}

// Unit is one authoring unit's complete declaration set. Populate it with
// the chained methods, then check Err before handing it to the pipeline.
type Unit struct {
	Name string

	fields    []Field
	actions   []Action
	fragments []*inline.Fragment
	animated  []AnimatedConfig

	err error
}

// NewUnit creates an empty unit.
func NewUnit(name string) *Unit {
	return &Unit{Name: name}
}

// FieldOption configures a field declaration.
type FieldOption func(*Field)

// Optimistic marks the field eligible for optimistic client updates.
func Optimistic() FieldOption {
	return func(f *Field) { f.Optimistic = true }
}

// Async marks the field's value as arriving asynchronously.
func Async() FieldOption {
	return func(f *Field) { f.Async = true }
}

// PersistentClient stores the field in client-persistent storage.
func PersistentClient() FieldOption {
	return func(f *Field) { f.Tier = TierPersistentClient }
}

// URLTier stores the field in the URL.
func URLTier() FieldOption {
	return func(f *Field) { f.Tier = TierURL }
}

// State declares an externally mutated state field.
func (u *Unit) State(name string, def any, opts ...FieldOption) *Unit {
	f := Field{Name: name, Kind: KindState, Default: def}
	for _, opt := range opts {
		opt(&f)
	}
	u.addField(f)
	return u
}

// Derived declares a calculated field from expression source.
func (u *Unit) Derived(name, source string, opts ...FieldOption) *Unit {
	u.addExprField(name, KindDerived, source, opts)
	return u
}

// Validity declares a boolean validity field from expression source.
func (u *Unit) Validity(name, source string, opts ...FieldOption) *Unit {
	u.addExprField(name, KindValidity, source, opts)
	return u
}

// ErrorField declares an error-message field from expression source.
func (u *Unit) ErrorField(name, source string, opts ...FieldOption) *Unit {
	u.addExprField(name, KindError, source, opts)
	return u
}

func (u *Unit) addExprField(name string, kind Kind, source string, opts []FieldOption) {
	if u.err != nil {
		return
	}
	if strings.TrimSpace(source) == "" {
		u.err = errors.New("E122").WithUnit(u.Name).WithField(name)
		return
	}
	rx, err := expr.Parse(source)
	if err != nil {
		u.err = errors.New("E110").WithUnit(u.Name).WithField(name).Wrap(err)
		return
	}
	f := Field{Name: name, Kind: kind, Expr: rx}
	for _, opt := range opts {
		opt(&f)
	}
	u.addField(f)
}

func (u *Unit) addField(f Field) {
	if u.err != nil {
		return
	}
	for _, existing := range u.fields {
		if existing.Name == f.Name {
			u.err = errors.New("E121").WithUnit(u.Name).WithField(f.Name)
			return
		}
	}
	f.DeclIndex = len(u.fields)
	u.fields = append(u.fields, f)
}

// Func declares a named expression fragment available for inlining.
func (u *Unit) Func(name string, params []string, source string) *Unit {
	if u.err != nil {
		return u
	}
	rx, err := expr.Parse(source)
	if err != nil {
		u.err = errors.New("E110").WithUnit(u.Name).WithField(name).Wrap(err)
		return u
	}
	u.fragments = append(u.fragments, &inline.Fragment{Name: name, ParamNames: params, Body: rx})
	return u
}

// Action declares a user action.
func (u *Unit) Action(a Action) *Unit {
	if u.err != nil {
		return u
	}
	u.actions = append(u.actions, a)
	return u
}

// Animated configures an animatable field. The field must already be
// declared.
func (u *Unit) Animated(cfg AnimatedConfig) *Unit {
	if u.err != nil {
		return u
	}
	if u.FieldByName(cfg.Field) == nil {
		u.err = errors.New("E123").WithUnit(u.Name).WithField(cfg.Field)
		return u
	}
	u.animated = append(u.animated, cfg)
	return u
}

// Err returns the first declaration error, if any.
func (u *Unit) Err() error { return u.err }

// Fields returns the declared fields in declaration order.
func (u *Unit) Fields() []Field { return u.fields }

// Actions returns the declared actions.
func (u *Unit) Actions() []Action { return u.actions }

// AnimatedConfigs returns the animated-field configurations.
func (u *Unit) AnimatedConfigs() []AnimatedConfig { return u.animated }

// Fragments returns the unit's named expression fragments.
func (u *Unit) Fragments() []*inline.Fragment { return u.fragments }

// FieldByName returns the named field, or nil.
func (u *Unit) FieldByName(name string) *Field {
	for i := range u.fields {
		if u.fields[i].Name == name {
			return &u.fields[i]
		}
	}
	return nil
}

// Resolve expands every field and action expression through the unit's
// fragments layered over imported, returning the unit ready for graph
// building. Local fragments take precedence over imported ones on
// name/arity collision.
func (u *Unit) Resolve(imported inline.Table) error {
	if u.err != nil {
		return u.err
	}
	local, err := inline.NewTable(u.fragments...)
	if err != nil {
		u.err = errors.New("E120").WithUnit(u.Name).Wrap(err)
		return u.err
	}
	table := inline.Merge(imported, local)

	for i := range u.fields {
		if u.fields[i].Expr == nil {
			continue
		}
		expanded, err := inline.Expand(u.fields[i].Expr, table)
		if err != nil {
			u.err = errors.New("E103").WithUnit(u.Name).WithField(u.fields[i].Name).Wrap(err)
			return u.err
		}
		u.fields[i].Expr = expanded
	}
	for i := range u.actions {
		for j := range u.actions[i].Ops {
			op := &u.actions[i].Ops[j]
			if op.Expr == nil {
				continue
			}
			expanded, err := inline.Expand(op.Expr, table)
			if err != nil {
				u.err = errors.New("E103").WithUnit(u.Name).WithField(u.actions[i].Name).Wrap(err)
				return u.err
			}
			op.Expr = expanded
		}
	}
	return nil
}

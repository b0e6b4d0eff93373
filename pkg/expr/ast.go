package expr

// Node is a parsed expression tree node.
type Node interface {
	node()
}

// Num is a numeric literal. All numbers are float64 to mirror the client
// runtime's single number type.
type Num struct {
	Val float64
}

// Str is a string literal with no embedded interpolation.
type Str struct {
	Val string
}

// Bool is a boolean literal.
type Bool struct {
	Val bool
}

// Null is the null literal. Elseless conditionals also evaluate to it.
type Null struct{}

// List is a literal list, e.g. ["a", "b", "c"].
type List struct {
	Items []Node
}

// FieldRef reads a reactive field, written @name in source.
type FieldRef struct {
	Name string
}

// Ident is a bare identifier: a lambda parameter or an inlinable-fragment
// parameter awaiting substitution. Free identifiers fail validation.
type Ident struct {
	Name string
}

// Unary is a prefix operation: "-" or "not".
type Unary struct {
	Op string
	X  Node
}

// Binary is an infix operation. Symbolic boolean operators are unified to
// "and"/"or" at parse time, so Op is one of:
// + - * / == != < <= > >= and or
type Binary struct {
	Op   string
	L, R Node
}

// Cond is the conditional. Else may be nil (evaluates to null).
// The ternary form cond ? a : b parses to the same node.
type Cond struct {
	If   Node
	Then Node
	Else Node
}

// Call invokes a builtin or an inlinable fragment by name.
// Pipe chains are desugared into nested Calls during parsing, with the
// piped value inserted as the first argument.
type Call struct {
	Name string
	Args []Node
}

// Lambda is a single-parameter inline function, written fn x -> body.
// Only valid as an argument to the collection builtins.
type Lambda struct {
	Param string
	Body  Node
}

// Interp is an interpolated string: alternating Str and embedded
// expression parts, concatenated at evaluation time.
type Interp struct {
	Parts []Node
}

func (*Num) node()      {}
func (*Str) node()      {}
func (*Bool) node()     {}
func (*Null) node()     {}
func (*List) node()     {}
func (*FieldRef) node() {}
func (*Ident) node()    {}
func (*Unary) node()    {}
func (*Binary) node()   {}
func (*Cond) node()     {}
func (*Call) node()     {}
func (*Lambda) node()   {}
func (*Interp) node()   {}

// Walk calls fn for every node in the tree rooted at n, parent before
// children. fn returning false prunes the subtree.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch t := n.(type) {
	case *List:
		for _, it := range t.Items {
			Walk(it, fn)
		}
	case *Unary:
		Walk(t.X, fn)
	case *Binary:
		Walk(t.L, fn)
		Walk(t.R, fn)
	case *Cond:
		Walk(t.If, fn)
		Walk(t.Then, fn)
		Walk(t.Else, fn)
	case *Call:
		for _, a := range t.Args {
			Walk(a, fn)
		}
	case *Lambda:
		Walk(t.Body, fn)
	case *Interp:
		for _, p := range t.Parts {
			Walk(p, fn)
		}
	}
}

// depsOf extracts the field names read by the tree, first-seen order,
// deduplicated.
func depsOf(n Node) []string {
	var deps []string
	seen := map[string]bool{}
	Walk(n, func(n Node) bool {
		if f, ok := n.(*FieldRef); ok && !seen[f.Name] {
			seen[f.Name] = true
			deps = append(deps, f.Name)
		}
		return true
	})
	return deps
}

package expr

import (
	"reflect"
	"strings"
	"testing"
)

func mustParse(t *testing.T, source string) *Rx {
	t.Helper()
	rx, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse(%q): %v", source, err)
	}
	return rx
}

func TestParseDeps(t *testing.T) {
	tests := []struct {
		source string
		want   []string
	}{
		{"@a + @b * @c", []string{"a", "b", "c"}},
		{"@a + @a + @b", []string{"a", "b"}},
		{"1 + 2", nil},
		{`"total: {@price * @qty}"`, []string{"price", "qty"}},
		{"if @open then @items else []", []string{"open", "items"}},
	}
	for _, tt := range tests {
		rx := mustParse(t, tt.source)
		if !reflect.DeepEqual(rx.Deps, tt.want) {
			t.Errorf("Parse(%q).Deps = %v, want %v", tt.source, rx.Deps, tt.want)
		}
	}
}

func TestParsePrecedence(t *testing.T) {
	// * binds tighter than +, so the root must be the addition.
	rx := mustParse(t, "@a + @b * @c")
	add, ok := rx.Root.(*Binary)
	if !ok || add.Op != "+" {
		t.Fatalf("root = %#v, want + binary", rx.Root)
	}
	mul, ok := add.R.(*Binary)
	if !ok || mul.Op != "*" {
		t.Fatalf("right of + = %#v, want * binary", add.R)
	}
}

func TestParseNormalizesBooleanOps(t *testing.T) {
	for _, source := range []string{"@a && @b", "@a and @b"} {
		rx := mustParse(t, source)
		b, ok := rx.Root.(*Binary)
		if !ok || b.Op != "and" {
			t.Errorf("Parse(%q) root op = %#v, want and", source, rx.Root)
		}
	}
	rx := mustParse(t, "@a || @b")
	if b, ok := rx.Root.(*Binary); !ok || b.Op != "or" {
		t.Errorf("Parse(%q) root = %#v, want or binary", "@a || @b", rx.Root)
	}
}

func TestParsePipeDesugars(t *testing.T) {
	tests := []struct {
		source string
		want   string // canonical printed form
	}{
		{"@s |> trim()", "trim(@s)"},
		{"@s |> trim() |> upper()", "upper(trim(@s))"},
		{"@s |> slice(1, 3)", "slice(@s, 1, 3)"},
		{"@s |> trim", "trim(@s)"},
	}
	for _, tt := range tests {
		rx := mustParse(t, tt.source)
		if got := Print(rx.Root); got != tt.want {
			t.Errorf("Parse(%q) printed = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestParsePipePrecedence(t *testing.T) {
	// Pipe binds tighter than comparison: the whole chain is the left
	// operand of >.
	rx := mustParse(t, "@s |> trim() |> length() > 3")
	cmp, ok := rx.Root.(*Binary)
	if !ok || cmp.Op != ">" {
		t.Fatalf("root = %#v, want > binary", rx.Root)
	}
	if got := Print(cmp.L); got != "length(trim(@s))" {
		t.Errorf("left of > = %q, want length(trim(@s))", got)
	}
}

func TestParseTernaryAndIfAgree(t *testing.T) {
	a := mustParse(t, "@ok ? 1 : 2")
	b := mustParse(t, "if @ok then 1 else 2")
	if Print(a.Root) != Print(b.Root) {
		t.Errorf("ternary %q and if %q normalize differently", Print(a.Root), Print(b.Root))
	}
}

func TestParseElselessIf(t *testing.T) {
	rx := mustParse(t, "if @ok then 1")
	cond, ok := rx.Root.(*Cond)
	if !ok {
		t.Fatalf("root = %#v, want Cond", rx.Root)
	}
	if cond.Else != nil {
		t.Errorf("elseless if has Else = %#v, want nil", cond.Else)
	}
}

func TestParseInterpolation(t *testing.T) {
	rx := mustParse(t, `"Hello {@name}!"`)
	in, ok := rx.Root.(*Interp)
	if !ok {
		t.Fatalf("root = %#v, want Interp", rx.Root)
	}
	if len(in.Parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(in.Parts))
	}

	// A lone embed is still an interpolation: the result is stringified.
	rx = mustParse(t, `"{@count}"`)
	if _, ok := rx.Root.(*Interp); !ok {
		t.Errorf("single-embed literal = %#v, want Interp", rx.Root)
	}

	// Escaped braces stay literal.
	rx = mustParse(t, `"a \{b\} c"`)
	str, ok := rx.Root.(*Str)
	if !ok || str.Val != "a {b} c" {
		t.Errorf("escaped braces = %#v, want Str \"a {b} c\"", rx.Root)
	}
}

func TestParseLambdaOnlyInCalls(t *testing.T) {
	rx := mustParse(t, "filter(@items, fn x -> x > 2)")
	call, ok := rx.Root.(*Call)
	if !ok || call.Name != "filter" {
		t.Fatalf("root = %#v, want filter call", rx.Root)
	}
	if _, ok := call.Args[1].(*Lambda); !ok {
		t.Errorf("second arg = %#v, want Lambda", call.Args[1])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		source  string
		wantSub string
	}{
		{"@a +", "unexpected"},
		{"(1 + 2", "')'"},
		{"if @a then", "unexpected"},
		{"if @a 1", "'then'"},
		{"@a ? 1", "':'"},
		{`"bad {@a"`, "interpolation"},
		{"1 2", "after expression"},
		{"[1, 2", "']'"},
		{"@a |> 3", "function call"},
	}
	for _, tt := range tests {
		_, err := Parse(tt.source)
		if err == nil {
			t.Errorf("Parse(%q) succeeded, want error", tt.source)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantSub) {
			t.Errorf("Parse(%q) error = %q, want mention of %q", tt.source, err, tt.wantSub)
		}
	}
}

func TestPrintRoundTrip(t *testing.T) {
	sources := []string{
		"@a + @b * @c",
		"not (@a and @b) or @c",
		"if @open then @total else 0",
		`"Hi {@name}, you have {@count} items"`,
		"filter(@items, fn x -> x > 2)",
		"@s |> trim() |> upper()",
		"[1, 2, @x]",
		"-@n",
		`slice("héllo", 1, 3)`,
		// Embeds carrying string literals of their own.
		`"{startsWith(@s, "a")}"`,
		`"tag: {replace(@s, "[\{\}]", "_")} done"`,
		`"{if @ok then "yes" else "no"}!"`,
	}
	for _, source := range sources {
		first := mustParse(t, source)
		second := mustParse(t, Print(first.Root))
		if got, want := Print(second.Root), Print(first.Root); got != want {
			t.Errorf("round trip %q: reprinted %q, want %q", source, got, want)
		}
		if !reflect.DeepEqual(second.Deps, first.Deps) {
			t.Errorf("round trip %q: deps %v, want %v", source, second.Deps, first.Deps)
		}
	}
}

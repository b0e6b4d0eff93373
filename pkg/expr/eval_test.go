package expr

import (
	"math"
	"reflect"
	"testing"
)

func evalSource(t *testing.T, source string, env Env) any {
	t.Helper()
	rx := mustParse(t, source)
	v, err := Eval(rx, env)
	if err != nil {
		t.Fatalf("Eval(%q): %v", source, err)
	}
	return v
}

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		source string
		env    Env
		want   any
	}{
		{"@a + @b * @c", Env{"a": 1.0, "b": 2.0, "c": 3.0}, 7.0},
		{"(@a + @b) * @c", Env{"a": 1.0, "b": 2.0, "c": 3.0}, 9.0},
		{"10 / 4", nil, 2.5},
		{"-@n", Env{"n": 5.0}, -5.0},
		{"@n - 1", Env{"n": 0.5}, -0.5},
		{"true + 1", nil, 2.0},
		{"null + 1", nil, 1.0},
	}
	for _, tt := range tests {
		if got := evalSource(t, tt.source, tt.env); got != tt.want {
			t.Errorf("Eval(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	if got := evalSource(t, "1 / 0", nil); !math.IsInf(got.(float64), 1) {
		t.Errorf("1/0 = %v, want +Inf", got)
	}
	if got := evalSource(t, "0 / 0", nil); !math.IsNaN(got.(float64)) {
		t.Errorf("0/0 = %v, want NaN", got)
	}
}

func TestEvalStringConcat(t *testing.T) {
	tests := []struct {
		source string
		env    Env
		want   string
	}{
		{`"a" + "b"`, nil, "ab"},
		{`"n=" + 3`, nil, "n=3"},
		{`"v=" + null`, nil, "v=null"},
		{`"x=" + 1.5`, nil, "x=1.5"},
		{`@l + ""`, Env{"l": []any{1.0, 2.0}}, "1,2"},
	}
	for _, tt := range tests {
		if got := evalSource(t, tt.source, tt.env); got != tt.want {
			t.Errorf("Eval(%q) = %#v, want %q", tt.source, got, tt.want)
		}
	}
}

func TestEvalStrictEquality(t *testing.T) {
	tests := []struct {
		source string
		env    Env
		want   bool
	}{
		{`1 == 1`, nil, true},
		{`"1" == 1`, nil, false},
		{`null == null`, nil, true},
		{`null == 0`, nil, false},
		{`true == 1`, nil, false},
		{`@a == @a`, Env{"a": []any{1.0}}, false}, // non-primitives never equal
		{`"a" != "b"`, nil, true},
	}
	for _, tt := range tests {
		if got := evalSource(t, tt.source, tt.env); got != tt.want {
			t.Errorf("Eval(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestEvalBooleanReturnsDecidingOperand(t *testing.T) {
	// and/or return the operand that decided, not a coerced bool.
	if got := evalSource(t, `@a or "fallback"`, Env{"a": ""}); got != "fallback" {
		t.Errorf("or = %#v, want fallback", got)
	}
	if got := evalSource(t, `@a and @b`, Env{"a": 1.0, "b": "yes"}); got != "yes" {
		t.Errorf("and = %#v, want yes", got)
	}
	if got := evalSource(t, `@a and @b`, Env{"a": 0.0, "b": "yes"}); got != 0.0 {
		t.Errorf("and = %#v, want 0 (short-circuit)", got)
	}
}

func TestEvalConditional(t *testing.T) {
	if got := evalSource(t, "if @open then 1 else 2", Env{"open": true}); got != 1.0 {
		t.Errorf("if = %v, want 1", got)
	}
	if got := evalSource(t, "if @open then 1", Env{"open": false}); got != nil {
		t.Errorf("elseless if on false = %#v, want null", got)
	}
}

func TestEvalStringBuiltins(t *testing.T) {
	tests := []struct {
		source string
		env    Env
		want   any
	}{
		{`length("héllo")`, nil, 5.0},
		{`trim("  hi  ")`, nil, "hi"},
		{`upper("hi")`, nil, "HI"},
		{`lower("HI")`, nil, "hi"},
		{`contains("Hello World", "WORLD")`, nil, true},
		{`startsWith("hello", "he")`, nil, true},
		{`endsWith("hello", "lo")`, nil, true},
		{`slice("hello", 1, 3)`, nil, "el"},
		{`slice("hello", -3)`, nil, "llo"},
		{`slice("hello", 2, 100)`, nil, "llo"},
		{`replace("a-b-c", "-", "+")`, nil, "a+b+c"},
		{`matches("abc123", "^[a-z]+[0-9]+$")`, nil, true},
		{`humanize("first_name")`, nil, "First name"},
	}
	for _, tt := range tests {
		if got := evalSource(t, tt.source, tt.env); got != tt.want {
			t.Errorf("Eval(%q) = %#v, want %#v", tt.source, got, tt.want)
		}
	}
}

func TestEvalStringCoercionMatchesClient(t *testing.T) {
	// ("" + v) edges where the client runtime's stringification is easy
	// to get wrong: Infinity spelling, null elements inside arrays, and
	// plain objects.
	tests := []struct {
		source string
		env    Env
		want   any
	}{
		{`"" + 1 / 0`, nil, "Infinity"},
		{`"" + -1 / 0`, nil, "-Infinity"},
		{`@l + ""`, Env{"l": []any{nil, 1.0}}, ",1"},
		{`@m + ""`, Env{"m": map[string]any{"a": 1.0}}, "[object Object]"},
		// join spells null out, unlike bare concatenation.
		{`join(@l, "-")`, Env{"l": []any{nil, 1.0}}, "null-1"},
	}
	for _, tt := range tests {
		if got := evalSource(t, tt.source, tt.env); got != tt.want {
			t.Errorf("Eval(%q) = %#v, want %#v", tt.source, got, tt.want)
		}
	}
}

func TestEvalSliceUsesCodeUnits(t *testing.T) {
	// length and slice must agree on UTF-16 code units: "😀" occupies two.
	env := Env{"s": "a😀b"}
	tests := []struct {
		source string
		want   any
	}{
		{`length(@s)`, 4.0},
		{`slice(@s, 0, 1)`, "a"},
		{`slice(@s, 1, 3)`, "😀"},
		{`slice(@s, 3)`, "b"},
	}
	for _, tt := range tests {
		if got := evalSource(t, tt.source, env); got != tt.want {
			t.Errorf("Eval(%q) = %#v, want %#v", tt.source, got, tt.want)
		}
	}
}

func TestEvalListBuiltins(t *testing.T) {
	items := Env{"items": []any{1.0, 2.0, 3.0, 4.0}}

	tests := []struct {
		source string
		want   any
	}{
		{`count(@items)`, 4.0},
		{`join(@items, "-")`, "1-2-3-4"},
		{`member(3, @items)`, true},
		{`member(9, @items)`, false},
		{`member(2, [1, 2, 3])`, true},
		{`map(@items, fn x -> x * 2)`, []any{2.0, 4.0, 6.0, 8.0}},
		{`filter(@items, fn x -> x > 2)`, []any{3.0, 4.0}},
		{`reject(@items, fn x -> x > 2)`, []any{1.0, 2.0}},
		{`concat([1], [2, 3])`, []any{1.0, 2.0, 3.0}},
		{`slice(@items, 1, 3)`, []any{2.0, 3.0}},
		{`filter([], fn x -> x)`, []any{}},
	}
	for _, tt := range tests {
		got := evalSource(t, tt.source, items)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Eval(%q) = %#v, want %#v", tt.source, got, tt.want)
		}
	}
}

func TestEvalLookups(t *testing.T) {
	env := Env{
		"user": map[string]any{
			"name":    "Ada",
			"address": map[string]any{"city": "London"},
		},
	}

	tests := []struct {
		source string
		want   any
	}{
		{`get(@user, "name")`, "Ada"},
		{`get(@user, "missing")`, nil},
		{`get(@user, "missing", "n/a")`, "n/a"},
		{`getIn(@user, ["address", "city"])`, "London"},
		{`getIn(@user, ["address", "zip"])`, nil},
		{`isNil(@missing)`, true},
		{`isNil(@user)`, false},
	}
	for _, tt := range tests {
		if got := evalSource(t, tt.source, env); got != tt.want {
			t.Errorf("Eval(%q) = %#v, want %#v", tt.source, got, tt.want)
		}
	}
}

func TestEvalInterpolation(t *testing.T) {
	env := Env{"name": "Ada", "count": 3.0}
	if got := evalSource(t, `"Hi {@name}, {@count} new"`, env); got != "Hi Ada, 3 new" {
		t.Errorf("interpolation = %#v", got)
	}
	if got := evalSource(t, `"{@count}"`, env); got != "3" {
		t.Errorf("single embed = %#v, want stringified", got)
	}
}

func TestEvalErrorBoundary(t *testing.T) {
	// Conversion failures are computed values, never Go errors.
	v := evalSource(t, `toNumber("abc")`, nil)
	if !IsErr(v) {
		t.Fatalf("toNumber(abc) = %#v, want error sentinel", v)
	}

	// The sentinel behaves like NaN downstream.
	if got := evalSource(t, `toNumber("abc") + 1`, nil); !math.IsNaN(got.(float64)) {
		t.Errorf("sentinel + 1 = %v, want NaN", got)
	}
	if got := evalSource(t, `toNumber("abc") == toNumber("abc")`, nil); got != false {
		t.Errorf("sentinel == sentinel = %v, want false", got)
	}
	if got := evalSource(t, `if toNumber("abc") then 1 else 2`, nil); got != 2.0 {
		t.Errorf("sentinel truthiness chose %v, want else branch", got)
	}
	if got := evalSource(t, `"v=" + toNumber("abc")`, nil); got != "v=NaN" {
		t.Errorf("sentinel stringifies as %#v, want v=NaN", got)
	}

	if got := evalSource(t, `toNumber("42.5")`, nil); got != 42.5 {
		t.Errorf("toNumber(42.5) = %#v", got)
	}
	if v := evalSource(t, `length(@missing)`, nil); !IsErr(v) {
		t.Errorf("length(null) = %#v, want error sentinel", v)
	}
}

func TestEvalValidators(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{`validCardNumber("4539 1488 0343 6467")`, true},
		{`validCardNumber("4539-1488-0343-6467")`, true},
		{`validCardNumber("4539 1488 0343 6468")`, false}, // checksum off by one
		{`validCardNumber("123")`, false},                 // too short
		{`validCardNumber("4539x1488")`, false},           // bad separator
	}
	for _, tt := range tests {
		if got := evalSource(t, tt.source, nil); got != tt.want {
			t.Errorf("Eval(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestEvalComparisons(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{`2 < 10`, true},
		{`"2" < "10"`, false}, // both strings compare lexicographically
		{`"a" < "b"`, true},
		{`"2" < 10`, true}, // mixed coerces numeric
		{`0 / 0 < 1`, false},
		{`0 / 0 >= 0`, false},
	}
	for _, tt := range tests {
		if got := evalSource(t, tt.source, nil); got != tt.want {
			t.Errorf("Eval(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestEvalStructuralErrors(t *testing.T) {
	// Unknown functions and unbound identifiers are defects in the
	// declaration, reported as Go errors.
	for _, source := range []string{
		"nosuch(@a)",
		"length(@a, @b, @c)",
		"x + 1",
	} {
		rx := mustParse(t, source)
		if _, err := Eval(rx, nil); err == nil {
			t.Errorf("Eval(%q) succeeded, want error", source)
		}
	}
}

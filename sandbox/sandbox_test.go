package sandbox

import (
	"strings"
	"testing"

	"github.com/deobjs/restringer/cache"
)

func newTestSandbox() *Sandbox {
	return New(cache.New())
}

func TestEvaluateArithmetic(t *testing.T) {
	s := newTestSandbox()
	res := s.Evaluate("5 + 3 * 2")
	if res == BadValue {
		t.Fatal("arithmetic fragment rejected")
	}
	if res.Src != "11" {
		t.Errorf("result = %q, want 11", res.Src)
	}
}

func TestEvaluateArrayLength(t *testing.T) {
	s := newTestSandbox()
	res := s.Evaluate("[1,2,3].length")
	if res == BadValue {
		t.Fatal("array length fragment rejected")
	}
	if res.Src != "3" {
		t.Errorf("result = %q, want 3", res.Src)
	}
}

func TestEvaluateString(t *testing.T) {
	s := newTestSandbox()
	res := s.Evaluate("'de' + 'ob'")
	if res == BadValue {
		t.Fatal("string concat rejected")
	}
	if res.Src != `"deob"` {
		t.Errorf("result = %q, want %q", res.Src, `"deob"`)
	}
}

func TestEvaluateTrapNeutralized(t *testing.T) {
	s := newTestSandbox()
	res := s.Evaluate("while(true) {}; 'safe'")
	if res == BadValue {
		t.Fatal("neutralizable trap still rejected")
	}
	if res.Src != `"safe"` {
		t.Errorf("result = %q, want %q", res.Src, `"safe"`)
	}
}

func TestEvaluateNonDeterministicSources(t *testing.T) {
	s := newTestSandbox()
	if res := s.Evaluate("Math.random()"); res != BadValue {
		t.Errorf("Math.random() = %q, want BadValue", res.Src)
	}
	if res := s.Evaluate("Date.now()"); res != BadValue {
		t.Errorf("Date.now() = %q, want BadValue", res.Src)
	}
}

func TestEvaluateDeterminism(t *testing.T) {
	s := newTestSandbox()
	a := s.Evaluate("(function() { return 6 * 7; })()")
	b := s.Evaluate("(function() { return 6 * 7; })()")
	if a == BadValue || b == BadValue {
		t.Fatal("deterministic fragment rejected")
	}
	if a.Src != b.Src {
		t.Errorf("results differ: %q vs %q", a.Src, b.Src)
	}
}

func TestEvaluateBlockedGlobals(t *testing.T) {
	s := newTestSandbox()
	if res := s.Evaluate("fetch('http://example.com')"); res != BadValue {
		t.Errorf("fetch should be unavailable, got %q", res.Src)
	}
	if res := s.Evaluate("typeof process"); res == BadValue || res.Src != `"undefined"` {
		t.Error("process should read as undefined")
	}
}

func TestEvaluateObjectsAndArrays(t *testing.T) {
	s := newTestSandbox()

	res := s.Evaluate("({a: 1, b: [2, 'x']})")
	if res == BadValue {
		t.Fatal("structured value rejected")
	}
	if !strings.Contains(res.Src, `"a": 1`) || !strings.Contains(res.Src, `"x"`) {
		t.Errorf("unexpected rendering: %q", res.Src)
	}
}

func TestEvaluateSpecialNumbers(t *testing.T) {
	s := newTestSandbox()

	cases := map[string]string{
		"-3":   "-3",
		"1/0":  "Infinity",
		"-1/0": "-Infinity",
		"0/0":  "NaN",
		"-1*0": "-0",
	}
	for fragment, want := range cases {
		res := s.Evaluate(fragment)
		if res == BadValue {
			t.Errorf("%s rejected", fragment)
			continue
		}
		if res.Src != want {
			t.Errorf("%s = %q, want %q", fragment, res.Src, want)
		}
	}
}

func TestEvaluateSymbols(t *testing.T) {
	s := newTestSandbox()

	cases := map[string]string{
		"Symbol('tag')": `Symbol("tag")`,
		"Symbol()":      "Symbol()",
	}
	for fragment, want := range cases {
		res := s.Evaluate(fragment)
		if res == BadValue {
			t.Errorf("%s rejected", fragment)
			continue
		}
		if res.Src != want {
			t.Errorf("%s = %q, want %q", fragment, res.Src, want)
		}
	}
}

func TestEvaluateRegExp(t *testing.T) {
	s := newTestSandbox()

	cases := map[string]string{
		"/ab+c/gi":                "/ab+c/gi",
		"new RegExp('d{2}', 'm')": "/d{2}/m",
	}
	for fragment, want := range cases {
		res := s.Evaluate(fragment)
		if res == BadValue {
			t.Errorf("%s rejected", fragment)
			continue
		}
		if res.Src != want {
			t.Errorf("%s = %q, want %q", fragment, res.Src, want)
		}
		if res.Expr == nil || res.Expr.Expr == nil {
			t.Errorf("%s produced no expression node", fragment)
		}
	}
}

func TestEvaluateFunctionRoundTrip(t *testing.T) {
	s := newTestSandbox()

	res := s.Evaluate("(function add(a, b) { return a + b; })")
	if res == BadValue {
		t.Fatal("script function rejected")
	}
	if !strings.Contains(res.Src, "function add") {
		t.Errorf("function source lost: %q", res.Src)
	}
	if res.Expr == nil || res.Expr.Expr == nil {
		t.Error("function did not re-parse to an expression node")
	}

	arrow := s.Evaluate("(x => x * 2)")
	if arrow == BadValue {
		t.Fatal("arrow function rejected")
	}
	if !strings.Contains(arrow.Src, "=>") {
		t.Errorf("arrow source lost: %q", arrow.Src)
	}
}

func TestEngineRendersBigInt(t *testing.T) {
	e := &gojaEngine{}

	cases := map[string]string{
		"42n":                        "42n",
		"-5n * 3n":                   "-15n",
		"BigInt('9007199254740993')": "9007199254740993n",
	}
	for fragment, want := range cases {
		out, err := e.Run(fragment, DefaultLimits)
		if err != nil {
			t.Errorf("%s failed: %v", fragment, err)
			continue
		}
		if out != want {
			t.Errorf("%s = %q, want %q", fragment, out, want)
		}
	}
}

func TestEvaluateUndefinedAndNull(t *testing.T) {
	s := newTestSandbox()
	if res := s.Evaluate("void 0"); res == BadValue || res.Src != "undefined" {
		t.Error("void 0 should render as undefined")
	}
	if res := s.Evaluate("null"); res == BadValue || res.Src != "null" {
		t.Error("null should render as null")
	}
}

func TestEvaluateNativeFunctionFails(t *testing.T) {
	s := newTestSandbox()
	if res := s.Evaluate("String.fromCharCode"); res != BadValue {
		t.Errorf("native callable should not round-trip, got %q", res.Src)
	}
}

func TestEvaluateConsoleSpecialCase(t *testing.T) {
	s := newTestSandbox()
	res := s.Evaluate("console")
	if res == BadValue {
		t.Fatal("console lookup rejected")
	}
	if res.Src != "console" {
		t.Errorf("result = %q, want console identifier", res.Src)
	}
}

func TestEvaluateTimeout(t *testing.T) {
	s := New(cache.New(), WithLimits(Limits{Timeout: DefaultLimits.Timeout / 10, MaxStackDepth: 256}))
	// A loop with a body survives neutralization and must hit the clock.
	if res := s.Evaluate("var i = 0; while(true) { i++; } i"); res != BadValue {
		t.Errorf("runaway loop returned %q, want BadValue", res.Src)
	}
}

func TestEvaluateCachesFailures(t *testing.T) {
	store := cache.New()
	s := New(store)
	s.Evaluate("Math.random()")
	before := store.Len()
	s.Evaluate("Math.random()")
	if store.Len() != before {
		t.Error("repeated failure should hit the cache, not add entries")
	}
}

func TestEvaluateEmptyFragment(t *testing.T) {
	s := newTestSandbox()
	if res := s.Evaluate("   "); res != BadValue {
		t.Error("blank fragment must be BadValue")
	}
}

func TestNeutralizeTraps(t *testing.T) {
	out := NeutralizeTraps("debugger; while(true) {} for(;;) {} 'x' + 'debu' + 'gger'")
	if strings.Contains(out, "debugger") {
		t.Errorf("debugger survives: %q", out)
	}
	if strings.Contains(out, "while(true) {}") || strings.Contains(out, "for(;;) {}") {
		t.Errorf("empty loop survives: %q", out)
	}
}

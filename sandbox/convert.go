package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// blockedGlobals are forced to undefined before any fragment runs. The list
// covers networking, module/process access and low-level byte manipulation.
var blockedGlobals = []string{
	"fetch",
	"XMLHttpRequest",
	"WebSocket",
	"EventSource",
	"require",
	"process",
	"WebAssembly",
	"SharedArrayBuffer",
	"Atomics",
	"DataView",
	"ArrayBuffer",
	"Buffer",
}

// consoleMethods define both the stub installed into the context and the key
// signature the renderer matches to collapse a leaked console object back to
// the bare identifier.
var consoleMethods = []string{"log", "warn", "error", "info", "debug", "trace"}

// determinismPrelude strips the non-deterministic built-ins. Identical input
// must yield identical output, since results are cached and reused across
// the whole run.
const determinismPrelude = `
Math.random = undefined;
Date.now = undefined;
if (typeof performance !== 'undefined' && performance) performance.now = undefined;
`

// maxRenderDepth bounds value rendering so cyclic structures fail closed
// instead of recursing forever.
const maxRenderDepth = 64

var errUnconvertible = errors.New("value cannot be rendered as source")

// gojaEngine is the embedded-interpreter backend. Each Run gets a fresh
// runtime, so fragments cannot observe each other.
type gojaEngine struct{}

func (e *gojaEngine) Run(fragment string, limits Limits) (out string, err error) {
	vm := goja.New()
	if limits.MaxStackDepth > 0 {
		vm.SetMaxCallStackSize(limits.MaxStackDepth)
	}
	for _, name := range blockedGlobals {
		if setErr := vm.Set(name, goja.Undefined()); setErr != nil {
			return "", setErr
		}
	}
	installConsole(vm)
	if _, err := vm.RunString(determinismPrelude); err != nil {
		return "", err
	}

	if limits.Timeout > 0 {
		timer := time.AfterFunc(limits.Timeout, func() {
			vm.Interrupt("timeout")
		})
		defer timer.Stop()
	}
	if limits.MemoryBytes > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go watchHeap(vm, limits.MemoryBytes, stop)
	}

	value, err := runGuarded(vm, fragment)
	if err != nil {
		return "", err
	}
	return render(vm, value, 0)
}

// runGuarded absorbs interpreter panics (interrupts surface as panics in
// some paths) into plain errors.
func runGuarded(vm *goja.Runtime, fragment string) (value goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("interpreter panic: %v", r)
		}
	}()
	return vm.RunString(fragment)
}

func installConsole(vm *goja.Runtime) {
	console := vm.NewObject()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, m := range consoleMethods {
		_ = console.Set(m, noop)
	}
	_ = vm.Set("console", console)
}

// watchHeap interrupts the runtime once process heap growth since entry
// exceeds the budget. Coarse, but it keeps allocation bombs from running to
// the timeout.
func watchHeap(vm *goja.Runtime, budget uint64, stop <-chan struct{}) {
	var base runtime.MemStats
	runtime.ReadMemStats(&base)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var now runtime.MemStats
			runtime.ReadMemStats(&now)
			if now.HeapAlloc > base.HeapAlloc && now.HeapAlloc-base.HeapAlloc > budget {
				vm.Interrupt("memory limit")
				return
			}
		}
	}
}

// render converts a completion value to source text, bottom-up and fail
// closed: any unconvertible nested value rejects the whole conversion.
func render(vm *goja.Runtime, v goja.Value, depth int) (string, error) {
	if depth > maxRenderDepth {
		return "", errUnconvertible
	}
	if v == nil || goja.IsUndefined(v) {
		return "undefined", nil
	}
	if goja.IsNull(v) {
		return "null", nil
	}
	if goja.IsNaN(v) {
		return "NaN", nil
	}
	if goja.IsInfinity(v) {
		if strings.HasPrefix(v.String(), "-") {
			return "-Infinity", nil
		}
		return "Infinity", nil
	}

	switch exported := v.Export().(type) {
	case string:
		return quoteString(exported)
	case bool:
		return strconv.FormatBool(exported), nil
	case int64:
		return strconv.FormatInt(exported, 10), nil
	case float64:
		return renderNumber(exported), nil
	case *big.Int:
		return exported.String() + "n", nil
	}

	if sym, ok := v.(*goja.Symbol); ok {
		return renderSymbol(sym), nil
	}

	obj := v.ToObject(vm)
	if obj == nil {
		return "", errUnconvertible
	}
	switch obj.ClassName() {
	case "Array":
		return renderArray(vm, obj, depth)
	case "Object":
		if matchesConsoleSignature(obj) {
			return "console", nil
		}
		return renderObject(vm, obj, depth)
	case "Function":
		return renderFunction(obj)
	case "RegExp":
		return stringifyViaToString(obj)
	default:
		// Promises, Dates, Maps and other host-bound classes carry no
		// meaning outside the context they ran in.
		return "", errUnconvertible
	}
}

func quoteString(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", errUnconvertible
	}
	return string(b), nil
}

// renderNumber prints a float the way it would appear in source. Negative
// values print with a leading minus so they re-parse as a unary expression,
// and negative zero is preserved explicitly.
func renderNumber(f float64) string {
	if f == 0 && math.Signbit(f) {
		return "-0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func renderSymbol(sym *goja.Symbol) string {
	text := sym.String()
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "Symbol("), ")")
	if inner == "" {
		return "Symbol()"
	}
	quoted, err := quoteString(inner)
	if err != nil {
		return "Symbol()"
	}
	return "Symbol(" + quoted + ")"
}

func renderArray(vm *goja.Runtime, obj *goja.Object, depth int) (string, error) {
	lengthVal := obj.Get("length")
	if lengthVal == nil {
		return "", errUnconvertible
	}
	length := int(lengthVal.ToInteger())
	parts := make([]string, 0, length)
	for i := 0; i < length; i++ {
		elem, err := render(vm, obj.Get(strconv.Itoa(i)), depth+1)
		if err != nil {
			return "", err
		}
		parts = append(parts, elem)
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

func renderObject(vm *goja.Runtime, obj *goja.Object, depth int) (string, error) {
	keys := obj.Keys()
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		val, err := render(vm, obj.Get(key), depth+1)
		if err != nil {
			return "", err
		}
		quoted, err := quoteString(key)
		if err != nil {
			return "", err
		}
		parts = append(parts, quoted+": "+val)
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

// renderFunction reconstructs a function from its own printed source. Native
// callables cannot round-trip and fail the conversion.
func renderFunction(obj *goja.Object) (string, error) {
	src, err := stringifyViaToString(obj)
	if err != nil {
		return "", err
	}
	if strings.Contains(src, "[native code]") {
		return "", errUnconvertible
	}
	return src, nil
}

func stringifyViaToString(obj *goja.Object) (string, error) {
	toStr, ok := goja.AssertFunction(obj.Get("toString"))
	if !ok {
		return "", errUnconvertible
	}
	res, err := toStr(obj)
	if err != nil || res == nil {
		return "", errUnconvertible
	}
	return res.String(), nil
}

// matchesConsoleSignature reports whether the object's own enumerable keys
// are exactly the console stub's method set.
func matchesConsoleSignature(obj *goja.Object) bool {
	keys := obj.Keys()
	if len(keys) != len(consoleMethods) {
		return false
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	expected := append([]string(nil), consoleMethods...)
	sort.Strings(expected)
	for i := range sorted {
		if sorted[i] != expected[i] {
			return false
		}
	}
	return true
}

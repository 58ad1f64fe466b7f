package analyze

import (
	"strings"
	"testing"

	"github.com/t14raptor/go-fast/parser"

	"github.com/deobjs/restringer/cache"
	"github.com/deobjs/restringer/syntax"
)

func mustBuild(t *testing.T, src string) *syntax.Tree {
	t.Helper()
	prog, err := parser.ParseFile(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return syntax.Build(prog, src)
}

func findKind(tree *syntax.Tree, kind syntax.Kind) syntax.NodeID {
	for id := syntax.NodeID(0); int(id) < tree.Len(); id++ {
		if tree.KindOf(id) == kind {
			return id
		}
	}
	return syntax.InvalidNode
}

func TestCollectCallWithLocalFunction(t *testing.T) {
	tree := mustBuild(t, "function add(a, b) { return a + b; }\nadd(1, 2);")
	c := NewCollector(cache.New())

	call := findKind(tree, syntax.KindCallExpression)
	if call == syntax.InvalidNode {
		t.Fatal("no call found")
	}

	got := c.Collect(tree, call, false)
	if len(got) != 2 {
		t.Fatalf("collected %d nodes, want 2: %v", len(got), got)
	}
	if tree.KindOf(got[0]) != syntax.KindFunctionDeclaration {
		t.Errorf("first node kind = %v, want FunctionDeclaration", tree.KindOf(got[0]))
	}
	if tree.KindOf(got[1]) != syntax.KindExpressionStatement {
		t.Errorf("second node kind = %v, want ExpressionStatement", tree.KindOf(got[1]))
	}
}

func TestCollectAbortsOnMarkedDescendant(t *testing.T) {
	tree := mustBuild(t, "function add(a, b) { return a + b; }\nadd(1, 2);")
	c := NewCollector(cache.New())

	call := findKind(tree, syntax.KindCallExpression)
	ret := findKind(tree, syntax.KindReturnStatement)
	tree.Mark(ret, nil)

	if got := c.Collect(tree, call, false); len(got) != 0 {
		t.Errorf("collected %d nodes from a tree with pending marks, want 0", len(got))
	}
}

func TestCollectInvalidOrigin(t *testing.T) {
	tree := mustBuild(t, "var x = 1;")
	c := NewCollector(cache.New())
	if got := c.Collect(tree, syntax.InvalidNode, false); got != nil {
		t.Errorf("invalid origin should collect nothing, got %v", got)
	}
}

func TestCollectExcludesOrigin(t *testing.T) {
	tree := mustBuild(t, "function add(a, b) { return a + b; }\nadd(1, 2);")
	c := NewCollector(cache.New())

	call := findKind(tree, syntax.KindCallExpression)
	got := c.Collect(tree, call, true)
	for _, id := range got {
		if id == call || id == tree.EnclosingStatement(call) {
			t.Errorf("origin form %d present despite excludeOrigin", id)
		}
	}
	if len(got) != 1 || tree.KindOf(got[0]) != syntax.KindFunctionDeclaration {
		t.Errorf("expected only the function declaration, got %v", got)
	}
}

func TestCollectDropsSelfReassignedFunction(t *testing.T) {
	// The declaration's only reference nulls the function out, a common
	// anti-debugging trick. It must not enter the context.
	src := "function trap() { return 1; }\nfunction main() { trap = null; return 2; }\nmain();"
	tree := mustBuild(t, src)
	c := NewCollector(cache.New())

	var call syntax.NodeID = syntax.InvalidNode
	for id := syntax.NodeID(0); int(id) < tree.Len(); id++ {
		if tree.KindOf(id) == syntax.KindCallExpression {
			call = id
		}
	}
	if call == syntax.InvalidNode {
		t.Fatal("no call found")
	}
	got := c.Collect(tree, call, false)
	mainSeen := false
	for _, id := range got {
		if tree.KindOf(id) != syntax.KindFunctionDeclaration {
			continue
		}
		for _, b := range tree.BindingsDeclaredBy(id) {
			switch b.Name {
			case "trap":
				t.Errorf("self-reassigned declaration %d collected", id)
			case "main":
				mainSeen = true
			}
		}
	}
	if !mainSeen {
		t.Error("the called function's declaration should still be collected")
	}
}

func contextHas(tree *syntax.Tree, ids []syntax.NodeID, needle string) bool {
	for _, id := range ids {
		if strings.Contains(tree.Source(id), needle) {
			return true
		}
	}
	return false
}

func TestCollectComputedPropertyIndex(t *testing.T) {
	tree := mustBuild(t, "var i = 1;\nvar arr = [9, 8];\nuse(arr[i]);")
	c := NewCollector(cache.New())

	call := findKind(tree, syntax.KindCallExpression)
	if call == syntax.InvalidNode {
		t.Fatal("no call found")
	}
	got := c.Collect(tree, call, true)
	if !contextHas(tree, got, "var i") {
		t.Errorf("index declaration missing from context: %v", got)
	}
	if !contextHas(tree, got, "var arr") {
		t.Errorf("array declaration missing from context: %v", got)
	}
}

func TestCollectPullsCallArgumentSites(t *testing.T) {
	// Passing a by reference may change it before the origin runs; the call
	// belongs in the context alongside the declaration.
	tree := mustBuild(t, "var a = 1;\nmutate(a);\nvar r = a + 1;")
	c := NewCollector(cache.New())

	bin := findKind(tree, syntax.KindBinaryExpression)
	if bin == syntax.InvalidNode {
		t.Fatal("no binary expression found")
	}
	got := c.Collect(tree, bin, false)
	if !contextHas(tree, got, "var a") {
		t.Errorf("declaration missing from context: %v", got)
	}
	if !contextHas(tree, got, "mutate") {
		t.Errorf("call-argument site missing from context: %v", got)
	}
}

func TestCollectPullsMutatingMethodCalls(t *testing.T) {
	tree := mustBuild(t, "var list = [];\nlist.push(7);\nvar n = list.length;")
	c := NewCollector(cache.New())

	var origin syntax.NodeID = syntax.InvalidNode
	for id := syntax.NodeID(0); int(id) < tree.Len(); id++ {
		if tree.KindOf(id) == syntax.KindVariableDeclaration && strings.Contains(tree.Source(id), "length") {
			origin = id
		}
	}
	if origin == syntax.InvalidNode {
		t.Fatal("origin declaration not found")
	}
	got := c.Collect(tree, origin, true)
	if !contextHas(tree, got, "var list") {
		t.Errorf("declaration missing from context: %v", got)
	}
	if !contextHas(tree, got, "push") {
		t.Errorf("mutating method call missing from context: %v", got)
	}
}

func TestCollectPullsPropertyMutations(t *testing.T) {
	tree := mustBuild(t, "var o = {};\no.x = 5;\nvar r = o;")
	c := NewCollector(cache.New())

	var origin syntax.NodeID = syntax.InvalidNode
	for id := syntax.NodeID(0); int(id) < tree.Len(); id++ {
		if tree.KindOf(id) == syntax.KindVariableDeclaration && strings.Contains(tree.Source(id), "var r") {
			origin = id
		}
	}
	if origin == syntax.InvalidNode {
		t.Fatal("origin declaration not found")
	}
	got := c.Collect(tree, origin, true)
	if !contextHas(tree, got, "var o") {
		t.Errorf("declaration missing from context: %v", got)
	}
	if !contextHas(tree, got, "o.x") {
		t.Errorf("property mutation missing from context: %v", got)
	}
}

func TestCollectCapturesClosureFreeVariables(t *testing.T) {
	tree := mustBuild(t, "var captured = 3;\nvar make = function () { return captured; };\nmake();")
	c := NewCollector(cache.New())

	call := findKind(tree, syntax.KindCallExpression)
	if call == syntax.InvalidNode {
		t.Fatal("no call found")
	}
	got := c.Collect(tree, call, true)
	if !contextHas(tree, got, "var make") {
		t.Errorf("function declaration missing from context: %v", got)
	}
	if !contextHas(tree, got, "var captured") {
		t.Errorf("captured variable missing from context: %v", got)
	}
}

func TestCollectCachesResult(t *testing.T) {
	tree := mustBuild(t, "function add(a, b) { return a + b; }\nadd(1, 2);")
	store := cache.New()
	c := NewCollector(store)

	call := findKind(tree, syntax.KindCallExpression)
	first := c.Collect(tree, call, false)
	if len(first) == 0 {
		t.Fatal("expected a non-empty context")
	}
	if store.Len() == 0 {
		t.Error("result was not memoized")
	}
	second := c.Collect(tree, call, false)
	if len(second) != len(first) {
		t.Errorf("cached result differs: %v vs %v", second, first)
	}
}

func TestHasMutatingReference(t *testing.T) {
	tree := mustBuild(t, "var a = [];\na.push(1);\nvar b = 2;\nuse(b);")

	mutated := false
	clean := false
	for id := syntax.NodeID(0); int(id) < tree.Len(); id++ {
		if tree.KindOf(id) != syntax.KindIdentifier {
			continue
		}
		binding, ok := tree.BindingOf(id)
		if !ok {
			continue
		}
		switch binding.Name {
		case "a":
			mutated = HasMutatingReference(tree, binding)
		case "b":
			clean = HasMutatingReference(tree, binding)
		}
	}
	if !mutated {
		t.Error("a.push(1) must count as mutation")
	}
	if clean {
		t.Error("use(b) must not count as mutation")
	}
}

func TestIsPlainReassignment(t *testing.T) {
	tree := mustBuild(t, "var a = 1;\na = 2;\na += 3;")

	plain, compound := 0, 0
	for id := syntax.NodeID(0); int(id) < tree.Len(); id++ {
		if tree.KindOf(id) != syntax.KindIdentifier {
			continue
		}
		if _, isPlain, ok := AssignTargetOf(tree, id); ok {
			if isPlain {
				plain++
			} else {
				compound++
			}
		}
	}
	if plain != 1 {
		t.Errorf("plain reassignments = %d, want 1", plain)
	}
	if compound != 1 {
		t.Errorf("compound assignments = %d, want 1", compound)
	}
}

func TestCallArgumentOf(t *testing.T) {
	tree := mustBuild(t, "var a = 1;\nsink(a);")

	found := false
	for id := syntax.NodeID(0); int(id) < tree.Len(); id++ {
		if tree.KindOf(id) != syntax.KindIdentifier {
			continue
		}
		n, _ := tree.NodeAt(id)
		if n.Name != "a" {
			continue
		}
		if call, ok := CallArgumentOf(tree, id); ok {
			found = true
			if tree.KindOf(call) != syntax.KindCallExpression {
				t.Errorf("argument owner kind = %v, want CallExpression", tree.KindOf(call))
			}
		}
	}
	if !found {
		t.Error("no reference of a recognized as a call argument")
	}
}

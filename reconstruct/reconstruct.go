// Package reconstruct serializes an arbitrary set of tree nodes back into
// syntactically valid, dependency-ordered source text.
package reconstruct

import (
	"sort"
	"strconv"
	"strings"

	"github.com/t14raptor/go-fast/ast"
	"github.com/t14raptor/go-fast/parser"

	"github.com/deobjs/restringer/syntax"
)

// tailSentinel sorts a node after any real position. Preorder indices are
// doubled in sort keys, so this cannot collide with one.
const tailSentinel = 1 << 30

// Reconstruct renders the given nodes as a fragment evaluable top to bottom.
// Nodes are de-duplicated by identity and sorted by original position.
// Unless preserveOrder is set, an immediately-invoked function expression is
// re-positioned after the declaration of its last argument dependency (or to
// the very end when it has none), since its original placement encodes side
// effect ordering rather than declaration order.
func Reconstruct(t *syntax.Tree, ids []syntax.NodeID, preserveOrder bool) string {
	if t == nil || len(ids) == 0 {
		return ""
	}

	seen := make(map[syntax.NodeID]bool, len(ids))
	var unique []syntax.NodeID
	for _, id := range ids {
		if !t.Valid(id) || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	type entry struct {
		id  syntax.NodeID
		key int
	}
	entries := make([]entry, 0, len(unique))
	for _, id := range unique {
		n, _ := t.NodeAt(id)
		key := 2 * n.Start
		if !preserveOrder {
			if call, ok := iifeCall(t, id); ok {
				key = iifeKey(t, call)
			}
		}
		entries = append(entries, entry{id: id, key: key})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].key != entries[j].key {
			return entries[i].key < entries[j].key
		}
		return entries[i].id < entries[j].id
	})

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderNode(t, e.id))
	}
	return b.String()
}

// iifeCall returns the call expression when the node is an IIFE, either bare
// or wrapped in an expression statement.
func iifeCall(t *syntax.Tree, id syntax.NodeID) (*ast.CallExpression, bool) {
	target := id
	if t.KindOf(id) == syntax.KindExpressionStatement {
		children := t.ChildrenOf(id)
		if len(children) == 0 {
			return nil, false
		}
		target = children[0]
	}
	if t.KindOf(target) != syntax.KindCallExpression {
		return nil, false
	}
	e := t.Expr(target)
	if e == nil {
		return nil, false
	}
	call, ok := e.Expr.(*ast.CallExpression)
	if !ok || call.Callee == nil || call.Callee.Expr == nil {
		return nil, false
	}
	switch call.Callee.Expr.(type) {
	case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral:
		return call, true
	default:
		return nil, false
	}
}

// iifeKey sorts an IIFE just after the declaration of its highest-positioned
// argument dependency, or to the fragment's tail when no argument resolves
// to a declaration.
func iifeKey(t *syntax.Tree, call *ast.CallExpression) int {
	best := -1
	for i := range call.ArgumentList {
		if _, ok := call.ArgumentList[i].Expr.(*ast.Identifier); !ok {
			continue
		}
		decl := declStartOf(t, &call.ArgumentList[i])
		if decl > best {
			best = decl
		}
	}
	if best < 0 {
		return tailSentinel
	}
	return 2*best + 1
}

// declStartOf locates the arena node for the given argument expression and
// resolves its declaration's position.
func declStartOf(t *syntax.Tree, expr *ast.Expression) int {
	for id := syntax.NodeID(0); int(id) < t.Len(); id++ {
		if t.Expr(id) != expr {
			continue
		}
		binding, ok := t.BindingOf(id)
		if !ok || !t.Valid(binding.Decl) {
			return -1
		}
		n, _ := t.NodeAt(binding.Decl)
		return n.Start
	}
	return -1
}

// renderNode prints one node, naming anonymous callees and appending a
// terminator where the verbatim text would not stand alone.
func renderNode(t *syntax.Tree, id syntax.NodeID) string {
	src := t.Source(id)
	if t.KindOf(id) == syntax.KindCallExpression && !t.IsStatement(id) {
		if named, ok := nameAnonymousCallee(t, id, src); ok {
			src = named
		}
	}
	return terminate(src)
}

// nameAnonymousCallee patches a synthetic name into a bare call whose callee
// is an anonymous function, so the fragment line re-parses as a standalone
// statement. The patched text is verified by re-parsing; on failure the
// original text is kept.
func nameAnonymousCallee(t *syntax.Tree, id syntax.NodeID, src string) (string, bool) {
	e := t.Expr(id)
	if e == nil {
		return "", false
	}
	call, ok := e.Expr.(*ast.CallExpression)
	if !ok || call.Callee == nil {
		return "", false
	}
	fn, ok := call.Callee.Expr.(*ast.FunctionLiteral)
	if !ok || fn.Name != nil {
		return "", false
	}

	name := syntheticName(t, id)
	idx := strings.Index(src, "function")
	if idx < 0 {
		return "", false
	}
	rest := src[idx+len("function"):]
	patched := src[:idx] + "function " + name + strings.TrimLeft(rest, " ")
	if _, err := parser.ParseFile(patched); err != nil {
		return "", false
	}
	return patched, true
}

// syntheticName derives a name from an enclosing declarator when one exists,
// falling back to the node's own identity.
func syntheticName(t *syntax.Tree, id syntax.NodeID) string {
	for cur := t.ParentOf(id); t.Valid(cur); cur = t.ParentOf(cur) {
		if t.KindOf(cur) != syntax.KindVariableDeclaration {
			continue
		}
		bindings := t.BindingsDeclaredBy(cur)
		if len(bindings) > 0 && bindings[0].Name != "" {
			return bindings[0].Name + strconv.Itoa(int(id))
		}
	}
	return "fn" + strconv.Itoa(int(id))
}

func terminate(src string) string {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return trimmed
	}
	if strings.HasSuffix(trimmed, ";") || strings.HasSuffix(trimmed, "}") {
		return trimmed
	}
	return trimmed + ";"
}

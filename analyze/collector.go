package analyze

import (
	"fmt"
	"sort"

	"github.com/t14raptor/go-fast/ast"

	"github.com/deobjs/restringer/cache"
	"github.com/deobjs/restringer/syntax"
)

// Collector computes, for a given node, the set of declarations, assignments
// and calls that must accompany it for an extracted fragment to evaluate the
// same way it would inside the live program. Results are memoized in the
// script-scoped store.
type Collector struct {
	store *cache.Store
}

// NewCollector returns a collector backed by the given store.
func NewCollector(store *cache.Store) *Collector {
	return &Collector{store: store}
}

// Collect returns the context nodes for origin, sorted by source position, or
// nil when no trustworthy context exists. An empty result is not an error: it
// means "do not transform here". When excludeOrigin is set, the origin's own
// standalone form is left out of the result.
func (c *Collector) Collect(t *syntax.Tree, origin syntax.NodeID, excludeOrigin bool) []syntax.NodeID {
	if t == nil || !t.Valid(origin) {
		return nil
	}
	if t.HasMarkedWithin(origin) {
		return nil
	}

	nodeKey := fmt.Sprintf("ctx:%d:%s:%t", origin, syntax.ContentHash(t.Source(origin)), excludeOrigin)
	srcKey := fmt.Sprintf("ctx:%s:%t", syntax.ContentHash(t.Source(origin)), excludeOrigin)

	entries := c.store.Get(t.ScriptHash())
	for _, key := range []string{nodeKey, srcKey} {
		if v, ok := entries.Get(key); ok {
			if ids, ok := v.([]syntax.NodeID); ok && c.stillValid(t, ids) {
				return ids
			}
		}
	}

	collected := c.walk(t, origin)
	if collected == nil {
		return nil
	}
	result := c.finalize(t, origin, collected, excludeOrigin)
	if len(result) > 0 {
		entries.Set(nodeKey, result)
		entries.Set(srcKey, result)
	}
	return result
}

// stillValid rejects memoized results once any of their nodes is stale or
// scheduled to change.
func (c *Collector) stillValid(t *syntax.Tree, ids []syntax.NodeID) bool {
	for _, id := range ids {
		if !t.Valid(id) || t.HasMarkedWithin(id) {
			return false
		}
	}
	return true
}

// walk runs the worklist traversal. It returns nil when a marked node is
// encountered anywhere, since partial context cannot be trusted.
func (c *Collector) walk(t *syntax.Tree, origin syntax.NodeID) []syntax.NodeID {
	stack := []syntax.NodeID{origin}
	visited := make(map[syntax.NodeID]bool)
	var collected []syntax.NodeID

	push := func(id syntax.NodeID) {
		if t.Valid(id) && !visited[id] {
			stack = append(stack, id)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		if t.HasMarkedWithin(id) {
			return nil
		}

		kind := t.KindOf(id)
		if kind.IsCollectable() {
			collected = append(collected, c.collectForm(t, id))
		}

		switch {
		case kind == syntax.KindIdentifier:
			c.expandIdentifier(t, id, push)
		case kind.IsFunction():
			if scope, ok := t.ScopeOf(id); ok {
				for _, free := range scope.Through() {
					push(free)
				}
			}
			if c.isAnonymousFunction(t, id) {
				push(c.standaloneWrapper(t, id))
			}
		}

		for _, child := range t.ChildrenOf(id) {
			ck := t.KindOf(child)
			if ck.IsLiteral() {
				continue
			}
			// Unknown expression shapes (this, meta properties) carry no
			// evaluable information; unknown statements still can.
			if ck == syntax.KindOther && !t.IsStatement(child) {
				continue
			}
			push(child)
		}
	}
	return collected
}

// expandIdentifier pulls in the identifier's declaration and every reference
// site that could change the bound value before the origin runs.
func (c *Collector) expandIdentifier(t *syntax.Tree, id syntax.NodeID, push func(syntax.NodeID)) {
	binding, ok := t.BindingOf(id)
	if !ok {
		return
	}
	push(binding.Decl)
	for _, ref := range binding.Refs {
		if call, ok := CallArgumentOf(t, ref); ok {
			push(call)
		}
		if assign, plain, ok := AssignTargetOf(t, ref); ok {
			// A bare reassignment of a function's own name carries no
			// value the fragment needs; collecting it would overwrite
			// the function inside the fragment. See finalize.
			if !(binding.IsFunction && plain) {
				push(assign)
			}
		}
		if IsPropertyMutation(t, ref) || IsMutatingMethodCall(t, ref) {
			push(t.EnclosingStatement(ref))
		}
	}
}

// collectForm maps a collectable node to the smallest syntactic unit that can
// stand alone in a fragment: the node itself when it is a statement, its
// expression statement wrapper when it has one, the bare node otherwise.
func (c *Collector) collectForm(t *syntax.Tree, id syntax.NodeID) syntax.NodeID {
	if t.IsStatement(id) {
		return id
	}
	parent := t.ParentOf(id)
	if t.KindOf(parent) == syntax.KindExpressionStatement {
		return parent
	}
	return id
}

func (c *Collector) isAnonymousFunction(t *syntax.Tree, id syntax.NodeID) bool {
	switch t.KindOf(id) {
	case syntax.KindArrowFunctionLiteral:
		return true
	case syntax.KindFunctionLiteral:
		e := t.Expr(id)
		if e == nil {
			return false
		}
		fn, ok := e.Expr.(*ast.FunctionLiteral)
		return ok && fn.Name == nil
	default:
		return false
	}
}

// standaloneWrapper climbs to the nearest ancestor that can be serialized on
// its own: a statement, an assignment, or a variable declaration.
func (c *Collector) standaloneWrapper(t *syntax.Tree, id syntax.NodeID) syntax.NodeID {
	for cur := t.ParentOf(id); t.Valid(cur); cur = t.ParentOf(cur) {
		if t.IsStatement(cur) || t.KindOf(cur) == syntax.KindAssignExpression {
			return cur
		}
	}
	return syntax.InvalidNode
}

// finalize applies the result-set filters: drop declarations kept alive only
// by self-reassignments, drop nodes subsumed by other results, optionally
// drop the origin's own form, then sort by source position.
func (c *Collector) finalize(t *syntax.Tree, origin syntax.NodeID, collected []syntax.NodeID, excludeOrigin bool) []syntax.NodeID {
	seen := make(map[syntax.NodeID]bool, len(collected))
	var unique []syntax.NodeID
	for _, id := range collected {
		if !t.Valid(id) || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	originForm := c.collectForm(t, origin)
	var kept []syntax.NodeID
	for _, id := range unique {
		if excludeOrigin && (id == origin || id == originForm) {
			continue
		}
		if t.KindOf(id) == syntax.KindFunctionDeclaration && c.onlySelfReassigned(t, id) {
			continue
		}
		kept = append(kept, id)
	}

	var result []syntax.NodeID
	for _, id := range kept {
		subsumed := false
		for _, other := range kept {
			if other != id && t.Contains(other, id) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			result = append(result, id)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, _ := t.NodeAt(result[i])
		b, _ := t.NodeAt(result[j])
		return a.Start < b.Start
	})
	return result
}

// onlySelfReassigned reports whether every reference to the function's name
// is a plain overwrite of that name. Obfuscators null out functions after
// first use this way; carrying the overwrite into a fragment would corrupt
// it, and a declaration with no real use contributes nothing.
func (c *Collector) onlySelfReassigned(t *syntax.Tree, decl syntax.NodeID) bool {
	for _, b := range t.BindingsDeclaredBy(decl) {
		if !b.IsFunction || len(b.Refs) == 0 {
			continue
		}
		all := true
		for _, ref := range b.Refs {
			if !IsPlainReassignment(t, ref) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

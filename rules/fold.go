// Package rules holds the built-in rewrites the driver runs: constant
// folding, call inlining, dead-branch pruning and breakpoint stripping. Each
// rule proves its rewrite through the sandbox or through literal inspection
// and marks nodes rather than editing the tree directly.
package rules

import (
	"github.com/t14raptor/go-fast/ast"

	"github.com/deobjs/restringer/pipeline"
	"github.com/deobjs/restringer/sandbox"
	"github.com/deobjs/restringer/syntax"
)

// ConstantFold collapses operator expressions over literals into the value
// the engine computes for them. The sandbox does the arithmetic, so operator
// corner cases (string coercion, negative zero, NaN) follow engine semantics
// instead of a hand-written table.
type ConstantFold struct {
	sb *sandbox.Sandbox
}

var _ pipeline.Rule = (*ConstantFold)(nil)

func NewConstantFold(sb *sandbox.Sandbox) *ConstantFold {
	return &ConstantFold{sb: sb}
}

func (r *ConstantFold) Name() string { return "constant-fold" }

func (r *ConstantFold) Match(t *syntax.Tree) []syntax.NodeID {
	var out []syntax.NodeID
	for id := syntax.NodeID(0); int(id) < t.Len(); id++ {
		switch t.KindOf(id) {
		case syntax.KindBinaryExpression, syntax.KindUnaryExpression:
			if literalOperands(t, id) {
				out = append(out, id)
			}
		}
	}
	return out
}

// literalOperands reports whether every direct operand is itself a literal
// or an already-foldable operator expression over literals.
func literalOperands(t *syntax.Tree, id syntax.NodeID) bool {
	children := t.ChildrenOf(id)
	if len(children) == 0 {
		return false
	}
	for _, child := range children {
		switch k := t.KindOf(child); {
		case k.IsLiteral():
		case k == syntax.KindBinaryExpression || k == syntax.KindUnaryExpression:
			if !literalOperands(t, child) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (r *ConstantFold) Transform(t *syntax.Tree, id syntax.NodeID) bool {
	src := t.Source(id)
	if src == "" {
		return false
	}
	res := r.sb.Evaluate(src)
	if res == sandbox.BadValue || res.Src == src {
		return false
	}
	if !isInlinableValue(res.Expr.Expr) {
		return false
	}
	t.Mark(id, res.Expr.Expr)
	return true
}

// isInlinableValue restricts replacements to value shapes that are safe to
// splice into an expression slot.
func isInlinableValue(e ast.Expr) bool {
	switch v := e.(type) {
	case *ast.NumberLiteral, *ast.StringLiteral, *ast.BooleanLiteral,
		*ast.NullLiteral, *ast.RegExpLiteral:
		return true
	case *ast.Identifier:
		switch v.Name {
		case "undefined", "NaN", "Infinity":
			return true
		}
		return false
	case *ast.UnaryExpression:
		if v.Operand == nil || v.Operand.Expr == nil {
			return false
		}
		return isInlinableValue(v.Operand.Expr)
	case *ast.ArrayLiteral, *ast.ObjectLiteral:
		return true
	default:
		return false
	}
}

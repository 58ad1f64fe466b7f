// Package analyze classifies identifier references and assembles the minimal
// context a fragment of the script needs to evaluate on its own.
package analyze

import (
	"github.com/t14raptor/go-fast/ast"

	"github.com/deobjs/restringer/syntax"
)

// mutatingMethods are the member calls treated as in-place mutation of their
// receiver. A reference used as the receiver of one of these disqualifies the
// binding from value-based inlining.
var mutatingMethods = map[string]bool{
	"push":       true,
	"pop":        true,
	"shift":      true,
	"unshift":    true,
	"splice":     true,
	"sort":       true,
	"reverse":    true,
	"fill":       true,
	"copyWithin": true,
	"set":        true,
	"add":        true,
	"delete":     true,
	"clear":      true,
}

// CallArgumentOf reports whether ref sits in a call's argument list and
// returns the call node when it does. Being passed as an argument means the
// callee may mutate the value, so the call site becomes required context.
func CallArgumentOf(t *syntax.Tree, ref syntax.NodeID) (syntax.NodeID, bool) {
	parent := t.ParentOf(ref)
	if t.KindOf(parent) != syntax.KindCallExpression {
		return syntax.InvalidNode, false
	}
	pe := t.Expr(parent)
	if pe == nil {
		return syntax.InvalidNode, false
	}
	call, ok := pe.Expr.(*ast.CallExpression)
	if !ok {
		return syntax.InvalidNode, false
	}
	re := t.Expr(ref)
	for i := range call.ArgumentList {
		if &call.ArgumentList[i] == re {
			return parent, true
		}
	}
	return syntax.InvalidNode, false
}

// AssignTargetOf reports whether ref is the left-hand side of an assignment,
// returning the assignment node and whether the operator is a plain "=".
func AssignTargetOf(t *syntax.Tree, ref syntax.NodeID) (assign syntax.NodeID, plain bool, ok bool) {
	parent := t.ParentOf(ref)
	if t.KindOf(parent) != syntax.KindAssignExpression {
		return syntax.InvalidNode, false, false
	}
	pe := t.Expr(parent)
	if pe == nil {
		return syntax.InvalidNode, false, false
	}
	a, isAssign := pe.Expr.(*ast.AssignExpression)
	if !isAssign || a.Left != t.Expr(ref) {
		return syntax.InvalidNode, false, false
	}
	return parent, a.Operator.String() == "=", true
}

// IsPlainReassignment reports whether ref is overwritten wholesale with a
// plain "=". Such a reference never reads the previous value.
func IsPlainReassignment(t *syntax.Tree, ref syntax.NodeID) bool {
	_, plain, ok := AssignTargetOf(t, ref)
	return ok && plain
}

// memberOwning returns the member expression node whose object is ref.
func memberOwning(t *syntax.Tree, ref syntax.NodeID) (syntax.NodeID, *ast.MemberExpression) {
	parent := t.ParentOf(ref)
	if t.KindOf(parent) != syntax.KindMemberExpression {
		return syntax.InvalidNode, nil
	}
	pe := t.Expr(parent)
	if pe == nil {
		return syntax.InvalidNode, nil
	}
	member, ok := pe.Expr.(*ast.MemberExpression)
	if !ok || member.Object != t.Expr(ref) {
		return syntax.InvalidNode, nil
	}
	return parent, member
}

// IsPropertyMutation reports whether ref's value has a property written or
// stepped through an assignment or update on a member access rooted at ref.
func IsPropertyMutation(t *syntax.Tree, ref syntax.NodeID) bool {
	memberID, _ := memberOwning(t, ref)
	if memberID == syntax.InvalidNode {
		return false
	}
	grand := t.ParentOf(memberID)
	switch t.KindOf(grand) {
	case syntax.KindUpdateExpression:
		return true
	case syntax.KindAssignExpression:
		ge := t.Expr(grand)
		if ge == nil {
			return false
		}
		a, ok := ge.Expr.(*ast.AssignExpression)
		return ok && a.Left == t.Expr(memberID)
	default:
		return false
	}
}

// IsMutatingMethodCall reports whether ref is the receiver of a method call
// known to mutate in place, such as push or splice.
func IsMutatingMethodCall(t *syntax.Tree, ref syntax.NodeID) bool {
	memberID, member := memberOwning(t, ref)
	if memberID == syntax.InvalidNode {
		return false
	}
	name, ok := propName(member.Property)
	if !ok || !mutatingMethods[name] {
		return false
	}
	grand := t.ParentOf(memberID)
	if t.KindOf(grand) != syntax.KindCallExpression {
		return false
	}
	ge := t.Expr(grand)
	if ge == nil {
		return false
	}
	call, isCall := ge.Expr.(*ast.CallExpression)
	return isCall && call.Callee == t.Expr(memberID)
}

// IsUpdateTarget reports whether ref is operated on by ++ or --.
func IsUpdateTarget(t *syntax.Tree, ref syntax.NodeID) bool {
	return t.KindOf(t.ParentOf(ref)) == syntax.KindUpdateExpression
}

// HasMutatingReference reports whether any reference to the binding changes
// the bound value after its declaration.
func HasMutatingReference(t *syntax.Tree, b syntax.Binding) bool {
	for _, ref := range b.Refs {
		if _, _, ok := AssignTargetOf(t, ref); ok {
			return true
		}
		if IsUpdateTarget(t, ref) {
			return true
		}
		if IsPropertyMutation(t, ref) || IsMutatingMethodCall(t, ref) {
			return true
		}
	}
	return false
}

func propName(mp *ast.MemberProperty) (string, bool) {
	if mp == nil || mp.Prop == nil {
		return "", false
	}
	switch p := mp.Prop.(type) {
	case *ast.Identifier:
		return p.Name, true
	case *ast.ComputedProperty:
		if p.Expr == nil {
			return "", false
		}
		if key, ok := p.Expr.Expr.(*ast.StringLiteral); ok {
			return key.Value, true
		}
		return "", false
	default:
		return "", false
	}
}

package rules

import (
	"strings"

	"github.com/t14raptor/go-fast/ast"

	"github.com/deobjs/restringer/pipeline"
	"github.com/deobjs/restringer/syntax"
)

// DeadBranches prunes if statements whose test is a literal: the taken
// branch replaces the whole statement, the dead branch disappears.
type DeadBranches struct{}

var _ pipeline.Rule = (*DeadBranches)(nil)

func NewDeadBranches() *DeadBranches { return &DeadBranches{} }

func (r *DeadBranches) Name() string { return "dead-branches" }

func (r *DeadBranches) Match(t *syntax.Tree) []syntax.NodeID {
	var out []syntax.NodeID
	for id := syntax.NodeID(0); int(id) < t.Len(); id++ {
		if t.KindOf(id) != syntax.KindIfStatement {
			continue
		}
		if _, ok := literalTest(t, id); ok {
			out = append(out, id)
		}
	}
	return out
}

// literalTest resolves the if statement's test to a truth value when the
// test is a bare literal.
func literalTest(t *syntax.Tree, id syntax.NodeID) (bool, bool) {
	stmt := t.Stmt(id)
	if stmt == nil {
		return false, false
	}
	ifStmt, ok := stmt.Stmt.(*ast.IfStatement)
	if !ok || ifStmt.Test == nil || ifStmt.Test.Expr == nil {
		return false, false
	}
	switch test := ifStmt.Test.Expr.(type) {
	case *ast.BooleanLiteral:
		return test.Value, true
	case *ast.NumberLiteral:
		return test.Value != 0, true
	case *ast.StringLiteral:
		return test.Value != "", true
	case *ast.NullLiteral:
		return false, true
	default:
		return false, false
	}
}

func (r *DeadBranches) Transform(t *syntax.Tree, id syntax.NodeID) bool {
	truthy, ok := literalTest(t, id)
	if !ok {
		return false
	}
	ifStmt := t.Stmt(id).Stmt.(*ast.IfStatement)
	if truthy {
		if ifStmt.Consequent == nil || ifStmt.Consequent.Stmt == nil {
			return false
		}
		t.Mark(id, ifStmt.Consequent.Stmt)
		return true
	}
	if ifStmt.Alternate != nil && ifStmt.Alternate.Stmt != nil {
		t.Mark(id, ifStmt.Alternate.Stmt)
		return true
	}
	t.Mark(id, nil)
	return true
}

// StripDebugger removes breakpoint statements outright.
type StripDebugger struct{}

var _ pipeline.Rule = (*StripDebugger)(nil)

func NewStripDebugger() *StripDebugger { return &StripDebugger{} }

func (r *StripDebugger) Name() string { return "strip-debugger" }

func (r *StripDebugger) Match(t *syntax.Tree) []syntax.NodeID {
	var out []syntax.NodeID
	for id := syntax.NodeID(0); int(id) < t.Len(); id++ {
		if !t.IsStatement(id) || t.KindOf(id) != syntax.KindOther {
			continue
		}
		if strings.TrimSpace(t.Source(id)) == "debugger;" {
			out = append(out, id)
		}
	}
	return out
}

func (r *StripDebugger) Transform(t *syntax.Tree, id syntax.NodeID) bool {
	t.Mark(id, nil)
	return true
}

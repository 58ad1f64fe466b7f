package syntax

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/t14raptor/go-fast/ast"
	"github.com/t14raptor/go-fast/generator"
)

// NodeID indexes the tree's flat node table. Parent, declaration and
// reference links are all ids, never owning pointers.
type NodeID int

// InvalidNode is the id of no node.
const InvalidNode NodeID = -1

// Node is one entry in the arena. Start/End form the node's preorder
// interval: Start is the node's own preorder index, End the highest preorder
// index inside its subtree, so interval containment is subtree containment.
type Node struct {
	ID     NodeID
	Kind   Kind
	Parent NodeID
	Start  int
	End    int

	// Name is set for identifier nodes.
	Name string
	// Decl is the declaration-site node an identifier resolves to, or
	// InvalidNode for globals and unresolved names.
	Decl NodeID

	children []NodeID

	stmt *ast.Statement
	expr *ast.Expression
	src  string
}

// Binding is the resolved view of one declared name.
type Binding struct {
	Name       string
	Decl       NodeID
	Refs       []NodeID
	IsFunction bool
}

// Scope is the lexical scope introduced by one function-like node (or the
// program itself).
type Scope struct {
	// Block is the node owning the scope.
	Block NodeID

	parent   *Scope
	bindings map[string]*binding
	free     []NodeID
}

// Through returns the reference nodes inside this scope that resolve to a
// binding declared outside it (the scope's free variables).
func (s *Scope) Through() []NodeID {
	return s.free
}

type bindClass uint8

const (
	bindVar bindClass = iota
	bindFunc
	bindParam
)

type binding struct {
	name  string
	decl  NodeID
	class bindClass
	refs  []NodeID
}

// lookup resolves name through the scope chain, returning the binding and
// the scope that declares it.
func (s *Scope) lookup(name string) (*binding, *Scope) {
	for cur := s; cur != nil; cur = cur.parent {
		if b, ok := cur.bindings[name]; ok {
			return b, cur
		}
	}
	return nil, nil
}

// Tree is an arena-backed view over one parsed script. It is rebuilt from
// the underlying program after every committed change; node ids are stable
// within one analysis, never across Reanalyze.
type Tree struct {
	prog *ast.Program
	src  string
	hash string

	nodes        []Node
	root         NodeID
	scopeOf      map[NodeID]*Scope
	bindingOf    map[NodeID]*binding
	declBindings map[NodeID][]*binding
	marks        map[NodeID]ast.Node
}

// Build parses nothing itself: it wraps an already-parsed program in an
// arena and resolves scopes and references.
func Build(prog *ast.Program, src string) *Tree {
	t := &Tree{prog: prog, src: src, hash: ContentHash(src)}
	t.analyze()
	return t
}

// Reanalyze rebuilds the arena from the (possibly mutated) program. All
// previously issued ids are invalidated; pending marks are discarded.
func (t *Tree) Reanalyze() {
	t.analyze()
}

// Program exposes the underlying parse for printing.
func (t *Tree) Program() *ast.Program { return t.prog }

// ScriptHash identifies the script the tree was built from.
func (t *Tree) ScriptHash() string { return t.hash }

// Root returns the program node's id.
func (t *Tree) Root() NodeID { return t.root }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Valid reports whether id names a live node.
func (t *Tree) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// NodeAt returns a copy of the node record.
func (t *Tree) NodeAt(id NodeID) (Node, bool) {
	if !t.Valid(id) {
		return Node{}, false
	}
	return t.nodes[id], true
}

// KindOf returns the node's kind, or KindOther for invalid ids.
func (t *Tree) KindOf(id NodeID) Kind {
	if !t.Valid(id) {
		return KindOther
	}
	return t.nodes[id].Kind
}

// ParentOf returns the node's parent id.
func (t *Tree) ParentOf(id NodeID) NodeID {
	if !t.Valid(id) {
		return InvalidNode
	}
	return t.nodes[id].Parent
}

// Expr returns the expression wrapper backing the node, if any.
func (t *Tree) Expr(id NodeID) *ast.Expression {
	if !t.Valid(id) {
		return nil
	}
	return t.nodes[id].expr
}

// Stmt returns the statement wrapper backing the node, if any.
func (t *Tree) Stmt(id NodeID) *ast.Statement {
	if !t.Valid(id) {
		return nil
	}
	return t.nodes[id].stmt
}

// IsStatement reports whether the node is a statement wrapper.
func (t *Tree) IsStatement(id NodeID) bool { return t.Stmt(id) != nil }

// Contains reports whether outer's subtree includes inner (inclusive).
func (t *Tree) Contains(outer, inner NodeID) bool {
	if !t.Valid(outer) || !t.Valid(inner) {
		return false
	}
	o, i := &t.nodes[outer], &t.nodes[inner]
	return o.Start <= i.Start && i.End <= o.End
}

// EnclosingStatement walks up to the nearest statement node, including id
// itself.
func (t *Tree) EnclosingStatement(id NodeID) NodeID {
	for cur := id; t.Valid(cur); cur = t.nodes[cur].Parent {
		if t.nodes[cur].stmt != nil {
			return cur
		}
	}
	return InvalidNode
}

// ChildrenOf returns the node's direct children in source order.
func (t *Tree) ChildrenOf(id NodeID) []NodeID {
	if !t.Valid(id) {
		return nil
	}
	return t.nodes[id].children
}

// BindingOf resolves an identifier node to its binding.
func (t *Tree) BindingOf(id NodeID) (Binding, bool) {
	b, ok := t.bindingOf[id]
	if !ok {
		return Binding{}, false
	}
	return Binding{Name: b.name, Decl: b.decl, Refs: b.refs, IsFunction: b.class == bindFunc}, true
}

// BindingsDeclaredBy returns the bindings whose declaration site is the
// given node (a declaration statement may introduce several names).
func (t *Tree) BindingsDeclaredBy(decl NodeID) []Binding {
	raw := t.declBindings[decl]
	out := make([]Binding, 0, len(raw))
	for _, b := range raw {
		out = append(out, Binding{Name: b.name, Decl: b.decl, Refs: b.refs, IsFunction: b.class == bindFunc})
	}
	return out
}

// ScopeOf returns the scope introduced by a function-like node (or the
// program node).
func (t *Tree) ScopeOf(id NodeID) (*Scope, bool) {
	s, ok := t.scopeOf[id]
	return s, ok
}

// Mark schedules the node for replacement, or for deletion when replacement
// is nil. The tree is not altered until ApplyChanges.
func (t *Tree) Mark(id NodeID, replacement ast.Node) {
	if !t.Valid(id) {
		return
	}
	t.marks[id] = replacement
}

// IsMarked reports whether the node itself is scheduled to change.
func (t *Tree) IsMarked(id NodeID) bool {
	_, ok := t.marks[id]
	return ok
}

// HasMarkedWithin reports whether the node or any of its descendants is
// scheduled to change.
func (t *Tree) HasMarkedWithin(id NodeID) bool {
	if !t.Valid(id) {
		return false
	}
	for mid := range t.marks {
		if t.Contains(id, mid) {
			return true
		}
	}
	return false
}

// PendingChanges returns the number of uncommitted marks.
func (t *Tree) PendingChanges() int { return len(t.marks) }

// deletedStmt flags a statement slot for removal during compaction. The
// pointer itself is the sentinel; it never reaches generated output.
var deletedStmt ast.Stmt = &ast.BlockStatement{}

// ApplyChanges commits every pending mark into the underlying program and
// returns the number of nodes altered. A mark inside another marked node's
// subtree is dropped: the outer replacement supersedes it. Deleted statements
// are removed from their enclosing statement list where one exists (program
// body or block), and become empty blocks only in slots that cannot shrink;
// deleted expressions become the undefined identifier. A replacement whose
// shape does not fit its slot is skipped rather than committed.
func (t *Tree) ApplyChanges() int {
	applied := 0
	compact := false
	for id, repl := range t.marks {
		if t.shadowedByMark(id) {
			continue
		}
		n := &t.nodes[id]
		switch {
		case n.expr != nil:
			if repl == nil {
				n.expr.Expr = &ast.Identifier{Name: "undefined"}
				applied++
				continue
			}
			if e, ok := repl.(ast.Expr); ok {
				n.expr.Expr = e
				applied++
			}
		case n.stmt != nil:
			if repl == nil {
				n.stmt.Stmt = deletedStmt
				compact = true
				applied++
				continue
			}
			if s, ok := repl.(ast.Stmt); ok {
				n.stmt.Stmt = s
				applied++
			} else if e, ok := repl.(ast.Expr); ok {
				n.stmt.Stmt = &ast.ExpressionStatement{Expression: &ast.Expression{Expr: e}}
				applied++
			}
		}
	}
	if compact {
		t.compactDeleted()
	}
	t.marks = make(map[NodeID]ast.Node)
	return applied
}

// shadowedByMark reports whether another pending mark covers id's subtree.
func (t *Tree) shadowedByMark(id NodeID) bool {
	for other := range t.marks {
		if other != id && t.Contains(other, id) {
			return true
		}
	}
	return false
}

// compactDeleted removes sentinel-flagged statements from every statement
// list: the program body, blocks, function bodies, try clauses and switch
// case consequents. Containers are gathered before any list shrinks, since
// shrinking shifts the slots the node records point into. A sentinel left in
// a slot no list owns (a lone branch body, say) falls back to an empty block.
func (t *Tree) compactDeleted() {
	var blocks []*ast.BlockStatement
	var lists []*[]ast.Statement
	for i := range t.nodes {
		n := &t.nodes[i]
		switch {
		case n.stmt != nil && n.stmt.Stmt != deletedStmt:
			switch s := n.stmt.Stmt.(type) {
			case *ast.BlockStatement:
				blocks = append(blocks, s)
			case *ast.FunctionDeclaration:
				if s.Function != nil && s.Function.Body != nil {
					blocks = append(blocks, s.Function.Body)
				}
			case *ast.TryStatement:
				if s.Body != nil {
					blocks = append(blocks, s.Body)
				}
				if s.Catch != nil && s.Catch.Body != nil {
					blocks = append(blocks, s.Catch.Body)
				}
				if s.Finally != nil {
					blocks = append(blocks, s.Finally)
				}
			case *ast.SwitchStatement:
				for j := range s.Body {
					lists = append(lists, (*[]ast.Statement)(&s.Body[j].Consequent))
				}
			}
		case n.expr != nil:
			if fn, ok := n.expr.Expr.(*ast.FunctionLiteral); ok && fn.Body != nil {
				blocks = append(blocks, fn.Body)
			}
		}
	}
	t.prog.Body = dropDeleted(t.prog.Body)
	for _, b := range blocks {
		b.List = dropDeleted(b.List)
	}
	for _, l := range lists {
		*l = dropDeleted(*l)
	}
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.stmt != nil && n.stmt.Stmt == deletedStmt {
			n.stmt.Stmt = &ast.BlockStatement{}
		}
	}
}

func dropDeleted(list []ast.Statement) []ast.Statement {
	kept := list[:0]
	for _, s := range list {
		if s.Stmt == deletedStmt {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// Source renders the node back to source text. Statement nodes print as a
// one-statement program, expressions wrapped in an expression statement.
// The text is cached on the node record.
func (t *Tree) Source(id NodeID) string {
	if !t.Valid(id) {
		return ""
	}
	n := &t.nodes[id]
	if n.src != "" {
		return n.src
	}
	var prog *ast.Program
	switch {
	case id == t.root:
		prog = t.prog
	case n.stmt != nil:
		prog = &ast.Program{Body: []ast.Statement{*n.stmt}}
	case n.expr != nil && n.expr.Expr != nil:
		prog = &ast.Program{Body: []ast.Statement{{
			Stmt: &ast.ExpressionStatement{Expression: n.expr},
		}}}
	default:
		return ""
	}
	text := strings.TrimSpace(generator.Generate(prog))
	if n.expr != nil {
		// Expressions print through a statement wrapper; the terminator
		// belongs to the wrapper, not the expression.
		text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
	}
	n.src = text
	return n.src
}

// ContentHash hashes source text for cache keys and script identity.
func ContentHash(src string) string {
	h := fnv.New64a()
	h.Write([]byte(src))
	return fmt.Sprintf("%016x", h.Sum64())
}

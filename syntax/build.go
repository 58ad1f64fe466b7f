package syntax

import (
	"github.com/t14raptor/go-fast/ast"
)

// analyze (re)builds the arena, scope table and reference links by walking
// the underlying program.
func (t *Tree) analyze() {
	t.nodes = t.nodes[:0]
	t.scopeOf = make(map[NodeID]*Scope)
	t.bindingOf = make(map[NodeID]*binding)
	t.declBindings = make(map[NodeID][]*binding)
	t.marks = make(map[NodeID]ast.Node)

	b := &builder{t: t}
	b.V = b

	t.root = b.push(KindProgram, nil, nil)
	root := &Scope{Block: t.root, bindings: make(map[string]*binding)}
	t.scopeOf[t.root] = root
	b.scope = root
	b.stack = append(b.stack, t.root)

	t.prog.VisitWith(b)

	b.stack = b.stack[:0]
	t.nodes[t.root].End = b.counter - 1

	b.resolve()
}

type pendingRef struct {
	scope *Scope
	name  string
	id    NodeID
}

type builder struct {
	ast.NoopVisitor

	t       *Tree
	stack   []NodeID
	scope   *Scope
	counter int
	refs    []pendingRef
}

// declare records a binding in the current scope. The first declaration of
// a name wins; later shadow-free redeclarations keep the original site.
func (b *builder) declare(name string, decl NodeID, class bindClass) {
	if name == "" {
		return
	}
	s := b.scope
	if _, exists := s.bindings[name]; exists {
		return
	}
	bnd := &binding{name: name, decl: decl, class: class}
	s.bindings[name] = bnd
	b.t.declBindings[decl] = append(b.t.declBindings[decl], bnd)
}

func (b *builder) top() NodeID {
	if len(b.stack) == 0 {
		return InvalidNode
	}
	return b.stack[len(b.stack)-1]
}

func (b *builder) push(kind Kind, stmt *ast.Statement, expr *ast.Expression) NodeID {
	id := NodeID(len(b.t.nodes))
	parent := b.top()
	b.t.nodes = append(b.t.nodes, Node{
		ID:     id,
		Kind:   kind,
		Parent: parent,
		Start:  b.counter,
		End:    b.counter,
		Decl:   InvalidNode,
		stmt:   stmt,
		expr:   expr,
	})
	b.counter++
	if parent != InvalidNode {
		b.t.nodes[parent].children = append(b.t.nodes[parent].children, id)
	}
	return id
}

func (b *builder) VisitStatement(n *ast.Statement) {
	if n == nil || n.Stmt == nil {
		return
	}
	id := b.push(stmtKind(n.Stmt), n, nil)
	b.stack = append(b.stack, id)

	switch s := n.Stmt.(type) {
	case *ast.VariableDeclaration:
		for i := range s.List {
			d := s.List[i]
			if d.Target == nil || d.Target.Target == nil {
				continue
			}
			if ident, ok := d.Target.Target.(*ast.Identifier); ok {
				b.declare(ident.Name, id, bindVar)
			}
		}
		n.VisitChildrenWith(b)
	case *ast.FunctionDeclaration:
		if s.Function != nil && s.Function.Name != nil {
			b.declare(s.Function.Name.Name, id, bindFunc)
		}
		b.enterScope(id, "", functionParams(s.Function), func() {
			n.VisitChildrenWith(b)
		})
	case *ast.TryStatement:
		if s.Catch != nil && s.Catch.Parameter != nil {
			if ident, ok := s.Catch.Parameter.Target.(*ast.Identifier); ok {
				b.declare(ident.Name, id, bindVar)
			}
		}
		n.VisitChildrenWith(b)
	default:
		n.VisitChildrenWith(b)
	}

	b.stack = b.stack[:len(b.stack)-1]
	b.t.nodes[id].End = b.counter - 1
}

func (b *builder) VisitExpression(n *ast.Expression) {
	if n == nil || n.Expr == nil {
		return
	}
	id := b.push(exprKind(n.Expr), nil, n)
	b.stack = append(b.stack, id)

	switch e := n.Expr.(type) {
	case *ast.Identifier:
		b.t.nodes[id].Name = e.Name
		b.refs = append(b.refs, pendingRef{scope: b.scope, name: e.Name, id: id})
	case *ast.FunctionLiteral:
		self := ""
		if e.Name != nil {
			self = e.Name.Name
		}
		b.enterScope(id, self, functionParams(e), func() {
			n.VisitChildrenWith(b)
		})
	case *ast.ArrowFunctionLiteral:
		b.enterScope(id, "", arrowParams(e), func() {
			n.VisitChildrenWith(b)
		})
	default:
		n.VisitChildrenWith(b)
	}

	b.stack = b.stack[:len(b.stack)-1]
	b.t.nodes[id].End = b.counter - 1
}

// enterScope opens a function scope for id, declaring the function's own
// name (for named function expressions) and its parameters, then visits the
// children inside the new scope.
func (b *builder) enterScope(id NodeID, selfName string, params []string, visit func()) {
	s := &Scope{
		Block:    id,
		parent:   b.scope,
		bindings: make(map[string]*binding),
	}
	b.t.scopeOf[id] = s

	prev := b.scope
	b.scope = s
	if selfName != "" {
		b.declare(selfName, id, bindFunc)
	}
	for _, p := range params {
		b.declare(p, id, bindParam)
	}
	visit()
	b.scope = prev
}

// resolve matches every recorded identifier reference against the completed
// scope tables. Declarations are hoisted by construction: scopes hold all of
// their bindings before any reference is resolved. Each scope crossed
// between use and declaration records the reference as free.
func (b *builder) resolve() {
	for _, r := range b.refs {
		bnd, defScope := r.scope.lookup(r.name)
		if bnd == nil {
			continue
		}
		b.t.nodes[r.id].Decl = bnd.decl
		bnd.refs = append(bnd.refs, r.id)
		b.t.bindingOf[r.id] = bnd
		for s := r.scope; s != nil && s != defScope; s = s.parent {
			s.free = append(s.free, r.id)
		}
	}
}

func functionParams(fn *ast.FunctionLiteral) []string {
	if fn == nil {
		return nil
	}
	var names []string
	for i := range fn.ParameterList.List {
		p := fn.ParameterList.List[i]
		if p.Target == nil || p.Target.Target == nil {
			continue
		}
		if ident, ok := p.Target.Target.(*ast.Identifier); ok {
			names = append(names, ident.Name)
		}
	}
	return names
}

func arrowParams(fn *ast.ArrowFunctionLiteral) []string {
	if fn == nil {
		return nil
	}
	var names []string
	for i := range fn.ParameterList.List {
		p := fn.ParameterList.List[i]
		if p.Target == nil || p.Target.Target == nil {
			continue
		}
		if ident, ok := p.Target.Target.(*ast.Identifier); ok {
			names = append(names, ident.Name)
		}
	}
	return names
}

package rules

import (
	"github.com/deobjs/restringer/analyze"
	"github.com/deobjs/restringer/pipeline"
	"github.com/deobjs/restringer/reconstruct"
	"github.com/deobjs/restringer/sandbox"
	"github.com/deobjs/restringer/syntax"
)

// InlineCalls replaces calls to locally declared, never-mutated functions
// with the value the call produces. The collector assembles the fragment's
// required context, the reconstructor serializes it, and the sandbox proves
// the value; any step declining leaves the call untouched.
type InlineCalls struct {
	collector *analyze.Collector
	sb        *sandbox.Sandbox
}

var _ pipeline.Rule = (*InlineCalls)(nil)

func NewInlineCalls(collector *analyze.Collector, sb *sandbox.Sandbox) *InlineCalls {
	return &InlineCalls{collector: collector, sb: sb}
}

func (r *InlineCalls) Name() string { return "inline-calls" }

func (r *InlineCalls) Match(t *syntax.Tree) []syntax.NodeID {
	var out []syntax.NodeID
	for id := syntax.NodeID(0); int(id) < t.Len(); id++ {
		if t.KindOf(id) != syntax.KindCallExpression {
			continue
		}
		if r.resolvableCallee(t, id) {
			out = append(out, id)
		}
	}
	return out
}

// resolvableCallee reports whether the call's callee is a plain identifier
// bound to a local function whose binding is never mutated.
func (r *InlineCalls) resolvableCallee(t *syntax.Tree, call syntax.NodeID) bool {
	children := t.ChildrenOf(call)
	if len(children) == 0 {
		return false
	}
	callee := children[0]
	if t.KindOf(callee) != syntax.KindIdentifier {
		return false
	}
	binding, ok := t.BindingOf(callee)
	if !ok || !binding.IsFunction {
		return false
	}
	return !analyze.HasMutatingReference(t, binding)
}

func (r *InlineCalls) Transform(t *syntax.Tree, call syntax.NodeID) bool {
	ctx := r.collector.Collect(t, call, true)
	if len(ctx) == 0 {
		return false
	}
	fragment := reconstruct.Reconstruct(t, ctx, false) + "\n(" + t.Source(call) + ");"
	res := r.sb.Evaluate(fragment)
	if res == sandbox.BadValue {
		return false
	}
	if !isInlinableValue(res.Expr.Expr) || res.Src == t.Source(call) {
		return false
	}
	t.Mark(call, res.Expr.Expr)
	return true
}

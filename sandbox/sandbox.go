// Package sandbox evaluates extracted script fragments in a bounded,
// deterministic, isolated environment and converts the completion value back
// into an expression node. Anything that cannot be resolved safely comes back
// as the BadValue sentinel, never as an error the caller must untangle.
package sandbox

import (
	"regexp"
	"strings"
	"time"

	"github.com/t14raptor/go-fast/ast"
	"github.com/t14raptor/go-fast/parser"
	"go.uber.org/zap"

	"github.com/deobjs/restringer/cache"
	"github.com/deobjs/restringer/syntax"
)

// Result is a successfully resolved evaluation: the completion value as an
// expression node plus the source text it was rebuilt from.
type Result struct {
	Expr *ast.Expression
	Src  string
}

// BadValue means "no safe or deterministic result". Callers compare against
// it by identity.
var BadValue = &Result{}

// badMarker is the cached stand-in for a BadValue outcome, so failed
// fragments are not re-run either.
const badMarker = "\x00bad"

// cacheCeiling bounds the number of resident evaluation entries. Reaching it
// clears the whole store rather than evicting selectively: evaluation is
// idempotent, so re-computation only costs time.
const cacheCeiling = 1024

// Limits bounds one evaluation. Zero values disable the respective bound.
type Limits struct {
	Timeout       time.Duration
	MemoryBytes   uint64
	MaxStackDepth int
}

// DefaultLimits is the driver's standard evaluation budget.
var DefaultLimits = Limits{
	Timeout:       1500 * time.Millisecond,
	MemoryBytes:   256 << 20,
	MaxStackDepth: 2048,
}

// Engine is the pluggable isolation backend: it runs one self-contained
// fragment under the given limits and reports the completion value rendered
// back to source text.
type Engine interface {
	Run(fragment string, limits Limits) (string, error)
}

// Sandbox wires an engine, the script-scoped store and the evaluation
// limits together.
type Sandbox struct {
	engine Engine
	store  *cache.Store
	limits Limits
	log    *zap.Logger
}

// Option adjusts a Sandbox at construction.
type Option func(*Sandbox)

// WithLimits overrides the default evaluation budget.
func WithLimits(l Limits) Option {
	return func(s *Sandbox) { s.limits = l }
}

// WithEngine swaps the isolation backend.
func WithEngine(e Engine) Option {
	return func(s *Sandbox) { s.engine = e }
}

// WithLogger attaches a logger for evaluation diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(s *Sandbox) { s.log = log }
}

// New returns a sandbox backed by the embedded JavaScript engine.
func New(store *cache.Store, opts ...Option) *Sandbox {
	s := &Sandbox{
		engine: &gojaEngine{},
		store:  store,
		limits: DefaultLimits,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("sandbox")
	return s
}

// Evaluate runs the fragment and returns its completion value as an
// expression node, or BadValue. Known trap patterns are neutralized before
// execution; results are memoized by fragment content hash.
func (s *Sandbox) Evaluate(fragment string) *Result {
	if strings.TrimSpace(fragment) == "" {
		return BadValue
	}
	neutralized := NeutralizeTraps(fragment)
	key := "eval:" + syntax.ContentHash(neutralized)

	entries := s.store.Active()
	if v, ok := entries.Get(key); ok {
		if src, ok := v.(string); ok {
			if src == badMarker {
				return BadValue
			}
			if r := parseResult(src); r != nil {
				return r
			}
		}
	}

	rendered, err := s.engine.Run(neutralized, s.limits)
	if err != nil {
		s.log.Debug("evaluation rejected",
			zap.String("fragment_hash", syntax.ContentHash(neutralized)),
			zap.Error(err))
		s.remember(key, badMarker)
		return BadValue
	}
	r := parseResult(rendered)
	if r == nil {
		s.remember(key, badMarker)
		return BadValue
	}
	s.remember(key, rendered)
	return r
}

func (s *Sandbox) remember(key, src string) {
	if s.store.Len() >= cacheCeiling {
		s.store.Flush()
	}
	s.store.Active().Set(key, src)
}

// parseResult re-parses rendered value text into a fresh expression node.
// The parenthesized wrapping keeps object literals from reading as blocks.
func parseResult(src string) *Result {
	prog, err := parser.ParseFile("(" + src + ");")
	if err != nil || prog == nil || len(prog.Body) == 0 {
		return nil
	}
	es, ok := prog.Body[0].Stmt.(*ast.ExpressionStatement)
	if !ok || es.Expression == nil || es.Expression.Expr == nil {
		return nil
	}
	return &Result{Expr: es.Expression, Src: src}
}

var (
	// Empty-body unconditional loops hang the engine until the timeout.
	// Rewriting them away lets the rest of the fragment complete.
	reWhileTrap = regexp.MustCompile(`while\s*\(\s*(?:true|!0|!""|!''|1)\s*\)\s*\{\s*\}`)
	reForTrap   = regexp.MustCompile(`for\s*\(\s*;\s*;\s*\)\s*\{\s*\}`)

	// Bare breakpoint statements, plus the split-string disguise used to
	// smuggle one through a constructed eval.
	reDebugger      = regexp.MustCompile(`\bdebugger\b\s*;?`)
	// RE2 has no backreferences, so matching-quote pairs are spelled out.
	reDebuggerSplit = regexp.MustCompile(`(?:'debu'|"debu")\s*\+\s*(?:'gger'|"gger")`)
)

// NeutralizeTraps textually disarms known anti-analysis patterns so a
// fragment is guaranteed to terminate within the timeout.
func NeutralizeTraps(fragment string) string {
	out := reWhileTrap.ReplaceAllString(fragment, ";")
	out = reForTrap.ReplaceAllString(out, ";")
	out = reDebugger.ReplaceAllString(out, ";")
	out = reDebuggerSplit.ReplaceAllString(out, `"debugge_"`)
	return out
}

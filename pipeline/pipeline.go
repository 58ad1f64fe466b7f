// Package pipeline drives an ordered list of rewrite rules to a fixpoint
// over one script's tree.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/deobjs/restringer/cache"
	"github.com/deobjs/restringer/syntax"
)

// Rule is one rewrite. Match scans the tree without mutating it and returns
// candidate nodes; Transform marks nodes for replacement or deletion and
// reports whether it did. Rules are constructed once and reused across
// scripts, keeping any per-script state in the shared store.
type Rule interface {
	Name() string
	Match(t *syntax.Tree) []syntax.NodeID
	Transform(t *syntax.Tree, node syntax.NodeID) bool
}

// Status is the driver's terminal state.
type Status int

const (
	// StatusConverged means a full pass produced zero changes.
	StatusConverged Status = iota
	// StatusIterationLimit means the pass ceiling stopped a run that had
	// not stabilized. It is reported, never thrown: non-convergence points
	// at a rule-interaction bug worth diagnosing, not a fatal condition.
	StatusIterationLimit
	// StatusCancelled means the caller's context ended the run. Kept apart
	// from StatusIterationLimit so cancellation does not read as a
	// rule-interaction bug.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusCancelled:
		return "cancelled"
	default:
		return "iteration limit reached"
	}
}

// Result summarizes one run.
type Result struct {
	Status  Status
	Passes  int
	Changes int
}

// Options tune the driver.
type Options struct {
	// MaxPasses caps full passes over the rule list. Zero means the
	// default ceiling; the ceiling always exists so a run terminates even
	// when rules keep undoing each other.
	MaxPasses int
}

const defaultMaxPasses = 500

// Driver applies rules in caller-supplied order until a full pass changes
// nothing.
type Driver struct {
	rules []Rule
	store *cache.Store
	opts  Options
	log   *zap.Logger
}

// New returns a driver over the given rules. Rule order is preserved.
func New(rules []Rule, store *cache.Store, opts Options, log *zap.Logger) *Driver {
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = defaultMaxPasses
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{rules: rules, store: store, opts: opts, log: log.Named("pipeline")}
}

// Run processes one tree to fixpoint. The script's cache partition is
// activated up front and flushed after every pass that committed changes,
// since node ids do not survive reanalysis. Cancellation is cooperative and
// checked once per pass.
func (d *Driver) Run(ctx context.Context, t *syntax.Tree) Result {
	d.store.Get(t.ScriptHash())

	res := Result{Status: StatusIterationLimit}
	for pass := 1; pass <= d.opts.MaxPasses; pass++ {
		if ctx != nil && ctx.Err() != nil {
			d.log.Warn("run cancelled",
				zap.Int("pass", pass),
				zap.Error(ctx.Err()))
			res.Status = StatusCancelled
			res.Passes = pass - 1
			return res
		}

		changed := d.runPass(t)
		res.Passes = pass
		res.Changes += changed
		d.log.Debug("pass complete",
			zap.Int("pass", pass),
			zap.Int("changes", changed))

		if changed == 0 {
			res.Status = StatusConverged
			return res
		}
	}

	d.log.Warn("fixpoint not reached",
		zap.Int("passes", res.Passes),
		zap.Int("changes", res.Changes))
	return res
}

// runPass applies every rule once. Changes commit after each rule, so later
// rules in the same pass observe the mutated tree.
func (d *Driver) runPass(t *syntax.Tree) int {
	total := 0
	for _, rule := range d.rules {
		matches := rule.Match(t)
		transformed := 0
		for _, node := range matches {
			if !t.Valid(node) {
				continue
			}
			if rule.Transform(t, node) {
				transformed++
			}
		}
		applied := t.ApplyChanges()
		if applied == 0 {
			continue
		}
		total += applied
		d.log.Debug("rule committed",
			zap.String("rule", rule.Name()),
			zap.Int("matched", len(matches)),
			zap.Int("transformed", transformed),
			zap.Int("applied", applied))
		t.Reanalyze()
		d.store.Flush()
	}
	return total
}

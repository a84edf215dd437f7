// Package taint implements the lancet data-flow core: per-function taint
// state, the operator propagation model, the intraprocedural analyzer, the
// interprocedural summary builder, and the orchestrating engine.
package taint

import (
	"sort"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/core"
)

// value is the abstract taint of one expression or variable: which origin
// labels it carries, which sink types have been neutralized by sanitizers,
// and the ordered derivation steps that produced it.
type value struct {
	Labels core.LabelSet

	// Sanitizers is the history of sanitizer types applied, effective for
	// the eventual sink or not.
	Sanitizers []core.SanitizerType

	// Covering holds the sanitizer types applied to every contributing
	// fragment. Mixing in a raw fragment empties it while the history above
	// keeps the entry for reporting.
	Covering map[core.SanitizerType]bool

	// Neutralized holds the sink types the value is currently considered
	// safe for. Sanitization never clears history; it only adds here.
	Neutralized map[core.SinkType]bool

	// Steps is the derivation path, replayed into TaintFlow records.
	Steps []schemas.FlowStep

	// Origin of the earliest source that tainted this value.
	SourceRule string
	SourceExpr string
	SourceLoc  schemas.Location
}

func (v *value) tainted() bool {
	return v != nil && !v.Labels.Empty()
}

func (v *value) neutralizedFor(t core.SinkType) bool {
	return v != nil && v.Neutralized[t]
}

func (v *value) coveredBy(kind core.SanitizerType) bool {
	return v != nil && v.Covering[kind]
}

func (v *value) hasSanitizer(kind core.SanitizerType) bool {
	if v == nil {
		return false
	}
	for _, s := range v.Sanitizers {
		if s == kind {
			return true
		}
	}
	return false
}

// clone deep-copies the value so that propagation never aliases mutable
// state between variables.
func (v *value) clone() *value {
	if v == nil {
		return nil
	}
	out := &value{
		Labels:     v.Labels,
		SourceRule: v.SourceRule,
		SourceExpr: v.SourceExpr,
		SourceLoc:  v.SourceLoc,
	}
	if len(v.Sanitizers) > 0 {
		out.Sanitizers = append([]core.SanitizerType(nil), v.Sanitizers...)
	}
	if len(v.Covering) > 0 {
		out.Covering = make(map[core.SanitizerType]bool, len(v.Covering))
		for k, ok := range v.Covering {
			out.Covering[k] = ok
		}
	}
	if len(v.Neutralized) > 0 {
		out.Neutralized = make(map[core.SinkType]bool, len(v.Neutralized))
		for k, ok := range v.Neutralized {
			out.Neutralized[k] = ok
		}
	}
	if len(v.Steps) > 0 {
		out.Steps = append([]schemas.FlowStep(nil), v.Steps...)
	}
	return out
}

// addSanitizer records a sanitizer application, marking the listed sink
// types as neutralized going forward.
func (v *value) addSanitizer(kind core.SanitizerType, effective []core.SinkType) {
	if !v.hasSanitizer(kind) {
		v.Sanitizers = append(v.Sanitizers, kind)
	}
	if v.Covering == nil {
		v.Covering = make(map[core.SanitizerType]bool, 1)
	}
	v.Covering[kind] = true
	if v.Neutralized == nil {
		v.Neutralized = make(map[core.SinkType]bool, len(effective))
	}
	for _, t := range effective {
		v.Neutralized[t] = true
	}
}

// sanitizerNames returns the applied sanitizer types, sorted for
// deterministic reporting.
func (v *value) sanitizerNames() []string {
	if v == nil || len(v.Sanitizers) == 0 {
		return nil
	}
	names := make([]string, len(v.Sanitizers))
	for i, s := range v.Sanitizers {
		names[i] = string(s)
	}
	sort.Strings(names)
	return names
}

// state is the ephemeral per-function-analysis store. It is created when a
// function's analysis starts, mutated only during that traversal, and
// discarded once flows are extracted.
type state struct {
	vars map[string]*value
	// ret is the reserved return slot, consumed only by the summary
	// builder. It never produces a flow by itself.
	ret *value
}

func newState() *state {
	return &state{vars: make(map[string]*value)}
}

func (s *state) get(name string) *value {
	return s.vars[name]
}

// set binds a name to a taint value. An untainted value clears any earlier
// binding, mirroring reassignment with clean data.
func (s *state) set(name string, v *value) {
	if name == "" {
		return
	}
	if !v.tainted() {
		delete(s.vars, name)
		return
	}
	s.vars[name] = v
}

// mergeReturn folds a returned value into the reserved return slot using
// the branch-union rule, since multiple return statements behave like
// branches of the same function outcome.
func (s *state) mergeReturn(v *value, pos schemas.Location) {
	if !v.tainted() {
		return
	}
	if s.ret == nil {
		s.ret = v.clone()
		return
	}
	s.ret = propagate(opBranchMerge, "return", pos, s.ret, v)
}

package taint

import (
	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/core"
)

// op enumerates the propagation operators. Every "how does taint move"
// decision lives in the table below; the analyzer never special-cases an
// operator elsewhere.
type op uint8

const (
	// opAssign copies labels, sanitizer state, and path verbatim.
	opAssign op = iota
	// opConcat joins string fragments: labels union; the result keeps a
	// neutralized sink type only when every tainted fragment was
	// neutralized for it (one raw fragment taints the whole string).
	opConcat
	// opMemberAccess propagates a container's taint to an accessed field
	// (object granularity).
	opMemberAccess
	// opDestructure binds a field of a source value to a new name.
	opDestructure
	// opBranchMerge unions the outcomes of a ternary, logical operator, or
	// multiple return paths: either side could win at runtime, so assume
	// the more dangerous one.
	opBranchMerge
	// opCollection taints a whole collection when any inserted element is
	// tainted (collection granularity).
	opCollection
)

var stepKinds = map[op]schemas.StepKind{
	opAssign:       schemas.StepAssign,
	opConcat:       schemas.StepConcat,
	opMemberAccess: schemas.StepMemberAccess,
	opDestructure:  schemas.StepDestructure,
	opBranchMerge:  schemas.StepBranchMerge,
	opCollection:   schemas.StepCollection,
}

type propagateFunc func(dst string, pos schemas.Location, operands []*value) *value

// propagationTable is the single authority on operator semantics.
var propagationTable = map[op]propagateFunc{
	opAssign:       inheritVerbatim,
	opMemberAccess: inheritVerbatim,
	opDestructure:  inheritVerbatim,
	opConcat:       combineConservative,
	opBranchMerge:  combineConservative,
	opCollection:   combineConservative,
}

// propagate applies the rule for o and appends a step recording the move.
// The result is nil when no operand carries taint.
func propagate(o op, dst string, pos schemas.Location, operands ...*value) *value {
	rule, ok := propagationTable[o]
	if !ok {
		return nil
	}
	out := rule(dst, pos, operands)
	if !out.tainted() {
		return nil
	}
	from := ""
	for _, opr := range operands {
		if opr.tainted() {
			from = opr.SourceExpr
			break
		}
	}
	out.Steps = append(out.Steps, schemas.FlowStep{
		Kind:     stepKinds[o],
		From:     from,
		To:       dst,
		Location: pos,
	})
	return out
}

// inheritVerbatim handles single-operand operators: the destination takes
// the operand's labels, sanitizer set, and path unchanged.
func inheritVerbatim(_ string, _ schemas.Location, operands []*value) *value {
	for _, opr := range operands {
		if opr.tainted() {
			return opr.clone()
		}
	}
	return nil
}

// combineConservative handles multi-operand operators. Labels and sanitizer
// history union across all tainted operands; a sink type stays neutralized,
// and a sanitizer type stays covering, only when every tainted operand
// carried it.
func combineConservative(_ string, _ schemas.Location, operands []*value) *value {
	var tainted []*value
	for _, opr := range operands {
		if opr.tainted() {
			tainted = append(tainted, opr)
		}
	}
	if len(tainted) == 0 {
		return nil
	}
	if len(tainted) == 1 {
		return tainted[0].clone()
	}

	out := tainted[0].clone()
	for _, opr := range tainted[1:] {
		out.Labels = out.Labels.Union(opr.Labels)
		for _, s := range opr.Sanitizers {
			if !out.hasSanitizer(s) {
				out.Sanitizers = append(out.Sanitizers, s)
			}
		}
	}

	// Intersect neutralized sink types and covering sanitizers across every
	// tainted operand. One raw fragment strips both.
	intersected := make(map[core.SinkType]bool)
	for t := range out.Neutralized {
		all := true
		for _, opr := range tainted {
			if !opr.neutralizedFor(t) {
				all = false
				break
			}
		}
		if all {
			intersected[t] = true
		}
	}
	out.Neutralized = intersected

	covering := make(map[core.SanitizerType]bool)
	for s := range out.Covering {
		all := true
		for _, opr := range tainted {
			if !opr.coveredBy(s) {
				all = false
				break
			}
		}
		if all {
			covering[s] = true
		}
	}
	out.Covering = covering
	return out
}

package taint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/core"
)

func taintedValue(label core.Label, expr string) *value {
	return &value{
		Labels:     core.NewLabelSet(label),
		SourceRule: "test." + expr,
		SourceExpr: expr,
		Steps: []schemas.FlowStep{{
			Kind: schemas.StepSource, From: expr, To: expr,
		}},
	}
}

func TestPropagateNoTaint(t *testing.T) {
	assert.Nil(t, propagate(opAssign, "x", schemas.Location{}, nil))
	assert.Nil(t, propagate(opConcat, "x", schemas.Location{}, nil, &value{}))
}

func TestPropagateAssignInheritsVerbatim(t *testing.T) {
	src := taintedValue(core.LabelUserInput, "req.query")
	src.addSanitizer(core.SanitizeHTMLEscape, []core.SinkType{core.SinkHTMLOutput})

	out := propagate(opAssign, "x", schemas.Location{Line: 3}, src)
	require.NotNil(t, out)
	assert.Equal(t, src.Labels, out.Labels)
	assert.True(t, out.neutralizedFor(core.SinkHTMLOutput))
	assert.True(t, out.hasSanitizer(core.SanitizeHTMLEscape))

	require.Len(t, out.Steps, 2)
	step := out.Steps[1]
	assert.Equal(t, schemas.StepAssign, step.Kind)
	assert.Equal(t, "req.query", step.From)
	assert.Equal(t, "x", step.To)
	assert.Equal(t, 3, step.Location.Line)

	// The clone must not alias the operand.
	out.Neutralized[core.SinkSQLQuery] = true
	assert.False(t, src.neutralizedFor(core.SinkSQLQuery))
}

func TestPropagateConcatUnionsLabels(t *testing.T) {
	a := taintedValue(core.LabelUserInput, "req.query")
	b := taintedValue(core.LabelEnvVar, "process.env")

	out := propagate(opConcat, "msg", schemas.Location{}, a, nil, b)
	require.NotNil(t, out)
	assert.True(t, out.Labels.Has(core.LabelUserInput))
	assert.True(t, out.Labels.Has(core.LabelEnvVar))
	assert.Equal(t, schemas.StepConcat, out.Steps[len(out.Steps)-1].Kind)
	assert.Equal(t, "req.query", out.Steps[len(out.Steps)-1].From,
		"the step records the first tainted operand")
}

func TestPropagateConcatIntersectsNeutralized(t *testing.T) {
	clean := taintedValue(core.LabelUserInput, "a")
	clean.addSanitizer(core.SanitizeHTMLEscape, []core.SinkType{core.SinkHTMLOutput, core.SinkTemplate})
	raw := taintedValue(core.LabelUserInput, "b")

	out := propagate(opConcat, "a + b", schemas.Location{}, clean, raw)
	require.NotNil(t, out)
	assert.False(t, out.neutralizedFor(core.SinkHTMLOutput),
		"one raw fragment taints the whole string")
	assert.True(t, out.hasSanitizer(core.SanitizeHTMLEscape),
		"sanitizer history survives even when neutralization does not")

	bothClean := taintedValue(core.LabelUserInput, "c")
	bothClean.addSanitizer(core.SanitizeHTMLEscape, []core.SinkType{core.SinkHTMLOutput})
	out = propagate(opConcat, "a + c", schemas.Location{}, clean, bothClean)
	require.NotNil(t, out)
	assert.True(t, out.neutralizedFor(core.SinkHTMLOutput))
	assert.False(t, out.neutralizedFor(core.SinkTemplate),
		"only sink types neutralized on every operand survive the merge")
}

func TestPropagateConcatIntersectsCovering(t *testing.T) {
	hashed := taintedValue(core.LabelUserInput, "h")
	hashed.addSanitizer(core.SanitizeHash, []core.SinkType{core.SinkSQLQuery})
	raw := taintedValue(core.LabelUserInput, "y")

	out := propagate(opConcat, "h + y", schemas.Location{}, hashed, raw)
	require.NotNil(t, out)
	assert.False(t, out.coveredBy(core.SanitizeHash),
		"a raw fragment drops coverage while history keeps the entry")
	assert.True(t, out.hasSanitizer(core.SanitizeHash))

	alsoHashed := taintedValue(core.LabelUserInput, "g")
	alsoHashed.addSanitizer(core.SanitizeHash, []core.SinkType{core.SinkSQLQuery})
	out = propagate(opConcat, "h + g", schemas.Location{}, hashed, alsoHashed)
	require.NotNil(t, out)
	assert.True(t, out.coveredBy(core.SanitizeHash),
		"coverage survives when every fragment was covered")
}

func TestPropagateBranchMergeSingleOperand(t *testing.T) {
	a := taintedValue(core.LabelUserInput, "req.body")
	out := propagate(opBranchMerge, "pick", schemas.Location{}, a, nil)
	require.NotNil(t, out)
	assert.Equal(t, a.Labels, out.Labels)
	assert.Equal(t, schemas.StepBranchMerge, out.Steps[len(out.Steps)-1].Kind)
}

func TestPropagateCollection(t *testing.T) {
	elem := taintedValue(core.LabelUserInput, "req.query")
	out := propagate(opCollection, "items", schemas.Location{}, nil, elem, nil)
	require.NotNil(t, out)
	assert.Equal(t, schemas.StepCollection, out.Steps[len(out.Steps)-1].Kind)
	assert.Equal(t, "items", out.Steps[len(out.Steps)-1].To)
}

func TestStateSetClearsOnCleanValue(t *testing.T) {
	st := newState()
	st.set("x", taintedValue(core.LabelUserInput, "req.query"))
	require.NotNil(t, st.get("x"))

	st.set("x", nil)
	assert.Nil(t, st.get("x"), "reassignment with clean data clears the binding")

	st.set("", taintedValue(core.LabelUserInput, "req.query"))
	assert.Nil(t, st.get(""))
}

func TestStateMergeReturn(t *testing.T) {
	st := newState()
	st.mergeReturn(&value{}, schemas.Location{})
	assert.Nil(t, st.ret)

	a := taintedValue(core.LabelUserInput, "req.query")
	st.mergeReturn(a, schemas.Location{})
	require.NotNil(t, st.ret)
	assert.True(t, st.ret.Labels.Has(core.LabelUserInput))

	b := taintedValue(core.LabelEnvVar, "process.env")
	st.mergeReturn(b, schemas.Location{})
	assert.True(t, st.ret.Labels.Has(core.LabelUserInput))
	assert.True(t, st.ret.Labels.Has(core.LabelEnvVar),
		"multiple returns union like branches")
}

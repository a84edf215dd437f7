package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelSet_AddHasUnion(t *testing.T) {
	var s LabelSet
	assert.True(t, s.Empty())

	s = s.Add(LabelUserInput).Add(LabelFileRead)
	assert.True(t, s.Has(LabelUserInput))
	assert.True(t, s.Has(LabelFileRead))
	assert.False(t, s.Has(LabelEnvVar))
	assert.Equal(t, 2, s.Len())

	other := NewLabelSet(LabelEnvVar, LabelFileRead)
	merged := s.Union(other)
	assert.Equal(t, 3, merged.Len())
	// Union does not mutate the receiver.
	assert.Equal(t, 2, s.Len())
}

func TestLabelSet_AddOutOfRange(t *testing.T) {
	s := NewLabelSet(Label(64), Label(200))
	assert.True(t, s.Empty())
	assert.False(t, s.Has(Label(64)))
}

func TestLabelSet_Names_SortedAndStable(t *testing.T) {
	s := NewLabelSet(LabelUserInput, LabelEnvVar, LabelDeserialized)
	names := s.Names()
	require.Equal(t, []string{"deserialized", "env_var", "user_input"}, names)
	assert.Equal(t, "deserialized|env_var|user_input", s.String())
}

func TestLabel_StringRoundTrip(t *testing.T) {
	for _, l := range []Label{
		LabelUserInput, LabelFileRead, LabelEnvVar, LabelDatabaseRead,
		LabelAPIResponse, LabelDeserialized, LabelCommandOutput, LabelUnknownOrigin,
	} {
		assert.Equal(t, l, ParseLabel(l.String()), "label %d should round-trip", l)
	}
}

func TestParseLabel_CustomRange(t *testing.T) {
	l := ParseLabel("custom_3")
	assert.Equal(t, LabelCustomBase+3, l)
	assert.Equal(t, "custom_3", l.String())
}

func TestParseLabel_UnknownDegradesToUnknownOrigin(t *testing.T) {
	assert.Equal(t, LabelUnknownOrigin, ParseLabel("does_not_exist"))
	assert.Equal(t, LabelUnknownOrigin, ParseLabel("custom_999"))
	assert.Equal(t, LabelUnknownOrigin, ParseLabel(""))
}

func TestDefaultEffectiveness_UniversalSanitizers(t *testing.T) {
	// Validation and type casts neutralize every sink category; encoding
	// sanitizers stay scoped to their contexts.
	universal := []SanitizerType{SanitizeValidation, SanitizeTypeCast, SanitizeHash, SanitizeEncrypt}
	for _, san := range universal {
		assert.ElementsMatch(t, allSinkTypes, DefaultEffectiveness[san], "sanitizer %s", san)
	}

	htmlTargets := DefaultEffectiveness[SanitizeHTMLEscape]
	assert.Contains(t, htmlTargets, SinkHTMLOutput)
	assert.NotContains(t, htmlTargets, SinkSQLQuery)
}

package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/lancet/internal/core"
)

func TestPatternMatchesQualifiedName(t *testing.T) {
	p := Pattern{Kind: PatternQualifiedName, QualifiedName: "document.cookie"}

	assert.True(t, p.Matches(ExprRef{Path: []string{"document", "cookie"}}))
	assert.False(t, p.Matches(ExprRef{Path: []string{"document", "title"}}))
	assert.False(t, p.Matches(ExprRef{Path: []string{"window", "document", "cookie"}}),
		"qualified name must match the full chain, not a suffix")
	assert.False(t, p.Matches(ExprRef{}))
}

func TestPatternMatchesMemberAccess(t *testing.T) {
	p := Pattern{Kind: PatternMemberAccess, Object: "req", Property: "query"}

	assert.True(t, p.Matches(ExprRef{Path: []string{"req", "query"}}))
	assert.True(t, p.Matches(ExprRef{Path: []string{"ctx", "req", "query"}}),
		"object matches the immediate receiver regardless of qualification")
	assert.False(t, p.Matches(ExprRef{Path: []string{"res", "query"}}))
	assert.False(t, p.Matches(ExprRef{Path: []string{"query"}}),
		"bare identifier is not a member access")
}

func TestPatternMemberAccessWildcardReceiver(t *testing.T) {
	p := Pattern{Kind: PatternMemberAccess, Property: "innerHTML"}

	assert.True(t, p.Matches(ExprRef{Path: []string{"div", "innerHTML"}}))
	assert.True(t, p.Matches(ExprRef{Path: []string{"document", "body", "innerHTML"}}))
	assert.False(t, p.Matches(ExprRef{Path: []string{"innerHTML"}}))
}

func TestPatternMatchesCall(t *testing.T) {
	bare := Pattern{Kind: PatternCall, CallName: "eval"}
	assert.True(t, bare.Matches(ExprRef{IsCall: true, CallName: "eval"}))
	assert.True(t, bare.Matches(ExprRef{IsCall: true, CallName: "eval", Receiver: "window"}),
		"a pattern without a receiver matches any receiver")
	assert.False(t, bare.Matches(ExprRef{IsCall: false, CallName: "eval"}))
	assert.False(t, bare.Matches(ExprRef{IsCall: true, CallName: "exec"}))

	recv := Pattern{Kind: PatternCall, CallName: "query", Receiver: "db"}
	assert.True(t, recv.Matches(ExprRef{IsCall: true, CallName: "query", Receiver: "db"}))
	assert.True(t, recv.Matches(ExprRef{IsCall: true, CallName: "query", Receiver: "app.db"}),
		"the last segment of a qualified receiver is accepted")
	assert.False(t, recv.Matches(ExprRef{IsCall: true, CallName: "query", Receiver: "cache"}))
	assert.False(t, recv.Matches(ExprRef{IsCall: true, CallName: "query"}))
}

func TestPatternMatchesDecorator(t *testing.T) {
	any := Pattern{Kind: PatternDecorator, Decorator: "Query", ParamIndex: -1}
	assert.True(t, any.Matches(ExprRef{Decorator: "Query", ParamIndex: 2}))
	assert.False(t, any.Matches(ExprRef{Decorator: "Body", ParamIndex: 2}))
	assert.False(t, any.Matches(ExprRef{ParamIndex: 2}))

	fixed := Pattern{Kind: PatternDecorator, Decorator: "Query", ParamIndex: 1}
	assert.True(t, fixed.Matches(ExprRef{Decorator: "Query", ParamIndex: 1}))
	assert.False(t, fixed.Matches(ExprRef{Decorator: "Query", ParamIndex: 0}))
}

func TestPatternMatchesTypeAnnotation(t *testing.T) {
	p := Pattern{Kind: PatternTypeAnnotation, TypeName: "Request"}
	assert.True(t, p.Matches(ExprRef{TypeName: "Request"}))
	assert.False(t, p.Matches(ExprRef{TypeName: "Response"}))
	assert.False(t, p.Matches(ExprRef{}))
}

func TestPatternUnknownKind(t *testing.T) {
	p := Pattern{Kind: "regex", QualifiedName: ".*"}
	assert.False(t, p.Matches(ExprRef{Path: []string{"anything"}}))
	assert.False(t, p.Validate())
}

func TestPatternValidate(t *testing.T) {
	cases := []struct {
		name    string
		pattern Pattern
		want    bool
	}{
		{"qualified ok", Pattern{Kind: PatternQualifiedName, QualifiedName: "process.env"}, true},
		{"qualified empty", Pattern{Kind: PatternQualifiedName}, false},
		{"member ok wildcard object", Pattern{Kind: PatternMemberAccess, Property: "innerHTML"}, true},
		{"member no property", Pattern{Kind: PatternMemberAccess, Object: "req"}, false},
		{"call ok", Pattern{Kind: PatternCall, CallName: "exec"}, true},
		{"call empty", Pattern{Kind: PatternCall, Receiver: "db"}, false},
		{"decorator ok", Pattern{Kind: PatternDecorator, Decorator: "Param"}, true},
		{"decorator empty", Pattern{Kind: PatternDecorator}, false},
		{"type ok", Pattern{Kind: PatternTypeAnnotation, TypeName: "Request"}, true},
		{"type empty", Pattern{Kind: PatternTypeAnnotation}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.pattern.Validate())
		})
	}
}

func TestSanitizerEffectiveness(t *testing.T) {
	def := SanitizerRule{
		Meta: Meta{ID: "san.html"},
		Kind: core.SanitizeHTMLEscape,
	}
	assert.True(t, def.Neutralizes(core.SinkHTMLOutput))
	assert.False(t, def.Neutralizes(core.SinkSQLQuery),
		"HTML escaping does not defuse SQL sinks")

	override := SanitizerRule{
		Meta:      Meta{ID: "san.custom"},
		Kind:      core.SanitizeHTMLEscape,
		Effective: []core.SinkType{core.SinkSQLQuery},
	}
	assert.True(t, override.Neutralizes(core.SinkSQLQuery),
		"an explicit effectiveness list replaces the default table")
	assert.False(t, override.Neutralizes(core.SinkHTMLOutput))
}

// Package rules holds the matchable source, sink, and sanitizer definitions
// the taint engine tests program expressions against. Definitions are keyed
// by identifier; registering a definition with an existing identifier
// replaces it, which is how project and user rule files override builtins.
package rules

import (
	"strings"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/core"
)

// PatternKind discriminates the closed set of pattern shapes a definition
// may match with. Each kind has exactly one match procedure; there is no
// open-ended dispatch.
type PatternKind string

const (
	// PatternQualifiedName matches a full dotted access path, e.g.
	// "process.env" or "document.location.href".
	PatternQualifiedName PatternKind = "qualified_name"
	// PatternMemberAccess matches an object/property pair regardless of the
	// object's own qualification, e.g. object "req", property "query".
	PatternMemberAccess PatternKind = "member_access"
	// PatternCall matches a call by callee name with an optional receiver,
	// e.g. call "query" on receiver "db".
	PatternCall PatternKind = "call"
	// PatternDecorator matches a parameter carrying a decorator at a given
	// index (index -1 accepts any position).
	PatternDecorator PatternKind = "decorator"
	// PatternTypeAnnotation matches a parameter's declared type.
	PatternTypeAnnotation PatternKind = "type_annotation"
)

// ExprRef is the engine-side description of an expression (or parameter)
// being tested against the registries.
type ExprRef struct {
	// Path is the flattened property access chain, when the expression is a
	// simple chain of identifiers ("req.query.id" -> ["req","query","id"]).
	Path []string
	// IsCall is true when the expression is a call; CallName then holds the
	// invoked name and Receiver the chain before it.
	IsCall   bool
	CallName string
	Receiver string
	// Decorator / ParamIndex / TypeName describe a function parameter being
	// tested for source seeding.
	Decorator  string
	ParamIndex int
	TypeName   string
}

// Pattern is the tagged matchable of a rule definition. Only the fields for
// its Kind are consulted.
type Pattern struct {
	Kind PatternKind `yaml:"kind"`

	QualifiedName string `yaml:"qualified_name,omitempty"`

	Object   string `yaml:"object,omitempty"`
	Property string `yaml:"property,omitempty"`

	CallName string `yaml:"call,omitempty"`
	Receiver string `yaml:"receiver,omitempty"`

	Decorator  string `yaml:"decorator,omitempty"`
	ParamIndex int    `yaml:"param_index,omitempty"`

	TypeName string `yaml:"type,omitempty"`
}

// Matches tests the pattern against a described expression.
func (p Pattern) Matches(ref ExprRef) bool {
	switch p.Kind {
	case PatternQualifiedName:
		return matchQualifiedName(p, ref)
	case PatternMemberAccess:
		return matchMemberAccess(p, ref)
	case PatternCall:
		return matchCall(p, ref)
	case PatternDecorator:
		return matchDecorator(p, ref)
	case PatternTypeAnnotation:
		return matchTypeAnnotation(p, ref)
	default:
		return false
	}
}

func matchQualifiedName(p Pattern, ref ExprRef) bool {
	if len(ref.Path) == 0 {
		return false
	}
	return strings.Join(ref.Path, ".") == p.QualifiedName
}

func matchMemberAccess(p Pattern, ref ExprRef) bool {
	if len(ref.Path) < 2 {
		return false
	}
	prop := ref.Path[len(ref.Path)-1]
	obj := ref.Path[len(ref.Path)-2]
	// An empty object matches any receiver ("innerHTML" on anything).
	return (p.Object == "" || obj == p.Object) && prop == p.Property
}

func matchCall(p Pattern, ref ExprRef) bool {
	if !ref.IsCall || ref.CallName != p.CallName {
		return false
	}
	if p.Receiver == "" {
		return true
	}
	// Accept both the immediate receiver and the full qualified receiver.
	if ref.Receiver == p.Receiver {
		return true
	}
	if i := strings.LastIndex(ref.Receiver, "."); i >= 0 {
		return ref.Receiver[i+1:] == p.Receiver
	}
	return false
}

func matchDecorator(p Pattern, ref ExprRef) bool {
	if ref.Decorator == "" || ref.Decorator != p.Decorator {
		return false
	}
	return p.ParamIndex < 0 || p.ParamIndex == ref.ParamIndex
}

func matchTypeAnnotation(p Pattern, ref ExprRef) bool {
	return ref.TypeName != "" && ref.TypeName == p.TypeName
}

// Validate reports whether the pattern is well-formed for its kind.
func (p Pattern) Validate() bool {
	switch p.Kind {
	case PatternQualifiedName:
		return p.QualifiedName != ""
	case PatternMemberAccess:
		return p.Property != ""
	case PatternCall:
		return p.CallName != ""
	case PatternDecorator:
		return p.Decorator != ""
	case PatternTypeAnnotation:
		return p.TypeName != ""
	default:
		return false
	}
}

// Meta carries the fields shared by all three definition kinds.
type Meta struct {
	// ID is unique within a registry; re-registering the same ID replaces
	// the earlier definition.
	ID string `yaml:"id"`
	// Language scopes the definition; empty applies to every language.
	Language string `yaml:"language,omitempty"`
	// Framework scopes the definition to a detected framework; empty means
	// language-generic.
	Framework   string `yaml:"framework,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// SourceRule marks where untrusted data enters the program.
type SourceRule struct {
	Meta    `yaml:",inline"`
	Pattern Pattern `yaml:"pattern"`
	// Label is the origin category stamped on matched values.
	Label core.Label `yaml:"-"`
	// LabelName is the serialized form of Label for rule files.
	LabelName string `yaml:"label,omitempty"`
}

// SinkRule marks a dangerous operation.
type SinkRule struct {
	Meta    `yaml:",inline"`
	Pattern Pattern `yaml:"pattern"`
	// ArgIndex is the dangerous argument position; -1 means any argument.
	ArgIndex int `yaml:"arg_index"`
	// SinkType is the impact category, driving sanitizer effectiveness.
	SinkType core.SinkType `yaml:"sink_type"`
	// Severity is the risk assigned to an unsanitized flow into this sink.
	Severity schemas.RiskLevel `yaml:"severity"`
	// Required, when non-empty, lists the only sanitizer types accepted as
	// neutralizing a flow into this sink; the general effectiveness table
	// is bypassed.
	Required []core.SanitizerType `yaml:"required_sanitizers,omitempty"`
	CWE      []string             `yaml:"cwe,omitempty"`
	OWASP    []string             `yaml:"owasp,omitempty"`
}

// SanitizerRule marks a cleansing operation.
type SanitizerRule struct {
	Meta    `yaml:",inline"`
	Pattern Pattern `yaml:"pattern"`
	// Kind is the sanitizer category.
	Kind core.SanitizerType `yaml:"sanitizer_type"`
	// Effective overrides the default effectiveness set when non-empty.
	Effective []core.SinkType `yaml:"effective,omitempty"`
}

// EffectiveAgainst returns the sink types this sanitizer neutralizes.
func (r SanitizerRule) EffectiveAgainst() []core.SinkType {
	if len(r.Effective) > 0 {
		return r.Effective
	}
	return core.DefaultEffectiveness[r.Kind]
}

// Neutralizes reports whether the sanitizer is effective against the given
// sink type. A sanitizer never removes risk outside its effectiveness set.
func (r SanitizerRule) Neutralizes(t core.SinkType) bool {
	for _, s := range r.EffectiveAgainst() {
		if s == t {
			return true
		}
	}
	return false
}

func (r SourceRule) meta() Meta    { return r.Meta }
func (r SinkRule) meta() Meta      { return r.Meta }
func (r SanitizerRule) meta() Meta { return r.Meta }

func (r SourceRule) pattern() Pattern    { return r.Pattern }
func (r SinkRule) pattern() Pattern      { return r.Pattern }
func (r SanitizerRule) pattern() Pattern { return r.Pattern }

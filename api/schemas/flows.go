// Package schemas defines the public, self-contained output records of the
// lancet engine. Downstream consumers (rendering, persistence, gating) need
// no further lookups to interpret a flow, and must never mutate one; later
// passes attach annotations alongside a flow rather than rewriting it.
package schemas

// RiskLevel ranks the severity of a reported flow. The values are lowercase
// to align with external report formats.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
	RiskInfo     RiskLevel = "info"
)

// Rank returns a numeric ordering for sorting, highest risk first.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// Location is a position in an analyzed source file. Lines are 1-indexed.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// StepKind names the propagation operation that produced a flow step.
type StepKind string

const (
	StepSource       StepKind = "source"
	StepAssign       StepKind = "assign"
	StepConcat       StepKind = "concat"
	StepMemberAccess StepKind = "member_access"
	StepDestructure  StepKind = "destructure"
	StepBranchMerge  StepKind = "branch_merge"
	StepCollection   StepKind = "collection"
	StepSanitize     StepKind = "sanitize"
	StepFunctionCall StepKind = "function_call"
	StepReturn       StepKind = "return"
	StepSink         StepKind = "sink"
)

// FlowStep is one hop in the derivation of a tainted value.
type FlowStep struct {
	Kind StepKind `json:"kind"`
	// From is the expression the taint came from, To the expression that
	// received it.
	From     string   `json:"from"`
	To       string   `json:"to"`
	Location Location `json:"location"`
	// Note carries operation detail such as the sanitizer type applied or
	// the callee a summary was replayed for.
	Note string `json:"note,omitempty"`
}

// SourceDescriptor identifies where untrusted data entered a flow.
type SourceDescriptor struct {
	RuleID     string   `json:"rule_id"`
	Expression string   `json:"expression"`
	Labels     []string `json:"labels"`
	Location   Location `json:"location"`
}

// SinkDescriptor identifies the dangerous operation a flow reached.
type SinkDescriptor struct {
	RuleID     string   `json:"rule_id"`
	Expression string   `json:"expression"`
	SinkType   string   `json:"sink_type"`
	Location   Location `json:"location"`
	CWE        []string `json:"cwe,omitempty"`
	OWASP      []string `json:"owasp,omitempty"`
}

// TaintFlow is the durable record of one source-to-sink reachability.
// It is immutable after creation.
type TaintFlow struct {
	ID     string           `json:"id"`
	Source SourceDescriptor `json:"source"`
	Sink   SinkDescriptor   `json:"sink"`

	// Path is the ordered derivation from source to sink.
	Path []FlowStep `json:"path"`

	// Sanitizers lists the sanitizer types encountered along the path,
	// whether or not they were effective against the sink.
	Sanitizers []string `json:"sanitizers,omitempty"`

	// Sanitized is true when the sink's required risk was fully neutralized;
	// such flows are kept for visibility at RiskInfo, not as findings.
	Sanitized bool `json:"sanitized"`

	Risk       RiskLevel `json:"risk"`
	Confidence float64   `json:"confidence"`

	// Interprocedural is true when the flow crosses a function boundary via
	// a precomputed summary rather than direct analysis.
	Interprocedural bool `json:"interprocedural"`

	SourceFile string `json:"source_file"`
	SinkFile   string `json:"sink_file"`
}

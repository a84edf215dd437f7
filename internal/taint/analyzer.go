package taint

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/core"
	"github.com/xkilldash9x/lancet/internal/ir"
	"github.com/xkilldash9x/lancet/internal/rules"
)

// defaultStepInterval bounds how many traversal steps may pass between
// cooperative cancellation checks inside one function body.
const defaultStepInterval = 256

// probeRulePrefix marks the synthetic source seeded while probing one
// parameter during summary construction.
const probeRulePrefix = "param:"

// SummaryLookup resolves a function ID to its precomputed summary, if one
// exists. Lookups must be safe for concurrent use.
type SummaryLookup func(id string) (*Summary, bool)

// Analyzer walks one function body at a time, tracking taint state and
// emitting flows when tainted data reaches a sink. It is stateless across
// functions and safe for concurrent use; all per-run state lives in the
// run struct.
type Analyzer struct {
	logger     *zap.Logger
	rules      *rules.Set
	language   string
	frameworks []string

	// nameIndex maps simple callee names to function IDs; unresolvable
	// names are propagation dead-ends.
	nameIndex map[string]string
	summaries SummaryLookup

	stepInterval int
}

// NewAnalyzer builds an analyzer over the given registries. summaries may
// be nil during the earliest summary probes.
func NewAnalyzer(logger *zap.Logger, set *rules.Set, language string, frameworks []string, nameIndex map[string]string, summaries SummaryLookup) *Analyzer {
	if summaries == nil {
		summaries = func(string) (*Summary, bool) { return nil, false }
	}
	return &Analyzer{
		logger:       logger.Named("taint_analyzer"),
		rules:        set,
		language:     language,
		frameworks:   frameworks,
		nameIndex:    nameIndex,
		summaries:    summaries,
		stepInterval: defaultStepInterval,
	}
}

// run is the ephemeral state of one function analysis pass.
type run struct {
	*Analyzer
	ctx   context.Context
	fn    *ir.Function
	st    *state
	flows []schemas.TaintFlow

	// probeParam is the parameter index seeded in summary-probe mode, or
	// -1 for a normal analysis pass.
	probeParam int

	// branchDepth counts enclosing conditional arms; above zero,
	// identifier assignments merge instead of replacing.
	branchDepth int

	steps int

	// err holds the first cancellation hit inside expression evaluation,
	// where there is no error return to thread it through.
	err error
}

// Analyze performs a full intraprocedural pass over fn and returns the
// flows found. It is the detection-phase entry point.
func (a *Analyzer) Analyze(ctx context.Context, fn *ir.Function) ([]schemas.TaintFlow, error) {
	r := &run{Analyzer: a, ctx: ctx, fn: fn, st: newState(), probeParam: -1}
	if err := r.exec(); err != nil {
		return nil, err
	}
	return r.flows, nil
}

// Probe analyzes fn with only parameter index param seeded as tainted,
// using the generic unknown-origin label. It returns the taint reaching
// the reserved return slot and every flow produced, for the summary
// builder to record.
func (a *Analyzer) Probe(ctx context.Context, fn *ir.Function, param int) (*value, []schemas.TaintFlow, error) {
	r := &run{Analyzer: a, ctx: ctx, fn: fn, st: newState(), probeParam: param}
	if err := r.exec(); err != nil {
		return nil, nil, err
	}
	return r.st.ret, r.flows, nil
}

func (r *run) exec() error {
	if r.fn == nil || r.fn.Body == nil {
		return fmt.Errorf("function %q has no body", funcID(r.fn))
	}
	r.seedParams()
	for _, n := range r.fn.Body {
		if err := r.walk(n); err != nil {
			return err
		}
	}
	return r.err
}

func funcID(fn *ir.Function) string {
	if fn == nil {
		return ""
	}
	return fn.ID
}

// tick enforces the cooperative cancellation bound while traversing.
func (r *run) tick() error {
	r.steps++
	if r.steps%r.stepInterval == 0 {
		if err := r.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// seedParams taints parameters that match source rules keyed by decorator
// position or declared type. In probe mode only the probed parameter is
// seeded, with the unknown-origin label.
func (r *run) seedParams() {
	for i, p := range r.fn.Params {
		if r.probeParam >= 0 {
			if i != r.probeParam {
				continue
			}
			loc := r.loc(r.fn.Pos)
			v := &value{
				Labels:     core.NewLabelSet(core.LabelUnknownOrigin),
				SourceRule: probeRulePrefix + strconv.Itoa(i),
				SourceExpr: p.Name,
				SourceLoc:  loc,
				Steps: []schemas.FlowStep{{
					Kind: schemas.StepSource, From: p.Name, To: p.Name, Location: loc,
				}},
			}
			r.st.set(p.Name, v)
			continue
		}

		for _, dec := range p.Decorators {
			ref := rules.ExprRef{Decorator: dec.Name, ParamIndex: i}
			if src, ok := r.rules.Sources.Match(ref, r.language, r.frameworks); ok {
				r.seedParam(p.Name, src)
			}
		}
		if p.Type != "" {
			ref := rules.ExprRef{TypeName: p.Type, ParamIndex: i}
			if src, ok := r.rules.Sources.Match(ref, r.language, r.frameworks); ok {
				r.seedParam(p.Name, src)
			}
		}
	}
}

func (r *run) seedParam(name string, src rules.SourceRule) {
	loc := r.loc(r.fn.Pos)
	v := &value{
		Labels:     core.NewLabelSet(src.Label),
		SourceRule: src.ID,
		SourceExpr: name,
		SourceLoc:  loc,
		Steps: []schemas.FlowStep{{
			Kind: schemas.StepSource, From: name, To: name, Location: loc, Note: src.ID,
		}},
	}
	r.st.set(name, v)
}

// walk visits statements in a single forward pre-order pass. Both sides of
// a conditional accumulate into the same state: inside a branch arm
// assignments merge with the prior binding, so either arm's taint survives.
// Branch exclusivity is deliberately not modeled.
func (r *run) walk(n *ir.Node) error {
	if n == nil {
		return nil
	}
	if err := r.tick(); err != nil {
		return err
	}

	switch n.Kind {
	case ir.KindVarDecl, ir.KindAssign:
		r.handleAssign(n)
		return nil

	case ir.KindCall:
		// Statement-position call: evaluate for sink and sanitizer side
		// effects, discarding the result value.
		r.evalCall(n)
		return nil

	case ir.KindReturn:
		if n.Value != nil {
			v := r.eval(n.Value)
			if v.tainted() {
				r.st.mergeReturn(v, r.loc(n.Pos))
			}
		}
		return nil
	}

	if n.Kind == ir.KindBlock && n.Branch {
		r.branchDepth++
		defer func() { r.branchDepth-- }()
	}
	for _, c := range n.Children() {
		if err := r.walk(c); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) handleAssign(n *ir.Node) {
	if n.Target == nil {
		return
	}
	var v *value
	if n.Value != nil {
		v = r.eval(n.Value)
	}
	r.bindTarget(n.Target, v, n.Pos)
	r.checkAssignmentSink(n.Target, v, n.Pos)
}

// bindTarget writes a value into an assignment target: an identifier, a
// member access (object granularity), or a destructuring pattern.
func (r *run) bindTarget(target *ir.Node, v *value, pos ir.Position) {
	switch target.Kind {
	case ir.KindIdent:
		next := propagate(opAssign, target.Name, r.loc(pos), v)
		if r.branchDepth > 0 {
			if prior := r.st.get(target.Name); prior != nil {
				next = propagate(opBranchMerge, target.Name, r.loc(pos), prior, next)
			}
		}
		r.st.set(target.Name, next)

	case ir.KindMember:
		// Assigning into obj.field taints obj as a whole.
		base := baseIdent(target)
		if base == "" {
			return
		}
		merged := propagate(opBranchMerge, base, r.loc(pos), r.st.get(base), v)
		r.st.set(base, merged)

	case ir.KindPattern:
		r.bindPattern(target, v, pos)
	}
}

// bindPattern distributes a value across destructuring bindings. Each
// nameable binding inherits the source field's taint; with object
// granularity that equals the whole value's taint, and deeply nested
// patterns deliberately fall back to whole-value inheritance.
func (r *run) bindPattern(pattern *ir.Node, v *value, pos ir.Position) {
	for _, binding := range pattern.Args {
		switch binding.Kind {
		case ir.KindIdent:
			bound := propagate(opDestructure, binding.Name, r.loc(pos), v)
			if bound != nil && binding.Field != "" {
				bound.Steps[len(bound.Steps)-1].Note = "field " + binding.Field
			}
			r.st.set(binding.Name, bound)
		case ir.KindPattern:
			r.bindPattern(binding, v, pos)
		}
	}
}

// eval computes the abstract taint of an expression node.
func (r *run) eval(n *ir.Node) *value {
	if n == nil {
		return nil
	}
	if err := r.tick(); err != nil {
		if r.err == nil {
			r.err = err
		}
		return nil
	}

	switch n.Kind {
	case ir.KindIdent:
		if v := r.st.get(n.Name); v != nil {
			return v
		}
		return r.matchSourceExpr(n)

	case ir.KindMember:
		if v := r.matchSourceExpr(n); v != nil {
			return v
		}
		obj := r.eval(n.Object)
		return propagate(opMemberAccess, exprText(n), r.loc(n.Pos), obj)

	case ir.KindCall:
		return r.evalCall(n)

	case ir.KindTemplate:
		parts := make([]*value, 0, len(n.Args))
		for _, part := range n.Args {
			parts = append(parts, r.eval(part))
		}
		return propagate(opConcat, exprText(n), r.loc(n.Pos), parts...)

	case ir.KindBinary:
		if n.Op == "+" {
			return propagate(opConcat, exprText(n), r.loc(n.Pos), r.eval(n.Left), r.eval(n.Right))
		}
		// Comparisons and arithmetic produce values with no usable taint.
		return nil

	case ir.KindLogical:
		return propagate(opBranchMerge, exprText(n), r.loc(n.Pos), r.eval(n.Left), r.eval(n.Right))

	case ir.KindTernary:
		// Evaluate the condition for sink side effects, then union both
		// branches: either could be the one taken at runtime.
		r.eval(n.Cond)
		return propagate(opBranchMerge, exprText(n), r.loc(n.Pos), r.eval(n.Then), r.eval(n.Else))

	case ir.KindSpread:
		return r.eval(n.Value)

	case ir.KindCollection:
		elems := make([]*value, 0, len(n.Args))
		for _, e := range n.Args {
			elems = append(elems, r.eval(e))
		}
		return propagate(opCollection, exprText(n), r.loc(n.Pos), elems...)

	case ir.KindLiteral:
		return nil
	}

	return nil
}

// matchSourceExpr tests an identifier or member chain against the source
// registry and mints a fresh tainted value on a match.
func (r *run) matchSourceExpr(n *ir.Node) *value {
	path := flattenPath(n)
	if path == nil {
		return nil
	}
	src, ok := r.rules.Sources.Match(rules.ExprRef{Path: path}, r.language, r.frameworks)
	if !ok {
		return nil
	}
	expr := strings.Join(path, ".")
	loc := r.loc(n.Pos)
	return &value{
		Labels:     core.NewLabelSet(src.Label),
		SourceRule: src.ID,
		SourceExpr: expr,
		SourceLoc:  loc,
		Steps: []schemas.FlowStep{{
			Kind: schemas.StepSource, From: expr, To: expr, Location: loc, Note: src.ID,
		}},
	}
}

// evalCall handles a call expression end to end: arguments first, then the
// sink check, then sanitizer marking, then callee summary application.
func (r *run) evalCall(n *ir.Node) *value {
	callRef, callExpr := callRef(n)

	args := make([]*value, len(n.Args))
	for i, arg := range n.Args {
		args[i] = r.eval(arg)
	}

	// Sink check comes first so that sanitize(sink(x)) still reports.
	if sink, ok := r.rules.Sinks.Match(callRef, r.language, r.frameworks); ok {
		r.checkSink(sink, callExpr, n, args)
	}

	// Sanitizer marking: forward only, history is never cleared.
	if san, ok := r.rules.Sanitizers.Match(callRef, r.language, r.frameworks); ok {
		return r.applySanitizer(san, n, args)
	}

	// Source call (e.g. fs.readFileSync(...)).
	if src, ok := r.rules.Sources.Match(callRef, r.language, r.frameworks); ok {
		loc := r.loc(n.Pos)
		return &value{
			Labels:     core.NewLabelSet(src.Label),
			SourceRule: src.ID,
			SourceExpr: callExpr,
			SourceLoc:  loc,
			Steps: []schemas.FlowStep{{
				Kind: schemas.StepSource, From: callExpr, To: callExpr, Location: loc, Note: src.ID,
			}},
		}
	}

	// Precomputed callee summary.
	if id, ok := r.resolveCallee(n); ok {
		if summary, ok := r.summaries(id); ok {
			return r.applySummary(summary, callExpr, n, args)
		}
	}

	// Collection-add methods taint the receiver collection.
	r.applyCollectionAdd(n, args)

	// Unknown callee: propagation deliberately stops here rather than
	// guessing (false-negative bias).
	return nil
}

// resolveCallee maps a simple identifier callee to a known function ID.
func (r *run) resolveCallee(n *ir.Node) (string, bool) {
	if n.Callee == nil || n.Callee.Kind != ir.KindIdent {
		return "", false
	}
	id, ok := r.nameIndex[n.Callee.Name]
	return id, ok
}

var collectionAddMethods = map[string]bool{"push": true, "add": true, "append": true, "unshift": true, "concat": true}

func (r *run) applyCollectionAdd(n *ir.Node, args []*value) {
	if n.Callee == nil || n.Callee.Kind != ir.KindMember || !collectionAddMethods[n.Callee.Name] {
		return
	}
	base := baseIdent(n.Callee.Object)
	if base == "" {
		return
	}
	operands := append([]*value{r.st.get(base)}, args...)
	if merged := propagate(opCollection, base, r.loc(n.Pos), operands...); merged != nil {
		r.st.set(base, merged)
	}
}

// applySanitizer marks arguments and the call result as sanitized with the
// rule's type.
func (r *run) applySanitizer(san rules.SanitizerRule, n *ir.Node, args []*value) *value {
	effective := san.EffectiveAgainst()
	var result *value
	for i, arg := range args {
		if !arg.tainted() {
			continue
		}
		cleaned := arg.clone()
		cleaned.addSanitizer(san.Kind, effective)
		cleaned.Steps = append(cleaned.Steps, schemas.FlowStep{
			Kind:     schemas.StepSanitize,
			From:     cleaned.SourceExpr,
			To:       exprText(n),
			Location: r.loc(n.Pos),
			Note:     string(san.Kind),
		})
		// Forward-sanitize the argument variable itself when nameable.
		if i < len(n.Args) && n.Args[i].Kind == ir.KindIdent {
			r.st.set(n.Args[i].Name, cleaned.clone())
		}
		if result == nil {
			result = cleaned
		} else {
			result = propagate(opBranchMerge, exprText(n), r.loc(n.Pos), result, cleaned)
		}
	}
	return result
}

// applySummary replays a callee's precomputed transfers at this call site.
func (r *run) applySummary(s *Summary, callExpr string, n *ir.Node, args []*value) *value {
	if s.IsSanitizer {
		san := rules.SanitizerRule{Kind: s.SanitizerKind}
		return r.applySanitizer(san, n, args)
	}

	var result *value
	for _, tr := range s.Returns {
		if tr.Param >= len(args) || !args[tr.Param].tainted() {
			continue
		}
		out := args[tr.Param].clone()
		out.Labels = out.Labels.Union(tr.Labels)
		out.Steps = append(out.Steps, schemas.FlowStep{
			Kind:     schemas.StepFunctionCall,
			From:     out.SourceExpr,
			To:       callExpr,
			Location: r.loc(n.Pos),
			Note:     s.FunctionID,
		})
		if result == nil {
			result = out
		} else {
			result = propagate(opBranchMerge, callExpr, r.loc(n.Pos), result, out)
		}
	}

	for _, sf := range s.Sinks {
		if sf.Param >= len(args) || !args[sf.Param].tainted() {
			continue
		}
		arg := args[sf.Param]
		if arg.neutralizedFor(sf.SinkType) {
			continue
		}
		r.emitInterprocedural(arg, sf, n)
	}
	return result
}

// emitInterprocedural replays a callee's recorded parameter-to-sink path
// with the caller's derivation prefixed.
func (r *run) emitInterprocedural(arg *value, sf SinkTransfer, n *ir.Node) {
	path := append(append([]schemas.FlowStep(nil), arg.Steps...), sf.Path...)
	sanitized := sf.Sanitized
	confidence := scoreConfidence(len(path), sanitized, true)

	sinkDesc := sf.Sink
	flow := schemas.TaintFlow{
		Source: schemas.SourceDescriptor{
			RuleID:     arg.SourceRule,
			Expression: arg.SourceExpr,
			Labels:     arg.Labels.Names(),
			Location:   arg.SourceLoc,
		},
		Sink:            sinkDesc,
		Path:            path,
		Sanitizers:      mergeSanitizerNames(arg.sanitizerNames(), sf.Sanitizers),
		Sanitized:       sanitized,
		Risk:            riskFor(sf.Severity, sanitized, confidence),
		Confidence:      confidence,
		Interprocedural: true,
		SourceFile:      arg.SourceLoc.File,
		SinkFile:        sinkDesc.Location.File,
	}
	flow.ID = flowID(flow)
	r.flows = append(r.flows, flow)
}

// checkSink tests the designated argument of a matched sink call and emits
// a flow when tainted.
func (r *run) checkSink(sink rules.SinkRule, callExpr string, n *ir.Node, args []*value) {
	indices := []int{sink.ArgIndex}
	if sink.ArgIndex < 0 {
		indices = indices[:0]
		for i := range args {
			indices = append(indices, i)
		}
	}
	for _, i := range indices {
		if i >= len(args) || !args[i].tainted() {
			continue
		}
		r.emitFlow(args[i], sink, callExpr, n.Pos)
		return
	}
}

// checkAssignmentSink reports writes of tainted data into sink properties
// such as element.innerHTML.
func (r *run) checkAssignmentSink(target *ir.Node, v *value, pos ir.Position) {
	if !v.tainted() || target.Kind != ir.KindMember {
		return
	}
	path := flattenPath(target)
	if path == nil {
		return
	}
	sink, ok := r.rules.Sinks.Match(rules.ExprRef{Path: path}, r.language, r.frameworks)
	if !ok {
		return
	}
	r.emitFlow(v, sink, strings.Join(path, "."), pos)
}

func (r *run) emitFlow(v *value, sink rules.SinkRule, sinkExpr string, pos ir.Position) {
	sanitized := r.sinkNeutralized(v, sink)
	loc := r.loc(pos)
	path := append(append([]schemas.FlowStep(nil), v.Steps...), schemas.FlowStep{
		Kind:     schemas.StepSink,
		From:     v.SourceExpr,
		To:       sinkExpr,
		Location: loc,
		Note:     sink.ID,
	})
	confidence := scoreConfidence(len(path), sanitized, false)

	flow := schemas.TaintFlow{
		Source: schemas.SourceDescriptor{
			RuleID:     v.SourceRule,
			Expression: v.SourceExpr,
			Labels:     v.Labels.Names(),
			Location:   v.SourceLoc,
		},
		Sink: schemas.SinkDescriptor{
			RuleID:     sink.ID,
			Expression: sinkExpr,
			SinkType:   string(sink.SinkType),
			Location:   loc,
			CWE:        sink.CWE,
			OWASP:      sink.OWASP,
		},
		Path:       path,
		Sanitizers: v.sanitizerNames(),
		Sanitized:  sanitized,
		Confidence: confidence,
		SourceFile: v.SourceLoc.File,
		SinkFile:   loc.File,
	}
	flow.Risk = riskFor(sink.Severity, sanitized, confidence)
	flow.ID = flowID(flow)

	r.logger.Debug("Taint flow detected",
		zap.String("function", r.fn.ID),
		zap.String("source", flow.Source.Expression),
		zap.String("sink", flow.Sink.Expression),
		zap.Bool("sanitized", sanitized),
	)
	r.flows = append(r.flows, flow)
}

// sinkNeutralized decides whether the value's applied sanitizers satisfy
// this sink: either one of the sink's explicitly required sanitizer types
// covers every contributing fragment, or the sink's type is in the
// neutralized set. Sanitizer history alone never satisfies a requirement,
// since concatenation keeps the history while reintroducing raw fragments.
func (r *run) sinkNeutralized(v *value, sink rules.SinkRule) bool {
	if len(sink.Required) > 0 {
		for _, req := range sink.Required {
			if v.coveredBy(req) {
				return true
			}
		}
		return false
	}
	return v.neutralizedFor(sink.SinkType)
}

func (r *run) loc(p ir.Position) schemas.Location {
	file := p.File
	if file == "" {
		file = r.fn.File
	}
	return schemas.Location{File: file, Line: p.Line, Column: p.Column}
}

// -- scoring --

// scoreConfidence implements the documented heuristic: long derivations are
// less reliable, summaries add boundary uncertainty, and sanitized flows
// are retained only for visibility.
func scoreConfidence(pathLen int, sanitized, interprocedural bool) float64 {
	c := 1.0
	if interprocedural {
		c = 0.8
	}
	if pathLen > 10 {
		c *= 0.8
	}
	if pathLen > 20 {
		c *= 0.75
	}
	if sanitized {
		c *= 0.3
	}
	return c
}

func riskFor(severity schemas.RiskLevel, sanitized bool, confidence float64) schemas.RiskLevel {
	if sanitized {
		return schemas.RiskInfo
	}
	if severity == "" {
		return schemas.RiskMedium
	}
	if confidence < 0.5 && severity.Rank() > schemas.RiskMedium.Rank() {
		return schemas.RiskMedium
	}
	return severity
}

// flowID derives a stable identifier from the flow's identity triple so
// that re-runs on unchanged inputs produce identical records.
func flowID(f schemas.TaintFlow) string {
	key := fmt.Sprintf("%s|%s|%s:%d:%d|%d",
		f.Source.Expression, f.Sink.Expression,
		f.Sink.Location.File, f.Sink.Location.Line, f.Sink.Location.Column,
		len(f.Path),
	)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func mergeSanitizerNames(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// -- expression helpers --

// flattenPath renders a chain of identifier member accesses into a path
// slice; computed or call-based chains return nil.
func flattenPath(n *ir.Node) []string {
	var parts []string
	for n != nil {
		switch n.Kind {
		case ir.KindIdent:
			parts = append([]string{n.Name}, parts...)
			return parts
		case ir.KindMember:
			if n.Name == "" {
				return nil
			}
			parts = append([]string{n.Name}, parts...)
			n = n.Object
		default:
			return nil
		}
	}
	return nil
}

// callRef describes a call for registry matching and reporting.
func callRef(n *ir.Node) (rules.ExprRef, string) {
	ref := rules.ExprRef{IsCall: true}
	expr := "()"
	if n.Callee == nil {
		return ref, expr
	}
	switch n.Callee.Kind {
	case ir.KindIdent:
		ref.CallName = n.Callee.Name
		ref.Path = []string{n.Callee.Name}
		expr = n.Callee.Name
	case ir.KindMember:
		ref.CallName = n.Callee.Name
		if path := flattenPath(n.Callee); path != nil {
			ref.Path = path
			ref.Receiver = strings.Join(path[:len(path)-1], ".")
			expr = strings.Join(path, ".")
		} else if n.Callee.Object != nil {
			ref.Receiver = baseIdent(n.Callee.Object)
			expr = ref.Receiver + "." + n.Callee.Name
		}
	}
	return ref, expr
}

// baseIdent returns the root identifier of a member chain.
func baseIdent(n *ir.Node) string {
	for n != nil {
		if n.Kind == ir.KindIdent {
			return n.Name
		}
		if n.Kind == ir.KindMember {
			n = n.Object
			continue
		}
		return ""
	}
	return ""
}

func exprText(n *ir.Node) string {
	if n == nil {
		return ""
	}
	if n.Text != "" {
		return n.Text
	}
	if path := flattenPath(n); path != nil {
		return strings.Join(path, ".")
	}
	if n.Name != "" {
		return n.Name
	}
	return n.Kind.String()
}

package taint

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/yourbasic/graph"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/core"
	"github.com/xkilldash9x/lancet/internal/ir"
	"github.com/xkilldash9x/lancet/internal/rules"
)

// maxFixedPointIterations bounds the refinement of mutually recursive
// summaries. Components that have not stabilized by then keep their last
// approximation at reduced confidence.
const maxFixedPointIterations = 3

// nonConvergedConfidence is assigned to summaries of recursive components
// that did not reach a fixed point within the iteration bound.
const nonConvergedConfidence = 0.6

// ReturnTransfer records that taint entering through a parameter reaches
// the function's return value.
type ReturnTransfer struct {
	Param  int
	Labels core.LabelSet
}

// SinkTransfer records that taint entering through a parameter reaches a
// sink inside the function (or transitively through its callees).
type SinkTransfer struct {
	Param      int
	SinkType   core.SinkType
	Severity   schemas.RiskLevel
	Sanitized  bool
	Sanitizers []string
	Sink       schemas.SinkDescriptor
	Path       []schemas.FlowStep
}

// Summary is the reusable interprocedural model of one function: which
// parameters flow to its return value and which reach sinks. Sanitizer
// functions short-circuit to a kind instead of transfer lists.
type Summary struct {
	FunctionID string
	Returns    []ReturnTransfer
	Sinks      []SinkTransfer

	IsSanitizer   bool
	SanitizerKind core.SanitizerType

	Confidence float64
}

// summaryStore is the concurrent map backing SummaryLookup during and
// after the build phase.
type summaryStore struct {
	mu sync.RWMutex
	m  map[string]*Summary
}

func newSummaryStore() *summaryStore {
	return &summaryStore{m: make(map[string]*Summary)}
}

func (s *summaryStore) get(id string) (*Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.m[id]
	return sum, ok
}

func (s *summaryStore) put(sum *Summary) {
	s.mu.Lock()
	s.m[sum.FunctionID] = sum
	s.mu.Unlock()
}

func (s *summaryStore) snapshot() map[string]*Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Summary, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// Builder computes function summaries bottom-up over the call graph. Call
// cycles are collapsed into strongly connected components and resolved by
// bounded fixed-point iteration.
type Builder struct {
	logger     *zap.Logger
	rules      *rules.Set
	language   string
	frameworks []string
	workers    int
}

// NewBuilder constructs a summary builder. workers bounds the number of
// components summarized concurrently within one dependency layer.
func NewBuilder(logger *zap.Logger, set *rules.Set, language string, frameworks []string, workers int) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{
		logger:     logger.Named("summary_builder"),
		rules:      set,
		language:   language,
		frameworks: frameworks,
		workers:    workers,
	}
}

// Build summarizes every analyzable function and returns the finished
// store keyed by function ID. The result is deterministic for identical
// inputs regardless of worker scheduling.
func (b *Builder) Build(ctx context.Context, fns []*ir.Function, cg *ir.CallGraph, nameIndex map[string]string) (map[string]*Summary, error) {
	byID := make(map[string]*ir.Function, len(fns))
	ids := make([]string, 0, len(fns))
	for _, fn := range fns {
		if fn == nil || fn.ID == "" || fn.Body == nil {
			continue
		}
		byID[fn.ID] = fn
		ids = append(ids, fn.ID)
	}
	sort.Strings(ids)

	store := newSummaryStore()
	analyzer := NewAnalyzer(b.logger, b.rules, b.language, b.frameworks, nameIndex, store.get)

	layers, cyclic := dependencyLayers(ids, cg)
	for _, layer := range layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.workers)
		for _, comp := range layer {
			comp := comp
			g.Go(func() error {
				return b.summarizeComponent(gctx, analyzer, byID, store, comp, cyclic[componentKey(comp)])
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	b.logger.Debug("Summary construction complete", zap.Int("functions", len(ids)))
	return store.snapshot(), nil
}

// summarizeComponent handles one strongly connected component. Acyclic
// singletons take a single probe pass; cyclic components start from a
// conservative approximation and refine it.
func (b *Builder) summarizeComponent(ctx context.Context, analyzer *Analyzer, byID map[string]*ir.Function, store *summaryStore, comp []string, isCyclic bool) error {
	if !isCyclic {
		fn := byID[comp[0]]
		sum, err := b.summarizeOne(ctx, analyzer, fn)
		if err != nil {
			return err
		}
		store.put(sum)
		return nil
	}

	// Conservative seed: every parameter may reach the return value, and
	// syntactically visible param-to-sink calls are assumed live.
	for _, id := range comp {
		store.put(b.conservativeSummary(byID[id]))
	}

	converged := false
	for iter := 0; iter < maxFixedPointIterations && !converged; iter++ {
		converged = true
		for _, id := range comp {
			sum, err := b.summarizeOne(ctx, analyzer, byID[id])
			if err != nil {
				return err
			}
			prev, _ := store.get(id)
			if !sameSummary(prev, sum) {
				converged = false
			}
			store.put(sum)
		}
	}
	if !converged {
		b.logger.Debug("Recursive component did not stabilize",
			zap.Strings("members", comp),
			zap.Int("iterations", maxFixedPointIterations),
		)
		for _, id := range comp {
			if sum, ok := store.get(id); ok {
				sum.Confidence = nonConvergedConfidence
				store.put(sum)
			}
		}
	}
	return nil
}

// summarizeOne probes each parameter of fn in isolation and assembles the
// transfers observed.
func (b *Builder) summarizeOne(ctx context.Context, analyzer *Analyzer, fn *ir.Function) (*Summary, error) {
	sum := &Summary{FunctionID: fn.ID, Confidence: 1.0}

	// A function that is itself a registered sanitizer needs no probing:
	// calls through it sanitize rather than propagate.
	if fn.Name != "" {
		ref := rules.ExprRef{IsCall: true, CallName: fn.Name, Path: []string{fn.Name}}
		if san, ok := b.rules.Sanitizers.Match(ref, b.language, b.frameworks); ok {
			sum.IsSanitizer = true
			sum.SanitizerKind = san.Kind
			return sum, nil
		}
	}

	for i := range fn.Params {
		ret, flows, err := analyzer.Probe(ctx, fn, i)
		if err != nil {
			return nil, err
		}
		if ret.tainted() {
			sum.Returns = append(sum.Returns, ReturnTransfer{Param: i, Labels: ret.Labels})
		}
		probeRule := probeRulePrefix + strconv.Itoa(i)
		for _, f := range flows {
			// Flows rooted in real sources are rediscovered by the
			// detection pass; only the probe-rooted ones belong here.
			if f.Source.RuleID != probeRule {
				continue
			}
			sum.Sinks = append(sum.Sinks, SinkTransfer{
				Param:      i,
				SinkType:   core.SinkType(f.Sink.SinkType),
				Severity:   f.Risk,
				Sanitized:  f.Sanitized,
				Sanitizers: f.Sanitizers,
				Sink:       f.Sink,
				Path:       trimProbePrefix(f.Path),
			})
		}
	}
	normalizeSummary(sum)
	return sum, nil
}

// conservativeSummary is the starting approximation for members of a call
// cycle: all parameters taint the return value, and any call that passes a
// parameter by name into a sink is assumed reachable.
func (b *Builder) conservativeSummary(fn *ir.Function) *Summary {
	sum := &Summary{FunctionID: fn.ID, Confidence: nonConvergedConfidence}
	paramIdx := make(map[string]int, len(fn.Params))
	for i := range fn.Params {
		sum.Returns = append(sum.Returns, ReturnTransfer{
			Param:  i,
			Labels: core.NewLabelSet(core.LabelUnknownOrigin),
		})
		paramIdx[fn.Params[i].Name] = i
	}
	b.scanSinkCalls(fn, fn.Body, paramIdx, sum)
	normalizeSummary(sum)
	return sum
}

func (b *Builder) scanSinkCalls(fn *ir.Function, nodes []*ir.Node, paramIdx map[string]int, sum *Summary) {
	for _, n := range nodes {
		b.scanSinkNode(fn, n, paramIdx, sum)
	}
}

func (b *Builder) scanSinkNode(fn *ir.Function, n *ir.Node, paramIdx map[string]int, sum *Summary) {
	if n == nil {
		return
	}
	if n.Kind == ir.KindCall {
		ref, callExpr := callRef(n)
		if sink, ok := b.rules.Sinks.Match(ref, b.language, b.frameworks); ok {
			for argPos, arg := range n.Args {
				if arg.Kind != ir.KindIdent {
					continue
				}
				pi, isParam := paramIdx[arg.Name]
				if !isParam || (sink.ArgIndex >= 0 && sink.ArgIndex != argPos) {
					continue
				}
				loc := schemas.Location{File: fn.File, Line: n.Pos.Line, Column: n.Pos.Column}
				sum.Sinks = append(sum.Sinks, SinkTransfer{
					Param:    pi,
					SinkType: sink.SinkType,
					Severity: sink.Severity,
					Sink: schemas.SinkDescriptor{
						RuleID:     sink.ID,
						Expression: callExpr,
						SinkType:   string(sink.SinkType),
						Location:   loc,
						CWE:        sink.CWE,
						OWASP:      sink.OWASP,
					},
					Path: []schemas.FlowStep{{
						Kind: schemas.StepSink, From: arg.Name, To: callExpr, Location: loc, Note: sink.ID,
					}},
				})
			}
		}
	}
	for _, c := range n.Children() {
		b.scanSinkNode(fn, c, paramIdx, sum)
	}
}

// trimProbePrefix drops the synthetic seed step so replayed paths begin at
// the call boundary rather than inside the callee's parameter list.
func trimProbePrefix(path []schemas.FlowStep) []schemas.FlowStep {
	if len(path) > 0 && path[0].Kind == schemas.StepSource {
		return path[1:]
	}
	return path
}

// normalizeSummary imposes a canonical transfer ordering so that summary
// equality and serialized output are stable across runs.
func normalizeSummary(s *Summary) {
	sort.Slice(s.Returns, func(i, j int) bool { return s.Returns[i].Param < s.Returns[j].Param })
	sort.Slice(s.Sinks, func(i, j int) bool {
		a, b := s.Sinks[i], s.Sinks[j]
		if a.Param != b.Param {
			return a.Param < b.Param
		}
		if a.SinkType != b.SinkType {
			return a.SinkType < b.SinkType
		}
		if a.Sink.Location.Line != b.Sink.Location.Line {
			return a.Sink.Location.Line < b.Sink.Location.Line
		}
		return a.Sink.Location.Column < b.Sink.Location.Column
	})
}

// sameSummary compares the transfer shape of two summaries. Paths and
// confidence are ignored: the fixed point is over what flows where, not
// over derivation detail.
func sameSummary(a, b *Summary) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.IsSanitizer != b.IsSanitizer || a.SanitizerKind != b.SanitizerKind {
		return false
	}
	if len(a.Returns) != len(b.Returns) || len(a.Sinks) != len(b.Sinks) {
		return false
	}
	for i := range a.Returns {
		if a.Returns[i] != b.Returns[i] {
			return false
		}
	}
	for i := range a.Sinks {
		x, y := a.Sinks[i], b.Sinks[i]
		if x.Param != y.Param || x.SinkType != y.SinkType || x.Sanitized != y.Sanitized {
			return false
		}
		if x.Sink.RuleID != y.Sink.RuleID || x.Sink.Location != y.Sink.Location {
			return false
		}
	}
	return true
}

// dependencyLayers collapses the call graph into strongly connected
// components and groups them into layers where every component depends
// only on components from earlier layers. Components within one layer are
// independent and may be summarized concurrently. The second result marks
// components containing a cycle.
func dependencyLayers(ids []string, cg *ir.CallGraph) ([][][]string, map[string]bool) {
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}

	g := graph.New(len(ids))
	selfLoop := make([]bool, len(ids))
	for i, id := range ids {
		for _, callee := range cg.ResolvedCallees(id) {
			j, ok := idx[callee]
			if !ok {
				continue
			}
			if j == i {
				selfLoop[i] = true
				continue
			}
			g.Add(i, j)
		}
	}

	comps := graph.StrongComponents(g)
	compOf := make([]int, len(ids))
	for ci, members := range comps {
		for _, v := range members {
			compOf[v] = ci
		}
	}

	// Condensation with edges reversed (callee component -> caller
	// component) so that Kahn layering yields leaves first.
	succ := make([]map[int]bool, len(comps))
	indeg := make([]int, len(comps))
	for i := range succ {
		succ[i] = make(map[int]bool)
	}
	for i, id := range ids {
		for _, callee := range cg.ResolvedCallees(id) {
			j, ok := idx[callee]
			if !ok || compOf[i] == compOf[j] {
				continue
			}
			if !succ[compOf[j]][compOf[i]] {
				succ[compOf[j]][compOf[i]] = true
				indeg[compOf[i]]++
			}
		}
	}

	cyclic := make(map[string]bool, len(comps))
	named := make([][]string, len(comps))
	for ci, members := range comps {
		names := make([]string, 0, len(members))
		hasLoop := len(members) > 1
		for _, v := range members {
			names = append(names, ids[v])
			if selfLoop[v] {
				hasLoop = true
			}
		}
		sort.Strings(names)
		named[ci] = names
		cyclic[componentKey(names)] = hasLoop
	}

	var layers [][][]string
	frontier := make([]int, 0, len(comps))
	for ci := range comps {
		if indeg[ci] == 0 {
			frontier = append(frontier, ci)
		}
	}
	for len(frontier) > 0 {
		layer := make([][]string, 0, len(frontier))
		sort.Slice(frontier, func(i, j int) bool {
			return named[frontier[i]][0] < named[frontier[j]][0]
		})
		var next []int
		for _, ci := range frontier {
			layer = append(layer, named[ci])
			for sc := range succ[ci] {
				indeg[sc]--
				if indeg[sc] == 0 {
					next = append(next, sc)
				}
			}
		}
		layers = append(layers, layer)
		frontier = next
	}
	return layers, cyclic
}

func componentKey(members []string) string {
	return strings.Join(members, "\x00")
}

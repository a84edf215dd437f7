package taint

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/ir"
	"github.com/xkilldash9x/lancet/internal/rules"
)

// Result is the outcome of one full analysis run.
type Result struct {
	Flows []schemas.TaintFlow

	// SummariesComputed counts the function summaries built during the
	// interprocedural phase.
	SummariesComputed int
	// SkippedFunctions counts inputs that could not be analyzed (missing
	// body or identity); they degrade coverage, never fail the run.
	SkippedFunctions int

	Elapsed time.Duration
}

// Engine orchestrates a run: summary construction over the call graph,
// then parallel per-function detection, then deduplication and ordering.
// An Engine is safe for concurrent runs.
type Engine struct {
	logger  *zap.Logger
	rules   *rules.Set
	workers int
}

// NewEngine builds an engine over the given rule set. workers bounds
// analysis concurrency in both phases; values below one collapse to one.
func NewEngine(logger *zap.Logger, set *rules.Set, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{logger: logger.Named("taint_engine"), rules: set, workers: workers}
}

// Run analyzes the given functions and returns every detected flow,
// deduplicated and ordered by risk. The only fatal configuration error is
// an entirely empty rule set; malformed functions are skipped and counted.
// Output is deterministic for identical inputs.
func (e *Engine) Run(ctx context.Context, fns []*ir.Function, cg *ir.CallGraph, language string, frameworks []string) (*Result, error) {
	start := time.Now()
	if err := e.rules.Validate(); err != nil {
		return nil, err
	}
	if cg == nil {
		cg = ir.NewCallGraph()
	}

	analyzable, skipped := splitAnalyzable(fns)
	if skipped > 0 {
		e.logger.Warn("Skipping unanalyzable functions", zap.Int("count", skipped))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nameIndex := buildNameIndex(analyzable)

	builder := NewBuilder(e.logger, e.rules, language, frameworks, e.workers)
	summaries, err := builder.Build(ctx, analyzable, cg, nameIndex)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lookup := func(id string) (*Summary, bool) {
		s, ok := summaries[id]
		return s, ok
	}
	analyzer := NewAnalyzer(e.logger, e.rules, language, frameworks, nameIndex, lookup)

	perFn := make([][]schemas.TaintFlow, len(analyzable))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, fn := range analyzable {
		i, fn := i, fn
		g.Go(func() error {
			flows, err := analyzer.Analyze(gctx, fn)
			if err != nil {
				return err
			}
			perFn[i] = flows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []schemas.TaintFlow
	for _, flows := range perFn {
		all = append(all, flows...)
	}
	flows := orderFlows(dedupeFlows(all))

	res := &Result{
		Flows:             flows,
		SummariesComputed: len(summaries),
		SkippedFunctions:  skipped,
		Elapsed:           time.Since(start),
	}
	e.logger.Info("Analysis complete",
		zap.Int("functions", len(analyzable)),
		zap.Int("flows", len(flows)),
		zap.Int("summaries", res.SummariesComputed),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func splitAnalyzable(fns []*ir.Function) ([]*ir.Function, int) {
	out := make([]*ir.Function, 0, len(fns))
	skipped := 0
	for _, fn := range fns {
		if fn == nil || fn.ID == "" || fn.Body == nil {
			skipped++
			continue
		}
		out = append(out, fn)
	}
	// Stable input order keeps the per-function result layout, and thus
	// dedupe tie-breaking, reproducible.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, skipped
}

// buildNameIndex maps simple function names to IDs for call resolution.
// A name defined more than once is ambiguous and resolves to nothing,
// trading recall for precision.
func buildNameIndex(fns []*ir.Function) map[string]string {
	idx := make(map[string]string, len(fns))
	ambiguous := make(map[string]bool)
	for _, fn := range fns {
		if fn.Name == "" || ambiguous[fn.Name] {
			continue
		}
		if _, seen := idx[fn.Name]; seen {
			delete(idx, fn.Name)
			ambiguous[fn.Name] = true
			continue
		}
		idx[fn.Name] = fn.ID
	}
	return idx
}

// dedupeFlows collapses flows sharing a source expression, sink expression
// and sink location, keeping the highest-confidence representative.
func dedupeFlows(flows []schemas.TaintFlow) []schemas.TaintFlow {
	type key struct {
		src, sink string
		loc       schemas.Location
	}
	best := make(map[key]int, len(flows))
	out := make([]schemas.TaintFlow, 0, len(flows))
	for _, f := range flows {
		k := key{src: f.Source.Expression, sink: f.Sink.Expression, loc: f.Sink.Location}
		if i, seen := best[k]; seen {
			if f.Confidence > out[i].Confidence {
				out[i] = f
			}
			continue
		}
		best[k] = len(out)
		out = append(out, f)
	}
	return out
}

// orderFlows sorts findings for presentation: highest risk first, then
// highest confidence, with location and expression tiebreaks so the order
// is total.
func orderFlows(flows []schemas.TaintFlow) []schemas.TaintFlow {
	sort.SliceStable(flows, func(i, j int) bool {
		a, b := flows[i], flows[j]
		if ra, rb := a.Risk.Rank(), b.Risk.Rank(); ra != rb {
			return ra > rb
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.SinkFile != b.SinkFile {
			return a.SinkFile < b.SinkFile
		}
		if a.Sink.Location.Line != b.Sink.Location.Line {
			return a.Sink.Location.Line < b.Sink.Location.Line
		}
		return a.Source.Expression < b.Source.Expression
	})
	return flows
}

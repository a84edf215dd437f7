// -- cmd/analyze.go --
package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/frameworks"
	"github.com/xkilldash9x/lancet/internal/ir"
	"github.com/xkilldash9x/lancet/internal/observability"
	"github.com/xkilldash9x/lancet/internal/parser/javascript"
	"github.com/xkilldash9x/lancet/internal/reporting"
	"github.com/xkilldash9x/lancet/internal/rules"
	"github.com/xkilldash9x/lancet/internal/taint"
)

// skipDirs are directory names never descended into while collecting
// sources.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
}

// newAnalyzeCmd creates and configures the `analyze` command.
func newAnalyzeCmd() *cobra.Command {
	var (
		output        string
		format        string
		concurrency   int
		frameworkList []string
		rulePaths     []string
		noBuiltin     bool
	)

	analyzeCmd := &cobra.Command{
		Use:   "analyze [targets...]",
		Short: "Runs taint analysis over the specified files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg := appConfig
			if cfg == nil {
				cfg = config.NewDefault()
			}
			if concurrency > 0 {
				cfg.SetEngineWorkerConcurrency(concurrency)
			}
			cfg.SetScanConfig(config.ScanConfig{
				Targets:      args,
				Frameworks:   frameworkList,
				OutputFormat: format,
				OutputFile:   output,
			})

			set, err := buildRuleSet(logger, cfg.Rules(), rulePaths, noBuiltin)
			if err != nil {
				return err
			}

			sources, manifests, err := collectSources(args)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				return fmt.Errorf("no JavaScript sources found under %s", strings.Join(args, ", "))
			}
			logger.Info("Collected analysis targets",
				zap.Int("source_files", len(sources)),
				zap.Int("manifests", len(manifests)),
			)

			detected := detectFrameworks(logger, frameworkList, sources, manifests)

			fns, err := parseSources(ctx, logger, sources)
			if err != nil {
				return err
			}
			cg := javascript.BuildCallGraph(fns)

			engine := taint.NewEngine(logger, set, cfg.Engine().WorkerConcurrency)
			result, err := engine.Run(ctx, fns, cg, "javascript", detected)
			if err != nil {
				return err
			}

			reporter, err := reporting.New(format, output, logger)
			if err != nil {
				return err
			}
			if err := reporter.Write(result.Flows); err != nil {
				reporter.Close()
				return err
			}
			if err := reporter.Close(); err != nil {
				return err
			}

			logger.Info("Analysis finished",
				zap.Int("flows", len(result.Flows)),
				zap.Int("summaries", result.SummariesComputed),
				zap.Int("skipped_functions", result.SkippedFunctions),
				zap.Duration("elapsed", result.Elapsed),
			)
			return nil
		},
	}

	analyzeCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	analyzeCmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or sarif")
	analyzeCmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "analysis worker count (default from config)")
	analyzeCmd.Flags().StringSliceVar(&frameworkList, "frameworks", nil, "override framework detection (e.g. express,react)")
	analyzeCmd.Flags().StringSliceVar(&rulePaths, "rules", nil, "additional YAML rule files")
	analyzeCmd.Flags().BoolVar(&noBuiltin, "no-builtin-rules", false, "disable the built-in rule catalog")

	return analyzeCmd
}

// buildRuleSet layers configured and flag-provided rule files over the
// built-in catalog.
func buildRuleSet(logger *zap.Logger, rc config.RulesConfig, extraPaths []string, noBuiltin bool) (*rules.Set, error) {
	var set *rules.Set
	if noBuiltin || rc.DisableBuiltin {
		set = rules.NewSet()
	} else {
		set = rules.NewDefaultSet()
	}

	loader := rules.NewLoader(logger, set)
	for _, path := range append(append([]string(nil), rc.Paths...), extraPaths...) {
		if err := loader.LoadFile(path); err != nil {
			return nil, fmt.Errorf("loading rules from %s: %w", path, err)
		}
	}
	if skipped := loader.Skipped(); skipped > 0 {
		logger.Warn("Skipped invalid rule definitions", zap.Int("count", skipped))
	}
	return set, nil
}

// collectSources walks the targets and returns JavaScript source paths and
// package.json manifests.
func collectSources(targets []string) (sources, manifests []string, err error) {
	seen := make(map[string]bool)
	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		base := filepath.Base(path)
		switch {
		case base == "package.json":
			manifests = append(manifests, path)
		case isJavaScriptFile(base):
			sources = append(sources, path)
		}
	}

	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, nil, fmt.Errorf("target %s: %w", target, err)
		}
		if !info.IsDir() {
			add(target)
			continue
		}
		walkErr := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			add(path)
			return nil
		})
		if walkErr != nil {
			return nil, nil, fmt.Errorf("walking %s: %w", target, walkErr)
		}
	}
	return sources, manifests, nil
}

func isJavaScriptFile(name string) bool {
	if strings.HasSuffix(name, ".min.js") {
		return false
	}
	switch filepath.Ext(name) {
	case ".js", ".mjs", ".cjs", ".jsx":
		return true
	}
	return false
}

// detectFrameworks fingerprints the collected files unless the user
// supplied an explicit framework list.
func detectFrameworks(logger *zap.Logger, override, sources, manifests []string) []string {
	if len(override) > 0 {
		return override
	}
	detector := frameworks.NewDetector(logger)
	for _, path := range manifests {
		if content, err := os.ReadFile(path); err == nil {
			detector.ScanManifest(content)
		}
	}
	for _, path := range sources {
		if content, err := os.ReadFile(path); err == nil {
			detector.ScanSource(content)
		}
	}
	return detector.Detected()
}

// parseSources parses every collected file. A file that fails to parse is
// logged and skipped; it should not abort the whole run.
func parseSources(ctx context.Context, logger *zap.Logger, sources []string) ([]*ir.Function, error) {
	parser := javascript.NewParser(logger)
	var fns []*ir.Function
	for _, path := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Failed to read source file", zap.String("file", path), zap.Error(err))
			continue
		}
		parsed, err := parser.ParseFile(ctx, path, content)
		if err != nil {
			logger.Warn("Failed to parse source file", zap.String("file", path), zap.Error(err))
			continue
		}
		fns = append(fns, parsed...)
	}
	return fns, nil
}

// -- cmd/rules.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/observability"
)

// newRulesCmd creates the `rules` command group.
func newRulesCmd() *cobra.Command {
	var (
		rulePaths []string
		noBuiltin bool
	)

	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the detection rule catalog",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists every loaded source, sink, and sanitizer rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg := appConfig
			if cfg == nil {
				cfg = config.NewDefault()
			}
			set, err := buildRuleSet(logger, cfg.Rules(), rulePaths, noBuiltin)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sources (%d):\n", set.Sources.Len())
			for _, r := range set.Sources.All() {
				fmt.Fprintf(out, "  %-36s %s\n", r.ID, scopeOf(r.Language, r.Framework))
			}
			fmt.Fprintf(out, "Sinks (%d):\n", set.Sinks.Len())
			for _, r := range set.Sinks.All() {
				fmt.Fprintf(out, "  %-36s %-16s %s\n", r.ID, r.SinkType, scopeOf(r.Language, r.Framework))
			}
			fmt.Fprintf(out, "Sanitizers (%d):\n", set.Sanitizers.Len())
			for _, r := range set.Sanitizers.All() {
				fmt.Fprintf(out, "  %-36s %-16s %s\n", r.ID, r.Kind, scopeOf(r.Language, r.Framework))
			}

			logger.Debug("Listed rule catalog",
				zap.Int("sources", set.Sources.Len()),
				zap.Int("sinks", set.Sinks.Len()),
				zap.Int("sanitizers", set.Sanitizers.Len()),
			)
			return nil
		},
	}
	listCmd.Flags().StringSliceVar(&rulePaths, "rules", nil, "additional YAML rule files")
	listCmd.Flags().BoolVar(&noBuiltin, "no-builtin-rules", false, "disable the built-in rule catalog")

	rulesCmd.AddCommand(listCmd)
	return rulesCmd
}

func scopeOf(language, framework string) string {
	switch {
	case framework != "":
		return fmt.Sprintf("[%s/%s]", language, framework)
	case language != "":
		return fmt.Sprintf("[%s]", language)
	}
	return "[generic]"
}

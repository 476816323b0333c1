// Command toolgate is the dry-run and execution surface for the pipeline.
// Every subcommand goes through the same validation path as execution;
// there is no CLI-only rule set.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"toolgate/internal/config"
	"toolgate/internal/core"
	"toolgate/internal/logging"
	"toolgate/internal/store"
	"toolgate/internal/tools"
	"toolgate/internal/tools/builtin"
)

var (
	configPath string
	manifest   string
	verbose    bool
	paramFlags []string

	logger   *zap.Logger
	cfg      *config.Config
	pipeline *core.Pipeline
	auditDB  *store.Store
)

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Gate free-text requests into validated, timeboxed tool invocations",
	Long: `toolgate turns a request like "find all python files larger than
10 megabytes" into a concrete, validated, timeboxed tool invocation, with
circuit breaking and recovery when the tool misbehaves.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.DebugMode = true
			if cfg.Logging.Dir == "" {
				cfg.Logging.Dir = ".toolgate/logs"
			}
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(logging.Options{
			Dir:        cfg.Logging.Dir,
			DebugMode:  cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return err
		}
		if err := logging.InitAudit(); err != nil {
			logger.Warn("audit log unavailable", zap.Error(err))
		}

		registry := tools.NewRegistry()
		if err := builtin.RegisterAll(registry); err != nil {
			return err
		}
		if manifest != "" {
			if err := registry.RegisterManifest(manifest, builtin.Handlers()); err != nil {
				return err
			}
			logger.Info("manifest loaded", zap.String("path", manifest))
		}

		stats := core.NewStrategyStats()
		if cfg.Store.Enabled && cfg.Store.Path != "" {
			auditDB, err = store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			logging.RegisterAuditSink(auditDB)
			rates, err := auditDB.LoadStrategyRates()
			if err != nil {
				logger.Warn("failed to load strategy rates", zap.Error(err))
			} else {
				stats.Restore(rates)
			}
		}

		pipeline = core.New(cfg, registry, core.WithStrategyStats(stats))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if auditDB != nil {
			if err := auditDB.SaveStrategyRates(pipeline.Recovery().Stats().Snapshot(), time.Now().Unix()); err != nil {
				logger.Warn("failed to save strategy rates", zap.Error(err))
			}
			auditDB.Close()
		}
		logging.CloseAudit()
		logging.Close()
		logger.Sync()
	},
}

var runCmd = &cobra.Command{
	Use:   "run [request text]",
	Short: "Select, validate, and execute a tool for the request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := core.NewToolRequest(strings.Join(args, " "), parseParams(paramFlags))
		logger.Info("processing request", zap.String("request_id", req.ID))

		out, err := pipeline.Process(cmd.Context(), req)
		printStages(out)
		if err != nil {
			return err
		}
		if out.Recovered {
			fmt.Println("recovered: true")
		}
		fmt.Printf("duration: %dms\n\n%s\n", out.Result.DurationMs, out.Result.Output)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [request text]",
	Short: "Dry-run the request: select, infer, and validate without executing",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := core.NewToolRequest(strings.Join(args, " "), parseParams(paramFlags))
		out, err := pipeline.DryRun(req)
		printStages(out)
		if err != nil {
			return err
		}
		fmt.Println("validation: ok")
		return nil
	},
}

var validateToolCmd = &cobra.Command{
	Use:   "tool [tool name]",
	Short: "Validate explicit parameters against a named tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := pipeline.ValidateTool(args[0], parseParams(paramFlags), "")
		if err != nil {
			return err
		}
		printValidation(res)
		if !res.Valid {
			return fmt.Errorf("%s", res.UserMessage)
		}
		return nil
	},
}

var inferCmd = &cobra.Command{
	Use:   "infer [request text]",
	Short: "Show which tool and parameters the request would resolve to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := core.NewToolRequest(strings.Join(args, " "), parseParams(paramFlags))
		results, err := pipeline.DryRunCandidates(cmd.Context(), req)
		if err != nil {
			return err
		}

		out, dryErr := pipeline.DryRun(req)
		printStages(out)
		if dryErr == nil && out.Validation != nil {
			fmt.Println("validation: ok")
		}

		if len(results) > 1 {
			fmt.Println("\nother candidates:")
			names := make([]string, 0, len(results))
			for name := range results {
				if out.Selection.Tool != nil && name == out.Selection.Tool.Name {
					continue
				}
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %s: valid=%v\n", name, results[name].Valid)
			}
		}
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, tool := range pipeline.Registry().All() {
			fmt.Printf("%-14s prio=%-3d resource=%-12s %s\n",
				tool.Name, tool.Priority, tool.ResourceKey(), tool.Description)
			if tool.CommandPrefix != "" {
				fmt.Printf("    prefix: %s\n", tool.CommandPrefix)
			}
			if len(tool.TriggerPhrases) > 0 {
				fmt.Printf("    triggers: %s\n", strings.Join(tool.TriggerPhrases, ", "))
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show error counters, breaker states, and strategy success rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(pipeline.Errors().Summary())

		states := pipeline.Breakers().States()
		if len(states) > 0 {
			fmt.Println("\nbreakers:")
			keys := make([]string, 0, len(states))
			for k := range states {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %-24s %s\n", k, states[k])
			}
		}

		rates := pipeline.Recovery().Stats().Snapshot()
		if len(rates) > 0 {
			fmt.Println("\nstrategy success rates:")
			keys := make([]string, 0, len(rates))
			for k := range rates {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %-28s %.2f\n", k, rates[k])
			}
		}

		if auditDB != nil {
			counts, err := auditDB.CountByEvent()
			if err != nil {
				return err
			}
			if len(counts) > 0 {
				fmt.Println("\naudit events:")
				keys := make([]string, 0, len(counts))
				for k := range counts {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %-24s %d\n", k, counts[k])
				}
			}
		}
		return nil
	},
}

// parseParams turns repeated --param key=value flags into the explicit
// parameter map.
func parseParams(flags []string) map[string]any {
	if len(flags) == 0 {
		return nil
	}
	params := make(map[string]any, len(flags))
	for _, f := range flags {
		if k, v, ok := strings.Cut(f, "="); ok {
			params[k] = v
		}
	}
	return params
}

func printStages(out *core.Outcome) {
	if out == nil {
		return
	}
	if out.Selection.Tool != nil {
		fmt.Printf("tool: %s (confidence %.2f)\n", out.Selection.Tool.Name, out.Selection.Confidence)
	}
	if len(out.Params) > 0 {
		fmt.Println("parameters:")
		names := make([]string, 0, len(out.Params))
		for name := range out.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := out.Params[name]
			if p.Source == core.SourceMissing {
				fmt.Printf("  %-12s (missing)\n", name)
				continue
			}
			fmt.Printf("  %-12s %v (%s)\n", name, p.Value(), p.Source)
		}
	}
	if out.Validation != nil && !out.Validation.Valid {
		printValidation(out.Validation)
	}
}

func printValidation(res *core.ValidationResult) {
	fmt.Printf("validation: valid=%v severity=%s issues=%d\n", res.Valid, res.Severity, len(res.Issues))
	if res.UserMessage != "" {
		fmt.Printf("  %s\n", res.UserMessage)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "toolgate.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&manifest, "manifest", "m", "", "YAML tool manifest to load")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringArrayVarP(&paramFlags, "param", "p", nil, "Explicit parameter key=value (repeatable)")

	validateCmd.AddCommand(validateToolCmd)
	rootCmd.AddCommand(runCmd, validateCmd, inferCmd, toolsCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

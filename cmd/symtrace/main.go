package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"symtrace/internal/config"
	"symtrace/internal/regression"
	"symtrace/internal/render"
	"symtrace/internal/replay"
	"symtrace/internal/session"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "symtrace",
	Short: "symtrace - execution trace tooling for the verifier",
	Long: `symtrace replays recorded verifier trace scripts and checks them
against stored expectations.

A replay script is the exact builder call sequence a verification run
produced. Replaying one rebuilds the record trees and renders every
configured artifact. Checking compares the stable structure dump against
a stored copy and verifies that every closed record carries timestamps.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logCfg := zap.NewProductionConfig()
		if verbose {
			logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = logCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// replayCmd rebuilds record trees from a script and renders the artifacts
var replayCmd = &cobra.Command{
	Use:   "replay [script.yaml]",
	Short: "Replay a trace script and write the artifacts",
	Long: `Replays the builder operations of a recorded script against a fresh
session and writes every artifact the configuration enables.

Example:
  symtrace replay traces/abs.yaml --out /tmp/traces
  symtrace replay traces/abs.yaml --stdout`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

// checkCmd runs a regression suite
var checkCmd = &cobra.Command{
	Use:   "check [suite.yaml]",
	Short: "Run a regression suite against stored structure dumps",
	Long: `Replays every case of the suite and compares the resulting structure
dump with the stored expectation. Exits non-zero when any case fails.

Example:
  symtrace check traces/suite.yaml
  symtrace check traces/suite.yaml --update`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "symtrace.yaml", "Recorder config file")

	// Replay flags
	replayCmd.Flags().String("out", "", "Artifact output directory (default: configured output_dir)")
	replayCmd.Flags().Bool("stdout", false, "Print the text rendering instead of writing artifacts")

	// Check flags
	checkCmd.Flags().Bool("update", false, "Adopt the actual structure dump for new or diverging cases")

	// Add commands to root
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runReplay rebuilds the record trees of one script and renders them
func runReplay(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")
	toStdout, _ := cmd.Flags().GetBool("stdout")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	script, err := replay.Load(args[0])
	if err != nil {
		return err
	}
	logger.Info("Replaying trace script",
		zap.String("script", args[0]),
		zap.Int("units", len(script.Units)))

	sess := session.New(cfg, logger)
	if err := replay.Run(script, sess); err != nil {
		return fmt.Errorf("replay error: %w", err)
	}

	if toStdout {
		fmt.Print(render.TextDump(sess.RenderUnits()))
		return nil
	}

	// Replaying on the CLI always writes; --stdout is the no-file mode.
	dir := outDir
	if dir == "" {
		dir = cfg.OutputDir
	}
	sess.SetConfig(dir, true)
	if err := sess.WriteArtifacts(dir); err != nil {
		return err
	}
	fmt.Printf("Replayed %d unit(s), artifacts in %s\n", len(sess.Units()), dir)
	return nil
}

// runCheck replays a suite and reports per-case outcomes
func runCheck(cmd *cobra.Command, args []string) error {
	update, _ := cmd.Flags().GetBool("update")

	suite, err := regression.LoadSuite(args[0])
	if err != nil {
		return fmt.Errorf("failed to load suite: %w", err)
	}

	engine := regression.NewEngine(logger)
	results := engine.RunSuite(suite)

	failed := 0
	skipped := 0
	for i, res := range results {
		switch {
		case res.Err != nil:
			failed++
			fmt.Printf("FAIL %s: %v\n", res.Name, res.Err)

		case !res.Result.Applicable:
			// A case without an expectation is not applicable yet; only
			// --update turns it into a recorded baseline.
			if !update {
				skipped++
				fmt.Printf("skip %s: no expected file at %s\n", res.Name, res.Result.ExpectedPath)
				continue
			}
			if err := adoptCase(suite.Cases[i]); err != nil {
				failed++
				fmt.Printf("FAIL %s: %v\n", res.Name, err)
				continue
			}
			fmt.Printf("new  %s: recorded expected structure\n", res.Name)

		case res.Passed():
			fmt.Printf("ok   %s (%dms)\n", res.Name, res.DurationMs)

		default:
			m := res.Result.Mismatch
			if update && m != nil && len(res.Result.MissingTimes) == 0 {
				if err := adoptCase(suite.Cases[i]); err != nil {
					failed++
					fmt.Printf("FAIL %s: %v\n", res.Name, err)
				} else {
					if res.Result.ActualPath != "" {
						_ = os.Remove(res.Result.ActualPath)
					}
					fmt.Printf("upd  %s: expected structure refreshed\n", res.Name)
				}
				continue
			}
			failed++
			fmt.Printf("FAIL %s\n", res.Name)
			if m != nil {
				fmt.Printf("  structure diverges at line %d\n", m.Line)
			}
			if res.Result.ActualPath != "" {
				fmt.Printf("  actual structure left at %s\n", res.Result.ActualPath)
			}
			if res.Result.Diff != "" {
				for _, line := range strings.Split(strings.TrimRight(res.Result.Diff, "\n"), "\n") {
					fmt.Printf("  %s\n", line)
				}
			}
			for _, miss := range res.Result.MissingTimes {
				fmt.Printf("  missing timestamps: %s\n", miss)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d case(s) failed", failed, len(results))
	}
	if skipped > 0 {
		fmt.Printf("%d case(s) passed, %d skipped without expectations\n", len(results)-skipped, skipped)
		return nil
	}
	fmt.Printf("All %d case(s) passed\n", len(results))
	return nil
}

// adoptCase replays the case's script and stores its structure dump as the
// new expectation.
func adoptCase(c regression.Case) error {
	script, err := replay.Load(c.Script)
	if err != nil {
		return err
	}
	sess := session.New(config.DefaultConfig(), logger)
	if err := replay.Run(script, sess); err != nil {
		return err
	}
	return regression.WriteActual(sess.RenderUnits(), c.Expected)
}

// Package cli implements the codegate command line: running the gate,
// serving the HTTP surface and inspecting receipts and bundles.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codegate-dev/codegate/pkg/config"
	"github.com/codegate-dev/codegate/pkg/runner"
)

var (
	repoRoot string
	cfgFile  string
)

var rootCmd = &cobra.Command{
	Use:   "codegate",
	Short: "Code-change governance gate",
	Long: `codegate evaluates proposed or committed changes against a merged
policy rule set at defined lifecycle stages (PRE_WRITE, PRE_COMMIT,
PRE_PUSH, CI) and records a versioned evidence snapshot plus a receipt
for every gate check.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&repoRoot, "root", ".", "repository root")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <root>/.codegate/config.yaml)")
}

// loadConfig reads the gate configuration for the selected root and
// installs the configured log level.
func loadConfig() (config.GateConfig, error) {
	path := cfgFile
	if path == "" {
		path = filepath.Join(repoRoot, ".codegate", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	level := slog.LevelInfo
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// buildRunner wires a runner over the root's config and loaded bundles.
func buildRunner() (*runner.Runner, *config.BundleLoader, config.GateConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, cfg, err
	}
	loader := config.NewBundleLoader(filepath.Join(repoRoot, cfg.BundleDir))
	if err := loader.LoadAll(); err != nil {
		return nil, nil, cfg, err
	}
	r, err := runner.New(repoRoot, cfg, loader)
	if err != nil {
		return nil, nil, cfg, err
	}
	return r, loader, cfg, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := jsonIndent(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}

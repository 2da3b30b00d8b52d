package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codegate-dev/codegate/pkg/gitrepo"
	"github.com/codegate-dev/codegate/pkg/receipts"
	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// ErrBlocked reports a BLOCKED decision as a non-zero exit without the
// usage banner.
var ErrBlocked = errors.New("gate blocked")

var (
	gateStage  string
	gateIntent string
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate the working tree and record an evidence snapshot",
	Long: `Gate collects the pending changes of the working tree, evaluates them
against the policy bundle resolved for the stage and writes the
evidence snapshot. The command exits non-zero when the gate blocks.

Example:
  codegate gate --stage=PRE_COMMIT
  codegate gate --stage=CI --intent="release 1.4"`,
	RunE: runGate,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the stored evidence for a stage and issue a receipt",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(checkCmd)

	gateCmd.Flags().StringVar(&gateStage, "stage", "PRE_COMMIT", "lifecycle stage (PRE_WRITE, PRE_COMMIT, PRE_PUSH, CI)")
	gateCmd.Flags().StringVar(&gateIntent, "intent", "", "human intent recorded in the snapshot")
	checkCmd.Flags().StringVar(&gateStage, "stage", "PRE_COMMIT", "lifecycle stage (PRE_WRITE, PRE_COMMIT, PRE_PUSH, CI)")
}

func runGate(cmd *cobra.Command, args []string) error {
	stage, err := stagepolicy.ParseStage(gateStage)
	if err != nil {
		return err
	}
	r, _, _, err := buildRunner()
	if err != nil {
		return err
	}

	collection, err := gitrepo.CollectChanges(cmd.Context(), repoRoot)
	if err != nil {
		// A missing git setup degrades to an empty collection; branch
		// protection separately fails closed on unknown repo state.
		collection = nil
	}

	result, err := r.Run(cmd.Context(), stage, collection, gateIntent)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, result.Decision); err != nil {
		return err
	}
	if !result.Decision.Allowed {
		return ErrBlocked
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	stage, err := stagepolicy.ParseStage(gateStage)
	if err != nil {
		return err
	}
	r, _, _, err := buildRunner()
	if err != nil {
		return err
	}

	result, err := r.Check(cmd.Context(), stage, receipts.SourceCLI)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, result.Receipt); err != nil {
		return err
	}
	if !result.Decision.Allowed {
		return ErrBlocked
	}
	return nil
}

func jsonIndent(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cli: marshal output: %w", err)
	}
	return string(out), nil
}

package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegate-dev/codegate/pkg/config"
	"github.com/codegate-dev/codegate/pkg/evidence"
	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/gitrepo"
	"github.com/codegate-dev/codegate/pkg/receipts"
	"github.com/codegate-dev/codegate/pkg/rules"
	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

func writeBundle(t *testing.T, dir, name string, bundle config.Bundle) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(bundle)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func rulesForTest() rules.Set {
	return rules.Set{
		{
			ID:       "NO_LEGACY_WRITES",
			Severity: facts.SeverityError,
			When: rules.Condition{
				Kind:  facts.KindFileChange,
				Where: &rules.Where{PathPrefix: "src/legacy/"},
			},
			Then: rules.Consequence{Message: "legacy tree is frozen"},
		},
	}
}

func newTestRunner(t *testing.T, branch string) *Runner {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()

	bundleDir := filepath.Join(root, cfg.BundleDir)
	writeBundle(t, bundleDir, "pre-commit.json", config.Bundle{
		Name:    "gate-policy.PRE_COMMIT",
		Version: "1.0.0",
		Role:    config.RoleBaseline,
		Rules: rulesForTest(),
	})

	loader := config.NewBundleLoader(bundleDir)
	require.NoError(t, loader.LoadAll())

	r, err := New(root, cfg, loader)
	require.NoError(t, err)
	return r.WithRepoProvider(gitrepo.StaticProvider{
		State: gitrepo.RepoState{GitAvailable: true, Branch: branch},
	})
}

func TestRunCleanAllowed(t *testing.T) {
	r := newTestRunner(t, "feature/add-widget")

	result, err := r.Run(context.Background(), stagepolicy.StagePreCommit, []facts.Fact{
		facts.FileChange("git", "apps/backend/src/app.ts", facts.ChangeModified),
	}, "add widget endpoint")
	require.NoError(t, err)

	assert.True(t, result.Decision.Allowed)
	assert.Equal(t, stagepolicy.StatusAllowed, result.Decision.Status)
	assert.Equal(t, evidence.OutcomePass, result.Snapshot.Snapshot.Outcome)
	assert.Equal(t, "add widget endpoint", result.Snapshot.HumanIntent)

	read := r.Evidence()
	require.Equal(t, stagepolicy.EvidenceValid, read.Kind)
	assert.Equal(t, stagepolicy.StatusAllowed, read.GateStatus)
}

func TestRunPolicyRuleBlocks(t *testing.T) {
	r := newTestRunner(t, "feature/legacy-touch")

	result, err := r.Run(context.Background(), stagepolicy.StagePreCommit, []facts.Fact{
		facts.FileChange("git", "src/legacy/db.ts", facts.ChangeModified),
	}, "")
	require.NoError(t, err)

	assert.False(t, result.Decision.Allowed)
	require.NotEmpty(t, result.Decision.Violations)
	assert.Equal(t, "NO_LEGACY_WRITES", result.Decision.Violations[0].Code)
	assert.Equal(t, 1, result.Snapshot.SeverityMetrics.TotalViolations)
}

func TestRunHeuristicDetectorFires(t *testing.T) {
	r := newTestRunner(t, "feature/logging")

	result, err := r.Run(context.Background(), stagepolicy.StagePreCommit, []facts.Fact{
		facts.FileContent("repo", "apps/frontend/src/cart.ts", "console.log(cart)\n"),
	}, "")
	require.NoError(t, err)

	// WARN findings do not block at the default pre-commit thresholds.
	assert.True(t, result.Decision.Allowed)
	require.Len(t, result.Snapshot.Snapshot.Findings, 1)
	assert.Equal(t, "no-console-log", result.Snapshot.Snapshot.Findings[0].RuleID)
	assert.Equal(t, evidence.OutcomeWarn, result.Snapshot.Snapshot.Outcome)
}

func TestRunProtectedBranchBlocks(t *testing.T) {
	r := newTestRunner(t, "main")

	result, err := r.Run(context.Background(), stagepolicy.StagePreCommit, nil, "")
	require.NoError(t, err)

	assert.False(t, result.Decision.Allowed)
	require.NotEmpty(t, result.Decision.Violations)
	assert.Equal(t, stagepolicy.CodeProtectedBranch, result.Decision.Violations[0].Code)
}

func TestRunMissingBundleStillEvaluates(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	loader := config.NewBundleLoader(filepath.Join(root, cfg.BundleDir))
	require.NoError(t, loader.LoadAll())

	r, err := New(root, cfg, loader)
	require.NoError(t, err)
	r = r.WithRepoProvider(gitrepo.StaticProvider{
		State: gitrepo.RepoState{GitAvailable: true, Branch: "feature/x"},
	})

	result, err := r.Run(context.Background(), stagepolicy.StagePreCommit, []facts.Fact{
		facts.FileContent("repo", "apps/backend/src/boot.ts", "process.exit(1)\n"),
	}, "")
	require.NoError(t, err)

	// Heuristic detectors run even without a loaded policy bundle.
	require.Len(t, result.Snapshot.Snapshot.Findings, 1)
	assert.Equal(t, "no-process-exit", result.Snapshot.Snapshot.Findings[0].RuleID)
}

func TestRunLedgerFirstSeenStableAcrossRuns(t *testing.T) {
	r := newTestRunner(t, "feature/ledger")
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(30 * time.Minute)

	collection := []facts.Fact{
		facts.FileContent("repo", "apps/frontend/src/cart.ts", "console.log(cart)\n"),
	}

	r.WithClock(func() time.Time { return first })
	_, err := r.Run(context.Background(), stagepolicy.StagePreCommit, collection, "")
	require.NoError(t, err)

	r.WithClock(func() time.Time { return second })
	result, err := r.Run(context.Background(), stagepolicy.StagePreCommit, collection, "")
	require.NoError(t, err)

	require.Len(t, result.Snapshot.Ledger, 1)
	assert.Equal(t, first, result.Snapshot.Ledger[0].FirstSeen)
	assert.Equal(t, second, result.Snapshot.Ledger[0].LastSeen)
}

func TestRunDetectsPlatformMix(t *testing.T) {
	r := newTestRunner(t, "feature/platforms")

	result, err := r.Run(context.Background(), stagepolicy.StagePreCommit, []facts.Fact{
		facts.FileChange("git", "apps/ios/App/Feed.swift", facts.ChangeModified),
		facts.FileChange("git", "apps/ios/App/Profile.swift", facts.ChangeModified),
		facts.FileChange("git", "apps/backend/src/api.ts", facts.ChangeModified),
		facts.FileChange("git", "apps/backend/src/db.ts", facts.ChangeAdded),
	}, "")
	require.NoError(t, err)

	require.Contains(t, result.Snapshot.Platforms, facts.PlatformIOS)
	require.Contains(t, result.Snapshot.Platforms, facts.PlatformBackend)
	assert.True(t, result.Snapshot.Platforms[facts.PlatformIOS].Detected)
	assert.InDelta(t, 0.5, result.Snapshot.Platforms[facts.PlatformIOS].Confidence, 0.001)
}

func TestCheckIssuesReceipt(t *testing.T) {
	r := newTestRunner(t, "feature/receipt")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.WithClock(func() time.Time { return now })

	_, err := r.Run(context.Background(), stagepolicy.StagePreCommit, nil, "")
	require.NoError(t, err)

	// Check a minute later, well inside the pre-commit staleness window.
	r.WithClock(func() time.Time { return now.Add(time.Minute) })
	result, err := r.Check(context.Background(), stagepolicy.StagePreCommit, receipts.SourceCLI)
	require.NoError(t, err)

	assert.True(t, result.Decision.Allowed)
	assert.Equal(t, receipts.SourceCLI, result.Receipt.Source)
	assert.NotEmpty(t, result.Receipt.EvidenceHash)

	stored, err := receipts.ReadFile(filepath.Join(r.root, r.cfg.ReceiptPath))
	require.NoError(t, err)
	assert.Equal(t, result.Receipt.ReceiptID, stored.ReceiptID)

	store, err := receipts.OpenSQLiteStore(filepath.Join(r.root, r.cfg.ReceiptDB))
	require.NoError(t, err)
	defer store.Close()
	fromDB, err := store.Get(context.Background(), result.Receipt.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, stagepolicy.StatusAllowed, fromDB.Status)
}

func TestCheckMissingEvidenceBlocks(t *testing.T) {
	r := newTestRunner(t, "feature/no-evidence")

	result, err := r.Check(context.Background(), stagepolicy.StagePreCommit, receipts.SourceMCP)
	require.NoError(t, err)

	assert.False(t, result.Decision.Allowed)
	require.NotEmpty(t, result.Receipt.Violations)
	assert.Equal(t, stagepolicy.CodeEvidenceMissing, result.Receipt.Violations[0].Code)
	assert.Equal(t, receipts.SourceMCP, result.Receipt.Source)
}

func TestCheckStaleEvidenceBlocks(t *testing.T) {
	r := newTestRunner(t, "feature/stale")
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.WithClock(func() time.Time { return issued })

	_, err := r.Run(context.Background(), stagepolicy.StagePreCommit, nil, "")
	require.NoError(t, err)

	r.WithClock(func() time.Time { return issued.Add(20 * time.Minute) })
	result, err := r.Check(context.Background(), stagepolicy.StagePreCommit, receipts.SourceCLI)
	require.NoError(t, err)

	assert.False(t, result.Decision.Allowed)
	require.NotEmpty(t, result.Decision.Violations)
	assert.Equal(t, stagepolicy.CodeEvidenceStale, result.Decision.Violations[0].Code)
}

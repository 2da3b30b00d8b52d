package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegate-dev/codegate/pkg/config"
	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/rules"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestGateCommandAllowedOnCleanTree(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "gate", "--root", root, "--stage", "PRE_COMMIT")
	require.NoError(t, err)

	var decision map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decision))
	assert.Equal(t, "ALLOWED", decision["status"])

	_, err = os.Stat(filepath.Join(root, ".codegate", "evidence.json"))
	assert.NoError(t, err)
}

func TestGateCommandRejectsUnknownStage(t *testing.T) {
	root := t.TempDir()

	_, err := execute(t, "gate", "--root", root, "--stage", "SOMEDAY")
	assert.Error(t, err)
}

func TestCheckCommandBlocksWithoutEvidence(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "check", "--root", root, "--stage", "PRE_COMMIT")
	require.ErrorIs(t, err, ErrBlocked)

	var receipt map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	assert.Equal(t, "BLOCKED", receipt["status"])
}

func TestBundlesCommandListsMergedSets(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".codegate", "bundles")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	bundle := config.Bundle{
		Name:    "gate-policy.PRE_COMMIT",
		Version: "1.0.0",
		Role:    config.RoleBaseline,
		Rules: rules.Set{{
			ID:       "NO_VENDOR_EDITS",
			Severity: facts.SeverityError,
			When:     rules.Condition{Kind: facts.KindFileChange, Where: &rules.Where{PathPrefix: "vendor/"}},
			Then:     rules.Consequence{Message: "vendored code is read-only"},
		}},
	}
	data, err := json.Marshal(bundle)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pre-commit.json"), data, 0o644))

	out, err := execute(t, "bundles", "--root", root)
	require.NoError(t, err)

	var infos []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "gate-policy.PRE_COMMIT", infos[0]["name"])
	assert.Equal(t, float64(1), infos[0]["rules"])
	assert.NotEmpty(t, infos[0]["hash"])
}

func TestSessionLifecycleCommands(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "session", "open", "add-cart-api", "--root", root)
	require.NoError(t, err)
	var session map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &session))
	assert.Equal(t, "add-cart-api", session["changeId"])

	_, err = execute(t, "session", "status", "--root", root)
	require.NoError(t, err)

	_, err = execute(t, "session", "close", "--root", root)
	require.NoError(t, err)
}

func TestReceiptCommandEmptyHistory(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "receipt", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "[]")
}

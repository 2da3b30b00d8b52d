package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegate-dev/codegate/pkg/config"
	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/gitrepo"
	"github.com/codegate-dev/codegate/pkg/runner"
	"github.com/codegate-dev/codegate/pkg/sdd"
	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

type fixture struct {
	root    string
	runner  *runner.Runner
	guard   *sdd.Guard
	server  *Server
	handler http.Handler
}

func newFixture(t *testing.T, bypassGuard bool) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()

	loader := config.NewBundleLoader(filepath.Join(root, cfg.BundleDir))
	require.NoError(t, loader.LoadAll())

	r, err := runner.New(root, cfg, loader)
	require.NoError(t, err)
	r = r.WithRepoProvider(gitrepo.StaticProvider{
		State: gitrepo.RepoState{GitAvailable: true, Branch: "feature/service"},
	})

	guard := sdd.NewGuard(root).WithBypass(bypassGuard)
	server := NewServer(r, guard, cfg)
	return &fixture{
		root:    root,
		runner:  r,
		guard:   guard,
		server:  server,
		handler: server.Handler(),
	}
}

// seedEvidence runs the gate once so the resource endpoints have a
// snapshot to serve. The content facts produce one WARN and one ERROR
// heuristic finding.
func (f *fixture) seedEvidence(t *testing.T) {
	t.Helper()
	_, err := f.runner.Run(context.Background(), stagepolicy.StagePreCommit, []facts.Fact{
		facts.FileContent("repo", "apps/frontend/src/cart.ts", "console.log(cart)\n"),
		facts.FileContent("repo", "apps/backend/src/boot.ts", "process.exit(1)\n"),
	}, "seed")
	require.NoError(t, err)
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestStatusWithoutEvidence(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(t, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "missing", decodeBody(t, rec)["evidence"])
}

func TestStatusAfterRun(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvidence(t)

	body := decodeBody(t, f.get(t, "/status"))
	assert.Equal(t, "valid", body["evidence"])
	assert.Equal(t, "PRE_COMMIT", body["stage"])
	assert.Equal(t, "WARN", body["outcome"])
	assert.Equal(t, float64(2), body["findings"])
}

func TestFindingsSeverityFilter(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvidence(t)

	body := decodeBody(t, f.get(t, "/findings?severity=ERROR"))
	require.Equal(t, float64(1), body["total"])
	findings := body["findings"].([]any)
	require.Len(t, findings, 1)
	assert.Equal(t, "no-process-exit", findings[0].(map[string]any)["ruleId"])
}

func TestFindingsPlatformFilter(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvidence(t)

	body := decodeBody(t, f.get(t, "/findings?platform=backend"))
	assert.Equal(t, float64(1), body["total"])
}

func TestFindingsPagination(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvidence(t)

	body := decodeBody(t, f.get(t, "/findings?limit=1&offset=1"))
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, body["findings"].([]any), 1)

	body = decodeBody(t, f.get(t, "/findings?limit=1&offset=5"))
	assert.Len(t, body["findings"].([]any), 0)
}

func TestFindingsLimitCapped(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvidence(t)

	body := decodeBody(t, f.get(t, "/findings?limit=100000"))
	assert.Equal(t, float64(MaxLimit), body["limit"])
}

func TestFindingsBadSeverity(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvidence(t)

	rec := f.get(t, "/findings?severity=SEVERE")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFindingsWithoutSnapshot(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(t, "/findings")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLedgerRangeFilter(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvidence(t)

	body := decodeBody(t, f.get(t, "/ledger"))
	assert.Len(t, body["ledger"].([]any), 2)

	// A window in the past excludes entries last seen now.
	body = decodeBody(t, f.get(t, "/ledger?to=2001-01-01T00:00:00Z"))
	assert.Len(t, body["ledger"].([]any), 0)

	rec := f.get(t, "/ledger?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummary(t *testing.T) {
	f := newFixture(t, true)
	f.seedEvidence(t)

	body := decodeBody(t, f.get(t, "/summary"))
	metrics := body["severity_metrics"].(map[string]any)
	assert.Equal(t, float64(1), metrics["total_violations"])
}

func TestGateCheckAllowedAfterRun(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.runner.Run(context.Background(), stagepolicy.StagePreCommit, nil, "")
	require.NoError(t, err)

	rec := f.post(t, "/tools/ai_gate_check", `{"stage":"PRE_COMMIT"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ai_gate_check", body["tool"])
	assert.Equal(t, true, body["success"])

	result := body["result"].(map[string]any)
	policy := result["policy"].(map[string]any)
	trace := policy["trace"].(map[string]any)
	assert.Equal(t, "gate-policy.PRE_COMMIT", trace["bundle"])
	assert.NotEmpty(t, result["receipt_id"])

	// The check persisted a receipt artifact.
	_, err = os.Stat(filepath.Join(f.root, config.Default().ReceiptPath))
	assert.NoError(t, err)
}

func TestGateCheckMissingEvidenceFails(t *testing.T) {
	f := newFixture(t, true)

	rec := f.post(t, "/tools/ai_gate_check", `{"stage":"PRE_PUSH"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])

	violations := body["result"].(map[string]any)["violations"].([]any)
	require.NotEmpty(t, violations)
	assert.Equal(t, "EVIDENCE_MISSING", violations[0].(map[string]any)["code"])
}

func TestGateCheckRejectsUnknownStage(t *testing.T) {
	f := newFixture(t, true)

	rec := f.post(t, "/tools/ai_gate_check", `{"stage":"LATER"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}

func TestGateCheckRejectsNonJSON(t *testing.T) {
	f := newFixture(t, true)

	rec := f.post(t, "/tools/ai_gate_check", `stage=PRE_COMMIT`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type recordingExecutor struct {
	calls []string
}

func (e *recordingExecutor) Execute(name string, args map[string]any) error {
	e.calls = append(e.calls, name)
	return nil
}

func TestMutatingToolGuardFailure(t *testing.T) {
	// No openspec/ directory and no bypass: the guard blocks before
	// anything executes, and the dry-run decision is still reported.
	f := newFixture(t, false)
	f.seedEvidence(t)
	exec := &recordingExecutor{}
	f.server.WithExecutor(exec)

	rec := f.post(t, "/tools/validate_and_fix", `{"stage":"PRE_COMMIT"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, false, body["executed"])
	assert.Equal(t, "OPENSPEC_MISSING", body["code"])
	assert.NotNil(t, body["decision"])
	assert.Empty(t, exec.calls)
}

func TestMutatingToolDryRunParity(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.runner.Run(context.Background(), stagepolicy.StagePreCommit, nil, "")
	require.NoError(t, err)
	exec := &recordingExecutor{}
	f.server.WithExecutor(exec)

	dry := decodeBody(t, f.post(t, "/tools/sync_branches", `{"stage":"PRE_COMMIT","dry_run":true}`))
	assert.Equal(t, true, dry["success"])
	assert.Equal(t, false, dry["executed"])
	assert.Empty(t, exec.calls)

	real := decodeBody(t, f.post(t, "/tools/sync_branches", `{"stage":"PRE_COMMIT"}`))
	assert.Equal(t, true, real["success"])
	assert.Equal(t, true, real["executed"])
	assert.Equal(t, []string{"sync_branches"}, exec.calls)

	// Dry run and real execution computed the same decision.
	assert.Equal(t, dry["decision"], real["decision"])
}

func TestMutatingToolBlockedByGateDecision(t *testing.T) {
	// Valid guard, but no evidence on disk: the gate decision blocks
	// and the tool must not execute even without dry_run.
	f := newFixture(t, true)
	exec := &recordingExecutor{}
	f.server.WithExecutor(exec)

	body := decodeBody(t, f.post(t, "/tools/validate_and_fix", `{"stage":"PRE_COMMIT"}`))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, false, body["executed"])
	assert.Equal(t, "EVIDENCE_MISSING", body["code"])
	assert.Empty(t, exec.calls)
}

func TestMutatingToolRejectsUnknownField(t *testing.T) {
	f := newFixture(t, true)

	rec := f.post(t, "/tools/sync_branches", `{"stage":"PRE_COMMIT","force":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Service.JWTSecret = "test-secret"

	loader := config.NewBundleLoader(filepath.Join(root, cfg.BundleDir))
	require.NoError(t, loader.LoadAll())
	r, err := runner.New(root, cfg, loader)
	require.NoError(t, err)

	handler := NewServer(r, sdd.NewGuard(root), cfg).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays public for probes.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

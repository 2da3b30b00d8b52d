// Package runner wires the policy core into one evaluation pipeline:
// collect facts, evaluate the merged rule set, consolidate findings,
// resolve the stage policy, advance the ledger and persist the evidence
// snapshot and receipt artifacts.
package runner

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/codegate-dev/codegate/pkg/canonical"
	"github.com/codegate-dev/codegate/pkg/config"
	"github.com/codegate-dev/codegate/pkg/consolidate"
	"github.com/codegate-dev/codegate/pkg/detect"
	"github.com/codegate-dev/codegate/pkg/evidence"
	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/gate"
	"github.com/codegate-dev/codegate/pkg/gitrepo"
	"github.com/codegate-dev/codegate/pkg/ledger"
	"github.com/codegate-dev/codegate/pkg/receipts"
	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// Runner drives gate evaluations for one repository root.
type Runner struct {
	root      string
	cfg       config.GateConfig
	bundles   *config.BundleLoader
	matcher   *detect.Matcher
	evaluator *gate.Evaluator
	repo      gitrepo.Provider
	clock     func() time.Time
	logger    *slog.Logger
}

// New builds a runner. The bundle loader must already have its bundles
// loaded; the runner never touches the loader's lifecycle.
func New(root string, cfg config.GateConfig, bundles *config.BundleLoader) (*Runner, error) {
	matcher, err := detect.NewMatcher(detect.DefaultRegistry())
	if err != nil {
		return nil, err
	}
	evaluator, err := gate.NewEvaluator()
	if err != nil {
		return nil, err
	}
	return &Runner{
		root:      root,
		cfg:       cfg,
		bundles:   bundles,
		matcher:   matcher,
		evaluator: evaluator,
		repo:      gitrepo.ExecProvider{},
		clock:     time.Now,
		logger:    slog.Default(),
	}, nil
}

func (r *Runner) WithClock(clock func() time.Time) *Runner {
	r.clock = clock
	return r
}

func (r *Runner) WithRepoProvider(p gitrepo.Provider) *Runner {
	r.repo = p
	return r
}

func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// Root returns the repository root this runner evaluates.
func (r *Runner) Root() string { return r.root }

// Config returns the runner's gate configuration.
func (r *Runner) Config() config.GateConfig { return r.cfg }

func (r *Runner) evidencePath() string {
	return filepath.Join(r.root, r.cfg.EvidencePath)
}

// RunResult is the complete output of one gate run.
type RunResult struct {
	Decision stagepolicy.Decision
	Snapshot evidence.Snapshot
	Coverage gate.Coverage
	Errors   []gate.RuleError
}

// Run executes the full pipeline for a stage over the given facts and
// persists the resulting evidence snapshot.
func (r *Runner) Run(ctx context.Context, stage stagepolicy.Stage, collection []facts.Fact, humanIntent string) (RunResult, error) {
	resolved := stagepolicy.Resolve(stage, r.cfg.HardMode)

	active, bundleHash, err := r.bundles.Active(resolved.Trace.Bundle)
	if err != nil {
		// No bundle means no policy rules; heuristics still run.
		r.logger.Warn("policy bundle not loaded", "bundle", resolved.Trace.Bundle, "error", err)
	}

	collection = r.matcher.CollectFacts(collection)
	result := r.evaluator.Evaluate(stagepolicy.RulesForStage(active, stage), collection)

	promoted := stagepolicy.PromoteSeverities(result.Findings, stage, r.cfg.PromoteToError)
	consolidated := consolidate.Consolidate(promoted, consolidate.Options{
		Families:     r.cfg.Families,
		MutedRuleIDs: mutedSet(r.cfg.MutedRules),
	})
	metrics := consolidate.ComputeMetrics(consolidated.Suppressed, len(consolidated.Findings))

	repoState := r.repo.Capture(ctx, r.root)

	decision := stagepolicy.EvaluateGate(stagepolicy.GateParams{
		Stage:             stage,
		HardMode:          r.cfg.HardMode,
		Findings:          consolidated.Findings,
		Repo:              repoState,
		ProtectedBranches: r.cfg.ProtectedBranches,
		Now:               r.clock(),
	})

	previous := previousLedger(r.evidencePath())
	platforms := detectPlatforms(collection)

	snapshot := evidence.NewAssembler().WithClock(r.clock).Build(evidence.BuildInput{
		Stage:          stage,
		Findings:       consolidated.Findings,
		Suppressed:     consolidated.Suppressed,
		Metrics:        &metrics,
		Decision:       decision,
		PreviousLedger: previous,
		Platforms:      platforms,
		Rulesets:       rulesetRefs(platforms, resolved.Trace.Bundle, bundleHash),
		HumanIntent:    humanIntent,
	})
	if err := evidence.Write(r.evidencePath(), snapshot); err != nil {
		return RunResult{}, err
	}

	r.logger.Info("gate evaluated",
		"stage", stage,
		"status", decision.Status,
		"findings", len(consolidated.Findings),
		"suppressed", len(consolidated.Suppressed),
		"bundle", resolved.Trace.Bundle)

	return RunResult{
		Decision: decision,
		Snapshot: snapshot,
		Coverage: result.Coverage,
		Errors:   result.Errors,
	}, nil
}

// CheckResult is the output of an ai_gate_check call against stored
// evidence.
type CheckResult struct {
	Decision stagepolicy.Decision
	Receipt  receipts.Receipt
}

// Decide evaluates the stored evidence for a stage without persisting
// anything. Dry runs and real checks share this path so both compute
// the identical decision.
func (r *Runner) Decide(ctx context.Context, stage stagepolicy.Stage) stagepolicy.Decision {
	read := evidence.Read(r.evidencePath())
	status := read.Status()

	return stagepolicy.EvaluateGate(stagepolicy.GateParams{
		Stage:             stage,
		HardMode:          r.cfg.HardMode,
		Evidence:          &status,
		Repo:              r.repo.Capture(ctx, r.root),
		ProtectedBranches: r.cfg.ProtectedBranches,
		MaxEvidenceAge:    r.cfg.EvidenceAges(),
		Now:               r.clock(),
	})
}

// Check evaluates the stored evidence for a stage, issues a receipt and
// persists it. The receipt source distinguishes service from CLI calls.
func (r *Runner) Check(ctx context.Context, stage stagepolicy.Stage, source string) (CheckResult, error) {
	read := evidence.Read(r.evidencePath())
	decision := r.Decide(ctx, stage)

	evidenceHash := ""
	if read.Snapshot != nil {
		if hash, err := canonical.Hash(read.Snapshot); err == nil {
			evidenceHash = hash
		}
	}

	receipt := receipts.New(decision, receipts.Meta{
		Source:       source,
		RepoRoot:     r.root,
		EvidenceHash: evidenceHash,
	}, r.clock())

	if err := receipts.WriteFile(filepath.Join(r.root, r.cfg.ReceiptPath), receipt); err != nil {
		return CheckResult{}, err
	}
	store, err := receipts.OpenSQLiteStore(filepath.Join(r.root, r.cfg.ReceiptDB))
	if err != nil {
		return CheckResult{}, err
	}
	defer store.Close()
	if err := store.Store(ctx, receipt); err != nil {
		return CheckResult{}, err
	}

	r.logger.Info("gate check recorded",
		"stage", stage,
		"status", decision.Status,
		"receipt", receipt.ReceiptID)

	return CheckResult{Decision: decision, Receipt: receipt}, nil
}

// Evidence returns the stored snapshot read result for the repo.
func (r *Runner) Evidence() evidence.ReadResult {
	return evidence.Read(r.evidencePath())
}

func mutedSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func previousLedger(path string) []ledger.Entry {
	read := evidence.Read(path)
	if read.Snapshot == nil {
		return nil
	}
	return read.Snapshot.Ledger
}

// detectPlatforms infers the platform mix from path-bearing facts. The
// confidence of a platform is its share of located facts.
func detectPlatforms(collection []facts.Fact) evidence.Platforms {
	counts := map[facts.Platform]int{}
	total := 0
	for _, f := range collection {
		location := f.Location()
		if location == "" {
			continue
		}
		counts[facts.InferPlatform(location)]++
		total++
	}
	platforms := evidence.Platforms{}
	for platform, count := range counts {
		confidence := 0.0
		if total > 0 {
			confidence = math.Round(float64(count)/float64(total)*100) / 100
		}
		platforms[platform] = evidence.PlatformState{Detected: true, Confidence: confidence}
	}
	return platforms
}

func rulesetRefs(platforms evidence.Platforms, bundle, hash string) []evidence.RulesetRef {
	refs := make([]evidence.RulesetRef, 0, len(platforms))
	for platform := range platforms {
		refs = append(refs, evidence.RulesetRef{Platform: platform, Bundle: bundle, Hash: hash})
	}
	if len(refs) == 0 {
		refs = append(refs, evidence.RulesetRef{Platform: facts.PlatformGeneric, Bundle: bundle, Hash: hash})
	}
	return refs
}

// Package service exposes the gate over HTTP: read-only resources over
// the stored evidence snapshot and the tool endpoints the editor
// integration calls. Malformed requests are rejected at this boundary;
// the policy core only ever sees well-formed input.
package service

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/codegate-dev/codegate/pkg/api"
	"github.com/codegate-dev/codegate/pkg/config"
	"github.com/codegate-dev/codegate/pkg/runner"
	"github.com/codegate-dev/codegate/pkg/sdd"
)

// MaxLimit bounds the page size of list endpoints.
const MaxLimit = 200

// Executor performs the side effects of a mutating tool once every
// guard has passed. Implementations must be all-or-nothing; the service
// never calls them on a guard failure or a dry run.
type Executor interface {
	Execute(name string, args map[string]any) error
}

// NopExecutor acknowledges execution without side effects. The real
// fixers and branch sync hang off this interface in the editor bridge.
type NopExecutor struct{}

func (NopExecutor) Execute(name string, args map[string]any) error { return nil }

// Server serves the gate API for one repository.
type Server struct {
	runner   *runner.Runner
	guard    *sdd.Guard
	cfg      config.GateConfig
	executor Executor
	logger   *slog.Logger
	clock    func() time.Time
}

func NewServer(r *runner.Runner, guard *sdd.Guard, cfg config.GateConfig) *Server {
	return &Server{
		runner:   r,
		guard:    guard,
		cfg:      cfg,
		executor: NopExecutor{},
		logger:   slog.Default(),
		clock:    time.Now,
	}
}

func (s *Server) WithExecutor(e Executor) *Server {
	s.executor = e
	return s
}

func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.logger = logger
	return s
}

func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

// Handler builds the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/readiness", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/findings", s.handleFindings)
	mux.HandleFunc("/rulesets", s.handleRulesets)
	mux.HandleFunc("/platforms", s.handlePlatforms)
	mux.HandleFunc("/ledger", s.handleLedger)
	mux.HandleFunc("/summary", s.handleSummary)
	mux.HandleFunc("/tools/ai_gate_check", s.handleGateCheck)
	mux.HandleFunc("/tools/validate_and_fix", s.mutatingTool("validate_and_fix"))
	mux.HandleFunc("/tools/sync_branches", s.mutatingTool("sync_branches"))

	limiter := rate.NewLimiter(rate.Limit(s.cfg.Service.RatePerSecond), s.cfg.Service.RateBurst)
	return api.Chain(mux,
		api.RequestID,
		api.RateLimit(limiter),
		api.BearerAuth(s.cfg.Service.JWTSecret),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

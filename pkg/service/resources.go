package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/codegate-dev/codegate/pkg/api"
	"github.com/codegate-dev/codegate/pkg/evidence"
	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/gate"
	"github.com/codegate-dev/codegate/pkg/ledger"
	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// snapshot loads the stored evidence for a read-only endpoint. A
// missing or unreadable artifact is a 404 on the resource, not an
// internal error; /status reports the degraded state instead.
func (s *Server) snapshot(w http.ResponseWriter) (*evidence.Snapshot, bool) {
	read := s.runner.Evidence()
	if read.Snapshot == nil {
		detail := "no evidence snapshot recorded"
		if read.Reason != "" {
			detail = "evidence snapshot unusable: " + read.Reason
		}
		api.WriteNotFound(w, detail)
		return nil, false
	}
	return read.Snapshot, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	read := s.runner.Evidence()
	body := map[string]any{
		"evidence": read.Kind,
	}
	if read.Reason != "" {
		body["reason"] = read.Reason
	}
	if read.Kind == stagepolicy.EvidenceValid {
		body["gate_status"] = read.GateStatus
		body["version"] = read.Version
		body["timestamp"] = read.Timestamp
	}
	if read.Snapshot != nil {
		body["stage"] = read.Snapshot.Snapshot.Stage
		body["outcome"] = read.Snapshot.Snapshot.Outcome
		body["findings"] = len(read.Snapshot.Snapshot.Findings)
	}
	api.WriteJSON(w, http.StatusOK, body)
}

func pageParams(r *http.Request) (limit, offset int, err error) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return 0, 0, errBadParam("limit", raw)
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errBadParam("offset", raw)
		}
	}
	return limit, offset, nil
}

type badParamError struct{ name, value string }

func (e badParamError) Error() string {
	return "invalid query parameter " + e.name + "=" + e.value
}

func errBadParam(name, value string) error { return badParamError{name, value} }

func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	limit, offset, err := pageParams(r)
	if err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}

	q := r.URL.Query()
	severity := facts.Severity(q.Get("severity"))
	if severity != "" && !facts.ValidSeverity(severity) {
		api.WriteBadRequest(w, errBadParam("severity", string(severity)).Error())
		return
	}
	ruleID := q.Get("ruleId")
	platform := facts.Platform(q.Get("platform"))

	filtered := make([]gate.Finding, 0, len(snap.Snapshot.Findings))
	for _, f := range snap.Snapshot.Findings {
		if severity != "" && f.Severity != severity {
			continue
		}
		if ruleID != "" && f.RuleID != ruleID {
			continue
		}
		if platform != "" && facts.InferPlatform(f.File) != platform {
			continue
		}
		filtered = append(filtered, f)
	}

	page := paginate(filtered, limit, offset)
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"findings": page,
		"total":    len(filtered),
		"limit":    limit,
		"offset":   offset,
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (s *Server) handleRulesets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"rulesets": snap.Rulesets})
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"platforms": snap.Platforms})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	var from, to time.Time
	var err error
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			api.WriteBadRequest(w, errBadParam("from", raw).Error())
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			api.WriteBadRequest(w, errBadParam("to", raw).Error())
			return
		}
	}

	entries := make([]ledger.Entry, 0, len(snap.Ledger))
	for _, e := range snap.Ledger {
		if !from.IsZero() && e.LastSeen.Before(from) {
			continue
		}
		if !to.IsZero() && e.LastSeen.After(to) {
			continue
		}
		entries = append(entries, e)
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"ledger": entries})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"stage":            snap.Snapshot.Stage,
		"outcome":          snap.Snapshot.Outcome,
		"severity_metrics": snap.SeverityMetrics,
		"consolidation":    snap.Consolidation,
	})
}

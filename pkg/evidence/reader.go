package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// Reason strings for invalid read results.
const (
	ReasonUnreadable     = "EVIDENCE_UNREADABLE"
	ReasonSchemaMismatch = "EVIDENCE_SCHEMA_MISMATCH"
	ReasonSchemaInvalid  = "EVIDENCE_SCHEMA_INVALID"
)

// ReadResult is the outcome of reading a stored snapshot. Snapshot is
// populated only when the artifact fully decodes; the extracted fields
// are available whenever the schema check passed, so a snapshot that is
// sound apart from its timestamp still reports as valid with a zero
// timestamp and degrades at the staleness check.
type ReadResult struct {
	Kind       string
	Version    string
	Timestamp  time.Time
	GateStatus string
	Reason     string
	Snapshot   *Snapshot
}

// Status projects the read result into the resolver's evidence view.
func (r ReadResult) Status() stagepolicy.EvidenceStatus {
	return stagepolicy.EvidenceStatus{
		Kind:       r.Kind,
		Version:    r.Version,
		Timestamp:  r.Timestamp,
		GateStatus: r.GateStatus,
	}
}

// Write persists a snapshot as indented JSON, creating parent
// directories as needed. The write goes through a temp file and rename
// so readers never see a torn artifact.
func Write(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("evidence: marshal snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("evidence: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".evidence-*.json")
	if err != nil {
		return fmt.Errorf("evidence: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("evidence: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("evidence: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("evidence: publish snapshot: %w", err)
	}
	return nil
}

// Read classifies the artifact at path as missing, invalid or valid and
// extracts the fields gate decisions need. Read never returns an error
// for a bad artifact; badness is data.
func Read(path string) ReadResult {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ReadResult{Kind: stagepolicy.EvidenceMissing}
	}
	if err != nil {
		return ReadResult{Kind: stagepolicy.EvidenceInvalid, Reason: ReasonUnreadable}
	}
	return Decode(data)
}

// Decode classifies raw snapshot bytes. Split from Read so transports
// that carry the artifact inline can reuse the classification.
func Decode(data []byte) ReadResult {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return ReadResult{Kind: stagepolicy.EvidenceInvalid, Reason: ReasonUnreadable}
	}
	if err := compiledSchema.Validate(raw); err != nil {
		return ReadResult{Kind: stagepolicy.EvidenceInvalid, Reason: ReasonSchemaInvalid}
	}

	obj := raw.(map[string]any)
	version, _ := obj["version"].(string)
	result := ReadResult{Version: version}
	if !versionSupported(version) {
		result.Kind = stagepolicy.EvidenceInvalid
		result.Reason = ReasonSchemaMismatch
		return result
	}

	result.Kind = stagepolicy.EvidenceValid
	if ts, ok := obj["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			result.Timestamp = parsed
		}
	}
	if aiGate, ok := obj["ai_gate"].(map[string]any); ok {
		result.GateStatus, _ = aiGate["status"].(string)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err == nil {
		result.Snapshot = &snap
	}
	return result
}

// versionSupported accepts only the 2.1 schema line. Versions are
// compared as semver so "2.1.0" and "2.1" read the same.
func versionSupported(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	want, _ := semver.NewVersion(SchemaVersion)
	return v.Major() == want.Major() && v.Minor() == want.Minor()
}

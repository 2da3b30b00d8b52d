package receipts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// SQLiteStore keeps the receipt history in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database handle and ensures the schema
// exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteStore opens (or creates) the database at path, creating
// parent directories as needed.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("receipts: create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("receipts: open sqlite: %w", err)
	}
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS receipts (
        receipt_id TEXT PRIMARY KEY,
        source TEXT NOT NULL,
        tool TEXT NOT NULL,
        repo_root TEXT,
        stage TEXT NOT NULL,
        status TEXT NOT NULL,
        allowed INTEGER NOT NULL,
        violations JSON,
        policy_bundle TEXT,
        policy_hash TEXT,
        evidence_hash TEXT,
        issued_at DATETIME
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Store inserts a receipt. Invalid receipts never reach the history.
func (s *SQLiteStore) Store(ctx context.Context, r Receipt) error {
	if err := r.Validate(); err != nil {
		return err
	}
	violationsJSON, _ := json.Marshal(r.Violations)
	allowed := 0
	if r.Allowed {
		allowed = 1
	}
	query := `INSERT INTO receipts (
		receipt_id, source, tool, repo_root, stage, status, allowed, violations, policy_bundle, policy_hash, evidence_hash, issued_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		r.ReceiptID, r.Source, r.Tool, r.RepoRoot, string(r.Stage), r.Status, allowed, string(violationsJSON),
		r.PolicyBundle, r.PolicyHash, r.EvidenceHash, r.IssuedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("receipts: insert: %w", err)
	}
	return nil
}

// Get returns the receipt with the given id.
func (s *SQLiteStore) Get(ctx context.Context, receiptID string) (Receipt, error) {
	query := selectColumns + ` WHERE receipt_id = ?`
	row := s.db.QueryRowContext(ctx, query, receiptID)
	r, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return Receipt{}, fmt.Errorf("receipts: %q not found", receiptID)
	}
	return r, err
}

// List returns the most recent receipts, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Receipt, error) {
	query := selectColumns + ` ORDER BY issued_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("receipts: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Latest returns the most recent receipt for a stage, or nil when the
// stage has no history yet.
func (s *SQLiteStore) Latest(ctx context.Context, stage stagepolicy.Stage) (*Receipt, error) {
	query := selectColumns + ` WHERE stage = ? ORDER BY issued_at DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, string(stage))
	r, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const selectColumns = `SELECT receipt_id, source, tool, repo_root, stage, status, allowed, violations, policy_bundle, policy_hash, evidence_hash, issued_at FROM receipts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (Receipt, error) {
	var (
		r              Receipt
		repoRoot       sql.NullString
		stage          string
		allowed        int
		violationsJSON sql.NullString
		policyHash     sql.NullString
		evidenceHash   sql.NullString
		issuedAt       string
	)
	err := row.Scan(&r.ReceiptID, &r.Source, &r.Tool, &repoRoot, &stage, &r.Status, &allowed,
		&violationsJSON, &r.PolicyBundle, &policyHash, &evidenceHash, &issuedAt)
	if err != nil {
		return Receipt{}, err
	}
	r.Version = Version
	r.RepoRoot = repoRoot.String
	r.Stage = stagepolicy.Stage(stage)
	r.Allowed = allowed != 0
	r.PolicyHash = policyHash.String
	r.EvidenceHash = evidenceHash.String
	if violationsJSON.Valid && violationsJSON.String != "" {
		_ = json.Unmarshal([]byte(violationsJSON.String), &r.Violations)
	}
	if ts, perr := time.Parse(time.RFC3339Nano, issuedAt); perr == nil {
		r.IssuedAt = ts
	}
	return r, nil
}

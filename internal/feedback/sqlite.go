package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pharmguard-mcp-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite feedback store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets the HTTP and MCP surfaces read while a save is in flight.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const selectColumns = `id, drug, primary_gene, diplotype, phenotype,
	suggested_risk, clinician_risk, agreed, notes, created_at, updated_at`

// scanFeedback scans a row into a Feedback struct.
func scanFeedback(s scanner) (*Feedback, error) {
	fb := &Feedback{}
	var phenotype, suggested, clinician string

	err := s.Scan(
		&fb.ID, &fb.Drug, &fb.PrimaryGene, &fb.Diplotype, &phenotype,
		&suggested, &clinician, &fb.Agreed, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fb.Phenotype = domain.Phenotype(phenotype)
	fb.SuggestedRisk = domain.RiskLabel(suggested)
	fb.ClinicianRisk = domain.RiskLabel(clinician)
	return fb, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS risk_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		drug TEXT NOT NULL,
		primary_gene TEXT NOT NULL,
		diplotype TEXT NOT NULL,
		phenotype TEXT NOT NULL,
		suggested_risk TEXT NOT NULL,
		clinician_risk TEXT NOT NULL,
		agreed INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(drug, diplotype)
	);

	CREATE INDEX IF NOT EXISTS idx_risk_feedback_drug ON risk_feedback(drug);
	CREATE INDEX IF NOT EXISTS idx_risk_feedback_created_at ON risk_feedback(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores or updates clinician feedback.
func (s *SQLiteStore) Save(ctx context.Context, feedback *Feedback) error {
	feedback.Normalize()
	if err := feedback.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	var existingID int64
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM risk_feedback WHERE drug = ? AND diplotype = ?",
		feedback.Drug, feedback.Diplotype,
	).Scan(&existingID, &createdAt)

	if err == nil {
		feedback.ID = existingID
		feedback.CreatedAt = createdAt
		feedback.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE risk_feedback SET
				primary_gene = ?,
				phenotype = ?,
				suggested_risk = ?,
				clinician_risk = ?,
				agreed = ?,
				notes = ?,
				updated_at = ?
			WHERE id = ?
		`,
			feedback.PrimaryGene,
			string(feedback.Phenotype),
			string(feedback.SuggestedRisk),
			string(feedback.ClinicianRisk),
			feedback.Agreed,
			feedback.Notes,
			now,
			existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to update: %w", err)
		}
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	feedback.CreatedAt = now
	feedback.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_feedback (
			drug, primary_gene, diplotype, phenotype,
			suggested_risk, clinician_risk, agreed,
			notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		feedback.Drug,
		feedback.PrimaryGene,
		feedback.Diplotype,
		string(feedback.Phenotype),
		string(feedback.SuggestedRisk),
		string(feedback.ClinicianRisk),
		feedback.Agreed,
		feedback.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	feedback.ID = id

	return nil
}

// Get retrieves feedback for a drug and diplotype.
func (s *SQLiteStore) Get(ctx context.Context, drug, diplotype string) (*Feedback, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM risk_feedback WHERE drug = ? AND diplotype = ? LIMIT 1",
		drug, diplotype)

	fb, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return fb, nil
}

// List returns feedback entries with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM risk_feedback ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, fb)
	}
	return result, rows.Err()
}

// Count returns the total number of feedback entries.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM risk_feedback").Scan(&count)
	return count, err
}

// Delete removes a feedback entry by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM risk_feedback WHERE id = ?", id)
	return err
}

// ExportJSON exports all feedback to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports feedback from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (int, int, error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

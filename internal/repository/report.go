package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/domain"
)

// maxReportsPerPatient bounds ListByPatient.
const maxReportsPerPatient = 100

// DBTX is the subset of pgxpool.Pool used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ReportRepository persists per-drug analysis reports
type ReportRepository struct {
	db  DBTX
	log *logrus.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db DBTX, logger *logrus.Logger) *ReportRepository {
	return &ReportRepository{
		db:  db,
		log: logger,
	}
}

// Create assigns a report id and stores the full result as JSON
func (r *ReportRepository) Create(ctx context.Context, result *domain.AnalysisResult) (*domain.StoredReport, error) {
	if result == nil {
		return nil, fmt.Errorf("creating report: result is nil")
	}

	id := uuid.New().String()
	result.ID = id

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}

	query := `
		INSERT INTO analysis_reports (
			id, patient_id, drug, risk_label, severity, confidence, report
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING created_at`

	var createdAt time.Time
	err = r.db.QueryRow(ctx, query,
		id,
		result.PatientID,
		result.Drug,
		string(result.RiskAssessment.RiskLabel),
		string(result.RiskAssessment.Severity),
		result.RiskAssessment.ConfidenceScore,
		payload,
	).Scan(&createdAt)
	if err != nil {
		result.ID = ""
		r.log.WithFields(logrus.Fields{
			"patient_id": result.PatientID,
			"drug":       result.Drug,
			"error":      err,
		}).Error("Failed to create report")
		return nil, fmt.Errorf("creating report: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"report_id":  id,
		"patient_id": result.PatientID,
		"drug":       result.Drug,
		"risk_label": result.RiskAssessment.RiskLabel,
	}).Info("Report stored")

	return &domain.StoredReport{
		ID:         id,
		PatientID:  result.PatientID,
		Drug:       result.Drug,
		RiskLabel:  result.RiskAssessment.RiskLabel,
		Severity:   result.RiskAssessment.Severity,
		Confidence: result.RiskAssessment.ConfidenceScore,
		Report:     result,
		CreatedAt:  createdAt,
	}, nil
}

// GetByID retrieves a report by its id
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*domain.StoredReport, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("report %q: %w", id, domain.ErrNotFound)
	}

	query := `
		SELECT id, patient_id, drug, risk_label, severity, confidence, report, created_at
		FROM analysis_reports
		WHERE id = $1`

	report, err := scanReport(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("report %q: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"report_id": id,
			"error":     err,
		}).Error("Failed to get report by ID")
		return nil, fmt.Errorf("getting report by ID: %w", err)
	}

	return report, nil
}

// ListByPatient returns a patient's reports, newest first
func (r *ReportRepository) ListByPatient(ctx context.Context, patientID string) ([]*domain.StoredReport, error) {
	query := `
		SELECT id, patient_id, drug, risk_label, severity, confidence, report, created_at
		FROM analysis_reports
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, patientID, maxReportsPerPatient)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to list reports")
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	reports := []*domain.StoredReport{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating report rows: %w", err)
	}

	return reports, nil
}

func scanReport(row pgx.Row) (*domain.StoredReport, error) {
	var (
		report     domain.StoredReport
		riskLabel  string
		severity   string
		payload    []byte
		confidence float64
	)

	err := row.Scan(
		&report.ID,
		&report.PatientID,
		&report.Drug,
		&riskLabel,
		&severity,
		&confidence,
		&payload,
		&report.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	report.RiskLabel = domain.RiskLabel(riskLabel)
	report.Severity = domain.Severity(severity)
	report.Confidence = confidence

	var result domain.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", report.ID, err)
	}
	result.ID = report.ID
	report.Report = &result

	return &report, nil
}

var _ domain.ReportRepository = (*ReportRepository)(nil)

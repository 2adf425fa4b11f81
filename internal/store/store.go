package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("labassist/store")

// Store wraps the relational store holding structured lab records. All
// queries are parameterized; user input is never concatenated into SQL.
type Store struct {
	DB *sql.DB
}

// Open connects to postgres with the given DSN.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{DB: db}, nil
}

// LabFilter narrows count queries. Empty fields are skipped.
type LabFilter struct {
	SubjectID string
	Status    string
	Test      string
}

// CountLabs counts lab interpretations matching the filter.
func (s *Store) CountLabs(ctx context.Context, f LabFilter) (int, error) {
	ctx, span := tracer.Start(ctx, "Store.CountLabs")
	defer span.End()
	span.SetAttributes(attribute.String("subject_id", f.SubjectID))

	query := "SELECT COUNT(*) FROM lab_interpretations"
	var clauses []string
	var params []interface{}
	if f.Status != "" {
		params = append(params, f.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(params)))
	}
	if f.SubjectID != "" {
		params = append(params, f.SubjectID)
		clauses = append(clauses, fmt.Sprintf("subject_id = $%d", len(params)))
	}
	if f.Test != "" {
		params = append(params, f.Test)
		clauses = append(clauses, fmt.Sprintf("test_name = $%d", len(params)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, query, params...).Scan(&count); err != nil {
		span.RecordError(err)
		return 0, err
	}
	return count, nil
}

// LabResult is a single interpreted lab row. Value and Unit are nullable in
// the schema; HasValue distinguishes a stored zero from a missing value.
type LabResult struct {
	SubjectID string
	TestName  string
	Value     float64
	HasValue  bool
	Unit      string
	Status    string
}

// AbnormalLabsBySubject fetches the latest abnormal/critical labs for a
// patient. The limit keeps summary prompts short enough for the generator.
func (s *Store) AbnormalLabsBySubject(ctx context.Context, subjectID string, limit int) ([]LabResult, error) {
	ctx, span := tracer.Start(ctx, "Store.AbnormalLabsBySubject")
	defer span.End()

	rows, err := s.DB.QueryContext(ctx, `
		SELECT subject_id, test_name, value, unit, status
		FROM lab_interpretations
		WHERE subject_id = $1 AND status IN ('ABNORMAL', 'CRITICAL')
		ORDER BY processed_time DESC
		LIMIT $2`, subjectID, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var out []LabResult
	for rows.Next() {
		var r LabResult
		var value sql.NullFloat64
		var unit sql.NullString
		if err := rows.Scan(&r.SubjectID, &r.TestName, &value, &unit, &r.Status); err != nil {
			return nil, err
		}
		r.Value, r.HasValue = value.Float64, value.Valid
		r.Unit = unit.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// StatusCount pairs a lab status with its record count.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// StatusSummary counts labs per status, mapping NULL to UNKNOWN.
func (s *Store) StatusSummary(ctx context.Context) ([]StatusCount, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT COALESCE(status, 'UNKNOWN') AS status, COUNT(*) AS count
		FROM lab_interpretations
		GROUP BY COALESCE(status, 'UNKNOWN')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// PatientRiskDistribution rolls patients up to their worst lab status.
func (s *Store) PatientRiskDistribution(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT
			CASE risk_level
				WHEN 2 THEN 'CRITICAL'
				WHEN 1 THEN 'ABNORMAL'
				ELSE 'NORMAL'
			END AS risk_label,
			COUNT(*) AS count
		FROM (
			SELECT subject_id,
				MAX(CASE WHEN status = 'CRITICAL' THEN 2 WHEN status = 'ABNORMAL' THEN 1 ELSE 0 END) AS risk_level
			FROM lab_interpretations
			GROUP BY subject_id
		) patient_risk
		GROUP BY risk_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := map[string]int{"NORMAL": 0, "ABNORMAL": 0, "CRITICAL": 0}
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, err
		}
		summary[label] = count
	}
	return summary, rows.Err()
}

// HighRiskPatientCount counts patients with at least one critical lab.
func (s *Store) HighRiskPatientCount(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT subject_id)
		FROM lab_interpretations
		WHERE status = 'CRITICAL'`).Scan(&count)
	return count, err
}

// LabImpact reports how many patients a test affected at a given status.
type LabImpact struct {
	TestName     string `json:"test_name"`
	Status       string `json:"status"`
	PatientCount int    `json:"patient_count"`
}

// ByLabImpact lists the most impacted tests (abnormal and critical).
func (s *Store) ByLabImpact(ctx context.Context) ([]LabImpact, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT test_name, status, COUNT(DISTINCT subject_id) AS patient_count
		FROM lab_interpretations
		WHERE status IN ('ABNORMAL', 'CRITICAL')
		GROUP BY test_name, status
		ORDER BY patient_count DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabImpact
	for rows.Next() {
		var li LabImpact
		if err := rows.Scan(&li.TestName, &li.Status, &li.PatientCount); err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// GenderImpact reports how many patients of a gender carry a given status.
type GenderImpact struct {
	Gender       string `json:"gender"`
	Status       string `json:"status"`
	PatientCount int    `json:"patient_count"`
}

// ByGenderImpact splits abnormal and critical labs by patient gender.
func (s *Store) ByGenderImpact(ctx context.Context) ([]GenderImpact, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT COALESCE(gender, 'UNKNOWN') AS gender, status, COUNT(DISTINCT subject_id) AS patient_count
		FROM lab_interpretations
		WHERE status IN ('ABNORMAL', 'CRITICAL')
		GROUP BY COALESCE(gender, 'UNKNOWN'), status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GenderImpact
	for rows.Next() {
		var gi GenderImpact
		if err := rows.Scan(&gi.Gender, &gi.Status, &gi.PatientCount); err != nil {
			return nil, err
		}
		out = append(out, gi)
	}
	return out, rows.Err()
}

// LabRecord is a full interpreted lab row as served by alert listings.
type LabRecord struct {
	ID            int64     `json:"id"`
	SubjectID     string    `json:"subject_id"`
	HadmID        string    `json:"hadm_id,omitempty"`
	TestName      string    `json:"test_name"`
	Value         *float64  `json:"value"`
	Unit          string    `json:"unit,omitempty"`
	Gender        string    `json:"gender,omitempty"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	ProcessedTime time.Time `json:"processed_time"`
	Reviewed      bool      `json:"reviewed"`
}

// UnreviewedCritical lists critical labs nobody has reviewed yet, most
// recent first.
func (s *Store) UnreviewedCritical(ctx context.Context) ([]LabRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, subject_id, hadm_id, test_name, value, unit, gender, status, reason, processed_time, reviewed
		FROM lab_interpretations
		WHERE status = 'CRITICAL' AND reviewed = FALSE
		ORDER BY processed_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabRecord
	for rows.Next() {
		var r LabRecord
		var hadm, unit, gender, reason sql.NullString
		var value sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.SubjectID, &hadm, &r.TestName, &value, &unit,
			&gender, &r.Status, &reason, &r.ProcessedTime, &r.Reviewed); err != nil {
			return nil, err
		}
		if value.Valid {
			v := value.Float64
			r.Value = &v
		}
		r.HadmID, r.Unit, r.Gender, r.Reason = hadm.String, unit.String, gender.String, reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// AlertSummary counts pending critical alerts and the patients they affect.
type AlertSummary struct {
	TotalUnreviewed  int `json:"total_unreviewed"`
	AffectedPatients int `json:"affected_patients"`
}

// UnreviewedCriticalSummary rolls the pending critical alerts up for
// dashboard panels.
func (s *Store) UnreviewedCriticalSummary(ctx context.Context) (AlertSummary, error) {
	var sum AlertSummary
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) AS total_unreviewed, COUNT(DISTINCT subject_id) AS affected_patients
		FROM lab_interpretations
		WHERE status = 'CRITICAL' AND reviewed = FALSE`).Scan(&sum.TotalUnreviewed, &sum.AffectedPatients)
	return sum, err
}

// DistinctSubjectIDs lists known patients, bounded for prediction sweeps.
func (s *Store) DistinctSubjectIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT DISTINCT subject_id
		FROM lab_interpretations
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// TestCount pairs a test name with a record count.
type TestCount struct {
	TestName string `json:"test_name"`
	Count    int    `json:"count"`
}

// RecentCriticalActivity lists critical labs per test in the last N hours.
func (s *Store) RecentCriticalActivity(ctx context.Context, hours int) ([]TestCount, error) {
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	rows, err := s.DB.QueryContext(ctx, `
		SELECT test_name, COUNT(*) AS count
		FROM lab_interpretations
		WHERE status = 'CRITICAL' AND processed_time >= $1
		GROUP BY test_name
		ORDER BY count DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TestCount
	for rows.Next() {
		var tc TestCount
		if err := rows.Scan(&tc.TestName, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func setupStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	cleanup := func() { db.Close() }
	return &Store{DB: db}, mock, cleanup
}

func TestCountLabsNoFilter(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	query := regexp.QuoteMeta("SELECT COUNT(*) FROM lab_interpretations")
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := st.CountLabs(context.Background(), LabFilter{})
	if err != nil {
		t.Fatalf("CountLabs: %v", err)
	}
	if count != 42 {
		t.Fatalf("count = %d, want 42", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountLabsAllFilters(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	query := regexp.QuoteMeta(
		"SELECT COUNT(*) FROM lab_interpretations WHERE status = $1 AND subject_id = $2 AND test_name = $3")
	mock.ExpectQuery(query).
		WithArgs("CRITICAL", "10014354", "Sodium").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := st.CountLabs(context.Background(), LabFilter{
		SubjectID: "10014354",
		Status:    "CRITICAL",
		Test:      "Sodium",
	})
	if err != nil {
		t.Fatalf("CountLabs: %v", err)
	}
	if count != 7 {
		t.Fatalf("count = %d, want 7", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAbnormalLabsBySubject(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"subject_id", "test_name", "value", "unit", "status"}).
		AddRow("10014354", "Sodium", 128.0, "mEq/L", "ABNORMAL").
		AddRow("10014354", "Potassium", 6.3, "mEq/L", "CRITICAL")
	mock.ExpectQuery("SELECT subject_id, test_name, value, unit, status").
		WithArgs("10014354", 5).
		WillReturnRows(rows)

	labs, err := st.AbnormalLabsBySubject(context.Background(), "10014354", 5)
	if err != nil {
		t.Fatalf("AbnormalLabsBySubject: %v", err)
	}
	if len(labs) != 2 {
		t.Fatalf("expected 2 labs, got %d", len(labs))
	}
	if labs[1].TestName != "Potassium" || labs[1].Status != "CRITICAL" {
		t.Errorf("unexpected row: %+v", labs[1])
	}
}

func TestAbnormalLabsTolerateNullValueAndUnit(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"subject_id", "test_name", "value", "unit", "status"}).
		AddRow("10014354", "Sodium", nil, nil, "ABNORMAL").
		AddRow("10014354", "Potassium", 6.3, "mEq/L", "CRITICAL")
	mock.ExpectQuery("SELECT subject_id, test_name, value, unit, status").
		WithArgs("10014354", 5).
		WillReturnRows(rows)

	labs, err := st.AbnormalLabsBySubject(context.Background(), "10014354", 5)
	if err != nil {
		t.Fatalf("AbnormalLabsBySubject: %v", err)
	}
	if len(labs) != 2 {
		t.Fatalf("expected 2 labs, got %d", len(labs))
	}
	if labs[0].HasValue || labs[0].Value != 0 || labs[0].Unit != "" {
		t.Errorf("null columns must scan as absent: %+v", labs[0])
	}
	if !labs[1].HasValue || labs[1].Value != 6.3 {
		t.Errorf("stored value must survive: %+v", labs[1])
	}
}

func TestStatusSummary(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("NORMAL", 100).
		AddRow("CRITICAL", 3).
		AddRow("UNKNOWN", 1)
	mock.ExpectQuery("SELECT COALESCE\\(status, 'UNKNOWN'\\)").WillReturnRows(rows)

	summary, err := st.StatusSummary(context.Background())
	if err != nil {
		t.Fatalf("StatusSummary: %v", err)
	}
	if len(summary) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(summary))
	}
	if summary[2].Status != "UNKNOWN" || summary[2].Count != 1 {
		t.Errorf("unexpected bucket: %+v", summary[2])
	}
}

func TestPatientRiskDistributionFillsMissingBuckets(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"risk_label", "count"}).
		AddRow("CRITICAL", 2)
	mock.ExpectQuery("CASE risk_level").WillReturnRows(rows)

	dist, err := st.PatientRiskDistribution(context.Background())
	if err != nil {
		t.Fatalf("PatientRiskDistribution: %v", err)
	}
	if dist["CRITICAL"] != 2 {
		t.Errorf("CRITICAL = %d, want 2", dist["CRITICAL"])
	}
	if dist["NORMAL"] != 0 || dist["ABNORMAL"] != 0 {
		t.Errorf("absent buckets must default to zero: %v", dist)
	}
}

func TestHighRiskPatientCount(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(DISTINCT subject_id)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))

	count, err := st.HighRiskPatientCount(context.Background())
	if err != nil {
		t.Fatalf("HighRiskPatientCount: %v", err)
	}
	if count != 9 {
		t.Fatalf("count = %d, want 9", count)
	}
}

func TestByGenderImpact(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"gender", "status", "patient_count"}).
		AddRow("F", "CRITICAL", 3).
		AddRow("UNKNOWN", "ABNORMAL", 1)
	mock.ExpectQuery("SELECT COALESCE\\(gender, 'UNKNOWN'\\)").WillReturnRows(rows)

	out, err := st.ByGenderImpact(context.Background())
	if err != nil {
		t.Fatalf("ByGenderImpact: %v", err)
	}
	if len(out) != 2 || out[0].Gender != "F" || out[1].Gender != "UNKNOWN" {
		t.Errorf("unexpected rows: %+v", out)
	}
}

func TestUnreviewedCriticalToleratesNullColumns(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "subject_id", "hadm_id", "test_name", "value", "unit",
		"gender", "status", "reason", "processed_time", "reviewed",
	}).AddRow(int64(1), "10014354", nil, "Potassium", nil, nil, nil, "CRITICAL", nil, now, false)
	mock.ExpectQuery("WHERE status = 'CRITICAL' AND reviewed = FALSE").WillReturnRows(rows)

	out, err := st.UnreviewedCritical(context.Background())
	if err != nil {
		t.Fatalf("UnreviewedCritical: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	if out[0].Value != nil || out[0].Unit != "" || out[0].Reviewed {
		t.Errorf("unexpected row: %+v", out[0])
	}
}

func TestUnreviewedCriticalSummary(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"total_unreviewed", "affected_patients"}).AddRow(5, 2)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS total_unreviewed").WillReturnRows(rows)

	sum, err := st.UnreviewedCriticalSummary(context.Background())
	if err != nil {
		t.Fatalf("UnreviewedCriticalSummary: %v", err)
	}
	if sum.TotalUnreviewed != 5 || sum.AffectedPatients != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestDistinctSubjectIDs(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"subject_id"}).AddRow("10014354").AddRow("10025678")
	mock.ExpectQuery("SELECT DISTINCT subject_id").
		WithArgs(50).
		WillReturnRows(rows)

	ids, err := st.DistinctSubjectIDs(context.Background(), 50)
	if err != nil {
		t.Fatalf("DistinctSubjectIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "10014354" {
		t.Errorf("ids = %v", ids)
	}
}

func TestRecentCriticalActivity(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"test_name", "count"}).
		AddRow("Potassium", 4).
		AddRow("Sodium", 1)
	mock.ExpectQuery("WHERE status = 'CRITICAL' AND processed_time >=").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	out, err := st.RecentCriticalActivity(context.Background(), 24)
	if err != nil {
		t.Fatalf("RecentCriticalActivity: %v", err)
	}
	if len(out) != 2 || out[0].TestName != "Potassium" {
		t.Errorf("unexpected rows: %+v", out)
	}
}

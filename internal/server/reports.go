package server

import (
	"context"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kianbahrami/labassist/internal/risk"
	"github.com/kianbahrami/labassist/internal/store"
)

// ReportStore is the slice of the store the dashboard endpoints consume.
type ReportStore interface {
	StatusSummary(ctx context.Context) ([]store.StatusCount, error)
	PatientRiskDistribution(ctx context.Context) (map[string]int, error)
	HighRiskPatientCount(ctx context.Context) (int, error)
	ByLabImpact(ctx context.Context) ([]store.LabImpact, error)
	ByGenderImpact(ctx context.Context) ([]store.GenderImpact, error)
	UnreviewedCritical(ctx context.Context) ([]store.LabRecord, error)
	UnreviewedCriticalSummary(ctx context.Context) (store.AlertSummary, error)
	RecentCriticalActivity(ctx context.Context, hours int) ([]store.TestCount, error)
	DistinctSubjectIDs(ctx context.Context, limit int) ([]string, error)
}

// RiskPredictor proxies single-patient predictions.
type RiskPredictor interface {
	Predict(ctx context.Context, subjectID string) (risk.Prediction, error)
}

// ReportsHandler serves dashboard aggregates and risk prediction proxies.
type ReportsHandler struct {
	Store     ReportStore
	Predictor RiskPredictor
}

func (h *ReportsHandler) Register(e *echo.Echo) {
	g := e.Group("/api/reports")
	g.GET("/summary", h.summary)
	g.GET("/patient-risk-distribution", h.riskDistribution)
	g.GET("/high-risk-patients", h.highRisk)
	g.GET("/by-lab", h.byLab)
	g.GET("/by-gender", h.byGender)
	g.GET("/unreviewed-critical", h.unreviewedCritical)
	g.GET("/unreviewed-critical-summary", h.unreviewedCriticalSummary)
	g.GET("/recent-critical", h.recentCritical)

	e.GET("/api/predict/patient/:subject_id/risk", h.predict)
	e.GET("/api/predict/risk-distribution", h.predictDistribution)
	e.GET("/api/predict/high-risk", h.predictHighRisk)
}

func (h *ReportsHandler) summary(c echo.Context) error {
	rows, err := h.Store.StatusSummary(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *ReportsHandler) riskDistribution(c echo.Context) error {
	dist, err := h.Store.PatientRiskDistribution(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, dist)
}

func (h *ReportsHandler) highRisk(c echo.Context) error {
	count, err := h.Store.HighRiskPatientCount(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"critical_patients": count})
}

func (h *ReportsHandler) byLab(c echo.Context) error {
	rows, err := h.Store.ByLabImpact(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *ReportsHandler) recentCritical(c echo.Context) error {
	hours := 24
	if v := c.QueryParam("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "hours must be a positive integer")
		}
		hours = parsed
	}
	rows, err := h.Store.RecentCriticalActivity(c.Request().Context(), hours)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *ReportsHandler) byGender(c echo.Context) error {
	rows, err := h.Store.ByGenderImpact(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *ReportsHandler) unreviewedCritical(c echo.Context) error {
	rows, err := h.Store.UnreviewedCritical(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *ReportsHandler) unreviewedCriticalSummary(c echo.Context) error {
	sum, err := h.Store.UnreviewedCriticalSummary(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

// predictSweepLimit bounds how many patients a model sweep may touch; every
// patient costs one call to the risk service.
const predictSweepLimit = 500

// predictDistribution sweeps known patients through the risk model and
// counts them per predicted label. Patients the model cannot score are
// excluded from the buckets but still counted in the total.
func (h *ReportsHandler) predictDistribution(c echo.Context) error {
	ctx := c.Request().Context()
	subjects, err := h.Store.DistinctSubjectIDs(ctx, predictSweepLimit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dist := map[string]int{"NORMAL": 0, "ABNORMAL": 0, "CRITICAL": 0}
	for _, id := range subjects {
		pred, err := h.Predictor.Predict(ctx, id)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "risk service unavailable")
		}
		if pred.Error != "" {
			continue
		}
		if _, ok := dist[pred.RiskLabel]; ok {
			dist[pred.RiskLabel]++
		}
	}
	return c.JSON(http.StatusOK, map[string]int{
		"NORMAL":   dist["NORMAL"],
		"ABNORMAL": dist["ABNORMAL"],
		"CRITICAL": dist["CRITICAL"],
		"total":    len(subjects),
	})
}

// predictHighRisk sweeps up to limit patients and returns those at or above
// the requested risk level, highest confidence first.
func (h *ReportsHandler) predictHighRisk(c echo.Context) error {
	riskLevel := 2
	if v := c.QueryParam("risk_level"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 2 {
			return echo.NewHTTPError(http.StatusBadRequest, "risk_level must be 1 or 2")
		}
		riskLevel = parsed
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	ctx := c.Request().Context()
	subjects, err := h.Store.DistinctSubjectIDs(ctx, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	highRisk := make([]risk.Prediction, 0)
	for _, id := range subjects {
		pred, err := h.Predictor.Predict(ctx, id)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "risk service unavailable")
		}
		if pred.Error == "" && pred.RiskLevel >= riskLevel {
			highRisk = append(highRisk, pred)
		}
	}
	sort.Slice(highRisk, func(i, j int) bool {
		return highRisk[i].Confidence > highRisk[j].Confidence
	})
	return c.JSON(http.StatusOK, highRisk)
}

// predict proxies a single-patient risk prediction. Service-reported errors
// stay inside the response body; only transport failures become HTTP errors.
func (h *ReportsHandler) predict(c echo.Context) error {
	subjectID := c.Param("subject_id")
	if !subjectIDParam.MatchString(subjectID) {
		return echo.NewHTTPError(http.StatusBadRequest, "subject_id must be a patient identifier")
	}
	pred, err := h.Predictor.Predict(c.Request().Context(), subjectID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "risk service unavailable")
	}
	return c.JSON(http.StatusOK, pred)
}

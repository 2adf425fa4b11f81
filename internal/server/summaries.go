package server

import (
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/kianbahrami/labassist/internal/summary"
)

var subjectIDParam = regexp.MustCompile(`^\d{6,}$`)

// SummaryCache is the slice of the summary service the handler consumes.
type SummaryCache interface {
	Get(subjectID string) (summary.Entry, bool)
	EnsureBackground(subjectID string) bool
}

// SummaryHandler serves cached AI summaries with background generation.
type SummaryHandler struct {
	Summaries SummaryCache
}

func (h *SummaryHandler) Register(e *echo.Echo) {
	e.GET("/api/patients/:subject_id/ai-summary", h.get)
}

// get returns the summary when ready; otherwise it triggers background
// generation and tells the caller to poll again.
func (h *SummaryHandler) get(c echo.Context) error {
	subjectID := c.Param("subject_id")
	if !subjectIDParam.MatchString(subjectID) {
		return echo.NewHTTPError(http.StatusBadRequest, "subject_id must be a patient identifier")
	}

	if entry, ok := h.Summaries.Get(subjectID); ok {
		return c.JSON(http.StatusOK, entry)
	}

	h.Summaries.EnsureBackground(subjectID)
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Generating AI summary. This may take a few seconds. Please refresh shortly.",
	})
}

// Package risk adapts the trained risk-classification service.
package risk

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kianbahrami/labassist/config"
	"github.com/kianbahrami/labassist/internal/httpx"
)

// Probabilities is the per-class probability breakdown, in percent.
type Probabilities struct {
	Normal   float64 `json:"normal"`
	Abnormal float64 `json:"abnormal"`
	Critical float64 `json:"critical"`
}

// Prediction is the risk service's verdict for one patient. Error carries
// in-band failures (untrained model, no data) inside the normal shape.
type Prediction struct {
	SubjectID     string        `json:"subject_id"`
	RiskLevel     int           `json:"risk_level"`
	RiskLabel     string        `json:"risk_label"`
	Confidence    float64       `json:"confidence_percent"`
	PredictedAt   string        `json:"predicted_at,omitempty"`
	Probabilities Probabilities `json:"probabilities"`
	Error         string        `json:"error,omitempty"`
}

// Client is an HTTP client for the risk-prediction service.
type Client struct {
	base string
	http *httpx.Client
}

func NewClient(cfg config.RiskConfig) *Client {
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: httpx.New(cfg.Timeout, 0, 0),
	}
}

// Predict fetches the risk prediction for a patient. A service-reported
// error field is returned verbatim inside the Prediction, not as a Go error.
func (c *Client) Predict(ctx context.Context, subjectID string) (Prediction, error) {
	var pred Prediction
	url := fmt.Sprintf("%s/predict/%s", c.base, subjectID)
	if err := c.http.DoJSON(ctx, http.MethodGet, url, nil, &pred); err != nil {
		return Prediction{}, fmt.Errorf("risk predict: %w", err)
	}
	return pred, nil
}

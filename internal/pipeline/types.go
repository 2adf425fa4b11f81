package pipeline

import (
	"context"

	"github.com/kianbahrami/labassist/internal/risk"
	"github.com/kianbahrami/labassist/internal/store"
	"github.com/kianbahrami/labassist/internal/vector"
)

// Intent is the coarse category assigned to a question. It selects which
// handler runs before synthesis.
type Intent string

const (
	IntentRAG         Intent = "rag"
	IntentCount       Intent = "count"
	IntentRisk        Intent = "risk"
	IntentUnsupported Intent = "unsupported"
)

// Entities are structured facts extracted from the question text. SubjectID
// is only ever set from a digit run found in the raw question; values
// proposed by the classification model alone are discarded.
type Entities struct {
	SubjectID string
	Test      string
	Status    string
}

// Classification is the classifier's verdict for a single question.
type Classification struct {
	Intent   Intent
	Entities Entities
}

// State is the mutable record threaded through the router. It lives for one
// request and is discarded afterwards.
type State struct {
	Question        string
	Intent          Intent
	Entities        Entities
	Context         []string // retrieved context, at most one chunk
	NumericalResult string
	RiskData        risk.Prediction
	HasRiskData     bool

	// Exactly one of FinalPrompt / Direct is set after synthesis. Direct is
	// a canned response sent verbatim without a generation request.
	FinalPrompt string
	Direct      string
}

// Event is one frame of the caller-facing stream. Every request emits zero
// or more status events, then zero or more token events, then exactly one
// done event.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

const (
	EventStatus = "status"
	EventToken  = "token"
	EventDone   = "done"
)

func statusEvent(msg string) Event { return Event{Type: EventStatus, Content: msg} }
func tokenEvent(msg string) Event  { return Event{Type: EventToken, Content: msg} }
func doneEvent() Event             { return Event{Type: EventDone} }

// Emitter receives stream events in order. Emit returning an error means the
// caller is gone; the pipeline stops consuming upstream work.
type Emitter interface {
	Emit(Event) error
}

// Generator is the language-model inference service.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string, fn func(chunk string) error) error
}

// Searcher is the vector retrieval service.
type Searcher interface {
	Search(ctx context.Context, query string, k int, where map[string]string) ([]vector.Document, error)
}

// Predictor is the risk-prediction service.
type Predictor interface {
	Predict(ctx context.Context, subjectID string) (risk.Prediction, error)
}

// LabCounter is the slice of the relational store the pipeline needs.
type LabCounter interface {
	CountLabs(ctx context.Context, f store.LabFilter) (int, error)
}

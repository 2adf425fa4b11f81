package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kianbahrami/labassist/internal/store"
)

// fastIDPattern is the looser identifier match used by the fast paths. The
// classifier itself demands 7+ digits before trusting an id as an entity.
var fastIDPattern = regexp.MustCompile(`\d{6,}`)

// dispatchFastPath checks latency shortcuts in fixed priority order. The
// first match serves the request and the router is never invoked. Every
// path honors the same event contract as the full router.
func (p *Pipeline) dispatchFastPath(ctx context.Context, question string, em Emitter) (bool, error) {
	lower := strings.ToLower(strings.TrimSpace(question))
	subjectID := fastIDPattern.FindString(question)

	if _, ok := greetings[lower]; ok || utf8.RuneCountInString(lower) <= 2 {
		chatRequests.WithLabelValues("greeting").Inc()
		return true, em.Emit(tokenEvent(GreetingResponse))
	}

	isCount := containsAny(lower, countKeywords)
	if isCount && subjectID != "" {
		chatRequests.WithLabelValues("fastpath_count").Inc()
		return true, p.fastCount(ctx, lower, subjectID, em)
	}

	if containsAny(lower, riskKeywords) && subjectID != "" {
		chatRequests.WithLabelValues("fastpath_risk").Inc()
		return true, p.fastRisk(ctx, subjectID, em)
	}

	if containsAny(lower, historyKeywords) && subjectID != "" && !isCount {
		chatRequests.WithLabelValues("fastpath_history").Inc()
		return true, p.fastHistory(ctx, question, lower, subjectID, em)
	}

	return false, nil
}

// fastCount answers counting questions without classifying: extract status
// and test literally, run one parameterized count, and have the generator
// phrase the number factually.
func (p *Pipeline) fastCount(ctx context.Context, lower, subjectID string, em Emitter) error {
	if err := em.Emit(statusEvent("Aggregating records...")); err != nil {
		return err
	}

	var status string
	switch {
	case strings.Contains(lower, "critical"):
		status = "CRITICAL"
	case strings.Contains(lower, "abnormal"):
		status = "ABNORMAL"
	case strings.Contains(lower, "normal"):
		status = "NORMAL"
	}
	test := findSupportedTest(lower)

	count, err := p.counter.CountLabs(ctx, store.LabFilter{
		SubjectID: subjectID,
		Status:    status,
		Test:      test,
	})
	if err != nil {
		p.logger.Printf("fast count failed: %v", err)
		return em.Emit(tokenEvent("Error calculating counts. Please try again shortly."))
	}

	if err := em.Emit(statusEvent("Reporting count...")); err != nil {
		return err
	}
	return p.streamAnswer(ctx, countPrompt(subjectID, count, status, test), em)
}

// fastRisk answers risk questions by calling the risk service directly.
func (p *Pipeline) fastRisk(ctx context.Context, subjectID string, em Emitter) error {
	if err := em.Emit(statusEvent("Predicting patient risk...")); err != nil {
		return err
	}

	pred, err := p.predictor.Predict(ctx, subjectID)
	if err != nil {
		p.logger.Printf("fast risk failed: %v", err)
		return em.Emit(tokenEvent(SafeFallback))
	}

	var prompt string
	if pred.Error != "" {
		prompt = riskErrorPrompt(subjectID, pred.Error)
	} else {
		prompt = riskExplainPrompt(subjectID, pred.RiskLabel, pred.Confidence)
	}

	if err := em.Emit(statusEvent("Generating clinical summary...")); err != nil {
		return err
	}
	return p.streamAnswer(ctx, prompt, em)
}

// fastHistory serves patient-history questions: one filtered retrieval, the
// shared truncation, then direct synthesis.
func (p *Pipeline) fastHistory(ctx context.Context, question, lower, subjectID string, em Emitter) error {
	if err := em.Emit(statusEvent("Retrieving clinical records...")); err != nil {
		return err
	}

	docs, err := p.searcher.Search(ctx, question, 1, map[string]string{"subject_id": subjectID})
	if err != nil {
		p.logger.Printf("fast history retrieval failed: %v", err)
		return em.Emit(tokenEvent(SafeFallback))
	}
	if len(docs) == 0 {
		return em.Emit(tokenEvent(fmt.Sprintf("No clinical history found for patient %s.", subjectID)))
	}

	doc := docs[0]
	content := TruncatePatientHistory(doc.Content, doc.Metadata, findSupportedTest(lower))
	prompt := ragPrompt(subjectID, formatChunk(doc.Metadata, content), question)

	if err := em.Emit(statusEvent("Synthesizing report...")); err != nil {
		return err
	}
	return p.streamAnswer(ctx, prompt, em)
}

func findSupportedTest(lower string) string {
	for _, test := range SupportedLabTests {
		if strings.Contains(lower, strings.ToLower(test)) {
			return test
		}
	}
	return ""
}

// Package summary generates cached, non-diagnostic AI explanations of a
// patient's abnormal lab findings.
package summary

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/kianbahrami/labassist/internal/pipeline"
	"github.com/kianbahrami/labassist/internal/store"
)

// Disclaimer is attached to every cached summary.
const Disclaimer = "This explanation is for informational purposes only. " +
	"It does not provide medical diagnosis or treatment advice."

const noFindingsSummary = "No abnormal or critical lab findings were detected."

// maxLabs bounds the findings list so summary prompts stay short enough for
// the generator.
const maxLabs = 5

const generateTimeout = 90 * time.Second

// Entry is one cached summary. Entries never expire: the summary is an
// immutable snapshot of the findings at generation time.
type Entry struct {
	SubjectID  string `json:"subject_id"`
	Summary    string `json:"summary"`
	Disclaimer string `json:"disclaimer"`
}

// Generator is the non-streaming slice of the inference service.
type Generator interface {
	GenerateSummary(ctx context.Context, prompt string) (string, error)
}

// LabSource provides the findings a summary is built from.
type LabSource interface {
	AbnormalLabsBySubject(ctx context.Context, subjectID string, limit int) ([]store.LabResult, error)
}

// Service owns the process-wide summary cache. Concurrent first requests for
// the same subject coordinate through an in-flight claim so only one
// background computation runs; a failed computation releases the claim and a
// later poll re-triggers the work.
type Service struct {
	labs   LabSource
	llm    Generator
	logger *log.Logger

	mu       sync.Mutex
	entries  map[string]Entry
	inflight map[string]struct{}
}

func NewService(labs LabSource, llm Generator, logger *log.Logger) *Service {
	return &Service{
		labs:     labs,
		llm:      llm,
		logger:   logger,
		entries:  make(map[string]Entry),
		inflight: make(map[string]struct{}),
	}
}

// Get returns the cached summary, if one is ready.
func (s *Service) Get(subjectID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[subjectID]
	return e, ok
}

// EnsureBackground starts a background computation for the subject unless
// one already ran or is running. Returns true when a new computation was
// started.
func (s *Service) EnsureBackground(subjectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[subjectID]; ok {
		return false
	}
	if _, ok := s.inflight[subjectID]; ok {
		return false
	}
	s.inflight[subjectID] = struct{}{}
	go s.generate(subjectID)
	return true
}

func (s *Service) generate(subjectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	entry, ok := s.build(ctx, subjectID)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, subjectID)
	if ok {
		s.entries[subjectID] = entry
	}
}

func (s *Service) build(ctx context.Context, subjectID string) (Entry, bool) {
	labs, err := s.labs.AbnormalLabsBySubject(ctx, subjectID, maxLabs)
	if err != nil {
		s.logger.Printf("summary labs fetch failed for %s: %v", subjectID, err)
		return Entry{}, false
	}

	if len(labs) == 0 {
		return Entry{SubjectID: subjectID, Summary: noFindingsSummary, Disclaimer: Disclaimer}, true
	}

	raw, err := s.llm.GenerateSummary(ctx, summaryPrompt(labs))
	if err != nil {
		s.logger.Printf("summary generation failed for %s: %v", subjectID, err)
		return Entry{}, false
	}

	return Entry{
		SubjectID:  subjectID,
		Summary:    pipeline.CleanText(raw),
		Disclaimer: Disclaimer,
	}, true
}

func summaryPrompt(labs []store.LabResult) string {
	var findings strings.Builder
	for _, lab := range labs {
		if lab.HasValue {
			fmt.Fprintf(&findings, "- %s is %s (value: %g %s)\n", lab.TestName, lab.Status, lab.Value, lab.Unit)
		} else {
			fmt.Fprintf(&findings, "- %s is %s\n", lab.TestName, lab.Status)
		}
	}

	return fmt.Sprintf(`You are a clinical explanation assistant.

STRICT RULES:
- Do NOT diagnose diseases
- Do NOT name specific medical conditions
- Do NOT recommend treatments
- Use cautious, observational language
- Always advise clinician review
- Do Not Involve the above mentioned rules in your answer

LAB FINDINGS:
%s
Provide a concise explanation in 2-3 complete sentences.`, findings.String())
}

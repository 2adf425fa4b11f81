package pipeline

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"
)

// subjectIDPattern matches patient identifiers inside free text. The
// classifier requires 7+ digits; fast paths accept 6+ (see fastpath.go).
var subjectIDPattern = regexp.MustCompile(`\d{7,}`)

// Classifier assigns an intent and extracts entities from a raw question.
// The model's draft is untrusted input: every later stage may override it,
// and entities only survive when they also appear in the question text.
type Classifier struct {
	llm    Generator
	logger *log.Logger
}

func NewClassifier(llm Generator, logger *log.Logger) *Classifier {
	return &Classifier{llm: llm, logger: logger}
}

type modelDraft struct {
	Intent   string                 `json:"intent"`
	Entities map[string]interface{} `json:"entities"`
}

// Classify runs the staged classification: model draft, negative-keyword
// override, positive retrieval heuristic, clinical-density guardrail, then
// deterministic entity extraction.
func (c *Classifier) Classify(ctx context.Context, question string) Classification {
	lower := strings.ToLower(question)

	// Out-of-scope keywords end classification immediately.
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			return Classification{Intent: IntentUnsupported}
		}
	}

	draft := c.modelDraft(ctx, question)
	intent := normalizeIntent(draft.Intent)
	entities := validateEntities(draft.Entities, question)

	if containsAny(lower, retrievalKeywords) {
		intent = IntentRAG
	}

	// Clinical-density guardrail: a clinical-sounding intent with zero
	// clinical context and no patient identifier is demoted.
	if intent == IntentRAG || intent == IntentCount || intent == IntentRisk {
		if !hasClinicalTerm(lower) && entities.SubjectID == "" {
			intent = IntentUnsupported
		}
	}

	// Deterministic extraction always runs last and wins.
	if strings.Contains(lower, "critical") {
		entities.Status = "CRITICAL"
	} else if strings.Contains(lower, "abnormal") {
		entities.Status = "ABNORMAL"
	}
	if m := subjectIDPattern.FindString(question); m != "" {
		entities.SubjectID = m
	} else {
		entities.SubjectID = ""
	}
	for _, test := range SupportedLabTests {
		if strings.Contains(lower, strings.ToLower(test)) {
			entities.Test = test
			break
		}
	}

	return Classification{Intent: intent, Entities: entities}
}

// modelDraft asks the generator for a structured classification. Any failure
// degrades to the unsupported default; a model outage must never crash a
// request.
func (c *Classifier) modelDraft(ctx context.Context, question string) modelDraft {
	unsupported := modelDraft{Intent: string(IntentUnsupported)}

	raw, err := c.llm.Generate(ctx, intentPrompt(question))
	if err != nil {
		c.logger.Printf("intent model call failed: %v", err)
		return unsupported
	}

	payload, ok := firstJSONObject(raw)
	if !ok {
		payload = strings.TrimSpace(raw)
	}
	var draft modelDraft
	if err := json.Unmarshal([]byte(payload), &draft); err != nil || draft.Intent == "" {
		return unsupported
	}
	return draft
}

// firstJSONObject returns the first balanced {...} substring.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func normalizeIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentRAG:
		return IntentRAG
	case IntentCount:
		return IntentCount
	case IntentRisk:
		return IntentRisk
	default:
		return IntentUnsupported
	}
}

// validateEntities filters model-proposed entities down to values that can
// be independently verified. A subject_id survives only when the same digit
// run occurs in the raw question; status and test must belong to their fixed
// vocabularies.
func validateEntities(raw map[string]interface{}, question string) Entities {
	var e Entities
	if raw == nil {
		return e
	}
	if sid := stringValue(raw["subject_id"]); sid != "" {
		if subjectIDPattern.MatchString(sid) && strings.Contains(question, sid) {
			e.SubjectID = sid
		}
	}
	if status := strings.ToUpper(stringValue(raw["status"])); status != "" {
		switch status {
		case "NORMAL", "ABNORMAL", "CRITICAL":
			e.Status = status
		}
	}
	if test := stringValue(raw["test"]); test != "" {
		for _, known := range SupportedLabTests {
			if strings.EqualFold(test, known) {
				e.Test = known
				break
			}
		}
	}
	return e
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		// identifiers sometimes come back as JSON numbers
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func hasClinicalTerm(lower string) bool {
	if containsAny(lower, clinicalKeywords) {
		return true
	}
	for _, test := range SupportedLabTests {
		if strings.Contains(lower, strings.ToLower(test)) {
			return true
		}
	}
	return false
}

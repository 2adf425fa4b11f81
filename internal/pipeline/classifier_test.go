package pipeline

import (
	"context"
	"errors"
	"testing"
)

func newTestClassifier(llm *fakeLLM) *Classifier {
	return NewClassifier(llm, testLogger())
}

func TestClassifyNegativeKeywordShortCircuits(t *testing.T) {
	llm := &fakeLLM{generateResp: `{"intent": "rag", "entities": {}}`}
	c := newTestClassifier(llm)

	got := c.Classify(context.Background(), "Give me a recipe for chicken soup")
	if got.Intent != IntentUnsupported {
		t.Errorf("intent = %s, want unsupported", got.Intent)
	}
	if llm.generateCalls != 0 {
		t.Errorf("out-of-scope keyword must skip the model entirely")
	}
}

func TestClassifyExtractsEntitiesDeterministically(t *testing.T) {
	// The model proposes nonsense; the question text wins.
	llm := &fakeLLM{generateResp: `{"intent": "count", "entities": {"subject_id": "99999999", "test": "Iron"}}`}
	c := newTestClassifier(llm)

	got := c.Classify(context.Background(), "Show critical sodium results for patient 10014354")
	if got.Intent != IntentRAG {
		t.Errorf("retrieval keyword must override the model, got %s", got.Intent)
	}
	want := Entities{SubjectID: "10014354", Test: "Sodium", Status: "CRITICAL"}
	if got.Entities != want {
		t.Errorf("entities = %+v, want %+v", got.Entities, want)
	}
}

func TestClassifyRejectsFabricatedSubjectID(t *testing.T) {
	llm := &fakeLLM{generateResp: `{"intent": "rag", "entities": {"subject_id": "12345678"}}`}
	c := newTestClassifier(llm)

	got := c.Classify(context.Background(), "What is a normal glucose range?")
	if got.Entities.SubjectID != "" {
		t.Errorf("subject_id absent from the question must be dropped, got %q", got.Entities.SubjectID)
	}
	if got.Intent != IntentRAG {
		t.Errorf("intent = %s, want rag", got.Intent)
	}
}

func TestClassifyAcceptsNumericSubjectID(t *testing.T) {
	llm := &fakeLLM{generateResp: `{"intent": "risk", "entities": {"subject_id": 10014354}}`}
	c := newTestClassifier(llm)

	got := c.Classify(context.Background(), "What is the risk level for patient 10014354?")
	if got.Intent != IntentRisk {
		t.Errorf("intent = %s, want risk", got.Intent)
	}
	if got.Entities.SubjectID != "10014354" {
		t.Errorf("subject_id = %q, want 10014354", got.Entities.SubjectID)
	}
}

func TestClassifyGuardrailDemotesNonClinical(t *testing.T) {
	llm := &fakeLLM{generateResp: `{"intent": "rag", "entities": {}}`}
	c := newTestClassifier(llm)

	got := c.Classify(context.Background(), "Summarize something interesting")
	if got.Intent != IntentUnsupported {
		t.Errorf("non-clinical query without an identifier must demote, got %s", got.Intent)
	}
}

func TestClassifyModelFailureDegradesToUnsupported(t *testing.T) {
	llm := &fakeLLM{generateErr: errors.New("connection refused")}
	c := newTestClassifier(llm)

	got := c.Classify(context.Background(), "something vague")
	if got.Intent != IntentUnsupported {
		t.Errorf("intent = %s, want unsupported", got.Intent)
	}
}

func TestClassifyToleratesChattyModelOutput(t *testing.T) {
	llm := &fakeLLM{generateResp: "Sure, here is the classification:\n" +
		`{"intent": "count", "entities": {"status": "abnormal"}}` + "\nHope that helps!"}
	c := newTestClassifier(llm)

	got := c.Classify(context.Background(), "abnormal lab totals for patient 10014354")
	if got.Intent != IntentCount {
		t.Errorf("intent = %s, want count", got.Intent)
	}
	if got.Entities.Status != "ABNORMAL" {
		t.Errorf("status = %q, want ABNORMAL", got.Entities.Status)
	}
}

func TestFirstJSONObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a": 1}`, `{"a": 1}`, true},
		{`noise {"a": {"b": 2}} trailing`, `{"a": {"b": 2}}`, true},
		{`{"s": "has } inside"}`, `{"s": "has } inside"}`, true},
		{`no braces here`, ``, false},
		{`{"unterminated": `, ``, false},
	}
	for _, tc := range cases {
		got, ok := firstJSONObject(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("firstJSONObject(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeIntent(t *testing.T) {
	cases := map[string]Intent{
		"rag":         IntentRAG,
		" RAG ":       IntentRAG,
		"Count":       IntentCount,
		"risk":        IntentRisk,
		"unsupported": IntentUnsupported,
		"banana":      IntentUnsupported,
		"":            IntentUnsupported,
	}
	for in, want := range cases {
		if got := normalizeIntent(in); got != want {
			t.Errorf("normalizeIntent(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestValidateEntitiesVocabulary(t *testing.T) {
	raw := map[string]interface{}{
		"subject_id": "10014354",
		"status":     "critical",
		"test":       "sodium",
	}
	got := validateEntities(raw, "sodium status for 10014354?")
	want := Entities{SubjectID: "10014354", Status: "CRITICAL", Test: "Sodium"}
	if got != want {
		t.Errorf("validateEntities = %+v, want %+v", got, want)
	}

	bad := map[string]interface{}{"status": "WEIRD", "test": "Iron"}
	if got := validateEntities(bad, "whatever"); got != (Entities{}) {
		t.Errorf("out-of-vocabulary values must be dropped, got %+v", got)
	}
}

package pipeline

import (
	"fmt"
	"strings"
)

const intentPromptTemplate = `Analyze the user's query and categorize it into exactly one of these intents:
1. 'rag': Queries about medical terms, lab tests (WBC, Glucose, etc.), or specific patient history found in clinical records.
2. 'count': Quantitative questions about lab result counts (e.g., "total abnormal results").
3. 'risk': Assessment of clinical health risk for a specific patient.
4. 'unsupported': ANY query not directly related to clinical laboratory records, medical history, or patient health risk.

CRITICAL: If the query is about weather, marriage, jokes, politics, news, general chat, or non-medical personal advice, you MUST use 'unsupported'. Do NOT try to fit general questions into medical categories.

Return JSON only: {"intent": "...", "entities": {"subject_id": "...", "test": "...", "status": "..."}}

Query: %s
`

func intentPrompt(question string) string {
	return fmt.Sprintf(intentPromptTemplate, question)
}

// Patient-specific synthesis. Kept deliberately short for small local models.
const ragPromptTemplate = `Analyze these patient labs and provide a summary.
Do NOT repeat yourself. Focus on the most important results.

PATIENT: %s
%s

QUESTION: %s
ANSWER (Concise interpretation):`

func ragPrompt(subjectID, context, question string) string {
	return fmt.Sprintf(ragPromptTemplate, subjectID, context, question)
}

const generalKnowledgePromptTemplate = `You are a helpful clinical assistant. Answer the user's general medical question using the provided context or your internal knowledge if the context is missing.
CONTEXT: %s

QUESTION: %s
ANSWER:`

func generalKnowledgePrompt(context, question string) string {
	return fmt.Sprintf(generalKnowledgePromptTemplate, context, question)
}

const synthesisPromptTemplate = `You are a clinical assistant. Synthesize a medical response.
CONTEXT/DATA: %s
QUESTION: %s
ANSWER:`

func synthesisPrompt(data, question string) string {
	return fmt.Sprintf(synthesisPromptTemplate, data, question)
}

const outOfScopePromptTemplate = `You are a specialized Clinical Lab Assistant.
The user asked: "%s"
This is outside your scope of laboratory medical reports and clinical data.
Politely inform the user that you can only assist with lab results, medical history summaries, and health risk predictions.
Do NOT try to answer the question if it is about weather, general news, jokes (unless medical), or non-related topics.`

func outOfScopePrompt(question string) string {
	return fmt.Sprintf(outOfScopePromptTemplate, question)
}

// countPrompt instructs the generator to phrase an exact count without
// inventing values or explaining the test.
func countPrompt(subjectID string, count int, status, test string) string {
	var desc strings.Builder
	if status != "" {
		desc.WriteString(status + " ")
	}
	if test != "" {
		desc.WriteString(test + " ")
	}
	scope := "There are"
	if subjectID != "" {
		scope = fmt.Sprintf("Patient %s has", subjectID)
	}
	return fmt.Sprintf(
		"You are a factual data reporter. Based ONLY on the following information, state the count clearly.\n"+
			"DATA: %s exactly %d %slaboratory records.\n"+
			"RULE: Do NOT provide medical advice. Do NOT guess test values. Do NOT explain what the test means. Just state the count.",
		scope, count, desc.String())
}

func riskExplainPrompt(subjectID, label string, confidence float64) string {
	return fmt.Sprintf(
		"Based on our Random Forest model, patient %s has a %s risk level (%.2f%% confidence). Explain this to the user.",
		subjectID, label, confidence)
}

func riskErrorPrompt(subjectID, reason string) string {
	return fmt.Sprintf("Explain that we couldn't calculate risk for patient %s due to: %s", subjectID, reason)
}

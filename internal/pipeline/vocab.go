package pipeline

// SupportedLabTests is the fixed vocabulary of test names the assistant
// understands. Entity extraction matches these case-insensitively.
var SupportedLabTests = []string{
	"RBC", "WBC", "Hematocrit", "Hemoglobin", "Platelets",
	"Chloride", "Bicarbonate", "Sodium", "Potassium",
	"Creatinine", "Glucose", "Urea Nitrogen",
}

// greetings are exact lower-cased matches handled by the greeting fast path.
var greetings = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "good morning": {}, "good afternoon": {},
	"hii": {}, "hiii": {}, "h": {}, "help": {}, "ok": {}, "yes": {}, "no": {},
}

// negativeKeywords force a query out of scope no matter what the model said.
var negativeKeywords = []string{
	"marriage", "wedding", "weather", "joke", "politics", "news", "recipe",
	"sport", "game", "movie", "song", "laptop", "computer", "phone", "price",
	"buy", "sell", "who is", "who are you", "what is your name", "travel",
	"hotel", "flight", "restaurant", "food", "coding", "programming",
}

// retrievalKeywords push a query toward the retrieval handler.
var retrievalKeywords = []string{
	"show", "list", "summarize", "history", "trend", "results for",
	"display", "get", "tell",
}

// clinicalKeywords gate the clinical-density guardrail. A query classified as
// rag/count/risk with none of these terms (and no supported test name) is
// demoted to unsupported.
var clinicalKeywords = []string{
	"lab", "result", "test", "report", "clinical", "patient", "blood",
	"doctor", "health", "risk", "status", "subject",
}

// Fast-path trigger vocabularies.
var (
	countKeywords = []string{"how many", "total", "count", "number of", "records"}
	riskKeywords  = []string{"risk", "prediction", "assessment"}
	historyKeywords = []string{
		"results", "latest", "show", "summarize", "overall status",
		"summary", "what are", "history", "report",
	}
)

// GreetingResponse is the canned reply for greetings and very short input.
const GreetingResponse = "Hello! I am your Lab Assistant. How can I help you with your lab results or medical questions today?"

// UnsupportedResponse is the canned rejection for out-of-scope queries.
const UnsupportedResponse = "I am sorry, but I am a specialized Lab Assistant. I can only help you with questions " +
	"about laboratory results, clinical medical history, and health risk predictions. " +
	"I cannot assist with general knowledge, non-medical advice, or other unrelated tasks. " +
	"Example: What is sodium level of patient 1234567? - patient specific. " +
	"Example: What is the total lab results? - count specific. " +
	"Example: What is the risk of patient 1234567? - risk specific."

// SafeFallback is the fixed clinical-referral sentence emitted when the
// generator is unreachable or returns nothing usable.
const SafeFallback = "Some laboratory values are outside expected ranges. " +
	"These findings may warrant clinical review by a healthcare professional."

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/kianbahrami/labassist/internal/store"
)

// node is a state of the routing machine. Every request enters at
// nodeClassify, visits at most one handler, and reconverges at
// nodeSynthesize before terminating.
type node int

const (
	nodeClassify node = iota
	nodeRetrieve
	nodeAggregate
	nodePredictRisk
	nodeSynthesize
	nodeDone
)

func (n node) String() string {
	switch n {
	case nodeClassify:
		return "classify"
	case nodeRetrieve:
		return "retrieve"
	case nodeAggregate:
		return "aggregate"
	case nodePredictRisk:
		return "predict_risk"
	case nodeSynthesize:
		return "synthesize"
	default:
		return "done"
	}
}

// routes maps an intent to its handler node. Adding an intent means adding
// a node and one entry here.
var routes = map[Intent]node{
	IntentRAG:         nodeRetrieve,
	IntentCount:       nodeAggregate,
	IntentRisk:        nodePredictRisk,
	IntentUnsupported: nodeSynthesize,
}

// next is the pure transition function of the routing machine.
func next(cur node, c Classification) node {
	switch cur {
	case nodeClassify:
		if n, ok := routes[c.Intent]; ok {
			return n
		}
		return nodeSynthesize
	case nodeRetrieve, nodeAggregate, nodePredictRisk:
		return nodeSynthesize
	case nodeSynthesize:
		return nodeDone
	default:
		return nodeDone
	}
}

// Graph executes the routing machine for one request.
type Graph struct {
	classifier *Classifier
	searcher   Searcher
	predictor  Predictor
	counter    LabCounter
	logger     *log.Logger
}

func NewGraph(classifier *Classifier, searcher Searcher, predictor Predictor, counter LabCounter, logger *log.Logger) *Graph {
	return &Graph{
		classifier: classifier,
		searcher:   searcher,
		predictor:  predictor,
		counter:    counter,
		logger:     logger,
	}
}

// Run drives the state machine until nodeDone. Status events precede every
// blocking external call. The returned error is only an emitter failure
// (caller gone); upstream failures degrade into the state instead.
func (g *Graph) Run(ctx context.Context, state *State, em Emitter) error {
	cur := nodeClassify
	cls := Classification{}

	for cur != nodeDone {
		switch cur {
		case nodeClassify:
			if err := em.Emit(statusEvent("Understanding your question...")); err != nil {
				return err
			}
			cls = g.classifier.Classify(ctx, state.Question)
			state.Intent = cls.Intent
			state.Entities = cls.Entities
			intentOutcomes.WithLabelValues(string(cls.Intent)).Inc()

		case nodeRetrieve:
			if err := em.Emit(statusEvent("Retrieving clinical records...")); err != nil {
				return err
			}
			g.retrieve(ctx, state)

		case nodeAggregate:
			if err := em.Emit(statusEvent("Aggregating records...")); err != nil {
				return err
			}
			g.aggregate(ctx, state)

		case nodePredictRisk:
			if err := em.Emit(statusEvent("Predicting patient risk...")); err != nil {
				return err
			}
			g.predictRisk(ctx, state)

		case nodeSynthesize:
			g.synthesize(state)
		}
		cur = next(cur, cls)
	}
	return nil
}

// retrieve fetches at most one context chunk, filtered to the patient when
// an identifier was extracted.
func (g *Graph) retrieve(ctx context.Context, state *State) {
	var where map[string]string
	if state.Entities.SubjectID != "" {
		where = map[string]string{"subject_id": state.Entities.SubjectID}
	}

	docs, err := g.searcher.Search(ctx, state.Question, 1, where)
	if err != nil {
		g.logger.Printf("retrieval failed: %v", err)
		state.Direct = SafeFallback
		return
	}
	if len(docs) == 0 {
		return
	}

	doc := docs[0]
	content := TruncatePatientHistory(doc.Content, doc.Metadata, state.Entities.Test)
	state.Context = append(state.Context, formatChunk(doc.Metadata, content))
}

func formatChunk(metadata map[string]interface{}, content string) string {
	return fmt.Sprintf("METADATA: %v\nCONTENT:\n%s", metadata, content)
}

// aggregate runs a parameterized count query from the extracted entities.
func (g *Graph) aggregate(ctx context.Context, state *State) {
	filter := store.LabFilter{
		SubjectID: state.Entities.SubjectID,
		Status:    state.Entities.Status,
		Test:      state.Entities.Test,
	}

	count, err := g.counter.CountLabs(ctx, filter)
	if err != nil {
		g.logger.Printf("aggregation failed: %v", err)
		state.Direct = SafeFallback
		return
	}

	result := fmt.Sprintf("Found %d records", count)
	if filter.Status != "" {
		result += fmt.Sprintf(" with status %s", filter.Status)
	}
	if filter.Test != "" {
		result += fmt.Sprintf(" for test %s", filter.Test)
	}
	if filter.SubjectID != "" {
		result += fmt.Sprintf(" for patient %s", filter.SubjectID)
	}
	state.NumericalResult = result
}

// predictRisk calls the risk service, storing its output verbatim. A missing
// patient identifier becomes an explicit in-band error without a call.
func (g *Graph) predictRisk(ctx context.Context, state *State) {
	if state.Entities.SubjectID == "" {
		state.RiskData.Error = "No patient ID found"
		state.HasRiskData = true
		return
	}

	pred, err := g.predictor.Predict(ctx, state.Entities.SubjectID)
	if err != nil {
		g.logger.Printf("risk prediction failed: %v", err)
		state.Direct = SafeFallback
		return
	}
	state.RiskData = pred
	state.HasRiskData = true
}

// synthesize is the single reconvergence point: it decides between a direct
// canned response and a final generation prompt.
func (g *Graph) synthesize(state *State) {
	if state.Direct != "" {
		return
	}

	switch state.Intent {
	case IntentRAG:
		g.synthesizeRAG(state)

	case IntentUnsupported:
		state.Direct = UnsupportedResponse

	default: // count, risk
		// Guard against hallucinating on empty data when classification
		// should have said unsupported.
		noData := state.NumericalResult == "" && (!state.HasRiskData || state.RiskData.Error != "")
		if noData && !hasClinicalTerm(strings.ToLower(state.Question)) {
			state.Direct = UnsupportedResponse
			return
		}
		data := fmt.Sprintf("Stats: %s. Risk: %s", state.NumericalResult, riskDataString(state))
		state.FinalPrompt = synthesisPrompt(data, state.Question)
	}
}

func (g *Graph) synthesizeRAG(state *State) {
	contextStr := "No records found."
	if len(state.Context) > 0 {
		contextStr = state.Context[0]
	}
	subjectID := state.Entities.SubjectID

	if len(state.Context) == 0 && subjectID != "" {
		state.Direct = fmt.Sprintf("No data present related to subject %s.", subjectID)
		return
	}

	if subjectID != "" {
		state.FinalPrompt = ragPrompt(subjectID, contextStr, state.Question)
		return
	}

	// General-knowledge path: still requires clinical context.
	if !hasClinicalTerm(strings.ToLower(state.Question)) {
		state.FinalPrompt = outOfScopePrompt(state.Question)
		return
	}
	if strings.Contains(contextStr, "METADATA") {
		contextStr = "General medical query (ignoring specific patient data)."
	}
	state.FinalPrompt = generalKnowledgePrompt(contextStr, state.Question)
}

func riskDataString(state *State) string {
	if !state.HasRiskData {
		return "{}"
	}
	b, err := json.Marshal(state.RiskData)
	if err != nil {
		return "{}"
	}
	return string(b)
}

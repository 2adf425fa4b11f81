// Package pipeline implements the question-answering core: fast-path
// dispatch, intent classification, routing, context assembly, and the
// streaming response orchestration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// errEmit marks failures to deliver an event to the caller. Once emission
// fails the caller is gone and upstream consumption stops.
var errEmit = errors.New("emit failed")

// Pipeline answers one question per Run call. It is safe for concurrent use;
// all per-request state lives in State values.
type Pipeline struct {
	llm       Generator
	searcher  Searcher
	predictor Predictor
	counter   LabCounter
	graph     *Graph
	logger    *log.Logger
}

func New(llm Generator, searcher Searcher, predictor Predictor, counter LabCounter, logger *log.Logger) *Pipeline {
	classifier := NewClassifier(llm, logger)
	return &Pipeline{
		llm:       llm,
		searcher:  searcher,
		predictor: predictor,
		counter:   counter,
		graph:     NewGraph(classifier, searcher, predictor, counter, logger),
		logger:    logger,
	}
}

// Run serves a question end to end, emitting ordered status/token events and
// exactly one terminal done event, on success and on every error path.
func (p *Pipeline) Run(ctx context.Context, question string, em Emitter) error {
	// The terminal event goes out no matter how the request ends. If the
	// caller already disconnected the emit fails silently, which is fine.
	defer func() {
		_ = em.Emit(doneEvent())
	}()

	handled, err := p.dispatchFastPath(ctx, question, em)
	if handled || err != nil {
		return err
	}

	chatRequests.WithLabelValues("graph").Inc()
	state := &State{Question: question}
	if err := p.graph.Run(ctx, state, em); err != nil {
		return err
	}
	return p.respond(ctx, state, em)
}

// respond delivers the synthesized result: a direct canned response is sent
// verbatim; otherwise the final prompt goes to the generator as a token
// stream.
func (p *Pipeline) respond(ctx context.Context, state *State, em Emitter) error {
	if state.Direct != "" {
		return em.Emit(tokenEvent(state.Direct))
	}
	if state.FinalPrompt == "" {
		return nil
	}
	if err := em.Emit(statusEvent("Synthesizing final answer...")); err != nil {
		return err
	}
	return p.streamAnswer(ctx, state.FinalPrompt, em)
}

// streamAnswer consumes the generator's token stream. Emitter failures abort
// consumption; generator failures degrade to the single safe fallback token.
func (p *Pipeline) streamAnswer(ctx context.Context, prompt string, em Emitter) error {
	err := p.llm.Stream(ctx, prompt, func(chunk string) error {
		if emitErr := em.Emit(tokenEvent(chunk)); emitErr != nil {
			return fmt.Errorf("%w: %v", errEmit, emitErr)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, errEmit) || ctx.Err() != nil {
		return err
	}

	p.logger.Printf("generation failed: %v", err)
	generatorFallbacks.Inc()
	return em.Emit(tokenEvent(SafeFallback))
}

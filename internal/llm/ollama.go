// Package llm wraps the local Ollama inference service behind the small
// Generator surface the pipeline consumes.
package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/kianbahrami/labassist/config"
)

// Ollama talks to a local Ollama server. It is safe for concurrent use.
// Streaming completions run on a separate client with a longer deadline,
// since the timeout covers the whole response body.
type Ollama struct {
	client       *api.Client
	streamClient *api.Client
	model        string
	embed        string
}

func NewOllama(cfg config.OllamaConfig) (*Ollama, error) {
	base, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, err
	}
	return &Ollama{
		client:       api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		streamClient: api.NewClient(base, &http.Client{Timeout: cfg.StreamTimeout}),
		model:        cfg.Model,
		embed:        cfg.EmbedModel,
	}, nil
}

// Sampling tuned for small local models: low temperature, mild repetition
// penalty, bounded output.
func chatOptions() map[string]interface{} {
	return map[string]interface{}{
		"temperature":    0.1,
		"repeat_penalty": 1.2,
		"top_k":          40,
		"top_p":          0.9,
		"num_predict":    1024,
		"stop":           []string{"User:", "QUESTION:", "ANSWER:"},
	}
}

// Generate runs a non-streaming completion and returns the full text.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: chatOptions(),
	}
	var sb strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Stream runs a streaming completion, invoking fn for every non-empty
// fragment. A non-nil error from fn aborts consumption.
func (o *Ollama) Stream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	stream := true
	req := &api.GenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: chatOptions(),
	}
	return o.streamClient.Generate(ctx, req, func(resp api.GenerateResponse) error {
		if resp.Response == "" {
			return nil
		}
		return fn(resp.Response)
	})
}

// GenerateSummary runs a tightly-bounded non-streaming completion for
// background AI summaries (short output, early stop on blank lines).
func (o *Ollama) GenerateSummary(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]interface{}{
			"num_predict": 180,
			"temperature": 0.2,
			"top_p":       0.9,
			"stop":        []string{"\n\n", "###"},
		},
	}
	var sb strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Embed computes an embedding vector for the given text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  o.embed,
		Prompt: text,
	})
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

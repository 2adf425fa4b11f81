// Package vector adapts the Chroma similarity-search service.
package vector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/kianbahrami/labassist/config"
	"github.com/kianbahrami/labassist/internal/httpx"
)

// Document is one ranked retrieval result.
type Document struct {
	Content  string
	Metadata map[string]interface{}
	Score    float64
}

// Embedder turns query text into a vector. The Ollama client satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chroma is an HTTP client for a Chroma collection.
type Chroma struct {
	base       string
	collection string
	http       *httpx.Client
	embedder   Embedder

	mu           sync.Mutex
	collectionID string // resolved lazily, cached for the process lifetime
}

func NewChroma(cfg config.ChromaConfig, embedder Embedder) *Chroma {
	return &Chroma{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		http:       httpx.New(cfg.Timeout, cfg.Retries, 0),
		embedder:   embedder,
	}
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Chroma) resolveCollection(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}
	var resp collectionResponse
	url := fmt.Sprintf("%s/api/v1/collections/%s", c.base, c.collection)
	if err := c.http.DoJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return "", fmt.Errorf("resolve collection %q: %w", c.collection, err)
	}
	c.collectionID = resp.ID
	return c.collectionID, nil
}

type queryRequest struct {
	QueryEmbeddings [][]float32       `json:"query_embeddings"`
	NResults        int               `json:"n_results"`
	Where           map[string]string `json:"where,omitempty"`
	Include         []string          `json:"include"`
}

type queryResponse struct {
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float64                `json:"distances"`
}

// Search embeds the query and runs a similarity search with an optional
// metadata equality filter. Results are ranked; score approximates cosine
// similarity (1 - distance).
func (c *Chroma) Search(ctx context.Context, query string, k int, where map[string]string) ([]Document, error) {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	id, err := c.resolveCollection(ctx)
	if err != nil {
		return nil, err
	}

	req := queryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        k,
		Where:           where,
		Include:         []string{"documents", "metadatas", "distances"},
	}
	var resp queryResponse
	url := fmt.Sprintf("%s/api/v1/collections/%s/query", c.base, id)
	if err := c.http.DoJSON(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, fmt.Errorf("chroma query: %w", err)
	}

	var docs []Document
	if len(resp.Documents) > 0 {
		for i, content := range resp.Documents[0] {
			doc := Document{Content: content}
			if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
				doc.Metadata = resp.Metadatas[0][i]
			}
			if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
				doc.Score = 1 - resp.Distances[0][i]
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

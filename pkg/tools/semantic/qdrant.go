// Package semantic implements the semantic-search capability: embed the
// query text via an OpenAI-compatible embeddings endpoint, then run a
// nearest-neighbor lookup against a Qdrant collection and return ranked
// passages to the model.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Passage is one ranked result from the vector index.
type Passage struct {
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float32 `json:"score"`
}

// VectorBackend performs nearest-neighbor lookups.
type VectorBackend interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Passage, error)
}

// QdrantBackend implements VectorBackend using the Qdrant HTTP API.
type QdrantBackend struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ VectorBackend = (*QdrantBackend)(nil)

// NewQdrant creates a QdrantBackend that communicates with Qdrant via HTTP.
func NewQdrant(url string) *QdrantBackend {
	return &QdrantBackend{
		BaseURL:    strings.TrimRight(url, "/"),
		HTTPClient: &http.Client{},
	}
}

// qdrantSearchRequest is the JSON body for Qdrant's search endpoint.
type qdrantSearchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

// qdrantSearchResponse represents Qdrant's search response.
type qdrantSearchResponse struct {
	Result []qdrantSearchResult `json:"result"`
}

type qdrantSearchResult struct {
	ID      any            `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Search performs a nearest-neighbor search in the named collection.
// POST /collections/{name}/points/search
func (q *QdrantBackend) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Passage, error) {
	searchReq := qdrantSearchRequest{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
	}

	data, err := json.Marshal(searchReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", q.BaseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qdrant search returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var searchResp qdrantSearchResponse
	if err := json.Unmarshal(respBody, &searchResp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	passages := make([]Passage, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		p := Passage{Score: r.Score}
		if text, ok := r.Payload["text"].(string); ok {
			p.Text = text
		}
		if src, ok := r.Payload["source"].(string); ok {
			p.Source = src
		}
		passages = append(passages, p)
	}
	return passages, nil
}

package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/averbach/colloquy/pkg/tools"
)

// ToolSemanticSearch is the tool name exposed to the model.
const ToolSemanticSearch = "semantic_search"

// Searcher exposes nearest-neighbor passage lookup as a capability.
type Searcher struct {
	embedder   Embedder
	backend    VectorBackend
	collection string
	maxResults int
}

var _ tools.Executor = (*Searcher)(nil)

// NewSearcher wires the embedding client and vector backend into a tool
// executor over one collection.
func NewSearcher(embedder Embedder, backend VectorBackend, collection string, maxResults int) *Searcher {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Searcher{
		embedder:   embedder,
		backend:    backend,
		collection: collection,
		maxResults: maxResults,
	}
}

// Descriptors returns the semantic-search tool definition.
func (s *Searcher) Descriptors() []tools.Descriptor {
	return []tools.Descriptor{
		{
			Name:        ToolSemanticSearch,
			Description: "Search the knowledge base for passages related to a natural-language query. Use this for background information that is not in a record collection.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "What to look up"}
				},
				"required": ["query"]
			}`),
		},
	}
}

// CanExecute reports whether this executor owns the named tool.
func (s *Searcher) CanExecute(toolName string) bool {
	return toolName == ToolSemanticSearch
}

type searchArgs struct {
	Query string `json:"query"`
}

type searchReply struct {
	Passages []Passage `json:"passages"`
	Message  string    `json:"message,omitempty"`
}

// Execute embeds the query and searches the vector index. Service failures
// degrade to an explanatory empty result; the model answers without the
// capability.
func (s *Searcher) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	var args searchArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return reply(call.ID, searchReply{Message: "arguments were not valid JSON: " + err.Error()})
	}
	if args.Query == "" {
		return reply(call.ID, searchReply{Message: "query must not be empty"})
	}

	vectors, err := s.embedder.Embed(ctx, []string{args.Query})
	if err != nil {
		slog.Warn("embedding query failed", "error", err.Error())
		return reply(call.ID, searchReply{Message: "the knowledge base is temporarily unavailable"})
	}

	passages, err := s.backend.Search(ctx, s.collection, vectors[0], s.maxResults)
	if err != nil {
		slog.Warn("semantic search failed", "collection", s.collection, "error", err.Error())
		return reply(call.ID, searchReply{Message: "the knowledge base is temporarily unavailable"})
	}

	r := searchReply{Passages: passages}
	if len(passages) == 0 {
		r.Message = "no related passages found"
	}
	return reply(call.ID, r)
}

func reply(callID string, payload searchReply) (*tools.Result, error) {
	if payload.Passages == nil {
		payload.Passages = []Passage{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling tool result: %w", err)
	}
	return &tools.Result{CallID: callID, Output: string(data)}, nil
}

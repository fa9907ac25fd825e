package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/averbach/colloquy/pkg/tools"
)

// Tool names exposed by this package.
const (
	ToolListCollections = "list_collections"
	ToolSearchRecords   = "search_records"
)

// Searcher exposes the structured-search capability for one request: the
// tenant's enabled subset of the catalog bound to the live store. It is
// constructed fresh per request and holds no mutable state.
type Searcher struct {
	store      Store
	schemas    []*Schema
	byName     map[string]*Schema
	maxResults int
}

var _ tools.Executor = (*Searcher)(nil)

// NewSearcher builds the capability for one tenant's enabled collections.
func NewSearcher(store Store, catalog *Catalog, enabled []string, maxResults int) *Searcher {
	schemas := catalog.Subset(enabled)
	byName := make(map[string]*Schema, len(schemas))
	for _, s := range schemas {
		byName[s.Name] = s
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Searcher{
		store:      store,
		schemas:    schemas,
		byName:     byName,
		maxResults: maxResults,
	}
}

// Enabled reports whether the tenant has at least one collection.
func (s *Searcher) Enabled() bool {
	return len(s.schemas) > 0
}

// Descriptors returns the structured-search tool definitions. Discovery is
// itself a tool so the model learns real collection names before searching.
func (s *Searcher) Descriptors() []tools.Descriptor {
	if !s.Enabled() {
		return nil
	}
	return []tools.Descriptor{
		{
			Name:        ToolListCollections,
			Description: "List the record collections available to this agent, with a description of each. Call this before search_records if you are unsure of a collection name.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolSearchRecords,
			Description: "Search a record collection. Provide filters for exact field matches, a tag to match the tag field, or a free-text query. Filters and tag are combined with AND; without them the query falls back to ranked free-text search.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"collection": {"type": "string", "description": "Collection name from list_collections"},
					"query": {"type": "string", "description": "Free-text search terms"},
					"filters": {"type": "object", "additionalProperties": {"type": "string"}, "description": "Exact-match field filters, ANDed"},
					"tag": {"type": "string", "description": "Match entries carrying this tag"}
				},
				"required": ["collection"]
			}`),
		},
	}
}

// CanExecute reports whether this executor owns the named tool.
func (s *Searcher) CanExecute(toolName string) bool {
	return toolName == ToolListCollections || toolName == ToolSearchRecords
}

// searchArgs is the model-facing argument shape for search_records.
type searchArgs struct {
	Collection string            `json:"collection"`
	Query      string            `json:"query"`
	Filters    map[string]string `json:"filters"`
	Tag        string            `json:"tag"`
}

// searchReply is the JSON payload returned to the model. Message explains
// empty results so the model can retry with corrected input.
type searchReply struct {
	Entries []map[string]any `json:"entries"`
	Total   int              `json:"total"`
	Message string           `json:"message,omitempty"`
}

// collectionInfo is one entry of the list_collections reply.
type collectionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Execute dispatches a tool call. Bad collection or field names produce an
// empty result with an explanatory message, never an error: the model is
// expected to correct itself.
func (s *Searcher) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	switch call.Name {
	case ToolListCollections:
		return s.listCollections(call)
	case ToolSearchRecords:
		return s.searchRecords(ctx, call)
	default:
		return tools.ErrorResult(call.ID, fmt.Sprintf("directory search does not handle tool %q", call.Name)), nil
	}
}

func (s *Searcher) listCollections(call tools.Call) (*tools.Result, error) {
	infos := make([]collectionInfo, 0, len(s.schemas))
	for _, sc := range s.schemas {
		infos = append(infos, collectionInfo{Name: sc.Name, Description: sc.Description})
	}
	return jsonResult(call.ID, map[string]any{"collections": infos})
}

func (s *Searcher) searchRecords(ctx context.Context, call tools.Call) (*tools.Result, error) {
	var args searchArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return jsonResult(call.ID, searchReply{
			Total:   0,
			Message: "arguments were not valid JSON: " + err.Error(),
		})
	}

	schema := s.byName[args.Collection]
	if schema == nil {
		return jsonResult(call.ID, searchReply{
			Total: 0,
			Message: fmt.Sprintf("unknown collection %q; available: %s",
				args.Collection, strings.Join(s.collectionNames(), ", ")),
		})
	}

	// Validate filter field names against the declared schema.
	for name := range args.Filters {
		spec, ok := schema.Fields[name]
		if !ok || !spec.Filterable {
			return jsonResult(call.ID, searchReply{
				Total: 0,
				Message: fmt.Sprintf("collection %q has no filterable field %q; filterable fields: %s",
					args.Collection, name, strings.Join(schema.FilterableFields(), ", ")),
			})
		}
	}

	entries, err := s.store.Search(ctx, Query{
		Collection:   args.Collection,
		Filters:      args.Filters,
		Tag:          args.Tag,
		Text:         args.Query,
		SearchFields: schema.SearchableFields(),
		Limit:        s.maxResults,
	})
	if err != nil {
		// External store failure degrades to an explanatory empty result.
		slog.Warn("directory search failed",
			"collection", args.Collection,
			"error", err.Error(),
		)
		return jsonResult(call.ID, searchReply{
			Total:   0,
			Message: "the directory is temporarily unavailable",
		})
	}

	reply := searchReply{Entries: make([]map[string]any, 0, len(entries)), Total: len(entries)}
	for _, e := range entries {
		reply.Entries = append(reply.Entries, flatten(schema, e))
	}
	if reply.Total == 0 {
		reply.Message = "no entries matched; try different filters or a broader query"
	}
	return jsonResult(call.ID, reply)
}

func (s *Searcher) collectionNames() []string {
	names := make([]string, 0, len(s.schemas))
	for _, sc := range s.schemas {
		names = append(names, sc.Name)
	}
	return names
}

// flatten expands one matched entry into output fields via the schema's
// fixed mapping. Required fields are always emitted; optional fields only
// when the attribute key is present. Presence is the test, not truthiness,
// so explicit false and 0 values survive.
func flatten(schema *Schema, e Entry) map[string]any {
	out := make(map[string]any, len(schema.Output)+2)
	out["id"] = e.ID
	if len(e.Tags) > 0 {
		out["tags"] = e.Tags
	}
	for _, f := range schema.Output {
		val, present := e.Attributes[f.Name]
		if f.Required {
			out[f.Name] = val
			continue
		}
		if present {
			out[f.Name] = val
		}
	}
	return out
}

func jsonResult(callID string, payload any) (*tools.Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling tool result: %w", err)
	}
	return &tools.Result{CallID: callID, Output: string(data)}, nil
}

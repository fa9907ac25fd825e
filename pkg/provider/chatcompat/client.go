// Package chatcompat implements the provider interface against
// OpenAI-compatible Chat Completions backends. It handles both the
// non-streaming and streaming variants of the protocol, including the
// cost-accounting extensions served by OpenRouter-style gateways.
package chatcompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/provider"
)

// Client is a Chat Completions backend client.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// streamClient has no overall timeout; streaming responses stay open
	// for the duration of the generation and are bounded by the request
	// context instead.
	streamClient *http.Client
}

var _ provider.Provider = (*Client)(nil)

// Options configures a Client.
type Options struct {
	// Name identifies the provider for price table lookups ("openrouter",
	// "openai", ...).
	Name string

	// BaseURL is the backend base URL without the /chat/completions path,
	// e.g. "https://openrouter.ai/api/v1".
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds non-streaming requests. Zero means 120s.
	Timeout time.Duration
}

// New creates a Chat Completions client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		name:         opts.Name,
		baseURL:      opts.BaseURL,
		apiKey:       opts.APIKey,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return c.name
}

// Complete performs a non-streaming chat completion. When the backend
// reports a monetary cost on the usage object it is carried through on
// the returned usage.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body := c.buildRequest(req, false)

	resp, err := c.post(ctx, c.httpClient, body)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, api.NewModelError(fmt.Sprintf("decoding backend response: %s", err.Error()))
	}
	if len(chat.Choices) == 0 {
		return nil, api.NewModelError("backend returned no choices")
	}

	choice := chat.Choices[0]
	out := &provider.Response{
		Text:      choice.Message.Content,
		ToolCalls: translateToolCalls(choice.Message.ToolCalls),
	}
	if chat.Usage != nil {
		out.Usage = translateUsage(chat.Usage, true)
	}
	return out, nil
}

// Stream performs a streaming chat completion. Events are delivered on
// the returned channel, which is closed when the stream ends. The final
// usage carries token counts only.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	body := c.buildRequest(req, true)

	resp, err := c.post(ctx, c.streamClient, body)
	if err != nil {
		return nil, mapNetworkError(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp)
	}

	events := make(chan provider.Event, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		parseStream(ctx, resp.Body, events)
	}()
	return events, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

func (c *Client) buildRequest(req *provider.Request, stream bool) *chatRequest {
	out := &chatRequest{
		Model:       req.Model,
		Messages:    translateMessages(req.Messages),
		Tools:       translateTools(req.Tools),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
		Usage:       &chatUsageOptions{Include: true},
	}
	if stream {
		out.StreamOptions = &chatStreamOptions{IncludeUsage: true}
	}
	return out
}

func (c *Client) post(ctx context.Context, client *http.Client, body *chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return client.Do(httpReq)
}

func translateMessages(msgs []provider.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := chatMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: chatFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func translateTools(defs []provider.ToolDef) []chatTool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]chatTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, chatTool{
			Type: "function",
			Function: chatFunctionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

func translateToolCalls(calls []chatToolCall) []provider.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]provider.ToolCall, 0, len(calls))
	for _, c := range calls {
		id := c.ID
		if id == "" {
			// The tool result message must reference an id even when the
			// backend omitted one.
			id = api.NewCallID()
		}
		out = append(out, provider.ToolCall{
			ID:        id,
			Name:      c.Function.Name,
			Arguments: c.Function.Arguments,
		})
	}
	return out
}

// translateUsage converts backend usage to the domain type. Cost fields
// are only carried over for non-streaming responses; streaming usage
// chunks never carry a trustworthy cost figure and any value present is
// deliberately dropped.
func translateUsage(u *chatUsage, allowCost bool) api.Usage {
	out := api.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if allowCost && u.Cost != nil {
		cost := *u.Cost
		out.VendorCost = &cost
		if u.CostDetails != nil {
			if u.CostDetails.InputCost != nil {
				in := *u.CostDetails.InputCost
				out.VendorInputCost = &in
			}
			if u.CostDetails.OutputCost != nil {
				o := *u.CostDetails.OutputCost
				out.VendorOutputCost = &o
			}
		}
	}
	return out
}

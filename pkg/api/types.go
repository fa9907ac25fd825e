package api

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolTrace records one capability invocation made by the model while
// producing an assistant turn: the tool name, the raw JSON arguments the
// model supplied, and the raw result text fed back to it.
type ToolTrace struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Turn is one role-tagged message in a conversation. An assistant turn may
// carry the tool invocations that preceded its final text. History is an
// ordered, append-only sequence of turns.
type Turn struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ToolTraces []ToolTrace `json:"tool_traces,omitempty"`
}

// Usage holds the token counts reported by the generative-model client for
// a completed run. VendorCost is the backend-reported monetary figure in
// USD; it is only populated on non-streamed completions. Streaming backends
// report token counts on the final usage chunk but no cost figure.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`

	VendorCost       *float64 `json:"vendor_cost,omitempty"`
	VendorInputCost  *float64 `json:"vendor_input_cost,omitempty"`
	VendorOutputCost *float64 `json:"vendor_output_cost,omitempty"`
}

// Add accumulates another usage object into u. Vendor cost figures are
// summed only when both sides report them; a single missing figure leaves
// the accumulated cost unset rather than silently undercounting.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens

	u.VendorCost = sumOptional(u.VendorCost, other.VendorCost)
	u.VendorInputCost = sumOptional(u.VendorInputCost, other.VendorInputCost)
	u.VendorOutputCost = sumOptional(u.VendorOutputCost, other.VendorOutputCost)
}

func sumOptional(a, b *float64) *float64 {
	if b == nil {
		return a
	}
	if a == nil {
		v := *b
		return &v
	}
	v := *a + *b
	return &v
}

// Fragment describes one block of text contributing to an assembled
// instruction set: its source identifier, its position in the final string,
// and its character length. The breakdown is kept alongside the prompt for
// diagnostic replay and cost-of-prompt analysis.
type Fragment struct {
	Source string `json:"source"`
	Index  int    `json:"index"`
	Length int    `json:"length"`
}

// Prompt is an assembled instruction set: the concatenated text plus the
// per-fragment breakdown. Created once per request and never mutated.
type Prompt struct {
	Text      string     `json:"text"`
	Fragments []Fragment `json:"fragments"`
}

// MessageRequest is the HTTP boundary input: one free-text message for a
// resolved tenant, with an opaque session identifier and a streaming flag.
type MessageRequest struct {
	Message string `json:"message"`
	Stream  bool   `json:"stream,omitempty"`

	// SessionID is filled by the transport layer from the session cookie,
	// never from the request body.
	SessionID string `json:"-"`
}

// Reply is the non-streaming JSON response: the final assistant text plus
// the identifiers a client needs to correlate follow-up requests.
type Reply struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Usage     *Usage `json:"usage,omitempty"`
}

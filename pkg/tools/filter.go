package tools

// FilterResult holds the outcome of filtering tool calls against the
// tenant's exposed tool set.
type FilterResult struct {
	// Allowed contains tool calls that name an exposed tool.
	Allowed []Call

	// Rejected contains error results for calls naming tools the tenant
	// does not expose, to feed back to the model.
	Rejected []Result
}

// FilterExposed checks each tool call against the set of descriptors that
// were actually offered to the model for this request. A model that
// hallucinates a tool name gets an explanatory error result rather than a
// pipeline failure.
func FilterExposed(calls []Call, exposed []Descriptor) FilterResult {
	allowed := make(map[string]bool, len(exposed))
	for _, d := range exposed {
		allowed[d.Name] = true
	}

	var result FilterResult
	for _, call := range calls {
		if allowed[call.Name] {
			result.Allowed = append(result.Allowed, call)
		} else {
			result.Rejected = append(result.Rejected, Result{
				CallID:  call.ID,
				Output:  "tool " + call.Name + " is not available for this agent",
				IsError: true,
			})
		}
	}

	return result
}

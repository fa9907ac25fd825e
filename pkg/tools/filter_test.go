package tools

import "testing"

func TestFilterExposed(t *testing.T) {
	exposed := []Descriptor{
		{Name: "search_directory"},
		{Name: "list_collections"},
	}
	calls := []Call{
		{ID: "call_1", Name: "search_directory", Arguments: `{"collection":"plants"}`},
		{ID: "call_2", Name: "delete_everything", Arguments: `{}`},
		{ID: "call_3", Name: "list_collections", Arguments: `{}`},
	}

	result := FilterExposed(calls, exposed)

	if len(result.Allowed) != 2 {
		t.Fatalf("allowed = %+v", result.Allowed)
	}
	if result.Allowed[0].ID != "call_1" || result.Allowed[1].ID != "call_3" {
		t.Errorf("allowed order = %+v", result.Allowed)
	}

	if len(result.Rejected) != 1 {
		t.Fatalf("rejected = %+v", result.Rejected)
	}
	rej := result.Rejected[0]
	if rej.CallID != "call_2" || !rej.IsError {
		t.Errorf("rejected = %+v", rej)
	}
	if rej.Output != "tool delete_everything is not available for this agent" {
		t.Errorf("rejected output = %q", rej.Output)
	}
}

func TestFilterExposed_NothingExposed(t *testing.T) {
	result := FilterExposed([]Call{{ID: "call_1", Name: "search_directory"}}, nil)
	if len(result.Allowed) != 0 || len(result.Rejected) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestErrorResult(t *testing.T) {
	r := ErrorResult("call_9", "no such collection")
	if r.CallID != "call_9" || r.Output != "no such collection" || !r.IsError {
		t.Errorf("result = %+v", r)
	}
}

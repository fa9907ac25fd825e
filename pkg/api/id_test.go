package api

import (
	"strings"
	"testing"
)

func TestNewRequestID(t *testing.T) {
	id := NewRequestID()
	if !strings.HasPrefix(id, "req_") {
		t.Errorf("id = %q", id)
	}
	if len(id) != len("req_")+24 {
		t.Errorf("id length = %d", len(id))
	}
	if !ValidateRequestID(id) {
		t.Errorf("generated id %q does not validate", id)
	}
	if NewRequestID() == id {
		t.Error("consecutive ids collided")
	}
}

func TestValidateRequestID(t *testing.T) {
	cases := []struct {
		id    string
		valid bool
	}{
		{"req_abcDEF123abcDEF123abcDEF", true},
		{"req_short", false},
		{"res_abcDEF123abcDEF123abcDEF", false},
		{"req_abcDEF123abcDEF123abcDE!", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidateRequestID(c.id); got != c.valid {
			t.Errorf("ValidateRequestID(%q) = %v, want %v", c.id, got, c.valid)
		}
	}
}

func TestNewCallID(t *testing.T) {
	if !strings.HasPrefix(NewCallID(), "call_") {
		t.Error("call id prefix missing")
	}
}

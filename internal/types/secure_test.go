package types

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestSecretStringRedaction(t *testing.T) {
	s := SecretString("smtp-password")

	if got := fmt.Sprintf("%v", s); got != "***REDACTED***" {
		t.Errorf("fmt output leaked secret: %q", got)
	}
	if got := s.String(); got != "***REDACTED***" {
		t.Errorf("String() leaked secret: %q", got)
	}

	b, err := json.Marshal(struct {
		Password SecretString `json:"password"`
	}{Password: s})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"password":"***REDACTED***"}` {
		t.Errorf("JSON leaked secret: %s", b)
	}

	if s.Unmask() != "smtp-password" {
		t.Error("Unmask should return the raw value")
	}
}

package stage

import (
	"errors"
	"testing"

	contractx "github.com/salonlab/concierge/agent/contract"
)

func TestLoadEmbeddedDefault(t *testing.T) {
	t.Parallel()

	c, err := Load("")
	if err != nil {
		t.Fatalf("embedded catalog must load: %v", err)
	}
	if !c.Has(Escalation) {
		t.Fatalf("missing %q", Escalation)
	}
	if !c.Has(Fallback) {
		t.Fatalf("missing %q", Fallback)
	}
	if c.Has(Unresolved) {
		t.Fatal("unresolved marker must never be a catalog member")
	}

	booking, ok := c.Get("booking_request")
	if !ok {
		t.Fatal("missing booking_request")
	}
	if len(booking.AllowedTools) == 0 {
		t.Fatal("booking_request should allow tools")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/stages.json")
	if !errors.Is(err, contractx.ErrStageCatalog) {
		t.Fatalf("expected ErrStageCatalog, got %v", err)
	}
}

func TestParseRejectsStageWithoutScenario(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"conflict_escalation": {"goal": "g", "synthesis_scenario": "s"},
		"general_conversation": {"goal": "g", "synthesis_scenario": "s"},
		"broken": {"goal": "g"}
	}`)
	if _, err := Parse(raw); !errors.Is(err, contractx.ErrStageCatalog) {
		t.Fatalf("expected ErrStageCatalog, got %v", err)
	}
}

func TestParseRequiresEscalationAndFallback(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"greeting": {"goal": "g", "synthesis_scenario": "s"}}`)
	if _, err := Parse(raw); !errors.Is(err, contractx.ErrStageCatalog) {
		t.Fatalf("expected ErrStageCatalog, got %v", err)
	}
}

func TestValidateTools(t *testing.T) {
	t.Parallel()

	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := c.ValidateTools(func(string) bool { return true }); err != nil {
		t.Fatalf("all-known must validate: %v", err)
	}
	err = c.ValidateTools(func(name string) bool { return name != "create_appointment" })
	if !errors.Is(err, contractx.ErrStageCatalog) {
		t.Fatalf("expected ErrStageCatalog for unknown tool, got %v", err)
	}
}

func TestIDsSortedAndCopied(t *testing.T) {
	t.Parallel()

	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ids := c.IDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("ids not sorted: %v", ids)
		}
	}
	ids[0] = "mutated"
	if c.IDs()[0] == "mutated" {
		t.Fatal("IDs must return a copy")
	}
}

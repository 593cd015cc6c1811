package toolcall

import (
	"testing"

	contractx "github.com/salonlab/concierge/agent/contract"
)

func TestNormalizeCoercesIdentifierParams(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	out := n.Normalize(contractx.ToolCall{
		Tool:   "available_slots",
		Params: map[string]string{"service_id": "3", "date": "2026-09-01"},
	}, 42)

	if got, ok := out.Params["service_id"].(int64); !ok || got != 3 {
		t.Fatalf("service_id not coerced to int64: %#v", out.Params["service_id"])
	}
	if out.Params["date"] != "2026-09-01" {
		t.Fatalf("date changed: %#v", out.Params["date"])
	}
	if out.CallerID != 42 {
		t.Fatalf("caller id lost: %d", out.CallerID)
	}
}

func TestNormalizeKeepsRawStringOnFailedCoercion(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	out := n.Normalize(contractx.ToolCall{
		Tool:   "cancel_appointment",
		Params: map[string]string{"appointment_id": "the last one"},
	}, 1)

	if out.Params["appointment_id"] != "the last one" {
		t.Fatalf("raw value not retained: %#v", out.Params["appointment_id"])
	}
}

func TestNormalizeStripsWrappingQuotes(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	out := n.Normalize(contractx.ToolCall{
		Tool:   "list_services",
		Params: map[string]string{"query": ` "manicure" `},
	}, 1)

	if out.Params["query"] != "manicure" {
		t.Fatalf("quotes not stripped: %#v", out.Params["query"])
	}
}

func TestNormalizeInjectsIdentity(t *testing.T) {
	t.Parallel()

	n := NewNormalizer([]string{"my_appointments"})
	out := n.Normalize(contractx.ToolCall{Tool: "my_appointments"}, 99)

	if got, ok := out.Params["caller_id"].(int64); !ok || got != 99 {
		t.Fatalf("identity not injected: %#v", out.Params["caller_id"])
	}
}

func TestNormalizeDropsModelSuppliedIdentity(t *testing.T) {
	t.Parallel()

	n := NewNormalizer([]string{"my_appointments"})
	out := n.Normalize(contractx.ToolCall{
		Tool:   "my_appointments",
		Params: map[string]string{"user_id": "1337", "telegram_id": "1337"},
	}, 7)

	if _, leaked := out.Params["user_id"]; leaked {
		t.Fatal("model-supplied user_id survived")
	}
	if _, leaked := out.Params["telegram_id"]; leaked {
		t.Fatal("model-supplied telegram_id survived")
	}
	if got, _ := out.Params["caller_id"].(int64); got != 7 {
		t.Fatalf("session identity not authoritative: %#v", out.Params["caller_id"])
	}
}

func TestNormalizeArgsIsIdempotent(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	first := n.NormalizeArgs("available_slots", map[string]any{"service_id": float64(3)}, 1)
	second := n.NormalizeArgs("available_slots", first.Params, 1)

	if got, ok := second.Params["service_id"].(int64); !ok || got != 3 {
		t.Fatalf("second pass changed the value: %#v", second.Params["service_id"])
	}
}

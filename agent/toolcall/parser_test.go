package toolcall

import (
	"strings"
	"testing"
)

func TestParseCallLine(t *testing.T) {
	t.Parallel()

	raw := "Let me check the schedule.\nTOOL_CALL: available_slots(service_id=\"3\", date=\"2026-09-01\")\n"
	rest, calls := Parse(raw)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Tool != "available_slots" {
		t.Fatalf("unexpected tool: %s", calls[0].Tool)
	}
	if calls[0].Params["service_id"] != "3" || calls[0].Params["date"] != "2026-09-01" {
		t.Fatalf("unexpected params: %#v", calls[0].Params)
	}
	if strings.Contains(rest, "TOOL_CALL:") {
		t.Fatalf("call token left in remaining text: %q", rest)
	}
	if rest != "Let me check the schedule." {
		t.Fatalf("unexpected remaining text: %q", rest)
	}
}

func TestParseMultipleCallLines(t *testing.T) {
	t.Parallel()

	raw := "TOOL_CALL: list_services()\nTOOL_CALL: my_appointments()"
	rest, calls := Parse(raw)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Tool != "list_services" || calls[1].Tool != "my_appointments" {
		t.Fatalf("unexpected tools: %s, %s", calls[0].Tool, calls[1].Tool)
	}
	if rest != "" {
		t.Fatalf("expected empty remaining text, got %q", rest)
	}
}

func TestParseCallLineInBackticks(t *testing.T) {
	t.Parallel()

	_, calls := Parse("`TOOL_CALL: list_services()`")
	if len(calls) != 1 || calls[0].Tool != "list_services" {
		t.Fatalf("backticked call not recognized: %#v", calls)
	}
}

func TestParsePlainReplyIsIdempotent(t *testing.T) {
	t.Parallel()

	raw := "  We are open from 9 to 21 every day.  "
	rest, calls := Parse(raw)
	if calls != nil {
		t.Fatalf("expected no calls, got %#v", calls)
	}
	if rest != "We are open from 9 to 21 every day." {
		t.Fatalf("unexpected text: %q", rest)
	}

	again, calls := Parse(rest)
	if calls != nil || again != rest {
		t.Fatalf("second parse changed the reply: %q", again)
	}
}

func TestParseJSONFallback(t *testing.T) {
	t.Parallel()

	raw := "```json\n{\"tool_calls\": [{\"tool_name\": \"masters_for_service\", \"parameters\": {\"service_id\": 3}}]}\n```"
	rest, calls := Parse(raw)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Tool != "masters_for_service" {
		t.Fatalf("unexpected tool: %s", calls[0].Tool)
	}
	if calls[0].Params["service_id"] != "3" {
		t.Fatalf("unexpected params: %#v", calls[0].Params)
	}
	if rest != "" {
		t.Fatalf("expected empty remaining text, got %q", rest)
	}
}

func TestParseJSONBareArray(t *testing.T) {
	t.Parallel()

	raw := `[{"tool_name": "list_services", "parameters": {}}]`
	_, calls := Parse(raw)
	if len(calls) != 1 || calls[0].Tool != "list_services" {
		t.Fatalf("bare array not recognized: %#v", calls)
	}
}

func TestParseMalformedJSONIsPlainText(t *testing.T) {
	t.Parallel()

	raw := `{"tool_calls": [{"tool_name": "broken"`
	rest, calls := Parse(raw)
	if calls != nil {
		t.Fatalf("expected no calls from malformed JSON, got %#v", calls)
	}
	if rest != strings.TrimSpace(raw) {
		t.Fatalf("unexpected text: %q", rest)
	}
}

func TestParseEscapedQuotesInParams(t *testing.T) {
	t.Parallel()

	raw := `TOOL_CALL: save_client_name(name="Anna \"Ann\" Lee")`
	_, calls := Parse(raw)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if got := calls[0].Params["name"]; got != `Anna "Ann" Lee` {
		t.Fatalf("escapes not unwound: %q", got)
	}
}

func TestParseLegacy(t *testing.T) {
	t.Parallel()

	raw := `One moment. [TOOL: cancel_appointment(appointment_id="7")] I'll handle it.`
	rest, call, ok := ParseLegacy(raw)
	if !ok {
		t.Fatal("legacy form not recognized")
	}
	if call.Tool != "cancel_appointment" || call.Params["appointment_id"] != "7" {
		t.Fatalf("unexpected call: %#v", call)
	}
	if strings.Contains(rest, "[TOOL:") {
		t.Fatalf("legacy token left in remaining text: %q", rest)
	}
}

func TestParseLegacyAbsent(t *testing.T) {
	t.Parallel()

	rest, _, ok := ParseLegacy("no calls here")
	if ok {
		t.Fatal("false positive on plain text")
	}
	if rest != "no calls here" {
		t.Fatalf("unexpected text: %q", rest)
	}
}

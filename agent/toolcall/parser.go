package toolcall

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/salonlab/concierge/agent/contract"
)

// The textual tool-call grammar is bit-exact where compatibility matters: the
// TOOL_CALL: token, function-call parenthesization and key="value" quoting,
// with tolerance for surrounding backticks.
var (
	callLinePattern = regexp.MustCompile("`*TOOL_CALL:\\s*(\\w+)\\(([^)]*)\\)`*")
	paramPattern    = regexp.MustCompile(`(\w+)\s*=\s*"((?:\\.|[^"\\])*)"`)
	fencePattern    = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	legacyPattern   = regexp.MustCompile(`\[TOOL:\s*(\w+)\(([^)]*)\)\]`)
)

// Strategy is one surface syntax for tool invocations inside a raw backend
// reply. Implementations are total: they report ok=false instead of failing.
type Strategy interface {
	TryParse(raw string) (rest string, calls []contractx.ToolCall, ok bool)
}

var replyStrategies = []Strategy{
	CallLineStrategy{},
	JSONStrategy{},
}

// Parse extracts tool calls from a raw reply, trying the primary TOOL_CALL
// line form first and the JSON fallback second. When neither matches, the
// reply is a plain conversational answer: the trimmed original text comes
// back with no calls. Parse never fails.
func Parse(raw string) (string, []contractx.ToolCall) {
	for _, s := range replyStrategies {
		if rest, calls, ok := s.TryParse(raw); ok {
			return rest, calls
		}
	}
	return strings.TrimSpace(raw), nil
}

// CallLineStrategy matches one or more TOOL_CALL: name(key="value") lines.
// Matched spans are removed from the reply to recover user-facing text.
type CallLineStrategy struct{}

func (CallLineStrategy) TryParse(raw string) (string, []contractx.ToolCall, bool) {
	matches := callLinePattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return "", nil, false
	}

	calls := make([]contractx.ToolCall, 0, len(matches))
	var rest strings.Builder
	last := 0
	for _, m := range matches {
		rest.WriteString(raw[last:m[0]])
		last = m[1]
		calls = append(calls, contractx.ToolCall{
			Tool:   raw[m[2]:m[3]],
			Params: parseParams(raw[m[4]:m[5]]),
		})
	}
	rest.WriteString(raw[last:])
	return strings.TrimSpace(rest.String()), calls, true
}

// JSONStrategy matches a {"tool_calls": [...]} object or a bare array of call
// objects, optionally inside a fenced code block. Malformed JSON degrades to
// "no calls" rather than an error.
type JSONStrategy struct{}

func (JSONStrategy) TryParse(raw string) (string, []contractx.ToolCall, bool) {
	cleaned := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(cleaned); m != nil {
		cleaned = strings.TrimSpace(m[1])
	}
	cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "json"))
	if cleaned == "" || (cleaned[0] != '{' && cleaned[0] != '[') {
		return "", nil, false
	}

	type jsonCall struct {
		ToolName   string         `json:"tool_name"`
		Parameters map[string]any `json:"parameters"`
	}

	var rawCalls []jsonCall
	if cleaned[0] == '{' {
		var wrapper struct {
			ToolCalls []jsonCall `json:"tool_calls"`
		}
		if err := json.Unmarshal([]byte(cleaned), &wrapper); err != nil {
			return "", nil, false
		}
		rawCalls = wrapper.ToolCalls
	} else {
		if err := json.Unmarshal([]byte(cleaned), &rawCalls); err != nil {
			return "", nil, false
		}
	}

	calls := make([]contractx.ToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		name := strings.TrimSpace(rc.ToolName)
		if name == "" {
			continue
		}
		params := make(map[string]string, len(rc.Parameters))
		for k, v := range rc.Parameters {
			if s, isStr := v.(string); isStr {
				params[k] = s
			} else {
				params[k] = fmt.Sprint(v)
			}
		}
		calls = append(calls, contractx.ToolCall{Tool: name, Params: params})
	}
	if len(calls) == 0 {
		return "", nil, false
	}
	return "", calls, true
}

// ParseLegacy matches the single-call [TOOL: name(arg="v")] form embedded in
// free text. It is used by the execution loop's per-iteration parsing for
// backends without a native function-call protocol, not by Parse.
func ParseLegacy(raw string) (string, contractx.ToolCall, bool) {
	m := legacyPattern.FindStringSubmatchIndex(raw)
	if m == nil {
		return strings.TrimSpace(raw), contractx.ToolCall{}, false
	}
	call := contractx.ToolCall{
		Tool:   raw[m[2]:m[3]],
		Params: parseParams(raw[m[4]:m[5]]),
	}
	rest := strings.TrimSpace(raw[:m[0]] + raw[m[1]:])
	return rest, call, true
}

func parseParams(raw string) map[string]string {
	params := map[string]string{}
	for _, m := range paramPattern.FindAllStringSubmatch(raw, -1) {
		params[m[1]] = unescape(m[2])
	}
	return params
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

package toolcall

import (
	"strconv"
	"strings"

	contractx "github.com/salonlab/concierge/agent/contract"
)

// Parameter names the reasoning backend must never control. The session
// identity is injected after these are dropped.
var reservedIdentityParams = []string{"caller_id", "user_id", "telegram_id"}

// Normalizer coerces raw tool arguments to their expected types and injects
// the caller's identity where the tool contract requires it. Coercion rules
// are keyed by parameter name, not by tool, so one rule set serves every
// tool.
type Normalizer struct {
	identityTools map[string]struct{}
}

// NewNormalizer builds a normalizer that injects caller identity into the
// named tools.
func NewNormalizer(identityTools []string) *Normalizer {
	set := make(map[string]struct{}, len(identityTools))
	for _, name := range identityTools {
		set[strings.TrimSpace(name)] = struct{}{}
	}
	return &Normalizer{identityTools: set}
}

// Normalize applies the per-parameter coercion rules to a parsed ToolCall.
func (n *Normalizer) Normalize(call contractx.ToolCall, callerID int64) contractx.NormalizedCall {
	args := make(map[string]any, len(call.Params))
	for k, v := range call.Params {
		args[k] = v
	}
	return n.NormalizeArgs(call.Tool, args, callerID)
}

// NormalizeArgs is the map[string]any form used for structured function-call
// arguments. Already well-typed values pass through unchanged, so coercion is
// idempotent.
func (n *Normalizer) NormalizeArgs(tool string, args map[string]any, callerID int64) contractx.NormalizedCall {
	params := make(map[string]any, len(args)+1)
	for name, value := range args {
		params[name] = coerce(name, value)
	}
	for _, reserved := range reservedIdentityParams {
		delete(params, reserved)
	}

	out := contractx.NormalizedCall{Tool: tool, Params: params, CallerID: callerID}
	if _, ok := n.identityTools[tool]; ok {
		params["caller_id"] = callerID
	}
	return out
}

// IdentityTool reports whether tool carries the session identity, which makes
// its failures final for the turn.
func (n *Normalizer) IdentityTool(tool string) bool {
	_, ok := n.identityTools[tool]
	return ok
}

func coerce(name string, value any) any {
	s, isStr := value.(string)
	if !isStr {
		// Structured backends may already deliver numbers; identifier-like
		// parameters get folded to int64, everything else passes through.
		if f, isNum := value.(float64); isNum && isIdentifierParam(name) && f == float64(int64(f)) {
			return int64(f)
		}
		return value
	}

	trimmed := stripQuotes(strings.TrimSpace(s))
	if isIdentifierParam(name) {
		if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return id
		}
		// Keep the raw string and defer the failure to tool execution.
		return trimmed
	}
	return trimmed
}

func isIdentifierParam(name string) bool {
	return name == "id" || strings.HasSuffix(name, "_id")
}

func stripQuotes(s string) string {
	return strings.Trim(s, "\"'`")
}

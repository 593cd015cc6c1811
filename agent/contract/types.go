package contract

// Role marks who produced a turn in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one recorded message of a conversation. Turns are immutable once
// recorded; their chronological order is significant for prompt framing and
// stage classification.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ToolCall is a tool invocation as extracted from a raw backend reply.
// Parameters are raw strings; a ToolCall must pass through normalization
// before it may be executed.
type ToolCall struct {
	Tool   string            `json:"tool_name"`
	Params map[string]string `json:"parameters,omitempty"`
}

// NormalizedCall is a ToolCall after per-parameter type coercion and caller
// identity injection. CallerID is always taken from the session, never from
// model-supplied parameters.
type NormalizedCall struct {
	Tool     string         `json:"tool_name"`
	Params   map[string]any `json:"parameters,omitempty"`
	CallerID int64          `json:"caller_id"`
}

// ToolResult is the outcome of one tool execution. Output is a
// human-readable string fed back into the next prompt; the pipeline treats
// it as opaque beyond OK and loop-termination decisions.
type ToolResult struct {
	Tool   string `json:"tool"`
	OK     bool   `json:"ok"`
	Output string `json:"output"`
}

// FocusRecord is one entry of the per-user session focus: a business record
// currently relevant to the conversation, with a summary suitable for
// injection into prompts as hidden context.
type FocusRecord struct {
	ID      int64  `json:"id"`
	Summary string `json:"summary"`
}

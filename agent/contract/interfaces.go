package contract

import "context"

// Generator is the reasoning backend capability: produce a raw text reply for
// a transcript. Tool availability is conveyed inside the prompt turns (the
// textual tool-call protocol); calling it with a bare classification prompt
// is the zero-tool mode.
type Generator interface {
	Generate(ctx context.Context, turns []Turn) (string, error)
}

// ToolGateway executes normalized tool calls. Implementations must not
// panic: contract violations and backend failures come back as failure
// ToolResults.
type ToolGateway interface {
	Execute(ctx context.Context, call NormalizedCall) ToolResult
}

// FocusFetcher loads the business records relevant to a user's current
// conversation topic (their upcoming bookings).
type FocusFetcher interface {
	Fetch(ctx context.Context, userID int64) ([]FocusRecord, error)
}

// HistoryStore owns durable message history. The pipeline reads a fixed
// recent window rather than full history.
type HistoryStore interface {
	Append(ctx context.Context, userID int64, role Role, text string) error
	Recent(ctx context.Context, userID int64, limit int) ([]Turn, error)
	Clear(ctx context.Context, userID int64) (int, error)
}

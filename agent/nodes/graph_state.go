// Package nodes holds the per-step functions of the message-handling graph.
package nodes

import (
	"time"

	contractx "github.com/salonlab/concierge/agent/contract"
)

// GraphInput is one incoming client message.
type GraphInput struct {
	UserID int64
	Text   string
}

// GraphOutput is the final reply for the client.
type GraphOutput struct {
	Reply     string
	Escalated bool
}

// GraphState flows through the graph, accumulating what each node derives.
type GraphState struct {
	UserID  int64
	Text    string
	Now     time.Time
	TraceID string

	Transcript  []contractx.Turn
	StageID     string
	Focus       []contractx.FocusRecord
	SlotService string
	SlotMaster  string
	SlotDate    string
	SlotTime    string

	ClientName  string
	ClientPhone string

	ToolResults []contractx.ToolResult
	Escalated   bool
	Reply       string
}

// Package orchestrator runs the bounded think-call-observe loop against the
// reasoning backend.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/salonlab/concierge/agent/contract"
	"github.com/salonlab/concierge/agent/toolcall"
)

// MaxToolIterations bounds one loop run. The budget counts model rounds, not
// individual tool executions.
const MaxToolIterations = 5

// EscalateTool short-circuits the loop: its output is the final reply and the
// conversation is marked for human handover.
const EscalateTool = "escalate"

// noProgressReply is returned when the backend produces neither text nor a
// tool call.
const noProgressReply = "I'm sorry, I could not process that. Could you rephrase?"

// slotParams are the booking details carried between rounds and turns. Missing
// call parameters are back-filled from known slot values, and values from
// successful calls are captured for the session.
var slotParams = []string{"service", "master", "date", "time"}

// FunctionCaller is a chat model round: messages plus tool declarations in,
// one assistant message out.
type FunctionCaller interface {
	Call(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error)
}

// Summarizer renders the wrap-up prompt used when the iteration budget runs
// out before the backend settles on an answer.
type Summarizer func(results []contractx.ToolResult) string

// Loop executes tool calls requested by the backend until it answers in plain
// text, escalates, or exhausts the budget.
type Loop struct {
	caller        FunctionCaller
	gateway       contractx.ToolGateway
	normalizer    *toolcall.Normalizer
	maxIterations int
}

func NewLoop(caller FunctionCaller, gateway contractx.ToolGateway, normalizer *toolcall.Normalizer) *Loop {
	return &Loop{
		caller:        caller,
		gateway:       gateway,
		normalizer:    normalizer,
		maxIterations: MaxToolIterations,
	}
}

// WithMaxIterations overrides the round budget. Values below 1 keep the
// default.
func (l *Loop) WithMaxIterations(n int) *Loop {
	if n > 0 {
		l.maxIterations = n
	}
	return l
}

// Result is the outcome of one loop run.
type Result struct {
	Reply     string
	Results   []contractx.ToolResult
	Slots     map[string]string
	Escalated bool
}

// Gather runs a single information round. When the backend answers in plain
// text instead of calling tools, that text is the final answer for the turn
// and no further phase runs. Tool calls are executed once; their results
// carry forward without another model round.
func (l *Loop) Gather(ctx context.Context, stagePrompt, userMessage string, callerID int64, slots map[string]string, tools []*schema.ToolInfo) (Result, error) {
	messages := []*schema.Message{
		schema.SystemMessage(stagePrompt),
		schema.UserMessage(userMessage),
	}

	var res Result
	msg, err := l.caller.Call(ctx, messages, tools)
	if err != nil {
		return res, fmt.Errorf("%w: gather round: %v", contractx.ErrModelInvoke, err)
	}

	calls, remaining := l.extractCalls(msg, callerID, slots)
	if len(calls) == 0 {
		res.Reply = remaining
		return res, nil
	}
	for _, call := range calls {
		out := l.gateway.Execute(ctx, call)
		res.Results = append(res.Results, out)
		if call.Tool == EscalateTool {
			res.Reply = out.Output
			res.Escalated = true
			return res, nil
		}
		if out.OK {
			captureSlots(&res, call)
		}
	}
	return res, nil
}

// Run drives the loop. The stage prompt goes in as the system message and the
// client's message as the user message; summarize produces the final prompt
// when the budget is exhausted.
func (l *Loop) Run(ctx context.Context, stagePrompt, userMessage string, callerID int64, slots map[string]string, tools []*schema.ToolInfo, summarize Summarizer) (Result, error) {
	messages := []*schema.Message{
		schema.SystemMessage(stagePrompt),
		schema.UserMessage(userMessage),
	}

	var res Result
	for i := 0; i < l.maxIterations; i++ {
		msg, err := l.caller.Call(ctx, messages, tools)
		if err != nil {
			return res, fmt.Errorf("%w: loop iteration %d: %v", contractx.ErrModelInvoke, i+1, err)
		}

		calls, remaining := l.extractCalls(msg, callerID, slots)
		if len(calls) == 0 {
			if remaining == "" {
				res.Reply = noProgressReply
				return res, nil
			}
			res.Reply = remaining
			return res, nil
		}

		var observations []contractx.ToolResult
		for _, call := range calls {
			if call.Tool == EscalateTool {
				out := l.gateway.Execute(ctx, call)
				res.Results = append(res.Results, out)
				res.Reply = out.Output
				res.Escalated = true
				return res, nil
			}
			out := l.gateway.Execute(ctx, call)
			log.Debug().Str("tool", call.Tool).Bool("ok", out.OK).Msg("tool executed")
			observations = append(observations, out)
			res.Results = append(res.Results, out)

			// A failed mutation halts the turn: no further call in the batch
			// executes, and the failure text is the answer the client sees,
			// not a later round's gloss over it.
			if !out.OK && l.normalizer.IdentityTool(call.Tool) {
				res.Reply = out.Output
				return res, nil
			}
			if out.OK {
				captureSlots(&res, call)
			}
		}

		messages = append(messages, msg)
		messages = append(messages, observationMessages(msg, observations)...)
	}

	// Budget exhausted: one final round with no tools offered.
	final := []*schema.Message{
		schema.SystemMessage(summarize(res.Results)),
		schema.UserMessage(userMessage),
	}
	msg, err := l.caller.Call(ctx, final, nil)
	if err != nil {
		return res, fmt.Errorf("%w: summary round: %v", contractx.ErrModelInvoke, err)
	}
	reply, _ := toolcall.Parse(msg.Content)
	if reply == "" {
		reply = noProgressReply
	}
	res.Reply = reply
	return res, nil
}

// extractCalls pulls tool calls from a backend message: native function calls
// first, then the textual grammar, then the legacy bracket form. The returned
// string is the user-facing remainder when no call is present.
func (l *Loop) extractCalls(msg *schema.Message, callerID int64, slots map[string]string) ([]contractx.NormalizedCall, string) {
	if len(msg.ToolCalls) > 0 {
		calls := make([]contractx.NormalizedCall, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				log.Warn().Str("tool", tc.Function.Name).Msg("undecodable function arguments")
				args = map[string]any{}
			}
			calls = append(calls, l.normalizer.NormalizeArgs(tc.Function.Name, args, callerID))
		}
		applySlots(calls, slots)
		return calls, ""
	}

	rest, parsed := toolcall.Parse(msg.Content)
	if len(parsed) == 0 {
		var call contractx.ToolCall
		var ok bool
		rest, call, ok = toolcall.ParseLegacy(msg.Content)
		if !ok {
			return nil, strings.TrimSpace(rest)
		}
		parsed = []contractx.ToolCall{call}
	}

	calls := make([]contractx.NormalizedCall, 0, len(parsed))
	for _, call := range parsed {
		calls = append(calls, l.normalizer.Normalize(call, callerID))
	}
	applySlots(calls, slots)
	return calls, strings.TrimSpace(rest)
}

// applySlots back-fills missing booking parameters from the values already
// heard in the conversation, so an under-specified call still carries the
// context the client gave earlier.
func applySlots(calls []contractx.NormalizedCall, slots map[string]string) {
	if len(slots) == 0 {
		return
	}
	for _, call := range calls {
		for _, name := range slotParams {
			value := slots[name]
			if value == "" {
				continue
			}
			if existing, ok := call.Params[name]; ok {
				if s, isStr := existing.(string); !isStr || s != "" {
					continue
				}
			}
			call.Params[name] = value
		}
	}
}

func captureSlots(res *Result, call contractx.NormalizedCall) {
	for _, name := range slotParams {
		if v, ok := call.Params[name].(string); ok && strings.TrimSpace(v) != "" {
			if res.Slots == nil {
				res.Slots = make(map[string]string)
			}
			res.Slots[name] = v
		}
	}
}

func observationMessages(assistant *schema.Message, observations []contractx.ToolResult) []*schema.Message {
	if len(assistant.ToolCalls) > 0 {
		out := make([]*schema.Message, 0, len(observations))
		for i, obs := range observations {
			id := ""
			if i < len(assistant.ToolCalls) {
				id = assistant.ToolCalls[i].ID
			}
			out = append(out, schema.ToolMessage(obs.Output, id))
		}
		return out
	}
	var sb strings.Builder
	sb.WriteString("Tool results:\n")
	for _, obs := range observations {
		status := "ok"
		if !obs.OK {
			status = "failed"
		}
		fmt.Fprintf(&sb, "- %s (%s): %s\n", obs.Tool, status, obs.Output)
	}
	return []*schema.Message{schema.UserMessage(strings.TrimRight(sb.String(), "\n"))}
}

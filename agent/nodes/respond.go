package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/salonlab/concierge/agent/contract"
	"github.com/salonlab/concierge/agent/orchestrator"
	"github.com/salonlab/concierge/agent/prompt"
	"github.com/salonlab/concierge/agent/session"
	"github.com/salonlab/concierge/agent/stage"
	toolx "github.com/salonlab/concierge/agent/tool"
)

// escalationReply is sent for the escalation stage without any model or tool
// round.
const escalationReply = "I'm very sorry about this. I'm handing the conversation over to our manager — they will reply to you right here shortly."

// fallbackReply covers the case where no phase produced any text and the
// backend could not synthesize one either.
const fallbackReply = "I'm sorry, something went wrong on my side. Please try again in a moment."

// LoopRunner is the bounded tool-execution loop. Gather is the single
// information round; Run is the full bounded cycle.
type LoopRunner interface {
	Gather(ctx context.Context, stagePrompt, userMessage string, callerID int64, slots map[string]string, tools []*schema.ToolInfo) (orchestrator.Result, error)
	Run(ctx context.Context, stagePrompt, userMessage string, callerID int64, slots map[string]string, tools []*schema.ToolInfo, summarize orchestrator.Summarizer) (orchestrator.Result, error)
}

// HandleEscalation answers the escalation stage directly. No tools run and no
// model round happens for an upset client.
func HandleEscalation(in *GraphState) (*GraphState, error) {
	if in.StageID == stage.Escalation {
		in.Escalated = true
		in.Reply = escalationReply
	}
	return in, nil
}

// Think runs the information-gathering round with the stage's read-only
// tools. A plain-text answer here is the final answer for the turn: the
// acting round only happens when this round gathered tool results instead of
// answering.
func Think(ctx context.Context, in *GraphState, catalog *stage.Catalog, registry *toolx.Registry, builder *prompt.Builder, sessions *session.Store, loop LoopRunner) (*GraphState, error) {
	if in.Reply != "" {
		return in, nil
	}
	def, ok := catalog.Get(in.StageID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", contractx.ErrStageCatalog, in.StageID)
	}
	if def.Thinking == "" {
		return in, nil
	}
	readDefs := registry.Select(def.AllowedTools, toolx.KindRead)
	if len(readDefs) == 0 {
		return in, nil
	}

	cc := clientContext(in)
	p := builder.Thinking(def, readDefs, cc, in.Transcript, in.Text)
	res, err := loop.Gather(ctx, p, in.Text, in.UserID, slotMap(in), toolInfos(registry, readDefs))
	if err != nil {
		return nil, err
	}
	in.ToolResults = append(in.ToolResults, res.Results...)
	mergeToolSlots(in, sessions, res.Slots)
	if res.Escalated {
		in.Escalated = true
		in.Reply = res.Reply
		return in, nil
	}
	if res.Reply != "" {
		in.Reply = res.Reply
	}
	return in, nil
}

// Act runs the answer-and-act phase with the stage's write tools, seeing
// everything Think gathered.
func Act(ctx context.Context, in *GraphState, catalog *stage.Catalog, registry *toolx.Registry, builder *prompt.Builder, sessions *session.Store, loop LoopRunner) (*GraphState, error) {
	if in.Reply != "" {
		return in, nil
	}
	def, ok := catalog.Get(in.StageID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", contractx.ErrStageCatalog, in.StageID)
	}

	writeDefs := registry.Select(withEscalate(def.AllowedTools), toolx.KindWrite)
	cc := clientContext(in)
	p := builder.Synthesis(def, writeDefs, cc, in.Transcript, in.Text, in.ToolResults)
	res, err := loop.Run(ctx, p, in.Text, in.UserID, slotMap(in), toolInfos(registry, writeDefs), summarizer(builder, cc, in.Text))
	if err != nil {
		return nil, err
	}
	in.ToolResults = append(in.ToolResults, res.Results...)
	mergeToolSlots(in, sessions, res.Slots)
	in.Escalated = in.Escalated || res.Escalated
	in.Reply = res.Reply
	return in, nil
}

// EnsureReply guarantees a non-empty answer. A failed write is relayed
// verbatim so the client sees exactly what went wrong; otherwise one
// tool-free backend round synthesizes the continuation, and only when that
// fails too does the canned apology go out.
func EnsureReply(ctx context.Context, in *GraphState, gen contractx.Generator, builder *prompt.Builder) (*GraphState, error) {
	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		if last := lastFailure(in.ToolResults); last != "" {
			reply = last
		} else {
			reply = synthesizeReply(ctx, in, gen, builder)
		}
	}
	in.Reply = reply
	return in, nil
}

// FinalizeReply closes the graph.
func FinalizeReply(in *GraphState) (GraphOutput, error) {
	return GraphOutput{Reply: in.Reply, Escalated: in.Escalated}, nil
}

func synthesizeReply(ctx context.Context, in *GraphState, gen contractx.Generator, builder *prompt.Builder) string {
	p := builder.Summary(clientContext(in), in.Text, in.ToolResults)
	out, err := gen.Generate(ctx, []contractx.Turn{{Role: contractx.RoleUser, Text: p}})
	if err != nil {
		log.Warn().Err(err).Str("trace_id", in.TraceID).Msg("reply synthesis failed")
		return fallbackReply
	}
	if trimmed := strings.TrimSpace(out); trimmed != "" {
		return trimmed
	}
	return fallbackReply
}

func lastFailure(results []contractx.ToolResult) string {
	for i := len(results) - 1; i >= 0; i-- {
		if !results[i].OK {
			return results[i].Output
		}
	}
	return ""
}

func clientContext(in *GraphState) prompt.ClientContext {
	cc := prompt.ClientContext{
		Name:      in.ClientName,
		Phone:     in.ClientPhone,
		Service:   in.SlotService,
		Master:    in.SlotMaster,
		Date:      in.SlotDate,
		TimeOfDay: in.SlotTime,
		Now:       in.Now,
	}
	for _, f := range in.Focus {
		cc.Focus = append(cc.Focus, f.Summary)
	}
	return cc
}

func slotMap(in *GraphState) map[string]string {
	return map[string]string{
		"service": in.SlotService,
		"master":  in.SlotMaster,
		"date":    in.SlotDate,
		"time":    in.SlotTime,
	}
}

// mergeToolSlots folds booking details confirmed by executed tool calls into
// the session, so later turns and rounds can back-fill them.
func mergeToolSlots(in *GraphState, sessions *session.Store, heard map[string]string) {
	if len(heard) == 0 {
		return
	}
	st := sessions.Update(in.UserID, func(s *session.State) {
		if v := heard["service"]; v != "" {
			s.Service = v
		}
		if v := heard["master"]; v != "" {
			s.Master = v
		}
		if v := heard["date"]; v != "" {
			s.Date = v
		}
		if v := heard["time"]; v != "" {
			s.TimeOfDay = v
		}
	})
	in.SlotService = st.Service
	in.SlotMaster = st.Master
	in.SlotDate = st.Date
	in.SlotTime = st.TimeOfDay
}

func summarizer(builder *prompt.Builder, cc prompt.ClientContext, message string) orchestrator.Summarizer {
	return func(results []contractx.ToolResult) string {
		return builder.Summary(cc, message, results)
	}
}

func toolInfos(registry *toolx.Registry, defs []toolx.Definition) []*schema.ToolInfo {
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return registry.ToolInfos(names)
}

func withEscalate(allowed []string) []string {
	for _, name := range allowed {
		if name == orchestrator.EscalateTool {
			return allowed
		}
	}
	return append(append([]string(nil), allowed...), orchestrator.EscalateTool)
}

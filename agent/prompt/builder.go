package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	contractx "github.com/salonlab/concierge/agent/contract"
	"github.com/salonlab/concierge/agent/stage"
	toolx "github.com/salonlab/concierge/agent/tool"
)

var (
	//go:embed template/persona.txt
	personaRaw string

	//go:embed template/classify.txt
	classifyRaw string

	//go:embed template/grammar.txt
	grammarRaw string

	//go:embed template/summary.txt
	summaryRaw string
)

// Set holds the loaded prompt fragments.
type Set struct {
	Persona  string
	Classify string
	Grammar  string
	Summary  string
}

// LoadSet returns the embedded prompt fragments, trimmed.
func LoadSet() Set {
	return Set{
		Persona:  strings.TrimSpace(personaRaw),
		Classify: strings.TrimSpace(classifyRaw),
		Grammar:  strings.TrimSpace(grammarRaw),
		Summary:  strings.TrimSpace(summaryRaw),
	}
}

// ClientContext is everything known about the client that a generation prompt
// may reference.
type ClientContext struct {
	Name      string
	Phone     string
	Focus     []string
	Service   string
	Master    string
	Date      string
	TimeOfDay string
	Now       time.Time
}

// Builder renders the prompts of the pipeline. All methods are pure.
type Builder struct {
	set Set
}

func NewBuilder() *Builder {
	return &Builder{set: LoadSet()}
}

// Classification renders the single-turn stage classification prompt.
func (b *Builder) Classification(stages []stage.Definition, transcript []contractx.Turn, message string) string {
	var list strings.Builder
	for _, def := range stages {
		fmt.Fprintf(&list, "- %s: %s\n", def.ID, def.Goal)
	}
	return fmt.Sprintf(b.set.Classify,
		strings.TrimRight(list.String(), "\n"),
		FormatTranscript(transcript),
		message,
	)
}

// Thinking renders the information-gathering prompt for a stage.
func (b *Builder) Thinking(def stage.Definition, tools []toolx.Definition, cc ClientContext, transcript []contractx.Turn, message string) string {
	return b.stagePrompt(def.Goal, def.Thinking, tools, cc, transcript, message, nil)
}

// Synthesis renders the answer-and-act prompt for a stage, with the gathered
// tool results in view.
func (b *Builder) Synthesis(def stage.Definition, tools []toolx.Definition, cc ClientContext, transcript []contractx.Turn, message string, results []contractx.ToolResult) string {
	return b.stagePrompt(def.Goal, def.Synthesis, tools, cc, transcript, message, results)
}

// Summary renders the wrap-up prompt used when the tool budget runs out.
func (b *Builder) Summary(cc ClientContext, message string, results []contractx.ToolResult) string {
	var sb strings.Builder
	sb.WriteString(b.set.Persona)
	sb.WriteString("\n\n")
	b.writeClientBlock(&sb, cc)
	sb.WriteString("Tool results so far:\n")
	sb.WriteString(FormatToolResults(results))
	sb.WriteString("\n\nLatest client message: ")
	sb.WriteString(message)
	sb.WriteString("\n\n")
	sb.WriteString(b.set.Summary)
	return sb.String()
}

func (b *Builder) stagePrompt(goal, scenario string, tools []toolx.Definition, cc ClientContext, transcript []contractx.Turn, message string, results []contractx.ToolResult) string {
	var sb strings.Builder
	sb.WriteString(b.set.Persona)
	sb.WriteString("\n\n")
	b.writeClientBlock(&sb, cc)

	fmt.Fprintf(&sb, "Situation: %s\n", goal)
	if scenario != "" {
		fmt.Fprintf(&sb, "What to do: %s\n", scenario)
	}
	sb.WriteString("\n")

	if len(tools) > 0 {
		sb.WriteString("Available tools:\n")
		for _, def := range tools {
			fmt.Fprintf(&sb, "- %s: %s\n", signature(def), def.Desc)
		}
		sb.WriteString("\n")
		sb.WriteString(b.set.Grammar)
		sb.WriteString("\n\n")
	}

	if len(results) > 0 {
		sb.WriteString("Tool results:\n")
		sb.WriteString(FormatToolResults(results))
		sb.WriteString("\n\n")
	}

	if len(transcript) > 0 {
		sb.WriteString("Recent conversation:\n")
		sb.WriteString(FormatTranscript(transcript))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Latest client message: ")
	sb.WriteString(message)
	return sb.String()
}

func (b *Builder) writeClientBlock(sb *strings.Builder, cc ClientContext) {
	if !cc.Now.IsZero() {
		fmt.Fprintf(sb, "Current date and time: %s\n", cc.Now.Format("Monday, 2006-01-02 15:04"))
	}
	if cc.Name != "" {
		fmt.Fprintf(sb, "Client name: %s\n", cc.Name)
	}
	if cc.Phone != "" {
		fmt.Fprintf(sb, "Client phone: %s\n", cc.Phone)
	}
	if cc.Service != "" {
		fmt.Fprintf(sb, "The client is interested in %s.\n", cc.Service)
	}
	if cc.Master != "" {
		fmt.Fprintf(sb, "The client prefers the specialist %s.\n", cc.Master)
	}
	if cc.Date != "" {
		fmt.Fprintf(sb, "The client mentioned the date %s.\n", cc.Date)
	}
	if cc.TimeOfDay != "" {
		fmt.Fprintf(sb, "The client mentioned the time %s.\n", cc.TimeOfDay)
	}
	if len(cc.Focus) > 0 {
		sb.WriteString("The client's current bookings:\n")
		for _, f := range cc.Focus {
			fmt.Fprintf(sb, "- %s\n", f)
		}
	}
	sb.WriteString("\n")
}

// FormatTranscript renders turns oldest-first as numbered speaker lines.
func FormatTranscript(turns []contractx.Turn) string {
	if len(turns) == 0 {
		return "(no previous messages)"
	}
	var sb strings.Builder
	for i, turn := range turns {
		speaker := "CLIENT"
		if turn.Role == contractx.RoleAssistant {
			speaker = "ASSISTANT"
		}
		fmt.Fprintf(&sb, "[%d] %s: %s\n", i+1, speaker, turn.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatToolResults renders execution outcomes for inclusion in a prompt.
func FormatToolResults(results []contractx.ToolResult) string {
	if len(results) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, res := range results {
		status := "ok"
		if !res.OK {
			status = "failed"
		}
		fmt.Fprintf(&sb, "- %s (%s): %s\n", res.Tool, status, res.Output)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// signature renders a callable form of a tool for the prompt, omitting the
// injected identity parameter.
func signature(def toolx.Definition) string {
	var params []string
	for _, p := range def.Params {
		if p.Name == "caller_id" {
			continue
		}
		if p.Required {
			params = append(params, fmt.Sprintf("%s=\"...\"", p.Name))
		} else {
			params = append(params, fmt.Sprintf("[%s=\"...\"]", p.Name))
		}
	}
	return fmt.Sprintf("%s(%s)", def.Name, strings.Join(params, ", "))
}

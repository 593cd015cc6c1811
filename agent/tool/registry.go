package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/salonlab/concierge/agent/contract"
)

// Kind classifies a tool as read-only (information gathering) or write
// (mutating business records). Stages expose only one kind per phase.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
)

// ParamType is the declared type of a tool parameter.
type ParamType int

const (
	TypeString ParamType = iota
	TypeInt
)

// Param is one declared parameter of a tool contract.
type Param struct {
	Name     string
	Type     ParamType
	Desc     string
	Required bool
}

// Handler executes a tool with normalized arguments. A user-facing failure is
// returned as an error; the registry folds it into a failure ToolResult.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Definition declares one tool: its parameter contract, read/write
// classification, whether the caller's identity is part of the contract, and
// the handler.
type Definition struct {
	Name     string
	Desc     string
	Kind     Kind
	Identity bool
	Params   []Param
	Handler  Handler
}

// Registry maps tool names to definitions. Contracts are validated at
// registration so unknown names and malformed definitions fail fast at
// startup instead of at dispatch time.
type Registry struct {
	defs  map[string]Definition
	order []string
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool with empty name", contractx.ErrValidation)
		}
		if _, exists := r.defs[name]; exists {
			return nil, fmt.Errorf("%w: duplicate tool %q", contractx.ErrValidation, name)
		}
		if def.Handler == nil {
			return nil, fmt.Errorf("%w: tool %q has no handler", contractx.ErrValidation, name)
		}
		seen := map[string]struct{}{}
		for _, p := range def.Params {
			if strings.TrimSpace(p.Name) == "" {
				return nil, fmt.Errorf("%w: tool %q has a nameless parameter", contractx.ErrValidation, name)
			}
			if _, dup := seen[p.Name]; dup {
				return nil, fmt.Errorf("%w: tool %q declares parameter %q twice", contractx.ErrValidation, name, p.Name)
			}
			seen[p.Name] = struct{}{}
		}
		def.Name = name
		r.defs[name] = def
		r.order = append(r.order, name)
	}
	return r, nil
}

// Execute runs a normalized call against its declared contract. Every
// failure mode comes back as a failure ToolResult, never as a panic: missing
// or mistyped parameters, unknown tools and handler errors all produce
// declared failure strings that can be fed back to the reasoning backend.
func (r *Registry) Execute(ctx context.Context, call contractx.NormalizedCall) contractx.ToolResult {
	def, ok := r.defs[call.Tool]
	if !ok {
		return failure(call.Tool, fmt.Sprintf("tool %q is not available", call.Tool))
	}

	args := call.Params
	if args == nil {
		args = map[string]any{}
	}
	for _, p := range def.Params {
		v, present := args[p.Name]
		if !present || v == "" {
			if p.Required {
				return failure(call.Tool, fmt.Sprintf("parameter %q is required", p.Name))
			}
			continue
		}
		if p.Type == TypeInt {
			if _, isInt := v.(int64); !isInt {
				return failure(call.Tool, fmt.Sprintf("parameter %q must be a number, got %q", p.Name, fmt.Sprint(v)))
			}
		}
	}
	if def.Identity {
		args["caller_id"] = call.CallerID
	}

	out, err := def.Handler(ctx, args)
	if err != nil {
		return failure(call.Tool, err.Error())
	}
	return contractx.ToolResult{Tool: call.Tool, OK: true, Output: out}
}

// Has reports whether name is a registered tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.defs[name]
	return ok
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// IdentityTools lists the tools whose contract includes the caller's
// identity; the normalizer injects the session identity for these.
func (r *Registry) IdentityTools() []string {
	var names []string
	for _, name := range r.order {
		if r.defs[name].Identity {
			names = append(names, name)
		}
	}
	return names
}

// Select returns the registered definitions among names that match kind,
// preserving registration order. Unknown names are skipped; the catalog is
// validated against the registry at startup.
func (r *Registry) Select(names []string, kind Kind) []Definition {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	var defs []Definition
	for _, name := range r.order {
		def := r.defs[name]
		if _, ok := allowed[name]; ok && def.Kind == kind {
			defs = append(defs, def)
		}
	}
	return defs
}

// ToolInfos converts the named tools to the schema used by function-calling
// chat models.
func (r *Registry) ToolInfos(names []string) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		def, ok := r.defs[name]
		if !ok {
			continue
		}
		params := make(map[string]*schema.ParameterInfo, len(def.Params))
		for _, p := range def.Params {
			t := schema.String
			if p.Type == TypeInt {
				t = schema.Integer
			}
			params[p.Name] = &schema.ParameterInfo{Type: t, Desc: p.Desc, Required: p.Required}
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        def.Name,
			Desc:        def.Desc,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

func failure(tool, msg string) contractx.ToolResult {
	return contractx.ToolResult{Tool: tool, OK: false, Output: "Error: " + msg}
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/salonlab/concierge/agent/nodes"
)

func (s *Service) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, s.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_history",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadHistory(ctx, in, s.deps.History, s.historyWindow)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_history: %w", err)
	}

	if err := graph.AddLambdaNode("record_user_turn",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RecordUserTurn(ctx, in, s.deps.History)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node record_user_turn: %w", err)
	}

	if err := graph.AddLambdaNode("extract_slots",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExtractSlots(in, s.deps.Sessions)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node extract_slots: %w", err)
	}

	if err := graph.AddLambdaNode("classify_stage",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ClassifyStage(ctx, in, s.deps.Classifier)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify_stage: %w", err)
	}

	if err := graph.AddLambdaNode("handle_escalation",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.HandleEscalation(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node handle_escalation: %w", err)
	}

	if err := graph.AddLambdaNode("load_focus",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadFocus(ctx, in, s.deps.Catalog, s.deps.Focus, s.deps.Sessions)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_focus: %w", err)
	}

	if err := graph.AddLambdaNode("load_client",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadClient(ctx, in, s.deps.Backend)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_client: %w", err)
	}

	if err := graph.AddLambdaNode("think",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Think(ctx, in, s.deps.Catalog, s.deps.Registry, s.builder, s.deps.Sessions, s.deps.Loop)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node think: %w", err)
	}

	if err := graph.AddLambdaNode("act",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Act(ctx, in, s.deps.Catalog, s.deps.Registry, s.builder, s.deps.Sessions, s.deps.Loop)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node act: %w", err)
	}

	if err := graph.AddLambdaNode("ensure_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.EnsureReply(ctx, in, s.deps.Responder, s.builder)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node ensure_reply: %w", err)
	}

	if err := graph.AddLambdaNode("record_assistant_turn",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RecordAssistantTurn(ctx, in, s.deps.History)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node record_assistant_turn: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_history"},
		{"load_history", "record_user_turn"},
		{"record_user_turn", "extract_slots"},
		{"extract_slots", "classify_stage"},
		{"classify_stage", "handle_escalation"},
		{"handle_escalation", "load_focus"},
		{"load_focus", "load_client"},
		{"load_client", "think"},
		{"think", "act"},
		{"act", "ensure_reply"},
		{"ensure_reply", "record_assistant_turn"},
		{"record_assistant_turn", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("concierge.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile pipeline graph: %w", err)
	}
	return runner, nil
}

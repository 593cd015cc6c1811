package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/salonlab/concierge/agent/contract"
	openrouterx "github.com/salonlab/concierge/pkg/openrouter"
)

// Client wraps one chat model behind the interfaces the pipeline consumes:
// plain generation for classification and tool-calling rounds for the loop.
type Client struct {
	model model.ToolCallingChatModel
}

func NewClient(ctx context.Context, cfg openrouterx.Config) (*Client, error) {
	m, err := cfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &Client{model: m}, nil
}

var _ contractx.Generator = (*Client)(nil)

// Generate runs a plain completion over the turns.
func (c *Client) Generate(ctx context.Context, turns []contractx.Turn) (string, error) {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == contractx.RoleAssistant {
			messages = append(messages, schema.AssistantMessage(turn.Text, nil))
			continue
		}
		messages = append(messages, schema.UserMessage(turn.Text))
	}
	out, err := c.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return out.Content, nil
}

// Call runs one tool-calling round. With no tools it degrades to a plain
// completion, which the loop uses for its summary round.
func (c *Client) Call(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	m := c.model
	if len(tools) > 0 {
		withTools, err := c.model.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
		}
		m = withTools
	}
	out, err := m.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return out, nil
}

package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
)

const defaultMaxTokens = 4096

// Completer adapts a Client to a plain system+user completion call, the
// shape the insight generator consumes.
type Completer struct {
	client    Client
	model     string
	maxTokens int64
}

// CompleterOption customizes a Completer.
type CompleterOption func(*Completer)

// WithMaxTokens overrides the response token budget.
func WithMaxTokens(n int64) CompleterOption {
	return func(c *Completer) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewCompleter creates a Completer for the given model.
func NewCompleter(client Client, model string, opts ...CompleterOption) *Completer {
	c := &Completer{client: client, model: model, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends one system+user message pair and returns the text answer.
func (c *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateMessage(ctx, MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", eris.New("anthropic: empty completion")
	}
	resp.Usage.Log(c.model, "insight")
	return resp.Text, nil
}

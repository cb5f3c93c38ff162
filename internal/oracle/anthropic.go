package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ldi/taskline/embed/prompts"
)

const DefaultAnthropicModel = "claude-sonnet-4-5"

type AnthropicOptions struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// AnthropicOracle asks the Messages API directly instead of shelling out.
type AnthropicOracle struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
	logger  *slog.Logger
}

// NewAnthropicOracle creates the client. The key falls back to
// ANTHROPIC_API_KEY.
func NewAnthropicOracle(opts AnthropicOptions, logger *slog.Logger) (*AnthropicOracle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL), option.WithMaxRetries(0))
	}

	model := opts.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	return &AnthropicOracle{
		client:  anthropic.NewClient(reqOpts...),
		model:   anthropic.Model(model),
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (o *AnthropicOracle) Interpret(ctx context.Context, instruction string) (map[string]any, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return map[string]any{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: int64(4096),
		System: []anthropic.TextBlockParam{
			{Text: prompts.Header},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("## Instruction\n" + instruction + "\n\n" + prompts.Footer)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messages API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	o.logger.Debug("oracle responded", "model", string(o.model), "bytes", text.Len(), "elapsed", time.Since(start))

	raw, ok := ExtractObject([]byte(text.String()))
	if !ok {
		o.logger.Debug("oracle returned no JSON object")
		return map[string]any{}, nil
	}
	return raw, nil
}

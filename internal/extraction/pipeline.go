package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"

	"github.com/hivemind-db/hivemind/internal/types"
)

// Config selects and authenticates the extraction provider.
type Config struct {
	// Provider is "anthropic", "openai", "ollama", "codegate", or a raw
	// http(s) base URL of an OpenAI-compatible server.
	Provider string
	APIKey   string
	Model    string
}

// Pipeline calls the configured LLM and parses its JSON response.
type Pipeline struct {
	cfg       Config
	anthropic *anthropic.Client
	openai    *openai.Client
	baseURL   string
	log       *slog.Logger
}

// New builds a pipeline. Unknown providers are assumed OpenAI-compatible,
// matching how local proxies present themselves.
func New(cfg Config, log *slog.Logger) *Pipeline {
	p := &Pipeline{cfg: cfg, log: log.With("component", "extraction")}

	if cfg.Provider == "anthropic" {
		var opts []anthropicoption.RequestOption
		if cfg.APIKey != "" {
			opts = append(opts, anthropicoption.WithAPIKey(cfg.APIKey))
		}
		client := anthropic.NewClient(opts...)
		p.anthropic = &client
		return p
	}

	switch cfg.Provider {
	case "openai":
		p.baseURL = "https://api.openai.com/v1"
	case "ollama":
		p.baseURL = "http://localhost:11434/v1"
	case "codegate":
		p.baseURL = "http://localhost:9212/v1"
	default:
		if strings.HasPrefix(cfg.Provider, "http") {
			p.baseURL = cfg.Provider
		} else {
			p.log.Warn("unknown LLM provider, assuming OpenAI-compatible", "provider", cfg.Provider)
			p.baseURL = "https://api.openai.com/v1"
		}
	}

	opts := []openaioption.RequestOption{openaioption.WithBaseURL(p.baseURL)}
	if cfg.APIKey != "" {
		opts = append(opts, openaioption.WithAPIKey(cfg.APIKey))
	}
	client := openai.NewClient(opts...)
	p.openai = &client
	return p
}

// Available reports whether the pipeline is configured: an API key is set
// or the provider is local.
func (p *Pipeline) Available() bool {
	if p.cfg.APIKey != "" {
		return true
	}
	return strings.Contains(p.baseURL, "localhost") || strings.Contains(p.baseURL, "127.0.0.1")
}

// Extract runs one extraction call over the conversation, giving the model
// the existing memories for conflict resolution.
func (p *Pipeline) Extract(ctx context.Context, messages []types.ConversationMessage, existing []types.Memory) (*Result, error) {
	userPrompt := buildUserPrompt(messages, existing)

	var (
		text string
		err  error
	)
	if p.anthropic != nil {
		text, err = p.callAnthropic(ctx, userPrompt)
	} else {
		text, err = p.callOpenAI(ctx, userPrompt)
	}
	if err != nil {
		return nil, err
	}
	p.log.Debug("extraction response", "chars", len(text))

	raw := extractJSON(text)
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w (raw: %s)", err, raw)
	}
	p.log.Info("extraction complete",
		"facts", len(result.Facts),
		"entities", len(result.Entities),
		"relationships", len(result.Relationships))
	return &result, nil
}

func (p *Pipeline) callAnthropic(ctx context.Context, userPrompt string) (string, error) {
	msg, err := p.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(systemPrompt + "\n\n" + userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic call: %w", err)
	}
	if len(msg.Content) == 0 || msg.Content[0].Type != "text" {
		return "", fmt.Errorf("anthropic call: empty response")
	}
	return msg.Content[0].Text, nil
}

func (p *Pipeline) callOpenAI(ctx context.Context, userPrompt string) (string, error) {
	resp, err := p.openai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(4096),
	})
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("llm call: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const providerNameOpenAI = "openai"

// OpenAIProvider implements the Provider interface using OpenAI's
// chat-completions API through the official SDK.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client: &client,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return providerNameOpenAI
}

// Generate makes a single chat-completion call and returns the cleaned code.
func (p *OpenAIProvider) Generate(ctx context.Context, request *Request) (*Response, error) {
	startTime := time.Now()
	log.Printf("🎵 OPENAI GENERATION REQUEST STARTED (Model: %s)", request.Model)

	transaction := sentry.StartTransaction(ctx, "openai.generate")
	defer transaction.Finish()

	transaction.SetTag("model", request.Model)
	transaction.SetTag("provider", providerNameOpenAI)

	params := openai.ChatCompletionNewParams{
		Model:    request.Model,
		Messages: buildOpenAIMessages(request.Messages),
	}

	span := transaction.StartChild("openai.api_call")
	apiStartTime := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	apiDuration := time.Since(apiStartTime)
	span.Finish()

	if err != nil {
		log.Printf("❌ OPENAI REQUEST FAILED after %v: %v", apiDuration, err)
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if len(resp.Choices) == 0 {
		transaction.SetTag("success", "false")
		return nil, fmt.Errorf("%w: response contained no choices", ErrUpstream)
	}

	code := CleanCode(resp.Choices[0].Message.Content)
	if code == "" {
		transaction.SetTag("success", "false")
		return nil, fmt.Errorf("%w: response did not include any output text", ErrUpstream)
	}

	log.Printf("📊 USAGE: input=%d, output=%d, total=%d",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	log.Printf("✅ OPENAI GENERATION COMPLETED in %v (%d chars)", time.Since(startTime), len(code))

	transaction.SetTag("success", "true")
	return &Response{
		Code: code,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// buildOpenAIMessages converts our message list to the SDK's union params.
func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		default:
			log.Printf("⚠️  Skipping message with unknown role %q", m.Role)
		}
	}
	return out
}

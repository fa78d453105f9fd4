package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	providerNameOpenRouter = "openrouter"
	openRouterBaseURL      = "https://openrouter.ai/api/v1"

	maxErrorBodyLog = 500
)

// OpenRouterProvider implements the Provider interface against OpenRouter's
// OpenAI-compatible chat-completions endpoint via raw HTTP. This is the
// default relay: OpenRouter fronts the model the original frontend used.
type OpenRouterProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenRouterProvider creates a new OpenRouter provider
func NewOpenRouterProvider(apiKey string) *OpenRouterProvider {
	return &OpenRouterProvider{
		apiKey:     apiKey,
		baseURL:    openRouterBaseURL,
		httpClient: http.DefaultClient,
	}
}

// WithBaseURL overrides the endpoint, used by tests to point at a stub server.
func (p *OpenRouterProvider) WithBaseURL(baseURL string) *OpenRouterProvider {
	p.baseURL = baseURL
	return p
}

// Name returns the provider name
func (p *OpenRouterProvider) Name() string {
	return providerNameOpenRouter
}

type chatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate makes a single chat-completion call and returns the cleaned code.
func (p *OpenRouterProvider) Generate(ctx context.Context, request *Request) (*Response, error) {
	startTime := time.Now()
	log.Printf("🎵 OPENROUTER GENERATION REQUEST STARTED (Model: %s)", request.Model)

	transaction := sentry.StartTransaction(ctx, "openrouter.generate")
	defer transaction.Finish()

	transaction.SetTag("model", request.Model)
	transaction.SetTag("provider", providerNameOpenRouter)

	payload, err := json.Marshal(chatCompletionRequest{
		Model:    request.Model,
		Messages: request.Messages,
	})
	if err != nil {
		transaction.SetTag("success", "false")
		return nil, fmt.Errorf("%w: marshal request: %v", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		transaction.SetTag("success", "false")
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	span := transaction.StartChild("openrouter.api_call")
	apiStartTime := time.Now()
	httpResp, err := p.httpClient.Do(req)
	apiDuration := time.Since(apiStartTime)
	span.Finish()

	if err != nil {
		log.Printf("❌ OPENROUTER REQUEST FAILED after %v: %v", apiDuration, err)
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			log.Printf("⚠️  Failed to close response body: %v", closeErr)
		}
	}()

	body, _ := io.ReadAll(httpResp.Body)

	if httpResp.StatusCode != http.StatusOK {
		// Upstream error bodies are logged but never surfaced to the client.
		log.Printf("❌ OPENROUTER ERROR %d: %s", httpResp.StatusCode, truncateString(string(body), maxErrorBodyLog))
		transaction.SetTag("success", "false")
		sentry.CaptureMessage(fmt.Sprintf("openrouter error %d", httpResp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, httpResp.StatusCode)
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Printf("❌ OPENROUTER MALFORMED RESPONSE: %v", err)
		transaction.SetTag("success", "false")
		return nil, fmt.Errorf("%w: malformed response body", ErrUpstream)
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
	log.Printf("✅ OPENROUTER GENERATION COMPLETED in %v (%d chars)", time.Since(startTime), len(code))

	transaction.SetTag("success", "true")
	return &Response{
		Code: code,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// truncateString truncates a string to a maximum length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

package llm

import (
	"context"
	"fmt"
	"strings"
)

// ProviderFactory creates providers based on model name or explicit provider choice
type ProviderFactory struct {
	openRouterAPIKey string
	openaiAPIKey     string
	geminiAPIKey     string
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(openRouterAPIKey, openaiAPIKey, geminiAPIKey string) *ProviderFactory {
	return &ProviderFactory{
		openRouterAPIKey: openRouterAPIKey,
		openaiAPIKey:     openaiAPIKey,
		geminiAPIKey:     geminiAPIKey,
	}
}

// GetProvider returns the appropriate provider for the given model/provider name
func (f *ProviderFactory) GetProvider(ctx context.Context, model, providerName string) (Provider, error) {
	// If provider is explicitly specified, use that
	if providerName != "" {
		return f.getProviderByName(ctx, providerName)
	}

	// Otherwise, infer from model name
	return f.getProviderByModel(ctx, model)
}

// getProviderByName creates a provider by explicit name
func (f *ProviderFactory) getProviderByName(ctx context.Context, providerName string) (Provider, error) {
	switch strings.ToLower(providerName) {
	case providerNameOpenRouter:
		if f.openRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter API key not configured")
		}
		return NewOpenRouterProvider(f.openRouterAPIKey), nil

	case providerNameOpenAI:
		if f.openaiAPIKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		return NewOpenAIProvider(f.openaiAPIKey), nil

	case providerNameGemini:
		if f.geminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key not configured")
		}
		return NewGeminiProvider(ctx, f.geminiAPIKey)

	default:
		return nil, fmt.Errorf("unknown provider: %s (allowed: openrouter, openai, gemini)", providerName)
	}
}

// getProviderByModel infers provider from model name
func (f *ProviderFactory) getProviderByModel(ctx context.Context, model string) (Provider, error) {
	modelLower := strings.ToLower(model)

	// GPT models use OpenAI directly
	if strings.HasPrefix(modelLower, "gpt-") {
		if f.openaiAPIKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		return NewOpenAIProvider(f.openaiAPIKey), nil
	}

	// Gemini models use Google's API directly
	if strings.HasPrefix(modelLower, "gemini-") {
		if f.geminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key not configured")
		}
		return NewGeminiProvider(ctx, f.geminiAPIKey)
	}

	// Everything else (vendor-prefixed model slugs like "z-ai/glm-4.7") is
	// routed through OpenRouter, the default relay.
	if f.openRouterAPIKey == "" {
		return nil, fmt.Errorf("openrouter API key not configured (default provider)")
	}
	return NewOpenRouterProvider(f.openRouterAPIKey), nil
}

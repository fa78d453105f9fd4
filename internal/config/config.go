package config

import "os"

// Config holds the application configuration
// Note: This is a stateless configuration - nothing is persisted and there is
// no auth layer; the service keeps one in-memory session per process.
type Config struct {
	// Environment
	Environment string
	Port        string

	// LLM API Keys
	OpenRouterAPIKey string // OpenRouter API key (default relay)
	OpenAIAPIKey     string // OpenAI API key for GPT models
	GeminiAPIKey     string // Google Gemini API key

	// Generation
	Model    string // Chat-completion model identifier
	Provider string // Optional provider override (openrouter, openai, gemini)

	// Audio engine
	StrudelCommand string // Command line for the headless Strudel REPL

	// Observability
	SentryDSN         string // Sentry DSN for error tracking
	LangfusePublicKey string // Langfuse public key
	LangfuseSecretKey string // Langfuse secret key
	LangfuseHost      string // Langfuse host URL (cloud or self-hosted)
	LangfuseEnabled   bool   // Feature flag for Langfuse
}

func Load() *Config {
	return &Config{
		Environment:       getEnv("ENVIRONMENT", "development"),
		Port:              getEnv("PORT", "8080"),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		Model:             getEnv("GENERATION_MODEL", "z-ai/glm-4.7"),
		Provider:          getEnv("GENERATION_PROVIDER", ""),
		StrudelCommand:    getEnv("STRUDEL_COMMAND", ""),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		LangfusePublicKey: getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey: getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:      getEnv("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		LangfuseEnabled:   getEnv("LANGFUSE_ENABLED", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

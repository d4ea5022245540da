// Package llm wraps the pluggable text-completion backend. Everything the
// backend returns is untrusted text; callers parse and scan it themselves.
package llm

import (
	"context"
	"errors"
	"fmt"

	"bridge-and-breach/server/internal/config"
)

// ErrUnavailable reports that the completion backend could not produce text.
// Callers are expected to recover with their deterministic fallback.
var ErrUnavailable = errors.New("llm: completion backend unavailable")

// Message is one prior exchange supplied as conversation history.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Client is the completion backend collaborator interface.
type Client interface {
	// Generate sends the system prompt, prior history, and the new utterance
	// to the backend and returns its raw text output.
	Generate(ctx context.Context, systemPrompt string, history []Message, utterance string) (string, error)
}

// New constructs the client named by cfg.Provider. Provider "none" returns
// nil; the classifier runs on its keyword table alone in that case.
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "gemini":
		return NewGemini(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

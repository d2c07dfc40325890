package ai

import "context"

type Message struct {
	Role    string
	Content string
}

// Completion carries the generated text plus the authoritative usage counts
// reported by the provider. Billing is based on these, never on estimates.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

type Provider interface {
	Chat(ctx context.Context, model string, messages []Message) (*Completion, error)
}

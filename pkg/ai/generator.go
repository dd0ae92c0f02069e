package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt.
// Generation providers (OpenAI-compatible endpoints, hosted APIs) implement
// this interface; callers treat failure as a branch, not an exception.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

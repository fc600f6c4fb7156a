package repository

import "context"

// TextGenerator is the AI collaborator. Any error makes callers use their deterministic fallback.
type TextGenerator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

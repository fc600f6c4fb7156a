package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/repository"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultMaxTokens      = 2048
)

// Options select and tune the text generation provider.
type Options struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New returns the TextGenerator for opts.Provider. The "none" provider always
// fails with repository.ErrAIUnavailable so callers use their fallbacks.
func New(ctx context.Context, opts Options, logger *zap.Logger) (repository.TextGenerator, error) {
	logger = logger.Named("llm")
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}

	var gen repository.TextGenerator
	switch opts.Provider {
	case ProviderGemini:
		if opts.Model == "" {
			opts.Model = defaultGeminiModel
		}
		g, err := newGemini(ctx, opts)
		if err != nil {
			return nil, err
		}
		gen = g
	case ProviderAnthropic:
		if opts.Model == "" {
			opts.Model = defaultAnthropicModel
		}
		gen = newAnthropic(opts)
	case ProviderNone, "":
		logger.Info("ai provider disabled, fallback generation only")
		return disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", opts.Provider)
	}

	logger.Info("ai provider configured", zap.String("provider", opts.Provider), zap.String("model", opts.Model))
	if opts.Timeout > 0 {
		gen = withTimeout{next: gen, timeout: opts.Timeout}
	}
	return gen, nil
}

type disabled struct{}

func (disabled) Complete(context.Context, string, string) (string, error) {
	return "", repository.ErrAIUnavailable
}

// withTimeout bounds every completion call.
type withTimeout struct {
	next    repository.TextGenerator
	timeout time.Duration
}

func (w withTimeout) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.next.Complete(ctx, system, user)
}

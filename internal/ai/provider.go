// Package ai wraps hosted vision models that tag photos with labels.
package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/photo-grouper/internal/config"
)

// LabelProvider detects content labels for one image.
type LabelProvider interface {
	Name() string
	DetectLabels(ctx context.Context, imageData []byte) (*LabelResult, error)
	GetUsage() Usage
	ResetUsage()
}

// Label is a content tag with its confidence (0-1).
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// LabelResult is the parsed model answer.
type LabelResult struct {
	Labels            []Label `json:"labels"`
	PrimaryCategory   string  `json:"primary_category"`
	PrimaryConfidence float64 `json:"primary_confidence"`
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// RequestPricing holds input/output prices per 1M tokens
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageTracker is shared by the providers; calls may come from several
// goroutines when the server and the scheduler run batches side by side.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

func (u *usageTracker) track(inputTokens, outputTokens int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage.InputTokens += int(inputTokens)
	u.usage.OutputTokens += int(outputTokens)
	u.usage.TotalCost += float64(inputTokens) / 1_000_000 * u.pricing.Input
	u.usage.TotalCost += float64(outputTokens) / 1_000_000 * u.pricing.Output
}

func (u *usageTracker) GetUsage() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usage
}

func (u *usageTracker) ResetUsage() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage = Usage{}
}

// NewFromConfig builds the provider selected by LABELS_PROVIDER. It returns
// nil without error for "none".
func NewFromConfig(ctx context.Context, cfg *config.Config) (LabelProvider, error) {
	switch cfg.Labels.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, fmt.Errorf("OPENAI_TOKEN is required for the openai label provider")
		}
		p := cfg.GetModelPricing(openAIModel)
		return NewOpenAIProvider(cfg.OpenAI.Token, RequestPricing(p.Standard)), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini label provider")
		}
		p := cfg.GetModelPricing(geminiModel)
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey, RequestPricing(p.Standard))
	default:
		return nil, fmt.Errorf("unknown label provider %q (use openai, gemini or none)", cfg.Labels.Provider)
	}
}

// Package translator provides the batch translation client contract used
// by the config-grammar rewriter and the coordinator's style-hint
// derivation, along with a concrete HTTP implementation, a degraded-mode
// passthrough implementation, and the provider-selection factory that
// picks between them. Grounded on the teacher's internal/core/ai package.
package translator

import (
	"context"
	"fmt"
)

// Client is the capability every translation backend must satisfy. It is
// also the structural shape internal/grammar.Translator expects, so any
// Client can be passed to grammar.RewriteFile without either package
// importing the other.
type Client interface {
	// Translate sends an ordered batch of source strings for translation
	// into targetLanguage, optionally guided by styleHint, and returns a
	// slice of the same length and order as batch.
	Translate(ctx context.Context, batch []string, styleHint, targetLanguage string) ([]string, error)

	// AnalyzeStyle inspects a bounded sample of source text and returns a
	// short natural-language style hint (spec.md §4.9 step 6b), grounded
	// on original_source/core/agents/translate_style_analysis.py.
	AnalyzeStyle(ctx context.Context, samples []string) (string, error)
}

// Error is the structured error every backend returns, mirroring the
// teacher's ai.ProviderError.
type Error struct {
	Provider string
	Code     string
	Message  string
	Retry    bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
}

// Retryable satisfies the retryable interface withRetry checks for.
func (e *Error) Retryable() bool { return e.Retry }

// IsRateLimitError reports whether err is a rate-limit response.
func IsRateLimitError(err error) bool {
	pe, ok := err.(*Error)
	return ok && pe.Code == "rate_limit"
}

// IsAuthError reports whether err is an authentication/authorization
// failure, which withRetry never retries.
func IsAuthError(err error) bool {
	pe, ok := err.(*Error)
	return ok && (pe.Code == "invalid_key" || pe.Code == "auth_error")
}

// Config is the subset of the process configuration the factory needs to
// build a Client (spec.md SPEC_FULL.md §10.1's translator fields).
type Config struct {
	Provider    string // "openai"-compatible HTTP endpoint name, or "" for passthrough
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
}

// NewClient selects a Client implementation the way the teacher's
// ai.ProviderFactory.CreateProvider switches between adapters: an empty
// API key always degrades to the passthrough identity client regardless
// of the configured provider, per spec.md's degraded-mode requirement.
func NewClient(cfg Config) Client {
	if cfg.APIKey == "" {
		return NewPassthroughClient()
	}

	switch cfg.Provider {
	case "", "openai", "openai-compatible":
		return NewHTTPClient(cfg)
	default:
		return NewHTTPClient(cfg)
	}
}

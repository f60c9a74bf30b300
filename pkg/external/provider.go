package external

import (
	"fmt"
	"strings"

	"github.com/pharmguard-mcp-server/internal/domain"
)

// Explanation provider names accepted in configuration.
const (
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// NewTextGenerator builds the configured collaborator. It returns a nil
// generator and the placeholder message to report when the provider is
// disabled or has no credentials.
func NewTextGenerator(config domain.ExplanationConfig) (domain.TextGenerator, string, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "", ProviderGroq:
		if config.Groq.APIKey == "" {
			return nil, "LLM Analysis unavailable: GROQ_API_KEY not set.", nil
		}
		return NewGroqClient(config.Groq), "", nil
	case ProviderAnthropic:
		if config.Anthropic.APIKey == "" {
			return nil, "LLM Analysis unavailable: ANTHROPIC_API_KEY not set.", nil
		}
		return NewAnthropicClient(config.Anthropic), "", nil
	case ProviderNone:
		return nil, "LLM Analysis unavailable: explanation provider disabled.", nil
	default:
		return nil, "", fmt.Errorf("unknown explanation provider %q", config.Provider)
	}
}

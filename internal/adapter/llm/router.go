package llm

import (
	"fmt"
	"strings"

	"boardpilot/internal/domain"
)

// TierRouter maps model tiers to concrete LLM providers. The engine asks
// for "fast" or "strong"; the mapping decides which provider and model
// serves each tier.
type TierRouter struct {
	mapping  map[string]string // tier → "provider" or "provider/model"
	registry *Registry
	fallback domain.LLMProvider
}

// NewTierRouter creates a router from a tier mapping and a provider registry.
// The fallback is used when a tier is unmapped or maps to an empty entry.
func NewTierRouter(mapping map[string]string, registry *Registry, fallback domain.LLMProvider) *TierRouter {
	return &TierRouter{
		mapping:  mapping,
		registry: registry,
		fallback: fallback,
	}
}

// Route resolves a tier to an LLM provider and an optional model override.
// An empty model means the provider's configured default.
func (r *TierRouter) Route(tier domain.ModelTier) (domain.LLMProvider, string, error) {
	entry, ok := r.mapping[string(tier)]
	if !ok || entry == "" {
		if r.fallback != nil {
			return r.fallback, "", nil
		}
		return nil, "", fmt.Errorf("tier %q unmapped and no default provider", tier)
	}

	providerName, model := entry, ""
	if i := strings.Index(entry, "/"); i >= 0 {
		providerName, model = entry[:i], entry[i+1:]
	}

	provider, err := r.registry.Get(providerName)
	if err != nil {
		return nil, "", fmt.Errorf("tier %q: provider %q: %w", tier, providerName, err)
	}
	return provider, model, nil
}

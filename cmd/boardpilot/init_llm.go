package main

import (
	"fmt"
	"log/slog"

	"boardpilot/internal/adapter/llm"
	"boardpilot/internal/domain"
	"boardpilot/internal/infra/config"
)

// initLLM builds the provider registry and the tier router the engine uses
// to pick a model per call weight.
func initLLM(cfg *config.Config, log *slog.Logger) (*llm.TierRouter, error) {
	registry := llm.NewRegistry()

	cbCfg := cfg.LLM.CircuitBreaker
	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(pc, log)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}

		// Wrap with circuit breaker if enabled (per-provider).
		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, llm.CircuitBreakerConfig{
				MaxFailures: cbCfg.MaxFailures,
				Timeout:     cbCfg.Timeout,
				Interval:    cbCfg.Interval,
			}, log)
		}

		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
	}

	var fallback domain.LLMProvider
	if cfg.LLM.DefaultProvider != "" {
		var err error
		fallback, err = registry.Get(cfg.LLM.DefaultProvider)
		if err != nil {
			return nil, fmt.Errorf("default provider: %w", err)
		}
	}

	if cfg.LLM.Failover.Enabled && len(cfg.LLM.Failover.Fallbacks) > 0 && fallback != nil {
		var chain []domain.LLMProvider
		for _, name := range cfg.LLM.Failover.Fallbacks {
			fb, err := registry.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover provider %s: %w", name, err)
			}
			chain = append(chain, fb)
		}
		fallback = llm.NewFailoverProvider(fallback, chain, log)
		log.Info("model failover enabled", "fallbacks", cfg.LLM.Failover.Fallbacks)
	}

	return llm.NewTierRouter(cfg.LLM.Tiers, registry, fallback), nil
}

func createLLMProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "openai", "":
		return llm.NewOpenAIProvider(pc, log), nil
	case "anthropic":
		return llm.NewAnthropicProvider(pc, log), nil
	case "bedrock":
		return createBedrockProvider(pc, log)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", pc.Type)
	}
}

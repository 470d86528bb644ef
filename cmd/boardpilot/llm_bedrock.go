//go:build bedrock

package main

import (
	"log/slog"

	"boardpilot/internal/adapter/llm"
	"boardpilot/internal/domain"
	"boardpilot/internal/infra/config"
)

func createBedrockProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	return llm.NewBedrockProvider(pc, log)
}

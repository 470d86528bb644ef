package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"boardpilot/internal/infra/config"
)

// runSetupConfig encrypts every plaintext provider API key and gateway token
// in the config file in place, using BOARDPILOT_CONFIG_KEY as the passphrase.
// Already-encrypted values are left alone, so rerunning is safe.
func runSetupConfig() error {
	passphrase := os.Getenv("BOARDPILOT_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("BOARDPILOT_CONFIG_KEY must be set")
	}

	path := configPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	cfg := config.Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	encrypted := 0
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if key == "" || strings.HasPrefix(key, "enc:") {
			continue
		}
		enc, err := config.EncryptValue(key, passphrase)
		if err != nil {
			return fmt.Errorf("encrypt api key for %s: %w", cfg.LLM.Providers[i].Name, err)
		}
		cfg.LLM.Providers[i].APIKey = "enc:" + enc
		encrypted++
	}
	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if tok == "" || strings.HasPrefix(tok, "enc:") {
			continue
		}
		enc, err := config.EncryptValue(tok, passphrase)
		if err != nil {
			return fmt.Errorf("encrypt gateway token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
		}
		cfg.Gateway.Auth.Tokens[i].Token = "enc:" + enc
		encrypted++
	}

	if encrypted == 0 {
		fmt.Println("nothing to encrypt")
		return nil
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("encrypted %d secret(s) in %s\n", encrypted, path)
	return nil
}

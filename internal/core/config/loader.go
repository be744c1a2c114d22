package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${ENV} references and applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.HeartbeatInterval == 0 {
		c.Server.HeartbeatInterval = 15 * time.Second
	}

	if c.Chain.AvgBlockTime == 0 {
		c.Chain.AvgBlockTime = 2 * time.Second
	}
	if c.Chain.PollInterval == 0 {
		c.Chain.PollInterval = 4 * time.Second
	}
	if c.Chain.BackfillBlocks == 0 {
		c.Chain.BackfillBlocks = 1000
	}
	if c.Chain.HeadCacheTTL == 0 {
		c.Chain.HeadCacheTTL = time.Second
	}
	if c.Chain.MaxBlockRange == 0 {
		c.Chain.MaxBlockRange = 1000
	}
	if c.Chain.Reconnect.InitialDelay == 0 {
		c.Chain.Reconnect.InitialDelay = time.Second
	}
	if c.Chain.Reconnect.MaxDelay == 0 {
		c.Chain.Reconnect.MaxDelay = time.Minute
	}
	if c.Chain.Reconnect.MaxAttempts == 0 {
		c.Chain.Reconnect.MaxAttempts = 10
	}
	if c.Chain.Reconnect.StableAfter == 0 {
		c.Chain.Reconnect.StableAfter = 30 * time.Second
	}
	for i := range c.Chain.Providers {
		if c.Chain.Providers[i].Timeout == 0 {
			c.Chain.Providers[i].Timeout = 10 * time.Second
		}
	}

	if c.Feed.MaxEvents == 0 {
		c.Feed.MaxEvents = 10
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = 100
	}
	if c.Feed.ServerURL == "" {
		c.Feed.ServerURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = 30 * time.Second
	}

	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	if len(c.LLM.Models) == 0 {
		c.LLM.Models = []string{"gemini-2.0-flash", "gemini-1.5-flash"}
	}
}

// Validate checks settings required to talk to the chain.
func (c *AppConfig) Validate() error {
	if len(c.Chain.Providers) == 0 {
		return fmt.Errorf("chain.providers: at least one provider is required")
	}
	for i, p := range c.Chain.Providers {
		if p.URL == "" {
			return fmt.Errorf("chain.providers[%d]: url is required", i)
		}
	}
	if !isHexAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("chain.contract_address: invalid address %q", c.Chain.ContractAddress)
	}
	return nil
}

func isHexAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	s = s[2:]
	if len(s) != 40 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

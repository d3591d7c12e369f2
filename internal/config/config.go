package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quorumgate/quorumgate/internal/principal"
)

type Config struct {
	Governance GovernanceConfig `mapstructure:"governance"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Node       NodeConfig       `mapstructure:"node"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
}

type GovernanceConfig struct {
	Principals []string `mapstructure:"principals"`
	RequestTTL string   `mapstructure:"request_ttl"`
}

type LedgerConfig struct {
	Owner string `mapstructure:"owner"`
}

type NodeConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type AlertsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlackWebhook string `mapstructure:"slack_webhook"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	unique := make(map[string]bool)
	for _, p := range c.Governance.Principals {
		if p == "" {
			return fmt.Errorf("governance.principals contains an empty id")
		}
		unique[p] = true
	}
	if len(unique) < principal.MinVotingAccounts {
		return fmt.Errorf("governance.principals needs at least %d unique ids, got %d",
			principal.MinVotingAccounts, len(unique))
	}

	if c.Governance.RequestTTL != "" {
		d, err := time.ParseDuration(c.Governance.RequestTTL)
		if err != nil {
			return fmt.Errorf("invalid governance.request_ttl: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("governance.request_ttl must be positive")
		}
	}

	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}

	// Set default log level if not specified
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (valid options: trace, debug, info, warn, error)", c.Logging.Level)
	}

	if c.Alerts.Enabled && c.Alerts.SlackWebhook == "" {
		return fmt.Errorf("alerts.slack_webhook is required when alerts are enabled")
	}

	return nil
}

// PrincipalIDs returns the configured initial voting principals.
func (g *GovernanceConfig) PrincipalIDs() []principal.ID {
	out := make([]principal.ID, 0, len(g.Principals))
	for _, p := range g.Principals {
		out = append(out, principal.ID(p))
	}
	return out
}

// TTL returns the configured request validity window, or zero when the
// engine default should apply. Call after Validate.
func (g *GovernanceConfig) TTL() time.Duration {
	if g.RequestTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(g.RequestTTL)
	if err != nil {
		return 0
	}
	return d
}

package source

import (
	"fmt"

	"cardwatch/internal/config"
)

// FromAppConfig converts the application config to source config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	t := Type(appConfig.Source)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid source type in config: %s", appConfig.Source)
	}

	return Config{
		Type:         t,
		InputPath:    appConfig.InputPath,
		LedgerDBPath: appConfig.LedgerDBPath,
	}, nil
}

// Validate validates the source configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid source type: %s", c.Type)
	}

	switch c.Type {
	case CSV:
		if c.InputPath == "" {
			return fmt.Errorf("input path is required for csv source")
		}
	case Ledger:
		if c.LedgerDBPath == "" {
			return fmt.Errorf("ledger database path is required for ledger source")
		}
	}

	return nil
}

// Types returns all valid source types
func Types() []Type {
	return []Type{CSV, Ledger}
}

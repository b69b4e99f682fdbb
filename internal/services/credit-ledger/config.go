// internal/services/credit-ledger/config.go
package creditledger

import "clarify-api/internal/common/config"

type Config struct {
	// Mode is config.LedgerModeAtomic or config.LedgerModeUnconditional.
	Mode string
}

func LoadConfig(cfg config.LedgerConfig) *Config {
	mode := cfg.Mode
	if mode == "" {
		mode = config.LedgerModeAtomic
	}
	return &Config{Mode: mode}
}

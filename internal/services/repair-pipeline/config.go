// internal/services/repair-pipeline/config.go
package repairpipeline

type Config struct {
	// HeuristicOnly disables Tier 2; inputs Tier 1 cannot fix fail with ErrRepairFailed.
	HeuristicOnly bool
}

func LoadConfig() *Config {
	return &Config{}
}

// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Completion CompletionConfig `mapstructure:"completion"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // milliseconds
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes" validate:"gt=0"`
}

// LimitsConfig bounds the input length (in characters) per path.
type LimitsConfig struct {
	DemoMaxChars    int `mapstructure:"demo_max_chars" validate:"gt=0"`
	MeteredMaxChars int `mapstructure:"metered_max_chars" validate:"gt=0"`
}

// Identity backends.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// IdentityConfig selects and configures the account store.
type IdentityConfig struct {
	Backend  string         `mapstructure:"backend" validate:"oneof=supabase postgres redis memory"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Memory   MemoryConfig   `mapstructure:"memory"`
}

type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
	Table      string `mapstructure:"table"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MemoryConfig seeds the in-process store, mostly for local runs.
type MemoryConfig struct {
	Accounts []MemoryAccount `mapstructure:"accounts"`
}

type MemoryAccount struct {
	ID      string `mapstructure:"id"`
	APIKey  string `mapstructure:"api_key"`
	Credits int    `mapstructure:"credits"`
}

// Completion providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// CompletionConfig configures the Tier 2 text-completion service.
type CompletionConfig struct {
	Provider string `mapstructure:"provider" validate:"oneof=openai gemini"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model" validate:"required"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds, 0 disables
}

// Ledger modes.
const (
	LedgerModeAtomic        = "atomic"
	LedgerModeUnconditional = "unconditional"
)

type LedgerConfig struct {
	Mode string `mapstructure:"mode" validate:"oneof=atomic unconditional"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

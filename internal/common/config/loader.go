// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml on top,
// then applies environment overrides, defaults and validation.
func Load() (*Config, error) {
	v, err := readDefault()
	if err != nil {
		return nil, err
	}
	return finish(v, Validate)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	v, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return finish(v, Validate)
}

// LoadCompletion reads the same sources as Load, or path when it is set, but
// only validates the completion section. Tools that never touch the identity
// store use it.
func LoadCompletion(path string) (*CompletionConfig, error) {
	var (
		v   *viper.Viper
		err error
	)
	if path != "" {
		v, err = readFile(path)
	} else {
		v, err = readDefault()
	}
	if err != nil {
		return nil, err
	}

	cfg, err := finish(v, func(c *Config) error { return ValidateCompletion(&c.Completion) })
	if err != nil {
		return nil, err
	}
	return &cfg.Completion, nil
}

func readDefault() (*viper.Viper, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return v, nil
}

func readFile(path string) (*viper.Viper, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return v, nil
}

func finish(v *viper.Viper, check func(*Config) error) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := check(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			// an unset variable expands to "" so the env fallbacks still apply
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills unset values from the variable names the service has always used.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Completion.APIKey == "" {
		switch cfg.Completion.Provider {
		case ProviderGemini:
			cfg.Completion.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			cfg.Completion.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if cfg.Identity.Supabase.URL == "" {
		cfg.Identity.Supabase.URL = os.Getenv("SUPABASE_URL")
	}
	if cfg.Identity.Supabase.ServiceKey == "" {
		cfg.Identity.Supabase.ServiceKey = os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	}

	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = ParseOrigins(os.Getenv("ALLOWED_ORIGINS"))
	}

	if cfg.Server.Port == 0 {
		if val := os.Getenv("PORT"); val != "" {
			if port, err := strconv.Atoi(val); err == nil {
				cfg.Server.Port = port
			}
		}
	}

	if cfg.Identity.Postgres.User == "" {
		cfg.Identity.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Identity.Postgres.Password == "" {
		cfg.Identity.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// ParseOrigins splits a comma separated origin list. An empty list means any origin.
func ParseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "clarify-api"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 4 << 20
	}

	if cfg.Limits.DemoMaxChars == 0 {
		cfg.Limits.DemoMaxChars = 5000
	}
	if cfg.Limits.MeteredMaxChars == 0 {
		cfg.Limits.MeteredMaxChars = 50000
	}

	if cfg.Identity.Backend == "" {
		cfg.Identity.Backend = BackendSupabase
	}
	if cfg.Identity.Supabase.Table == "" {
		cfg.Identity.Supabase.Table = "profiles"
	}
	if cfg.Identity.Supabase.Timeout == 0 {
		cfg.Identity.Supabase.Timeout = 10000
	}
	if cfg.Identity.Postgres.Port == 0 {
		cfg.Identity.Postgres.Port = 5432
	}
	if cfg.Identity.Postgres.MaxConnections == 0 {
		cfg.Identity.Postgres.MaxConnections = 25
	}
	if cfg.Identity.Postgres.MaxIdle == 0 {
		cfg.Identity.Postgres.MaxIdle = 5
	}
	if cfg.Identity.Postgres.SSLMode == "" {
		cfg.Identity.Postgres.SSLMode = "disable"
	}

	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = ProviderOpenAI
	}
	if cfg.Completion.Model == "" {
		if cfg.Completion.Provider == ProviderGemini {
			cfg.Completion.Model = "gemini-2.5-flash"
		} else {
			cfg.Completion.Model = "gpt-3.5-turbo"
		}
	}
	if cfg.Completion.BaseURL == "" && cfg.Completion.Provider == ProviderOpenAI {
		cfg.Completion.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = 60000
	}

	if cfg.Ledger.Mode == "" {
		cfg.Ledger.Mode = LedgerModeAtomic
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

var validate = validator.New()

// Validate checks struct tags first, then the settings each selected backend needs.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	switch cfg.Identity.Backend {
	case BackendSupabase:
		if cfg.Identity.Supabase.URL == "" || cfg.Identity.Supabase.ServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set")
		}
	case BackendPostgres:
		if cfg.Identity.Postgres.Host == "" {
			return fmt.Errorf("identity.postgres.host is required")
		}
		if cfg.Identity.Postgres.Database == "" {
			return fmt.Errorf("identity.postgres.database is required")
		}
		if cfg.Identity.Postgres.User == "" {
			return fmt.Errorf("identity.postgres.user is required")
		}
	case BackendRedis:
		if cfg.Identity.Redis.Address == "" {
			return fmt.Errorf("identity.redis.address is required")
		}
	}

	if err := requireAPIKey(&cfg.Completion); err != nil {
		return err
	}

	if cfg.Limits.DemoMaxChars > cfg.Limits.MeteredMaxChars {
		return fmt.Errorf("limits.demo_max_chars must not exceed limits.metered_max_chars")
	}

	return nil
}

// ValidateCompletion checks the completion section on its own.
func ValidateCompletion(cfg *CompletionConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	return requireAPIKey(cfg)
}

func requireAPIKey(cfg *CompletionConfig) error {
	if cfg.APIKey != "" {
		return nil
	}
	if cfg.Provider == ProviderGemini {
		return fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}
	return fmt.Errorf("OPENAI_API_KEY environment variable is not set")
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

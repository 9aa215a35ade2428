package core

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/1sec-project/guildshield/internal/policy"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the entire guildshield configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Bus       BusConfig               `yaml:"bus"`
	Store     StoreConfig             `yaml:"store"`
	Platform  PlatformConfig          `yaml:"platform"`
	Defaults  DefaultsConfig          `yaml:"defaults"`
	Responses ResponsesConfig         `yaml:"responses"`
	Modules   map[string]ModuleConfig `yaml:"modules"`
	Logging   LoggingConfig           `yaml:"logging"`
}

// ServerConfig holds operator API settings.
type ServerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Host      string   `yaml:"host" validate:"required_if=Enabled true"`
	Port      int      `yaml:"port" validate:"gte=0,lte=65535"`
	APIKeys   []string `yaml:"api_keys" validate:"dive,min=16"`
	RateLimit float64  `yaml:"rate_limit" validate:"gte=0"` // requests per second per client IP
	Burst     int      `yaml:"burst" validate:"gte=0"`
}

// BusConfig holds NATS event bus settings.
type BusConfig struct {
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	DataDir  string `yaml:"data_dir" validate:"required_if=Embedded true"`
	Port     int    `yaml:"port" validate:"gte=-1,lte=65535"`
}

// StoreConfig selects and configures the policy store backend.
type StoreConfig struct {
	Backend string             `yaml:"backend" validate:"oneof=file redis nats"`
	Dir     string             `yaml:"dir" validate:"required_if=Backend file"`
	Redis   policy.RedisConfig `yaml:"redis"`
	Bucket  string             `yaml:"bucket"`
}

// PlatformConfig controls the adapter client.
type PlatformConfig struct {
	SubjectPrefix  string        `yaml:"subject_prefix"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
}

// DefaultsConfig seeds the policy of a guild seen for the first time.
type DefaultsConfig struct {
	ActionDelaySeconds int      `yaml:"action_delay_seconds" validate:"gte=5,lte=3600"`
	ProtectedRoles     []string `yaml:"protected_roles" validate:"dive,required"`
}

// ResponsesConfig bounds the in-memory response log.
type ResponsesConfig struct {
	MaxRecords int `yaml:"max_records" validate:"gte=0"`
}

// ModuleConfig holds per-module configuration.
type ModuleConfig struct {
	Enabled  bool                   `yaml:"enabled"`
	Settings map[string]interface{} `yaml:"settings"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// DefaultConfig returns a Config that runs out of the box with an embedded
// NATS server and file-backed policies.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:   true,
			Host:      "127.0.0.1",
			Port:      1790,
			RateLimit: 20,
			Burst:     40,
		},
		Bus: BusConfig{
			URL:      "nats://127.0.0.1:4222",
			Embedded: true,
			DataDir:  "./data/nats",
			Port:     4222,
		},
		Store: StoreConfig{
			Backend: "file",
			Dir:     "./data/guilds",
			Bucket:  policy.DefaultKVBucket,
		},
		Platform: PlatformConfig{
			SubjectPrefix:  "guild.actions",
			RequestTimeout: 10 * time.Second,
		},
		Defaults: DefaultsConfig{
			ActionDelaySeconds: policy.DefaultActionDelay,
			ProtectedRoles:     append([]string(nil), policy.DefaultProtectedRoles...),
		},
		Responses: ResponsesConfig{MaxRecords: 5000},
		Modules: map[string]ModuleConfig{
			"webhook_guard":      {Enabled: true, Settings: map[string]interface{}{}},
			"blocklist_enforcer": {Enabled: true, Settings: map[string]interface{}{}},
			"role_guard":         {Enabled: true, Settings: map[string]interface{}{}},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to defaults
// when the file does not exist, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if len(c.Server.APIKeys) == 0 {
		if key := os.Getenv("GUILDSHIELD_API_KEY"); key != "" {
			c.Server.APIKeys = []string{key}
		}
	}
	if pw := os.Getenv("GUILDSHIELD_REDIS_PASSWORD"); pw != "" {
		c.Store.Redis.Password = pw
	}
	if url := os.Getenv("GUILDSHIELD_NATS_URL"); url != "" {
		c.Bus.URL = url
		c.Bus.Embedded = false
	}
}

// SaveConfig writes the configuration to a YAML file.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

var validate = validator.New()

// Validate returns non-fatal warnings and fatal errors.
func (c *Config) Validate() (warnings []string, errs []string) {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if c.Store.Backend == "redis" && c.Store.Redis.Addr == "" {
		errs = append(errs, "Config.Store.Redis.Addr: required when store.backend is redis")
	}
	if !c.Bus.Embedded && c.Bus.URL == "" {
		errs = append(errs, "Config.Bus.URL: required when bus.embedded is false")
	}

	if c.Server.Enabled && !c.AuthEnabled() {
		warnings = append(warnings, "server.api_keys is empty: the operator API runs without authentication")
	}
	if c.Server.Enabled && c.Server.Host != "127.0.0.1" && c.Server.Host != "localhost" && c.Server.RateLimit == 0 {
		warnings = append(warnings, "server.rate_limit is 0 on a non-loopback host: rate limiting disabled")
	}
	if len(c.Defaults.ProtectedRoles) == 0 {
		warnings = append(warnings, "defaults.protected_roles is empty: new guilds start without role protection")
	}
	for name, mod := range c.Modules {
		if !mod.Enabled {
			warnings = append(warnings, "module "+name+" is disabled")
		}
	}
	return warnings, errs
}

// PolicyDefaults converts the defaults section for the policy store.
func (c *Config) PolicyDefaults() policy.Defaults {
	return policy.Defaults{
		ActionDelaySeconds: c.Defaults.ActionDelaySeconds,
		ProtectedRoles:     append([]string(nil), c.Defaults.ProtectedRoles...),
	}
}

// IsModuleEnabled checks if a module is enabled in the configuration.
func (c *Config) IsModuleEnabled(name string) bool {
	mod, ok := c.Modules[name]
	if !ok {
		return true
	}
	return mod.Enabled
}

// GetModuleSetting returns a specific setting value for a module.
func (c *Config) GetModuleSetting(module, key string, defaultVal interface{}) interface{} {
	mod, ok := c.Modules[module]
	if !ok || mod.Settings == nil {
		return defaultVal
	}
	if val, ok := mod.Settings[key]; ok {
		return val
	}
	return defaultVal
}

// LogLevel returns the normalized log level string.
func (c *Config) LogLevel() string {
	return strings.ToLower(c.Logging.Level)
}

// AuthEnabled returns true if API key authentication is configured.
func (c *Config) AuthEnabled() bool {
	return len(c.Server.APIKeys) > 0
}

// ValidateAPIKey checks the key against every configured key in constant time.
func (c *Config) ValidateAPIKey(key string) bool {
	ok := false
	for _, valid := range c.Server.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			ok = true
		}
	}
	return ok
}

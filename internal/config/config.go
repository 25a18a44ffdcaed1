package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	HomeAssistant HomeAssistantConfig `mapstructure:"home_assistant"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Delivery      DeliveryConfig      `mapstructure:"delivery"`
	Icons         IconsConfig         `mapstructure:"icons"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

type ServerConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// HomeAssistantConfig covers both the REST metadata source and the event session
type HomeAssistantConfig struct {
	URL              string `mapstructure:"url"`
	Token            string `mapstructure:"token"`
	PreferFiltered   bool   `mapstructure:"prefer_filtered"`
	SubscribeTimeout string `mapstructure:"subscribe_timeout"`
	RequestTimeout   string `mapstructure:"request_timeout"`
	PingInterval     string `mapstructure:"ping_interval"`
	ReconnectMin     string `mapstructure:"reconnect_min"`
	ReconnectMax     string `mapstructure:"reconnect_max"`
}

// NotificationsConfig controls rule evaluation extras
type NotificationsConfig struct {
	Brightness BrightnessConfig `mapstructure:"brightness"`
}

// BrightnessConfig gates the light brightness side-channel.
// MinPercent wins when greater than zero, otherwise MinDeltaSteps applies.
type BrightnessConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MinPercent    float64 `mapstructure:"min_percent"`
	MinDeltaSteps float64 `mapstructure:"min_delta_steps"`
}

// DeliveryConfig maps chat channel ids to shoutrrr service URLs
type DeliveryConfig struct {
	DefaultURL string            `mapstructure:"default_url"`
	Channels   map[string]string `mapstructure:"channels"`
	Timeout    string            `mapstructure:"timeout"`
}

type IconsConfig struct {
	PublicURL string `mapstructure:"public_url"`
	SourceURL string `mapstructure:"source_url"`
	Directory string `mapstructure:"directory"`
	Tint      string `mapstructure:"tint"`
}

type CacheConfig struct {
	RefreshSchedule string `mapstructure:"refresh_schedule"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

func setDefaults() {
	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.port", 8088)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "production")
	viper.SetDefault("server.allowed_origins", []string{"*"})

	viper.SetDefault("database.path", "./data/watched_entities.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 4)
	viper.SetDefault("database.auto_migrate", true)

	viper.SetDefault("home_assistant.prefer_filtered", true)
	viper.SetDefault("home_assistant.subscribe_timeout", "10s")
	viper.SetDefault("home_assistant.request_timeout", "30s")
	viper.SetDefault("home_assistant.ping_interval", "30s")
	viper.SetDefault("home_assistant.reconnect_min", "1s")
	viper.SetDefault("home_assistant.reconnect_max", "60s")

	viper.SetDefault("notifications.brightness.enabled", true)
	viper.SetDefault("notifications.brightness.min_percent", 5.0)
	viper.SetDefault("notifications.brightness.min_delta_steps", 13.0)

	viper.SetDefault("delivery.timeout", "15s")

	viper.SetDefault("icons.public_url", "https://ex1.us/mdi-pngs/")
	viper.SetDefault("icons.source_url", "")
	viper.SetDefault("icons.directory", "")
	viper.SetDefault("icons.tint", "")

	viper.SetDefault("cache.refresh_schedule", "@every 6h")

	viper.SetDefault("auth.enabled", false)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prefix", "watch_bridge")
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("home_assistant.url", "HOME_ASSISTANT_URL", "HA_URL")
	viper.BindEnv("home_assistant.token", "HOME_ASSISTANT_TOKEN", "HA_ACCESS_TOKEN")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	viper.BindEnv("delivery.default_url", "DELIVERY_URL")
	viper.BindEnv("icons.public_url", "MDI_PNG_URL")
	viper.BindEnv("icons.directory", "MDI_PNG_DIR")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration for completeness and correctness
func (c *Config) Validate() error {
	var errors []string

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errors = append(errors, "server.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		errors = append(errors, "database.path is required")
	}

	if c.HomeAssistant.URL == "" {
		errors = append(errors, "home_assistant.url is required")
	} else if !strings.HasPrefix(c.HomeAssistant.URL, "http://") && !strings.HasPrefix(c.HomeAssistant.URL, "https://") {
		errors = append(errors, "home_assistant.url must start with http:// or https://")
	}
	if c.HomeAssistant.Token == "" {
		errors = append(errors, "home_assistant.token is required")
	}

	durations := map[string]string{
		"home_assistant.subscribe_timeout": c.HomeAssistant.SubscribeTimeout,
		"home_assistant.request_timeout":   c.HomeAssistant.RequestTimeout,
		"home_assistant.ping_interval":     c.HomeAssistant.PingInterval,
		"home_assistant.reconnect_min":     c.HomeAssistant.ReconnectMin,
		"home_assistant.reconnect_max":     c.HomeAssistant.ReconnectMax,
		"delivery.timeout":                 c.Delivery.Timeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errors = append(errors, fmt.Sprintf("%s must be a valid duration: %v", key, err))
		}
	}

	if c.Notifications.Brightness.MinPercent < 0 || c.Notifications.Brightness.MinPercent > 100 {
		errors = append(errors, "notifications.brightness.min_percent must be between 0 and 100")
	}
	if c.Notifications.Brightness.MinDeltaSteps < 0 || c.Notifications.Brightness.MinDeltaSteps > 255 {
		errors = append(errors, "notifications.brightness.min_delta_steps must be between 0 and 255")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errors = append(errors, "auth.jwt_secret must be set when auth is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Duration parses a configured duration string, falling back to def when it is empty or invalid
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

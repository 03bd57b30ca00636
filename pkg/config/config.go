package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envUID           = "VOXHUB_UID"
	envServerMode    = "VOXHUB_SERVER_MODE"
	envIODrivers     = "VOXHUB_IO_DRIVERS"
	envIOAccessories = "VOXHUB_IO_ACCESSORIES"
	envIOListeners   = "VOXHUB_IO_LISTENERS"
	envDatabasePath  = "VOXHUB_DB_PATH"

	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

const defaultUID = "voxhub"

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	UID           string              `json:"uid"`
	ServerMode    bool                `json:"server_mode"`
	IODrivers     []string            `json:"io_drivers"`
	IOAccessories map[string][]string `json:"io_accessories,omitempty"`
	IOListeners   []string            `json:"io_listeners,omitempty"`
	IOQueue       IOQueueConfig       `json:"io_queue"`
	Channels      ChannelsConfig      `json:"channels"`
	Resolver      ResolverConfig      `json:"resolver"`
	Database      DatabaseConfig      `json:"database"`
	Hub           HubConfig           `json:"hub"`
	Accessories   AccessoriesConfig   `json:"accessories,omitempty"`
	Logging       LoggingConfig       `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// IOQueueConfig controls the deferred-output queue poller.
type IOQueueConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// ChannelsConfig stores per-driver channel settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Console  ConsoleConfig  `json:"console"`
	Web      WebConfig      `json:"web"`
}

// TelegramConfig configures the Telegram driver.
type TelegramConfig struct {
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
	// ActivatorName gates group-chat input: in groups the assistant only
	// reacts to messages mentioning this name.
	ActivatorName string `json:"activator_name"`
}

// ConsoleConfig configures the console test-harness driver.
type ConsoleConfig struct {
	// InputFile optionally seeds input lines consumed before stdin.
	InputFile string `json:"input_file,omitempty"`
}

// WebConfig configures the websocket driver bind settings.
type WebConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ResolverConfig selects and configures the fulfillment resolver backend.
type ResolverConfig struct {
	Provider string                 `json:"provider"`
	OpenAI   OpenAIResolverConfig   `json:"openai"`
	OpenCode OpenCodeResolverConfig `json:"opencode"`
}

// OpenAIResolverConfig configures the OpenAI resolver backend.
type OpenAIResolverConfig struct {
	BaseURL               string `json:"base_url"`
	APIKeyEnv             string `json:"api_key_env"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	Model                 string `json:"model"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// OpenCodeResolverConfig configures the OpenCode resolver backend.
type OpenCodeResolverConfig struct {
	BaseURL               string `json:"base_url"`
	Username              string `json:"username"`
	PasswordEnv           string `json:"password_env"`
	Model                 string `json:"model"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// DatabaseConfig locates the sqlite database backing sessions and the IO queue.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// HubConfig configures the hub status server bind settings.
type HubConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// AccessoriesConfig groups accessory-specific settings.
type AccessoriesConfig struct {
	Leds LedsConfig `json:"leds"`
}

// LedsConfig configures the LED indicator accessory sink.
type LedsConfig struct {
	SysfsPath string `json:"sysfs_path,omitempty"`
}

// Load resolves config.json, unmarshals it, and applies environment overrides.
func Load() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if strings.TrimSpace(cfg.UID) == "" {
		cfg.UID = defaultUID
	}

	return &cfg, nil
}

// DriversToLoad returns the ordered driver names to load.
//
// The environment override takes precedence over file config; order is
// preserved because it defines accessory dispatch order downstream.
func (c *Config) DriversToLoad() []string {
	if value := strings.TrimSpace(os.Getenv(envIODrivers)); value != "" {
		return parseCSV(value)
	}

	return c.IODrivers
}

// AccessoriesToLoadForDriver returns the ordered accessory names bound to one driver.
func (c *Config) AccessoriesToLoadForDriver(driver string) []string {
	if value := strings.TrimSpace(os.Getenv(envIOAccessories)); value != "" {
		return parseCSV(value)
	}

	return c.IOAccessories[driver]
}

// ListenersToLoad returns the ordered listener names to load.
func (c *Config) ListenersToLoad() []string {
	if value := strings.TrimSpace(os.Getenv(envIOListeners)); value != "" {
		return parseCSV(value)
	}

	return c.IOListeners
}

// applyEnvOverrides injects env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if uid := strings.TrimSpace(os.Getenv(envUID)); uid != "" {
		cfg.UID = uid
	}

	if mode := strings.TrimSpace(os.Getenv(envServerMode)); mode != "" {
		cfg.ServerMode = parseBool(mode)
	}

	if path := strings.TrimSpace(os.Getenv(envDatabasePath)); path != "" {
		cfg.Database.Path = path
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is VOXHUB_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("VOXHUB_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("VOXHUB_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}

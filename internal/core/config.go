package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
	"github.com/jo-hoe/imagecube/internal/backend/database"
	"github.com/jo-hoe/imagecube/internal/backend/providers"
	"gopkg.in/yaml.v3"
)

// CommandConfig represents a generic command configuration
type CommandConfig = commandstructure.CommandConfig

type Server struct {
	Port            int           `yaml:"port"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type Database struct {
	Type string `yaml:"type"`
	// redis URL for type redis, file path (or :memory:) for sqlite
	ConnectionString string `yaml:"connectionString"`
}

type Gallery struct {
	Key            string `yaml:"key"`
	MaxEntries     int    `yaml:"maxEntries"`
	ThumbnailWidth int    `yaml:"thumbnailWidth"`
	// Commands applied to every upload before the size budget is enforced
	Pipeline []CommandConfig `yaml:"pipeline"`
}

type Compression struct {
	MaxBytes       int `yaml:"maxBytes"`
	InitialQuality int `yaml:"initialQuality"`
	MinQuality     int `yaml:"minQuality"`
	QualityStep    int `yaml:"qualityStep"`
	MinDimension   int `yaml:"minDimension"`
}

type Providers struct {
	// ImageProvider is the default text-to-image backend: siliconflow or zhipu
	ImageProvider string                 `yaml:"imageProvider"`
	DeepSeek      providers.ClientConfig `yaml:"deepseek"`
	SiliconFlow   providers.ClientConfig `yaml:"siliconflow"`
	Zhipu         providers.ClientConfig `yaml:"zhipu"`
	RemoveBg      providers.ClientConfig `yaml:"removebg"`
	RetryDelay    time.Duration          `yaml:"retryDelay"`
	MaxImageCount int                    `yaml:"maxImageCount"`
}

type Logging struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

type Fonts struct {
	// TrueType/OpenType file for the text-behind tool; needed for CJK text
	TextBehind string `yaml:"textBehind"`
}

type ServiceConfig struct {
	Server      Server      `yaml:"server"`
	Database    Database    `yaml:"database"`
	Gallery     Gallery     `yaml:"gallery"`
	Compression Compression `yaml:"compression"`
	Providers   Providers   `yaml:"providers"`
	Logging     Logging     `yaml:"logging"`
	Fonts       Fonts       `yaml:"fonts"`
}

const (
	ImageProviderSiliconFlow = "siliconflow"
	ImageProviderZhipu       = "zhipu"
)

// DefaultConfig returns the configuration used for every omitted value
func DefaultConfig() *ServiceConfig {
	config := &ServiceConfig{}
	config.applyDefaults()
	return config
}

func (c *ServiceConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 20 << 20
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Type == "" {
		c.Database.Type = "redis"
	}
	if c.Database.ConnectionString == "" && c.Database.Type == "redis" {
		c.Database.ConnectionString = "redis://localhost:6379/0"
	}
	if c.Gallery.Key == "" {
		c.Gallery.Key = database.DefaultGalleryKey
	}
	if c.Gallery.MaxEntries == 0 {
		c.Gallery.MaxEntries = database.DefaultMaxEntries
	}
	if c.Gallery.ThumbnailWidth == 0 {
		c.Gallery.ThumbnailWidth = 320
	}
	if c.Compression.MaxBytes == 0 {
		c.Compression.MaxBytes = commands.DefaultMaxBytes
	}
	if c.Compression.InitialQuality == 0 {
		c.Compression.InitialQuality = 90
	}
	if c.Compression.MinQuality == 0 {
		c.Compression.MinQuality = 10
	}
	if c.Compression.QualityStep == 0 {
		c.Compression.QualityStep = 10
	}
	if c.Compression.MinDimension == 0 {
		c.Compression.MinDimension = 64
	}
	if c.Providers.ImageProvider == "" {
		c.Providers.ImageProvider = ImageProviderSiliconFlow
	}
	if c.Providers.RetryDelay == 0 {
		c.Providers.RetryDelay = time.Second
	}
	if c.Providers.MaxImageCount == 0 {
		c.Providers.MaxImageCount = 4
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// LoadConfig loads configuration from the specified YAML file, applies
// defaults and environment overrides, and validates the result.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}
	return &config, nil
}

// ApplyEnv overrides deploy-time values and secrets from the environment
func (c *ServiceConfig) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := strings.TrimSpace(getenv("REDIS_URL")); v != "" {
		if c.Database.Type == "" {
			c.Database.Type = "redis"
		}
		if c.Database.Type == "redis" {
			c.Database.ConnectionString = v
		}
	}
	if v := strings.TrimSpace(getenv("DEEPSEEK_API_KEY")); v != "" {
		c.Providers.DeepSeek.APIKey = v
	}
	if v := strings.TrimSpace(getenv("SILICONFLOW_API_KEY")); v != "" {
		c.Providers.SiliconFlow.APIKey = v
	}
	if v := strings.TrimSpace(getenv("ZHIPU_API_KEY")); v != "" {
		c.Providers.Zhipu.APIKey = v
	}
	if v := strings.TrimSpace(getenv("REMOVE_BG_API_KEY")); v != "" {
		c.Providers.RemoveBg.APIKey = v
	}
	return nil
}

// Validate checks the configuration after defaults were applied
func (c *ServiceConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.maxUploadBytes must not be negative")
	}
	switch c.Database.Type {
	case "redis", "sqlite":
	default:
		return fmt.Errorf("unsupported database.type %q (must be 'redis' or 'sqlite')", c.Database.Type)
	}
	if c.Gallery.MaxEntries < 1 {
		return fmt.Errorf("gallery.maxEntries must be positive, got %d", c.Gallery.MaxEntries)
	}
	if err := validateCommands(c.Gallery.Pipeline); err != nil {
		return fmt.Errorf("invalid gallery pipeline: %w", err)
	}
	if _, err := commands.NewCompressParamsFromMap(c.Compression.params()); err != nil {
		return fmt.Errorf("invalid compression settings: %w", err)
	}
	switch c.Providers.ImageProvider {
	case ImageProviderSiliconFlow, ImageProviderZhipu:
	default:
		return fmt.Errorf("unsupported providers.imageProvider %q", c.Providers.ImageProvider)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logging.level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported logging.format %q", c.Logging.Format)
	}
	return nil
}

func (c Compression) params() map[string]any {
	return map[string]any{
		"maxBytes":       c.MaxBytes,
		"initialQuality": c.InitialQuality,
		"minQuality":     c.MinQuality,
		"qualityStep":    c.QualityStep,
		"minDimension":   c.MinDimension,
	}
}

// validateCommands ensures all command configurations have required fields
func validateCommands(configs []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range configs {
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true

		if !commandstructure.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command %s at index %d", cmd.Name, i)
		}
	}

	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logger     LoggerConfig     `yaml:"logger"`
	Store      StoreConfig      `yaml:"store"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Providers  ProvidersConfig  `yaml:"providers"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	News       NewsConfig       `yaml:"news"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"required|uint|min:1|max:65535"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error"`
}

type StoreConfig struct {
	Path     string `yaml:"path" validate:"required"`
	AudioDir string `yaml:"audio_dir" validate:"required"`
}

type ScheduleConfig struct {
	// CheckSpec is the cron expression (with seconds) for the periodic
	// schedule check; TriggerWindow bounds how far past a slot's
	// time-of-day a check still picks it up.
	CheckSpec     string        `yaml:"check_spec" validate:"required"`
	TriggerWindow time.Duration `yaml:"trigger_window" validate:"required"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Gemini    ProviderConfig `yaml:"gemini"`
	Mistral   ProviderConfig `yaml:"mistral"`
}

type ElevenLabsConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	MaxChars int    `yaml:"max_chars" validate:"required|min:1"`
}

type NewsConfig struct {
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	BaseURL  string `yaml:"base_url"`
}

type PipelineConfig struct {
	NewsTimeout      time.Duration `yaml:"news_timeout" validate:"required"`
	ScriptTimeout    time.Duration `yaml:"script_timeout" validate:"required"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout" validate:"required"`
	MaxRetries       int           `yaml:"max_retries" validate:"min:1|max:3"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type AnalysisConfig struct {
	CoordinatorAgent string `yaml:"coordinator_agent" validate:"required"`
	MaxConcurrent    int    `yaml:"max_concurrent" validate:"required|min:1"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	v := validate.Struct(&cfg)
	if !v.Validate() {
		return nil, fmt.Errorf("config validation failed: %s", v.Errors.One())
	}

	return &cfg, nil
}

// applyEnv backfills credentials from the environment so the config file
// never has to hold secrets.
func (c *Config) applyEnv() {
	if c.Providers.OpenAI.APIKey == "" {
		c.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Providers.Anthropic.APIKey == "" {
		c.Providers.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Providers.Gemini.APIKey == "" {
		c.Providers.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Providers.Mistral.APIKey == "" {
		c.Providers.Mistral.APIKey = os.Getenv("MISTRAL_API_KEY")
	}
	if c.ElevenLabs.APIKey == "" {
		c.ElevenLabs.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if c.News.APIKey == "" {
		c.News.APIKey = os.Getenv("NEWS_API_KEY")
	}
	if c.Telegram.BotToken == "" {
		c.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/radio.sqlite"
	}
	if c.Store.AudioDir == "" {
		c.Store.AudioDir = "data/audio"
	}
	if c.Schedule.CheckSpec == "" {
		c.Schedule.CheckSpec = "0 * * * * *" // every minute
	}
	if c.Schedule.TriggerWindow == 0 {
		c.Schedule.TriggerWindow = 5 * time.Minute
	}
	if c.ElevenLabs.MaxChars == 0 {
		c.ElevenLabs.MaxChars = 5000
	}
	if c.News.CacheTTL == 0 {
		c.News.CacheTTL = 15 * time.Minute
	}
	if c.Pipeline.NewsTimeout == 0 {
		c.Pipeline.NewsTimeout = 10 * time.Second
	}
	if c.Pipeline.ScriptTimeout == 0 {
		c.Pipeline.ScriptTimeout = 30 * time.Second
	}
	if c.Pipeline.SynthesisTimeout == 0 {
		c.Pipeline.SynthesisTimeout = 60 * time.Second
	}
	if c.Pipeline.MaxRetries == 0 {
		c.Pipeline.MaxRetries = 1
	}
	if c.Pipeline.RetryBackoff == 0 {
		c.Pipeline.RetryBackoff = 3 * time.Second
	}
	if c.Analysis.CoordinatorAgent == "" {
		c.Analysis.CoordinatorAgent = "producer"
	}
	if c.Analysis.MaxConcurrent == 0 {
		c.Analysis.MaxConcurrent = 3
	}
}

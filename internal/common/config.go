package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production" - controls CORS strictness
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Browser     BrowserConfig   `toml:"browser"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Visual      VisualConfig    `toml:"visual"`
	LLM         LLMConfig       `toml:"llm"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Seeds       SeedsConfig     `toml:"seeds"`
}

type ServerConfig struct {
	Port       int    `toml:"port" validate:"min=1,max=65535"`
	Host       string `toml:"host"`
	CORSOrigin string `toml:"cors_origin"` // Allow-Origin value in production; development always allows "*"
}

type StorageConfig struct {
	DataDir        string `toml:"data_dir" validate:"required"` // snapshot.json and artifacts/ live under this directory
	BadgerPath     string `toml:"badger_path"`                  // run queue + run events; empty = {data_dir}/paritas.db
	ResetOnStartup bool   `toml:"reset_on_startup"`             // delete the badger database on startup for clean test runs
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Output        []string `toml:"output"`          // "stdout", "file"
	TimeFormat    string   `toml:"time_format"`     // Time format for logs
	MinEventLevel string   `toml:"min_event_level"` // Minimum log level bridged into the run event store
}

type PipelineConfig struct {
	Workers           int    `toml:"workers" validate:"min=1"`         // global run worker pool size
	JobConcurrency    int    `toml:"job_concurrency" validate:"min=1"` // concurrent runs per job
	StageTimeout      string `toml:"stage_timeout"`                    // e.g. "10m" - per-stage deadline
	PollInterval      string `toml:"poll_interval"`                    // e.g. "1s" - queue poll cadence
	VisibilityTimeout string `toml:"visibility_timeout"`               // e.g. "10m" - queue message redelivery window
	MaxReceive        int    `toml:"max_receive"`                      // max deliveries before a message is dropped
}

type BrowserConfig struct {
	PoolSize          int              `toml:"pool_size" validate:"min=1"`
	Headless          bool             `toml:"headless"`
	NavigationTimeout string           `toml:"navigation_timeout"` // e.g. "30s"
	SettleDelay       string           `toml:"settle_delay"`       // post-navigation render wait, e.g. "2s"
	UserAgent         string           `toml:"user_agent"`
	Viewports         []ViewportConfig `toml:"viewports"` // empty = desktop/tablet/mobile defaults
}

type ViewportConfig struct {
	Name   string `toml:"name"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type CrawlerConfig struct {
	RateLimit float64 `toml:"rate_limit"` // requests per second per host
	RateBurst int     `toml:"rate_burst"`
}

type VisualConfig struct {
	PixelThreshold float64 `toml:"pixel_threshold"` // anti-alias tolerance, 0..1
	GridSize       int     `toml:"grid_size"`       // layout-shift scan grid
	MinShiftPixels int     `toml:"min_shift_pixels"`
}

type LLMConfig struct {
	Provider     string  `toml:"provider"` // "anthropic" or "gemini"; no API key = rule-based reasoner
	Endpoint     string  `toml:"endpoint"`
	APIKey       string  `toml:"api_key"`
	Deployment   string  `toml:"deployment"` // model / deployment name
	MaxTokens    int     `toml:"max_tokens"`
	Temperature  float64 `toml:"temperature"`
	Timeout      string  `toml:"timeout"`
	TemplatesDir string  `toml:"templates_dir"` // prompt template overrides; empty = embedded defaults
}

type SchedulerConfig struct {
	Enabled bool `toml:"enabled"`
}

type SeedsConfig struct {
	JobsDir string `toml:"jobs_dir"` // directory of YAML job definitions loaded at startup
}

// NewDefaultConfig returns a config populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 4000,
			Host: "",
		},
		Storage: StorageConfig{
			DataDir:        "./backend/data",
			BadgerPath:     "",
			ResetOnStartup: false,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"stdout", "file"},
			TimeFormat:    "15:04:05.000",
			MinEventLevel: "info",
		},
		Pipeline: PipelineConfig{
			Workers:           2,
			JobConcurrency:    1,
			StageTimeout:      "10m",
			PollInterval:      "1s",
			VisibilityTimeout: "10m",
			MaxReceive:        3,
		},
		Browser: BrowserConfig{
			PoolSize:          2,
			Headless:          true,
			NavigationTimeout: "30s",
			SettleDelay:       "2s",
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Paritas/" + Version,
		},
		Crawler: CrawlerConfig{
			RateLimit: 2.0,
			RateBurst: 4,
		},
		Visual: VisualConfig{
			PixelThreshold: 0.1,
			GridSize:       10,
			MinShiftPixels: 5,
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			MaxTokens:   4096,
			Temperature: 0.2,
			Timeout:     "120s",
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
		},
		Seeds: SeedsConfig{
			JobsDir: "",
		},
	}
}

// LoadFromFiles loads configuration from TOML files with environment overrides.
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	// Environment (highest priority: PARITAS_ENV, fallback: GO_ENV)
	if env := os.Getenv("PARITAS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Control-plane contract variables
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		config.Storage.DataDir = dataDir
	}
	if endpoint := os.Getenv("LLM_ENDPOINT"); endpoint != "" {
		config.LLM.Endpoint = endpoint
	}
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if deployment := os.Getenv("LLM_DEPLOYMENT_NAME"); deployment != "" {
		config.LLM.Deployment = deployment
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if templatesDir := os.Getenv("PARITAS_LLM_TEMPLATES_DIR"); templatesDir != "" {
		config.LLM.TemplatesDir = templatesDir
	}

	// Server configuration
	if port := os.Getenv("PARITAS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PARITAS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if origin := os.Getenv("PARITAS_CORS_ORIGIN"); origin != "" {
		config.Server.CORSOrigin = origin
	}

	// Storage configuration
	if dataDir := os.Getenv("PARITAS_DATA_DIR"); dataDir != "" {
		config.Storage.DataDir = dataDir
	}
	if badgerPath := os.Getenv("PARITAS_BADGER_PATH"); badgerPath != "" {
		config.Storage.BadgerPath = badgerPath
	}
	if reset := os.Getenv("PARITAS_STORAGE_RESET"); reset != "" {
		if r, err := strconv.ParseBool(reset); err == nil {
			config.Storage.ResetOnStartup = r
		}
	}

	// Logging configuration
	if level := os.Getenv("PARITAS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PARITAS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if minEventLevel := os.Getenv("PARITAS_LOG_MIN_EVENT_LEVEL"); minEventLevel != "" {
		config.Logging.MinEventLevel = minEventLevel
	}

	// Pipeline configuration
	if workers := os.Getenv("PARITAS_PIPELINE_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			config.Pipeline.Workers = w
		}
	}
	if concurrency := os.Getenv("PARITAS_JOB_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Pipeline.JobConcurrency = c
		}
	}
	if stageTimeout := os.Getenv("PARITAS_STAGE_TIMEOUT"); stageTimeout != "" {
		config.Pipeline.StageTimeout = stageTimeout
	}

	// Browser configuration
	if poolSize := os.Getenv("PARITAS_BROWSER_POOL_SIZE"); poolSize != "" {
		if ps, err := strconv.Atoi(poolSize); err == nil {
			config.Browser.PoolSize = ps
		}
	}
	if headless := os.Getenv("PARITAS_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if navTimeout := os.Getenv("PARITAS_BROWSER_NAVIGATION_TIMEOUT"); navTimeout != "" {
		config.Browser.NavigationTimeout = navTimeout
	}
	if userAgent := os.Getenv("PARITAS_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}

	// LLM configuration fallbacks shared with the wider tooling
	if config.LLM.APIKey == "" {
		switch strings.ToLower(config.LLM.Provider) {
		case "gemini":
			if key := os.Getenv("GEMINI_API_KEY"); key != "" {
				config.LLM.APIKey = key
			}
		default:
			if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
				config.LLM.APIKey = key
			}
		}
	}

	// Scheduler configuration
	if enabled := os.Getenv("PARITAS_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}

	// Seed job definitions
	if jobsDir := os.Getenv("PARITAS_SEEDS_DIR"); jobsDir != "" {
		config.Seeds.JobsDir = jobsDir
	}
}

// ApplyFlagOverrides applies command-line flag values on top of the config.
// Command-line flags have highest priority.
func ApplyFlagOverrides(config *Config, port int, host string, dataDir string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if dataDir != "" {
		config.Storage.DataDir = dataDir
	}
}

// Validate checks the configuration against its struct constraints
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolvedBadgerPath returns the badger directory, defaulting under the data dir
func (c *Config) ResolvedBadgerPath() string {
	if c.Storage.BadgerPath != "" {
		return c.Storage.BadgerPath
	}
	return c.Storage.DataDir + "/paritas.db"
}

// ParseDuration parses a duration string, returning the fallback on error or empty input
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

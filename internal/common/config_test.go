package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	if config.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", config.Server.Port)
	}
	if config.Storage.DataDir != "./backend/data" {
		t.Errorf("Storage.DataDir = %s, want ./backend/data", config.Storage.DataDir)
	}
	if config.Pipeline.Workers != 2 {
		t.Errorf("Pipeline.Workers = %d, want 2", config.Pipeline.Workers)
	}
	if config.Pipeline.JobConcurrency != 1 {
		t.Errorf("Pipeline.JobConcurrency = %d, want 1", config.Pipeline.JobConcurrency)
	}
	if config.Browser.PoolSize != 2 {
		t.Errorf("Browser.PoolSize = %d, want 2", config.Browser.PoolSize)
	}
	if !config.Browser.Headless {
		t.Error("Browser.Headless = false, want true")
	}
	if config.Visual.PixelThreshold != 0.1 {
		t.Errorf("Visual.PixelThreshold = %f, want 0.1", config.Visual.PixelThreshold)
	}
	if config.Visual.GridSize != 10 {
		t.Errorf("Visual.GridSize = %d, want 10", config.Visual.GridSize)
	}
	if config.LLM.Provider != "anthropic" {
		t.Errorf("LLM.Provider = %s, want anthropic", config.LLM.Provider)
	}
	if config.IsProduction() {
		t.Error("default config should not be production")
	}
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	baseContent := `
environment = "production"

[server]
port = 5000
host = "0.0.0.0"

[storage]
data_dir = "/var/lib/paritas"

[pipeline]
workers = 4
`
	if err := os.WriteFile(base, []byte(baseContent), 0644); err != nil {
		t.Fatalf("failed to write base config: %v", err)
	}

	override := filepath.Join(dir, "override.toml")
	overrideContent := `
[server]
port = 6000

[llm]
provider = "gemini"
deployment = "gemini-2.0-flash"
`
	if err := os.WriteFile(override, []byte(overrideContent), 0644); err != nil {
		t.Fatalf("failed to write override config: %v", err)
	}

	config, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatalf("LoadFromFiles() error = %v", err)
	}

	// Later file wins
	if config.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", config.Server.Port)
	}
	// Earlier file values survive where not overridden
	if config.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %s, want 0.0.0.0", config.Server.Host)
	}
	if config.Storage.DataDir != "/var/lib/paritas" {
		t.Errorf("Storage.DataDir = %s, want /var/lib/paritas", config.Storage.DataDir)
	}
	if config.Pipeline.Workers != 4 {
		t.Errorf("Pipeline.Workers = %d, want 4", config.Pipeline.Workers)
	}
	if config.LLM.Provider != "gemini" {
		t.Errorf("LLM.Provider = %s, want gemini", config.LLM.Provider)
	}
	if !config.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
	// Defaults untouched by either file
	if config.Visual.GridSize != 10 {
		t.Errorf("Visual.GridSize = %d, want 10", config.Visual.GridSize)
	}
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/paritas.toml")
	if err == nil {
		t.Error("LoadFromFiles() expected error for missing file")
	}
}

func TestLoadFromFiles_EmptyPathSkipped(t *testing.T) {
	config, err := LoadFromFiles("")
	if err != nil {
		t.Fatalf("LoadFromFiles(\"\") error = %v", err)
	}
	if config.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want default 4000", config.Server.Port)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, c *Config)
	}{
		{
			name: "PORT contract variable",
			env:  map[string]string{"PORT": "8080"},
			check: func(t *testing.T, c *Config) {
				if c.Server.Port != 8080 {
					t.Errorf("Server.Port = %d, want 8080", c.Server.Port)
				}
			},
		},
		{
			name: "DATA_DIR contract variable",
			env:  map[string]string{"DATA_DIR": "/tmp/paritas-data"},
			check: func(t *testing.T, c *Config) {
				if c.Storage.DataDir != "/tmp/paritas-data" {
					t.Errorf("Storage.DataDir = %s, want /tmp/paritas-data", c.Storage.DataDir)
				}
			},
		},
		{
			name: "LLM contract variables",
			env: map[string]string{
				"LLM_ENDPOINT":        "https://llm.example.com",
				"LLM_API_KEY":         "sk-test",
				"LLM_DEPLOYMENT_NAME": "claude-sonnet",
			},
			check: func(t *testing.T, c *Config) {
				if c.LLM.Endpoint != "https://llm.example.com" {
					t.Errorf("LLM.Endpoint = %s", c.LLM.Endpoint)
				}
				if c.LLM.APIKey != "sk-test" {
					t.Errorf("LLM.APIKey = %s", c.LLM.APIKey)
				}
				if c.LLM.Deployment != "claude-sonnet" {
					t.Errorf("LLM.Deployment = %s", c.LLM.Deployment)
				}
			},
		},
		{
			name: "prefixed port beats contract port",
			env:  map[string]string{"PORT": "8080", "PARITAS_SERVER_PORT": "9090"},
			check: func(t *testing.T, c *Config) {
				if c.Server.Port != 9090 {
					t.Errorf("Server.Port = %d, want 9090", c.Server.Port)
				}
			},
		},
		{
			name: "invalid port ignored",
			env:  map[string]string{"PORT": "not-a-number"},
			check: func(t *testing.T, c *Config) {
				if c.Server.Port != 4000 {
					t.Errorf("Server.Port = %d, want default 4000", c.Server.Port)
				}
			},
		},
		{
			name: "log output list",
			env:  map[string]string{"PARITAS_LOG_OUTPUT": "stdout, file"},
			check: func(t *testing.T, c *Config) {
				if len(c.Logging.Output) != 2 || c.Logging.Output[0] != "stdout" || c.Logging.Output[1] != "file" {
					t.Errorf("Logging.Output = %v, want [stdout file]", c.Logging.Output)
				}
			},
		},
		{
			name: "headless override",
			env:  map[string]string{"PARITAS_BROWSER_HEADLESS": "false"},
			check: func(t *testing.T, c *Config) {
				if c.Browser.Headless {
					t.Error("Browser.Headless = true, want false")
				}
			},
		},
		{
			name: "anthropic key fallback",
			env:  map[string]string{"ANTHROPIC_API_KEY": "sk-ant-abc"},
			check: func(t *testing.T, c *Config) {
				if c.LLM.APIKey != "sk-ant-abc" {
					t.Errorf("LLM.APIKey = %s, want sk-ant-abc", c.LLM.APIKey)
				}
			},
		},
		{
			name: "gemini key fallback when provider is gemini",
			env:  map[string]string{"LLM_PROVIDER": "gemini", "GEMINI_API_KEY": "gm-key"},
			check: func(t *testing.T, c *Config) {
				if c.LLM.Provider != "gemini" {
					t.Errorf("LLM.Provider = %s, want gemini", c.LLM.Provider)
				}
				if c.LLM.APIKey != "gm-key" {
					t.Errorf("LLM.APIKey = %s, want gm-key", c.LLM.APIKey)
				}
			},
		},
		{
			name: "environment from PARITAS_ENV",
			env:  map[string]string{"PARITAS_ENV": "production"},
			check: func(t *testing.T, c *Config) {
				if !c.IsProduction() {
					t.Error("IsProduction() = false, want true")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			config := NewDefaultConfig()
			applyEnvOverrides(config)
			tt.check(t, config)
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 7777, "127.0.0.1", "/data/alt")

	if config.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", config.Server.Port)
	}
	if config.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %s, want 127.0.0.1", config.Server.Host)
	}
	if config.Storage.DataDir != "/data/alt" {
		t.Errorf("Storage.DataDir = %s, want /data/alt", config.Storage.DataDir)
	}

	// Zero values leave the config untouched
	ApplyFlagOverrides(config, 0, "", "")
	if config.Server.Port != 7777 {
		t.Errorf("Server.Port = %d after no-op override, want 7777", config.Server.Port)
	}
}

func TestConfigValidate(t *testing.T) {
	config := NewDefaultConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v, want nil", err)
	}

	config.Server.Port = -1
	if err := config.Validate(); err == nil {
		t.Error("Validate() expected error for negative port")
	}

	config = NewDefaultConfig()
	config.Pipeline.Workers = 0
	if err := config.Validate(); err == nil {
		t.Error("Validate() expected error for zero workers")
	}
}

func TestResolvedBadgerPath(t *testing.T) {
	config := NewDefaultConfig()
	config.Storage.DataDir = "/data"

	if got := config.ResolvedBadgerPath(); got != "/data/paritas.db" {
		t.Errorf("ResolvedBadgerPath() = %s, want /data/paritas.db", got)
	}

	config.Storage.BadgerPath = "/elsewhere/queue.db"
	if got := config.ResolvedBadgerPath(); got != "/elsewhere/queue.db" {
		t.Errorf("ResolvedBadgerPath() = %s, want /elsewhere/queue.db", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback time.Duration
		want     time.Duration
	}{
		{"valid duration", "30s", time.Minute, 30 * time.Second},
		{"valid minutes", "10m", time.Second, 10 * time.Minute},
		{"empty uses fallback", "", 5 * time.Second, 5 * time.Second},
		{"garbage uses fallback", "not-a-duration", 2 * time.Second, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDuration(tt.value, tt.fallback); got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

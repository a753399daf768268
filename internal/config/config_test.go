package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("retry.max_retries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.Strategy != "exponential" {
		t.Errorf("retry.strategy = %q, want exponential", cfg.Retry.Strategy)
	}
	if got := cfg.Retry.BaseDelay(); got != 10*time.Second {
		t.Errorf("BaseDelay() = %v, want 10s", got)
	}
	if got := cfg.Retry.MaxDelay(); got != time.Minute {
		t.Errorf("MaxDelay() = %v, want 60s", got)
	}
	if cfg.Manual.Pattern != "{step}.*" {
		t.Errorf("manual.pattern = %q", cfg.Manual.Pattern)
	}
	if !cfg.History.Enabled {
		t.Error("history should be enabled by default")
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("logging.level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Runner.Command != "claude" {
		t.Errorf("runner.command = %q, want claude", cfg.Runner.Command)
	}
	if cfg.Project.Dir != "." {
		t.Errorf("project.dir = %q, want .", cfg.Project.Dir)
	}
}

func TestOverridesViaViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	viper.Set("project.idea", "a note-taking app")
	viper.Set("retry.max_retries", 5)
	viper.Set("retry.strategy", "linear")
	viper.Set("history.enabled", false)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Project.Idea != "a note-taking app" {
		t.Errorf("project.idea = %q", cfg.Project.Idea)
	}
	if cfg.Retry.MaxRetries != 5 || cfg.Retry.Strategy != "linear" {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.History.Enabled {
		t.Error("history.enabled override lost")
	}
}

// Package config loads stageflow configuration via viper: defaults, an
// optional stageflow.yaml in the project directory, and STAGEFLOW_*
// environment overrides, in ascending precedence.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete stageflow configuration.
type Config struct {
	Project Project `mapstructure:"project"`
	Runner  Runner  `mapstructure:"runner"`
	Retry   Retry   `mapstructure:"retry"`
	Manual  Manual  `mapstructure:"manual"`
	History History `mapstructure:"history"`
	Logging Logging `mapstructure:"logging"`
}

// Runner configures the external AI CLI steps are executed with.
type Runner struct {
	// Command is the executable invoked per step, prompt on stdin.
	Command string `mapstructure:"command"`
	// Args are passed to the command before the prompt is written.
	Args []string `mapstructure:"args"`
}

// Project identifies the project being developed.
type Project struct {
	// Name is the project name shown in status output and snapshots.
	Name string `mapstructure:"name"`
	// Idea is the product idea substituted into step prompts.
	Idea string `mapstructure:"idea"`
	// Dir is the project directory holding checkpoints, manual outputs,
	// and logs. Defaults to the working directory.
	Dir string `mapstructure:"dir"`
}

// Retry configures the retry engine around step execution.
type Retry struct {
	// MaxRetries is the number of re-attempts after the first try.
	MaxRetries int `mapstructure:"max_retries"`
	// BaseDelayMs is the backoff delay unit in milliseconds.
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	// MaxDelayMs caps the computed delay. Zero disables the cap.
	MaxDelayMs int `mapstructure:"max_delay_ms"`
	// Strategy is one of "fixed", "linear", "exponential".
	Strategy string `mapstructure:"strategy"`
}

// BaseDelay returns the base delay as a duration.
func (r Retry) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the delay cap as a duration.
func (r Retry) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// Manual configures manual-output detection.
type Manual struct {
	// Pattern is the filename pattern manual outputs must match.
	// {step} expands to the step identifier.
	Pattern string `mapstructure:"pattern"`
	// WaitTimeoutMs bounds how long `stageflow run --wait-manual` watches
	// for a manual artifact before falling through to automatic execution.
	WaitTimeoutMs int `mapstructure:"wait_timeout_ms"`
}

// WaitTimeout returns the watch bound as a duration.
func (m Manual) WaitTimeout() time.Duration {
	return time.Duration(m.WaitTimeoutMs) * time.Millisecond
}

// History configures the run-history journal.
type History struct {
	// Enabled turns the SQLite journal on or off.
	Enabled bool `mapstructure:"enabled"`
}

// Logging configures structured logging.
type Logging struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level"`
}

// SetDefaults registers default values with viper. Call before reading any
// config file so defaults apply even without one.
func SetDefaults() {
	viper.SetDefault("project.name", "")
	viper.SetDefault("project.idea", "")
	viper.SetDefault("project.dir", ".")

	viper.SetDefault("runner.command", "claude")
	viper.SetDefault("runner.args", []string{"-p"})

	viper.SetDefault("retry.max_retries", 3)
	viper.SetDefault("retry.base_delay_ms", 10_000)
	viper.SetDefault("retry.max_delay_ms", 60_000)
	viper.SetDefault("retry.strategy", "exponential")

	viper.SetDefault("manual.pattern", "{step}.*")
	viper.SetDefault("manual.wait_timeout_ms", 0)

	viper.SetDefault("history.enabled", true)

	viper.SetDefault("logging.level", "INFO")
}

// Load unmarshals the effective configuration.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

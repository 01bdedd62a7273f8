// Copyright 2025 The Coursewright Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the coursewright configuration file.
package config

import (
	"fmt"
	"net/url"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// AgentsConfig holds the base URLs of the three remote agents. Deployment
// topology is injected here and nowhere else.
//
// Example:
//
//	agents:
//	  researcher: http://localhost:8001
//	  judge: http://localhost:8002
//	  builder: http://localhost:8003
type AgentsConfig struct {
	Researcher string `yaml:"researcher"`
	Judge      string `yaml:"judge"`
	Builder    string `yaml:"builder"`
}

func (c *AgentsConfig) Validate() error {
	for name, endpoint := range map[string]string{
		"researcher": c.Researcher,
		"judge":      c.Judge,
		"builder":    c.Builder,
	} {
		if endpoint == "" {
			return fmt.Errorf("agents.%s endpoint is required", name)
		}
		parsed, err := url.Parse(endpoint)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("agents.%s endpoint %q is not a valid URL", name, endpoint)
		}
	}
	return nil
}

// WorkflowConfig tunes the refinement loop and remote call policy.
type WorkflowConfig struct {
	// MaxIterations caps the produce/evaluate rounds per run.
	// Default: 3
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// AcceptanceThreshold is the minimum judge score that counts as
	// acceptance, in (0, 1]. Default: 0.8
	AcceptanceThreshold float64 `yaml:"acceptance_threshold,omitempty"`

	// PerCallTimeout bounds each remote call attempt. Default: 60s
	PerCallTimeout Duration `yaml:"per_call_timeout,omitempty"`

	// RetryCount is the transient-failure retry budget per remote call.
	// Default: 2; a negative value disables retries.
	RetryCount int `yaml:"retry_count,omitempty"`

	// ProceedOnExhaustion decides whether a run that exhausts the loop
	// still assembles the best-effort artifact. Default: true
	ProceedOnExhaustion *bool `yaml:"proceed_on_exhaustion,omitempty"`
}

func (c *WorkflowConfig) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 3
	}
	if c.AcceptanceThreshold == 0 {
		c.AcceptanceThreshold = 0.8
	}
	if c.PerCallTimeout == 0 {
		c.PerCallTimeout = Duration(60 * time.Second)
	}
	if c.RetryCount == 0 {
		c.RetryCount = 2
	}
	if c.ProceedOnExhaustion == nil {
		proceed := true
		c.ProceedOnExhaustion = &proceed
	}
}

func (c *WorkflowConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("workflow.max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.AcceptanceThreshold <= 0 || c.AcceptanceThreshold > 1 {
		return fmt.Errorf("workflow.acceptance_threshold must be in (0, 1], got %v", c.AcceptanceThreshold)
	}
	if c.PerCallTimeout < 0 {
		return fmt.Errorf("workflow.per_call_timeout must not be negative")
	}
	return nil
}

// ShouldProceedOnExhaustion resolves the pointer with its default.
func (c *WorkflowConfig) ShouldProceedOnExhaustion() bool {
	return c.ProceedOnExhaustion == nil || *c.ProceedOnExhaustion
}

// ServerConfig configures the HTTP server exposed by `coursewright serve`.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Port)
	}
	return nil
}

// LoggerConfig configures logging behavior.
//
// Example:
//
//	logger:
//	  level: info
//	  file: coursewright.log
//	  format: simple
type LoggerConfig struct {
	// Level specifies the log level (debug, info, warn, error).
	// Default: info
	Level string `yaml:"level,omitempty"`

	// File specifies the log file path. If empty, logs go to stderr.
	File string `yaml:"file,omitempty"`

	// Format is "simple" (level + message) or "verbose" (adds timestamps).
	// Default: simple
	Format string `yaml:"format,omitempty"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// ObservabilityConfig toggles the metrics endpoint.
type ObservabilityConfig struct {
	// MetricsEnabled controls whether Prometheus metrics are collected and
	// served. Default: true
	MetricsEnabled *bool `yaml:"metrics_enabled,omitempty"`
}

func (c *ObservabilityConfig) Enabled() bool {
	return c.MetricsEnabled == nil || *c.MetricsEnabled
}

// Config is the root configuration document.
type Config struct {
	Agents        AgentsConfig        `yaml:"agents"`
	Workflow      WorkflowConfig      `yaml:"workflow,omitempty"`
	Server        ServerConfig        `yaml:"server,omitempty"`
	Logger        LoggerConfig        `yaml:"logger,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty"`
}

// ProcessConfigPipeline applies defaults and validates the configuration.
func ProcessConfigPipeline(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) SetDefaults() {
	c.Workflow.SetDefaults()
	c.Server.SetDefaults()
	c.Logger.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.Agents.Validate(); err != nil {
		return err
	}
	if err := c.Workflow.Validate(); err != nil {
		return err
	}
	return c.Server.Validate()
}

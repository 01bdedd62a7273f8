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

// Command coursewright drives the course creation workflow.
//
// Usage:
//
//	coursewright run "Intro to Graph Theory" --config coursewright.yaml
//	coursewright serve --config coursewright.yaml
//	coursewright validate --config coursewright.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/coursewright/coursewright"
	"github.com/coursewright/coursewright/pkg/config"
	"github.com/coursewright/coursewright/pkg/logger"
	"github.com/coursewright/coursewright/pkg/observability"
	"github.com/coursewright/coursewright/pkg/orchestrator"
	"github.com/coursewright/coursewright/pkg/server"
	"github.com/coursewright/coursewright/pkg/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Run the course creation workflow for a topic."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config    string `short:"c" help:"Path to config file." default:"coursewright.yaml" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(coursewright.GetVersion().String())
	return nil
}

// RunCmd runs one workflow and prints the final content as JSON.
type RunCmd struct {
	Topic  string `arg:"" help:"Course topic."`
	Output string `short:"o" help:"Write the final content to a file instead of stdout." type:"path"`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestratorConfig(cfg), agentEndpoints(cfg),
		orchestrator.WithLogger(logger.GetLogger()))

	result := orch.Run(ctx, c.Topic)
	switch result.Outcome {
	case workflow.OutcomeFailed:
		return fmt.Errorf("workflow failed at stage %q: %v",
			result.Diagnostics.FailedStage, result.Diagnostics.Error)
	case workflow.OutcomeExhausted:
		fmt.Fprintf(os.Stderr, "warning: judge did not accept the artifact after %d iterations; content is best-effort\n",
			result.Diagnostics.Iterations)
	}

	data, err := json.MarshalIndent(result.Content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}

	if c.Output != "" {
		return os.WriteFile(c.Output, data, 0644)
	}
	fmt.Println(string(data))
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	log := logger.GetLogger()

	var metrics *observability.Metrics
	if cfg.Observability.Enabled() {
		metrics, err = observability.New()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	orch := orchestrator.New(orchestratorConfig(cfg), agentEndpoints(cfg),
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(metrics))

	srv := server.New(&cfg.Server, orch, log, metrics)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		_ = metrics.Shutdown(shutdownCtx)
	}()

	return srv.Start()
}

// ValidateCmd validates the configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("Configuration OK: %s\n", cli.Config)
	return nil
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		MaxLoopIterations:   cfg.Workflow.MaxIterations,
		AcceptanceThreshold: cfg.Workflow.AcceptanceThreshold,
		PerCallTimeout:      cfg.Workflow.PerCallTimeout.Std(),
		RetryCount:          cfg.Workflow.RetryCount,
		ProceedOnExhaustion: cfg.Workflow.ShouldProceedOnExhaustion(),
	}
}

func agentEndpoints(cfg *config.Config) orchestrator.Endpoints {
	return orchestrator.Endpoints{
		Researcher: cfg.Agents.Researcher,
		Judge:      cfg.Agents.Judge,
		Builder:    cfg.Agents.Builder,
	}
}

func main() {
	config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("coursewright"),
		kong.Description("Judge-gated course creation over remote A2A agents"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, falling back to warn\n", err)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

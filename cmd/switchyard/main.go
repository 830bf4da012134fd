// switchyard routes prompts across rate-limited LLM endpoints: sliding-window
// admission, retry with backoff, context escalation and policy-driven
// fallback, with usage recorded to a sqlite ledger.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/switchyard-ai/switchyard/internal/config"
	. "github.com/switchyard-ai/switchyard/internal/logging"
)

const version = "0.2.0"

var cli struct {
	ConfigPath string `name:"config" short:"c" type:"path" help:"Config file path. Defaults to ./switchyard.json, then ~/.switchyard/switchyard.json."`
	LogLevel   string `help:"Override the log level (trace|debug|info|warn|error)."`
	Verbose    bool   `short:"v" help:"Shorthand for --log-level debug."`

	Probe   probeCmd   `cmd:"" help:"Run one prompt through admission, retry and failover."`
	Models  modelsCmd  `cmd:"" help:"List catalog endpoints and their limits."`
	Usage   usageCmd   `cmd:"" help:"Summarize recorded usage from the ledger."`
	Prune   pruneCmd   `cmd:"" help:"Delete old usage events, once or on a schedule."`
	Version versionCmd `cmd:"" help:"Print the version."`
}

// app carries the loaded config to the subcommands.
type app struct {
	cfg *config.Config
}

type versionCmd struct{}

func (versionCmd) Run(*app) error {
	fmt.Printf("switchyard %s\n", version)
	return nil
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("switchyard"),
		kong.Description("Admission control and failover across rate-limited LLM endpoints."),
		kong.UsageOnError(),
	)

	// version must work with no config on disk
	if kctx.Command() == "version" {
		fmt.Printf("switchyard %s\n", version)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		Init(DefaultConfig())
		L_fatal("failed to load config: %v", err)
	}

	level := cfg.Logging.Level
	if cli.Verbose {
		level = "debug"
	}
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	Init(&Config{
		Level:      ParseLevel(level),
		ShowCaller: cfg.Logging.ShowCaller,
	})
	L_debug("switchyard %s", version)

	kctx.FatalIfErrorf(kctx.Run(&app{cfg: cfg}))
}

func loadConfig() (*config.Config, error) {
	if cli.ConfigPath != "" {
		return config.LoadFrom(cli.ConfigPath)
	}
	return config.Load()
}

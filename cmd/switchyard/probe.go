package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/switchyard-ai/switchyard/budget"
	"github.com/switchyard-ai/switchyard/catalog"
	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/paths"
	"github.com/switchyard-ai/switchyard/llm"
	"github.com/switchyard-ai/switchyard/orchestrator"
	"github.com/switchyard-ai/switchyard/selector"
	"github.com/switchyard-ai/switchyard/telemetry"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

type probeCmd struct {
	Primary  string   `help:"Primary endpoint id (provider/model)." placeholder:"ID"`
	Fallback []string `help:"Fallback endpoint id, in chain order. Repeatable." placeholder:"ID"`
	Chain    string   `help:"YAML file carrying primary, fallbacks and policy overrides." type:"existingfile"`

	Input string `short:"i" help:"Prompt text. Falls back to --file, then stdin."`
	File  string `help:"Read the prompt from a file." type:"existingfile"`

	Strategy              string  `help:"Fallback strategy: sequential, smart or cost."`
	MaxRetries            int     `default:"-1" help:"Retries per endpoint before falling back."`
	MaxWait               float64 `default:"-1" help:"Per-endpoint wait budget in seconds."`
	MinWaitBeforeFallback float64 `default:"-1" help:"Seconds to keep preferring an endpoint before switching."`
	NoContextFallback     bool    `help:"Never escalate to larger-context endpoints."`
}

// chainFile mirrors the probe flags so a chain can be kept on disk and
// reused. Flags override file values.
type chainFile struct {
	Primary   string       `yaml:"primary"`
	Fallbacks []string     `yaml:"fallbacks"`
	Policy    *chainPolicy `yaml:"policy"`
}

type chainPolicy struct {
	MaxRetries            *int     `yaml:"maxRetries"`
	BackoffBase           *float64 `yaml:"backoffBase"`
	BackoffMultiplier     *float64 `yaml:"backoffMultiplier"`
	MaxWaitSeconds        *float64 `yaml:"maxWaitSeconds"`
	MinWaitBeforeFallback *float64 `yaml:"minWaitBeforeFallback"`
	FallbackStrategy      *string  `yaml:"fallbackStrategy"`
	EnableContextFallback *bool    `yaml:"enableContextFallback"`
}

func (p *probeCmd) Run(a *app) error {
	chain, err := p.resolveChain()
	if err != nil {
		return err
	}
	primary := catalog.EndpointID(chain.Primary)
	if !primary.Valid() {
		return fmt.Errorf("primary endpoint %q must be provider/model", chain.Primary)
	}
	fallbacks := make([]catalog.EndpointID, 0, len(chain.Fallbacks))
	for _, f := range chain.Fallbacks {
		fallbacks = append(fallbacks, catalog.EndpointID(f))
	}

	input, err := p.readInput()
	if err != nil {
		return err
	}

	cat, err := loadCatalog(a.cfg)
	if err != nil {
		return err
	}
	if w := watchCatalog(a.cfg, cat); w != nil {
		defer w.Stop()
	}

	sink, closeSink, err := openSinks(a.cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	router := llm.NewRouter(providerConfigs(a.cfg))
	if len(router.Providers()) == 0 {
		L_warn("no providers configured; every call will fail as fatal")
	}
	tracker := budget.NewTracker(cat)
	orch := orchestrator.New(cat, tracker, router, orchestrator.WithSink(sink))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := orch.ExecuteWithFallback(ctx, primary, fallbacks, input, p.policy(a.cfg, chain.Policy))
	if err != nil {
		return reportFailure(err)
	}

	fmt.Println(res.Response.Text)
	fmt.Println()
	fmt.Println(renderResultMeta(res))
	return nil
}

func (p *probeCmd) resolveChain() (chainFile, error) {
	var chain chainFile
	if p.Chain != "" {
		data, err := os.ReadFile(p.Chain)
		if err != nil {
			return chain, fmt.Errorf("read chain file: %w", err)
		}
		if err := yaml.Unmarshal(data, &chain); err != nil {
			return chain, fmt.Errorf("parse chain file %s: %w", p.Chain, err)
		}
	}
	if p.Primary != "" {
		chain.Primary = p.Primary
	}
	if len(p.Fallback) > 0 {
		chain.Fallbacks = p.Fallback
	}
	if chain.Primary == "" {
		return chain, errors.New("no primary endpoint: pass --primary or --chain")
	}
	return chain, nil
}

func (p *probeCmd) readInput() (string, error) {
	if p.Input != "" {
		return p.Input, nil
	}
	if p.File != "" {
		data, err := os.ReadFile(p.File)
		if err != nil {
			return "", fmt.Errorf("read input file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(data))
	if input == "" {
		return "", errors.New("empty input: pass --input, --file, or pipe a prompt on stdin")
	}
	return input, nil
}

// policy layers the effective call policy: config defaults, then the chain
// file, then explicit flags.
func (p *probeCmd) policy(cfg *config.Config, file *chainPolicy) orchestrator.PolicyConfig {
	pc := policyFromConfig(cfg.Policy)
	if file != nil {
		if file.MaxRetries != nil {
			pc.MaxRetries = *file.MaxRetries
		}
		if file.BackoffBase != nil {
			pc.BackoffBase = *file.BackoffBase
		}
		if file.BackoffMultiplier != nil {
			pc.BackoffMultiplier = *file.BackoffMultiplier
		}
		if file.MaxWaitSeconds != nil {
			pc.MaxWaitSeconds = *file.MaxWaitSeconds
		}
		if file.MinWaitBeforeFallback != nil {
			pc.MinWaitBeforeFallback = *file.MinWaitBeforeFallback
		}
		if file.FallbackStrategy != nil {
			pc.FallbackStrategy = parseStrategy(*file.FallbackStrategy)
		}
		if file.EnableContextFallback != nil {
			pc.EnableContextFallback = *file.EnableContextFallback
		}
	}
	if p.MaxRetries >= 0 {
		pc.MaxRetries = p.MaxRetries
	}
	if p.MaxWait >= 0 {
		pc.MaxWaitSeconds = p.MaxWait
	}
	if p.MinWaitBeforeFallback >= 0 {
		pc.MinWaitBeforeFallback = p.MinWaitBeforeFallback
	}
	if p.Strategy != "" {
		pc.FallbackStrategy = parseStrategy(p.Strategy)
	}
	if p.NoContextFallback {
		pc.EnableContextFallback = false
	}
	return pc
}

func policyFromConfig(pc config.PolicyConfig) orchestrator.PolicyConfig {
	return orchestrator.PolicyConfig{
		MaxRetries:            pc.MaxRetries,
		BackoffBase:           pc.BackoffBase,
		BackoffMultiplier:     pc.BackoffMultiplier,
		MaxWaitSeconds:        pc.MaxWaitSeconds,
		MinWaitBeforeFallback: pc.MinWaitBeforeFallback,
		FallbackStrategy:      parseStrategy(pc.FallbackStrategy),
		EnableContextFallback: pc.EnableContextFallback,
	}
}

func parseStrategy(s string) selector.Strategy {
	strat, err := selector.ParseStrategy(s)
	if err != nil {
		L_warn("unknown fallback strategy, using sequential", "strategy", s)
		return selector.Sequential
	}
	return strat
}

func resolveOverrides(cfg *config.Config) (string, error) {
	if cfg.Catalog.Overrides == "" {
		return "", nil
	}
	return paths.ExpandTilde(cfg.Catalog.Overrides)
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	overrides, err := resolveOverrides(cfg)
	if err != nil {
		return nil, err
	}
	return catalog.Load(overrides)
}

// watchCatalog starts override-file watching when configured. Watch trouble
// degrades to a warning; the catalog stays usable without live reload.
func watchCatalog(cfg *config.Config, cat *catalog.Catalog) *catalog.Watcher {
	overrides, err := resolveOverrides(cfg)
	if err != nil || overrides == "" || !cfg.Catalog.Watch {
		return nil
	}
	w, err := catalog.NewWatcher(cat, overrides, 0)
	if err != nil {
		L_warn("catalog: could not watch overrides", "path", overrides, "error", err)
		return nil
	}
	w.Start()
	return w
}

// openSinks builds the telemetry fan-out: the log sink always, the sqlite
// ledger when enabled. Ledger trouble downgrades to log-only.
func openSinks(cfg *config.Config) (telemetry.Sink, func(), error) {
	sinks := telemetry.Sinks{telemetry.LogSink{}}
	closeFn := func() {}
	if cfg.Ledger.Enabled {
		path, err := cfg.LedgerPath()
		if err != nil {
			return nil, nil, err
		}
		ledger, err := telemetry.Open(path)
		if err != nil {
			L_warn("telemetry: ledger unavailable, continuing without it", "path", path, "error", err)
		} else {
			sinks = append(sinks, ledger)
			closeFn = func() { ledger.Close() }
		}
	}
	return sinks, closeFn, nil
}

func providerConfigs(cfg *config.Config) map[string]llm.ProviderConfig {
	out := make(map[string]llm.ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		out[name] = llm.ProviderConfig{Type: p.Type, APIKey: p.APIKey, BaseURL: p.BaseURL}
	}
	return out
}

// reportFailure prints a human-readable account of a failed probe and
// returns the error that sets the exit code.
func reportFailure(err error) error {
	var ex *orchestrator.ExhaustedError
	if errors.As(err, &ex) {
		fmt.Fprintln(os.Stderr, failStyle.Render("all endpoints exhausted"))
		for _, at := range ex.Attempts {
			fmt.Fprintln(os.Stderr, "  "+renderAttempt(at))
		}
		return fmt.Errorf("probe failed after %d endpoints", len(ex.Trail))
	}
	var tooBig *orchestrator.ContextTooLargeError
	if errors.As(err, &tooBig) {
		fmt.Fprintf(os.Stderr, "input (~%d tokens) exceeds every context window; largest is %s (%d tokens)\n",
			tooBig.EstimatedTokens, tooBig.LargestEndpoint, tooBig.LargestContext)
		return errors.New("input too large for every endpoint")
	}
	return err
}

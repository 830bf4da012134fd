package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/switchyard-ai/switchyard/fitter"
	"github.com/switchyard-ai/switchyard/orchestrator"
	"github.com/switchyard-ai/switchyard/telemetry"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// Styles
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Blue

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // Gray
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // Red
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

type modelsCmd struct {
	RequiredTokens int `default:"0" help:"Only endpoints whose window holds this many tokens, in escalation order."`
}

func (m *modelsCmd) Run(a *app) error {
	cat, err := loadCatalog(a.cfg)
	if err != nil {
		return err
	}

	ids := cat.AllEndpoints()
	if m.RequiredTokens > 0 {
		ids = fitter.New(cat).LargerContextCandidates(m.RequiredTokens)
		if len(ids) == 0 {
			return fmt.Errorf("no endpoint holds %d tokens", m.RequiredTokens)
		}
	}

	tbl := newTable("ENDPOINT", "CONTEXT", "MAX OUT", "$/1K", "RPM", "TPM", "RPD")
	for _, id := range ids {
		ep, _ := cat.Lookup(id)
		tbl.Row(
			id.String(),
			formatCount(ep.Context.ContextWindow),
			formatCount(ep.Context.MaxOutputTokens),
			formatPrice(ep.Pricing.BlendedPer1K()),
			formatQuota(ep.Quota.RequestsPerMinute),
			formatQuota(ep.Quota.TokensPerMinute),
			formatQuota(ep.Quota.RequestsPerDay),
		)
	}
	fmt.Println(tbl.Render())
	return nil
}

type usageCmd struct {
	Since time.Duration `default:"24h" help:"How far back to aggregate."`
}

func (u *usageCmd) Run(a *app) error {
	path, err := a.cfg.LedgerPath()
	if err != nil {
		return err
	}
	ledger, err := telemetry.Open(path)
	if err != nil {
		return err
	}
	defer ledger.Close()

	rows, err := ledger.Summary(time.Now().Add(-u.Since))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("no usage recorded in the last %s", u.Since)))
		return nil
	}

	tbl := newTable("ENDPOINT", "CALLS", "OK", "FAIL", "IN TOKENS", "OUT TOKENS", "COST", "AVG MS", "P95 MS")
	var totalCost float64
	for _, r := range rows {
		tbl.Row(
			r.Endpoint.String(),
			strconv.Itoa(r.Calls),
			strconv.Itoa(r.Successes),
			strconv.Itoa(r.Failures),
			strconv.FormatInt(r.InputTokens, 10),
			strconv.FormatInt(r.OutputTokens, 10),
			fmt.Sprintf("$%.4f", r.CostUSD),
			fmt.Sprintf("%.0f", r.AvgLatencyMS),
			fmt.Sprintf("%.0f", r.P95LatencyMS),
		)
		totalCost += r.CostUSD
	}
	fmt.Println(tbl.Render())
	fmt.Println(dimStyle.Render(fmt.Sprintf("total cost: $%.4f", totalCost)))
	return nil
}

type pruneCmd struct {
	OlderThan time.Duration `default:"168h" help:"Delete events older than this."`
	Schedule  string        `help:"Cron spec; keeps pruning on schedule until interrupted."`
}

func (p *pruneCmd) Run(a *app) error {
	path, err := a.cfg.LedgerPath()
	if err != nil {
		return err
	}
	ledger, err := telemetry.Open(path)
	if err != nil {
		return err
	}
	defer ledger.Close()

	if p.Schedule == "" {
		n, err := ledger.Prune(p.OlderThan)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d events older than %s\n", n, p.OlderThan)
		return nil
	}

	if err := ledger.StartMaintenance(p.Schedule, p.OlderThan); err != nil {
		return err
	}
	L_info("ledger maintenance running", "schedule", p.Schedule, "olderThan", p.OlderThan)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func renderResultMeta(res *orchestrator.Result) string {
	parts := []string{
		"endpoint " + res.Endpoint.String(),
		fmt.Sprintf("tokens %d in / %d out", res.Response.InputTokens, res.Response.OutputTokens),
		fmt.Sprintf("cost $%.4f", res.Cost.TotalUSD),
		"latency " + res.Response.Latency.Round(time.Millisecond).String(),
	}
	if res.Waited > 0 {
		parts = append(parts, "waited "+res.Waited.Round(time.Millisecond).String())
	}
	out := dimStyle.Render(strings.Join(parts, "  "))

	if len(res.Attempts) > 0 {
		var b strings.Builder
		b.WriteString(out)
		b.WriteString("\n")
		b.WriteString(failStyle.Render(fmt.Sprintf("%d endpoint(s) failed first:", len(res.Attempts))))
		for _, at := range res.Attempts {
			b.WriteString("\n  " + renderAttempt(at))
		}
		return b.String()
	}
	return out
}

func renderAttempt(at orchestrator.Attempt) string {
	line := fmt.Sprintf("%s: %s", at.Endpoint, at.ErrorType)
	if at.Skipped {
		line += " (skipped before calling)"
	} else if at.Retries > 0 {
		line += fmt.Sprintf(" (after %d retries)", at.Retries)
	}
	if at.Err != nil {
		line += ": " + at.Err.Error()
	}
	return line
}

func formatCount(v int) string {
	if v <= 0 {
		return "-"
	}
	return strconv.Itoa(v)
}

func formatQuota(v int) string {
	if v <= 0 {
		return "unlimited"
	}
	return strconv.Itoa(v)
}

func formatPrice(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("$%.4f", v)
}

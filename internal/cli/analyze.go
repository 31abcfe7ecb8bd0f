package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/findings"
	"github.com/matzehuels/stackscan/pkg/observability"
	"github.com/matzehuels/stackscan/pkg/orchestrator"
)

// analyzeOpts holds options for the analyze command.
type analyzeOpts struct {
	focus      string
	background bool
	id         string
	timeout    time.Duration
	json       bool
}

// analyzeCommand creates the analyze command for a single resource.
func (c *CLI) analyzeCommand() *cobra.Command {
	var opts analyzeOpts

	cmd := &cobra.Command{
		Use:   "analyze <resource>",
		Short: "Analyze one resource, ignoring dependencies",
		Long: `Analyze runs one agent against a single configured resource.

A cached result for the same content and analyzer is published without
spawning anything. Otherwise the previous findings for the resource are
removed and an agent is started. Without --background the command waits
for the agent and prints its findings.`,
		Example: `  stackscan analyze api
  stackscan analyze api --focus security --timeout 10m
  stackscan analyze api --background --id api-nightly`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeResources,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAnalyze(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.focus, "focus", "f", string(agent.FocusAll), focusUsage())
	cmd.Flags().BoolVar(&opts.background, "background", false, "return once the agent is started")
	cmd.Flags().StringVar(&opts.id, "id", "", "agent id (generated if empty)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "agent timeout (default from config)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	_ = cmd.RegisterFlagCompletionFunc("focus", completeFocus)

	return cmd
}

func (c *CLI) runAnalyze(ctx context.Context, resource string, opts analyzeOpts) error {
	return c.withEnv(ctx, envOptions{}, func(e *env) error {
		var spinner *Spinner
		if !opts.background && !opts.json {
			spinner = newSpinnerWithContext(ctx, fmt.Sprintf("Analyzing %s...", resource))
			spinner.Start()
		}

		res, err := e.orch.Analyze(ctx, orchestrator.AnalyzeRequest{
			Resource:   resource,
			Focus:      agent.Focus(opts.focus),
			Background: opts.background,
			ID:         opts.id,
			Timeout:    opts.timeout,
		})
		if spinner != nil {
			spinner.Stop()
		}
		if err != nil && res == nil {
			return err
		}

		if opts.json {
			if jerr := writeJSON(os.Stdout, res); jerr != nil {
				return jerr
			}
			return err
		}
		printAnalyzeResult(res, opts.background)
		return err
	})
}

func printAnalyzeResult(res *orchestrator.AnalyzeResult, background bool) {
	switch {
	case res.Cached:
		printSuccess("%s: cached result (%d findings)", res.Resource, len(res.Findings.Findings))
	case background:
		printSuccess("Started agent %s", StyleHighlight.Render(res.Agent.ID))
		printKeyValue("Resource", res.Resource)
		printKeyValue("Focus", string(res.Focus))
		printNewline()
		printNextStep("Wait for it", "stackscan wait "+res.Agent.ID)
		return
	case res.Agent.Status == agent.StatusCompleted:
		printSuccess("%s: completed in %s", res.Resource, formatDuration(res.Agent.Duration(time.Now())))
	default:
		printError("%s: %s", res.Resource, statusStyle(string(res.Agent.Status)).Render(string(res.Agent.Status)))
		if res.Agent.Error != "" {
			printDetail("%s", res.Agent.Error)
		}
		printNextStep("Inspect the output", "stackscan logs "+res.Agent.ID)
		return
	}

	if res.Findings != nil && len(res.Findings.Findings) > 0 {
		printNewline()
		fmt.Println(findingsTable(res.Findings.Findings).Render())
	}
}

// analyzeAllOpts holds options for the analyze-all command.
type analyzeAllOpts struct {
	focus            string
	noDeps           bool
	depsOnly         bool
	timeout          time.Duration
	levelTimeout     time.Duration
	proceedOnTimeout bool
	json             bool
}

// analyzeAllCommand creates the analyze-all command.
func (c *CLI) analyzeAllCommand() *cobra.Command {
	var opts analyzeAllOpts

	cmd := &cobra.Command{
		Use:   "analyze-all",
		Short: "Analyze every resource in dependency order",
		Long: `Analyze-all builds the dependency graph of the configured resources and
runs one agent per resource, level by level. A level starts only after every
agent of the previous level has finished. Failed agents do not stop their
dependents. A dependency cycle aborts the run before any agent is started.`,
		Example: `  stackscan analyze-all
  stackscan analyze-all --focus security --level-timeout 30m
  stackscan analyze-all --no-deps`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAnalyzeAll(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.focus, "focus", "f", string(agent.FocusAll), focusUsage())
	cmd.Flags().BoolVar(&opts.noDeps, "no-deps", false, "ignore dependencies and run everything at once")
	cmd.Flags().BoolVar(&opts.depsOnly, "deps-only", false, "only analyze resources that others depend on")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "per-agent timeout (default from config)")
	cmd.Flags().DurationVar(&opts.levelTimeout, "level-timeout", 0, "maximum wait per level (0 waits indefinitely)")
	cmd.Flags().BoolVar(&opts.proceedOnTimeout, "proceed-on-timeout", false, "start the next level when a level times out")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the run result as JSON")
	_ = cmd.RegisterFlagCompletionFunc("focus", completeFocus)

	return cmd
}

func (c *CLI) runAnalyzeAll(ctx context.Context, opts analyzeAllOpts) error {
	return c.withEnv(ctx, envOptions{}, func(e *env) error {
		prog := newProgress(c.Logger)

		var spinner *Spinner
		if !opts.json {
			spinner = newSpinnerWithContext(ctx, "Planning...")
			spinner.Start()
			prev := observability.Scheduler()
			observability.SetSchedulerHooks(levelProgress{SchedulerHooks: prev, spinner: spinner})
			defer observability.SetSchedulerHooks(prev)
		}

		res, err := e.orch.AnalyzeAll(ctx, orchestrator.AnalyzeAllRequest{
			Focus:            agent.Focus(opts.focus),
			RespectDeps:      !opts.noDeps,
			DepsOnly:         opts.depsOnly,
			Timeout:          opts.timeout,
			LevelTimeout:     opts.levelTimeout,
			ProceedOnTimeout: opts.proceedOnTimeout,
		})
		if spinner != nil {
			spinner.Stop()
		}
		if res == nil {
			return err
		}

		if opts.json {
			if jerr := writeJSON(os.Stdout, res); jerr != nil {
				return jerr
			}
			return err
		}

		if len(res.Cycle) > 0 && err != nil {
			printError("Dependency cycle: %s", formatCycle(res.Cycle))
			printNextStep("Inspect the graph", "stackscan graph --format dot")
			return err
		}
		printRunResult(res)
		if err == nil {
			prog.done(fmt.Sprintf("Analyzed %d resources", len(res.Outcomes)))
		}
		return err
	})
}

func printRunResult(res *orchestrator.RunResult) {
	rows := make([][]string, len(res.Outcomes))
	for i, oc := range res.Outcomes {
		count := "—"
		if oc.Findings > 0 || oc.Status == string(agent.StatusCompleted) || oc.Status == orchestrator.OutcomeCached {
			count = fmt.Sprintf("%d", oc.Findings)
		}
		rows[i] = []string{fmt.Sprintf("%d", oc.Level), oc.Resource, oc.Status, count, oc.AgentID}
	}
	t := newTable([]string{"Level", "Resource", "Status", "Findings", "Agent"}, rows, func(row, col int) lipgloss.Style {
		switch col {
		case 2:
			return statusStyle(res.Outcomes[row].Status)
		case 0, 4:
			return StyleDim
		}
		return lipgloss.NewStyle()
	})
	fmt.Println(t.Render())
	printNewline()

	counts := res.Counts()
	failed := counts[string(agent.StatusFailed)] + counts[string(agent.StatusTimedOut)]
	ok := counts[string(agent.StatusCompleted)] + counts[orchestrator.OutcomeCached]
	if failed > 0 {
		printWarning("%d of %d resources did not complete", failed, len(res.Outcomes))
		for _, oc := range res.Outcomes {
			if oc.Error != "" {
				printDetail("%s: %s", oc.Resource, oc.Error)
			}
		}
	} else {
		printSuccess("%d resources in %d levels", ok, len(res.Levels))
	}
	printNextStep("View findings", "stackscan findings")
}

// levelProgress mirrors level transitions onto the spinner and forwards
// every hook to the previously registered implementation.
type levelProgress struct {
	observability.SchedulerHooks
	spinner *Spinner
}

func (p levelProgress) OnLevelStart(ctx context.Context, level, size int) {
	p.spinner.SetMessage(fmt.Sprintf("Level %d: analyzing %d resources...", level, size))
	p.SchedulerHooks.OnLevelStart(ctx, level, size)
}

func focusUsage() string {
	names := make([]string, 0, len(agent.Focuses()))
	for _, f := range agent.Focuses() {
		names = append(names, string(f))
	}
	return "analysis focus (" + strings.Join(names, ", ") + ")"
}

func formatCycle(cycle []string) string {
	if len(cycle) < 2 {
		return strings.Join(cycle, "")
	}
	return strings.Join(append(slices.Clone(cycle), cycle[0]), " → ")
}

// findingsTable renders findings ordered as given.
func findingsTable(fs []findings.Finding) *table.Table {
	rows := make([][]string, len(fs))
	for i, f := range fs {
		loc := f.File
		if loc != "" && f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.File, f.Line)
		}
		rows[i] = []string{f.Resource, f.Severity.String(), f.Category, f.Description, loc}
	}
	return newTable([]string{"Resource", "Severity", "Category", "Description", "Location"}, rows, func(row, col int) lipgloss.Style {
		switch col {
		case 1:
			return severityStyle(fs[row].Severity)
		case 4:
			return StyleDim
		}
		return lipgloss.NewStyle()
	})
}

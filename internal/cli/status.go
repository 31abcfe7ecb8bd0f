package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/orchestrator"
)

// statusOpts holds options for the status command.
type statusOpts struct {
	agents   bool
	status   string
	json     bool
	watch    bool
	interval time.Duration
}

// statusCommand creates the status command.
func (c *CLI) statusCommand() *cobra.Command {
	var opts statusOpts

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show resources, agents and cache state",
		Long: `Status reconciles every agent with its process and reports, per configured
resource, the last agent and the published findings.

With --watch the view refreshes until you press q.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd.Context(), envOptions{}, func(e *env) error {
				if opts.watch {
					return runStatusWatch(cmd.Context(), e.orch, opts.interval)
				}
				report, err := e.orch.Status(cmd.Context(), opts.agents || opts.status != "")
				if err != nil {
					return err
				}
				if opts.status != "" {
					report.Agents = filterAgents(report.Agents, agent.Status(opts.status))
				}
				if opts.json {
					return writeJSON(os.Stdout, report)
				}
				printStatus(report)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.agents, "agents", "a", false, "list agent records")
	cmd.Flags().StringVar(&opts.status, "filter", "", "only list agents in this status (implies --agents)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the report as JSON")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "refresh the view continuously")
	cmd.Flags().DurationVar(&opts.interval, "interval", statusWatchInterval, "refresh interval for --watch")

	return cmd
}

// statusWatchInterval is the default refresh period of "status --watch".
const statusWatchInterval = time.Second

func runStatusWatch(ctx context.Context, orch *orchestrator.Orchestrator, interval time.Duration) error {
	fetch := func(ctx context.Context) (*orchestrator.StatusReport, error) {
		return orch.Status(ctx, false)
	}
	p := tea.NewProgram(NewStatusModel(ctx, fetch, interval), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func filterAgents(recs []*agent.Record, status agent.Status) []*agent.Record {
	var out []*agent.Record
	for _, r := range recs {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

func printStatus(report *orchestrator.StatusReport) {
	rows := make([][]string, len(report.Resources))
	for i, r := range report.Resources {
		rows[i] = resourceRow(r)
	}
	t := newTable([]string{"Resource", "Status", "Findings", "Source", "Agent"}, rows, func(row, col int) lipgloss.Style {
		switch col {
		case 1:
			return statusStyle(string(report.Resources[row].Status))
		case 3, 4:
			return StyleDim
		}
		return lipgloss.NewStyle()
	})
	fmt.Println(t.Render())
	printNewline()

	printKeyValue("State", report.StateDir)
	printKeyValue("Agents", countsLine(report.Counts))
	if report.Cache != nil {
		printKeyValue("Cache", fmt.Sprintf("%s, %d entries, %s", report.Cache.Backend, report.Cache.Entries, formatBytes(report.Cache.Bytes)))
	}

	if len(report.Agents) > 0 {
		printNewline()
		fmt.Println(agentTable(report.Agents, time.Now()).Render())
	}
	if n := report.Running(); n > 0 {
		printNewline()
		printNextStep(fmt.Sprintf("%d agents running; wait for them", n), "stackscan wait")
	}
}

// formatBytes renders n with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/errors"
	"github.com/matzehuels/stackscan/pkg/orchestrator"
)

// =============================================================================
// wait
// =============================================================================

// waitCommand creates the wait command.
func (c *CLI) waitCommand() *cobra.Command {
	var (
		all     bool
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "wait [agent-id...]",
		Short: "Wait for agents to finish",
		Long: `Wait blocks until the given agents have finished. Without ids (or with
--all) it waits for every agent that is running when the command starts.

A timeout is not an error: the agents that are still running are listed and
the command exits with status 2.`,
		Example: `  stackscan wait
  stackscan wait api-security-1a2b3c4d --timeout 5m`,
		ValidArgsFunction: c.completeAgentIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd.Context(), envOptions{}, func(e *env) error {
				var spinner *Spinner
				if !asJSON {
					spinner = newSpinnerWithContext(cmd.Context(), "Waiting for agents...")
					spinner.Start()
				}
				res, err := e.orch.Wait(cmd.Context(), orchestrator.WaitRequest{IDs: args, All: all, Timeout: timeout})
				if spinner != nil {
					spinner.Stop()
				}
				if err != nil {
					return err
				}
				if asJSON {
					if err := writeJSON(os.Stdout, res); err != nil {
						return err
					}
				} else {
					printWaitResult(res)
				}
				if res.TimedOut {
					return errTimedOut
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "wait for every running agent")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "maximum time to wait (0 waits indefinitely)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return cmd
}

// errTimedOut signals a wait that ended with agents still running.
var errTimedOut = &ExitError{Code: 2, Err: errors.New(errors.ErrCodeAgentTimeout, "timed out waiting for agents")}

// ExitError carries a process exit status through cobra.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func printWaitResult(res *agent.WaitResult) {
	recs := append(append([]*agent.Record{}, res.Terminal...), res.NonTerminal...)
	if len(recs) == 0 {
		printInfo("No agents to wait for")
		return
	}
	fmt.Println(agentTable(recs, time.Now()).Render())
	printNewline()
	if res.TimedOut {
		printWarning("%d agents still running", len(res.NonTerminal))
		return
	}
	printSuccess("%d agents finished", len(res.Terminal))
}

// agentTable renders agent records.
func agentTable(recs []*agent.Record, now time.Time) *table.Table {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		exit := "—"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		rows[i] = []string{r.ID, r.Resource, string(r.Focus), string(r.Status), formatDuration(r.Duration(now)), exit}
	}
	return newTable([]string{"Agent", "Resource", "Focus", "Status", "Duration", "Exit"}, rows, func(row, col int) lipgloss.Style {
		switch col {
		case 3:
			return statusStyle(string(recs[row].Status))
		case 0, 4, 5:
			return StyleDim
		}
		return lipgloss.NewStyle()
	})
}

// =============================================================================
// cancel
// =============================================================================

// cancelCommand creates the cancel command.
func (c *CLI) cancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "cancel <agent-id>",
		Short:             "Stop a running agent",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeAgentIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd.Context(), envOptions{}, func(e *env) error {
				rec, err := e.orch.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if rec.Status != agent.StatusCancelled {
					printInfo("Agent %s already %s", rec.ID, statusStyle(string(rec.Status)).Render(string(rec.Status)))
					return nil
				}
				printSuccess("Cancelled %s", StyleHighlight.Render(rec.ID))
				return nil
			})
		},
	}
}

// =============================================================================
// logs
// =============================================================================

// logsCommand creates the logs command.
func (c *CLI) logsCommand() *cobra.Command {
	var (
		stderr    bool
		pathsOnly bool
	)

	cmd := &cobra.Command{
		Use:               "logs <agent-id>",
		Short:             "Print an agent's captured output",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeAgentIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd.Context(), envOptions{}, func(e *env) error {
				paths, err := e.orch.Logs(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if pathsOnly {
					printKeyValue("stdout", paths.Stdout)
					printKeyValue("stderr", paths.Stderr)
					return nil
				}
				path := paths.Stdout
				if stderr {
					path = paths.Stderr
				}
				return copyFile(os.Stdout, path)
			})
		},
	}

	cmd.Flags().BoolVar(&stderr, "stderr", false, "print stderr instead of stdout")
	cmd.Flags().BoolVar(&pathsOnly, "paths", false, "print the log file locations only")

	return cmd
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// =============================================================================
// prune
// =============================================================================

// pruneCommand creates the prune command.
func (c *CLI) pruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove finished agent records",
		Long: `Prune deletes the directories of finished agents older than --older-than.
Running agents are never removed. Published findings are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd.Context(), envOptions{}, func(e *env) error {
				removed, err := e.orch.Prune(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				if len(removed) == 0 {
					printInfo("Nothing to prune")
					return nil
				}
				printSuccess("Removed %d agents", len(removed))
				for _, id := range removed {
					printDetail("%s", id)
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum age of removed records")

	return cmd
}

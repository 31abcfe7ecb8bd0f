package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/errors"
)

// agentCommand groups the internal agent subcommands. It is hidden: the
// agent manager re-executes this binary to supervise each worker.
func (c *CLI) agentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "agent",
		Short:  "Internal agent commands",
		Hidden: true,
	}
	cmd.AddCommand(c.agentExecCommand())
	return cmd
}

// agentExecCommand runs the supervisor for one prepared agent directory.
func (c *CLI) agentExecCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "exec --dir <agent-dir>",
		Short: "Supervise the worker described by an agent directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				return errors.New(errors.ErrCodeInvalidInput, "--dir is required")
			}
			logger := loggerFromContext(cmd.Context()).With("dir", dir)
			logger.Debug("supervising")
			if err := agent.RunSupervisor(cmd.Context(), dir); err != nil {
				logger.Error("supervisor failed", "err", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "agent directory containing spec.json")
	return cmd
}

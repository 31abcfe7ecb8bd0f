package cli

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/config"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for stackscan. Besides commands and flags,
the scripts complete configured resource names and agent ids.

To load completions:

Bash:
  $ source <(stackscan completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ stackscan completion bash > /etc/bash_completion.d/stackscan
  # macOS:
  $ stackscan completion bash > $(brew --prefix)/etc/bash_completion.d/stackscan

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ stackscan completion zsh > "${fpath[1]}/_stackscan"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ stackscan completion fish | source

  # To load completions for each session, execute once:
  $ stackscan completion fish > ~/.config/fish/completions/stackscan.fish

PowerShell:
  PS> stackscan completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> stackscan completion powershell > stackscan.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}

	return cmd
}

// completeFocus completes --focus values.
func completeFocus(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, f := range agent.Focuses() {
		out = append(out, string(f))
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeResources completes configured resource names. Completion must
// never fail loudly, so config errors yield no candidates.
func (c *CLI) completeResources(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := config.Load(c.configDir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	resources, err := cfg.ResourceList()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, r := range resources {
		if strings.HasPrefix(r.Name, toComplete) {
			out = append(out, r.Name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeAgentIDs completes agent ids, newest last, with the resource and
// status as the description.
func (c *CLI) completeAgentIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var out []string
	_ = c.withEnv(ctx, envOptions{}, func(e *env) error {
		recs, err := e.orch.Agents().List(ctx)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if strings.HasPrefix(r.ID, toComplete) {
				out = append(out, r.ID+"\t"+r.Resource+" ("+string(r.Status)+")")
			}
		}
		return nil
	})
	return out, cobra.ShellCompDirectiveNoFileComp
}

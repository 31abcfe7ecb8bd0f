package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackscan/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the analysis result cache",
	}

	cmd.AddCommand(c.cacheStatusCommand())
	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheStatusCommand creates the "cache status" subcommand.
func (c *CLI) cacheStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache backend, entries and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd.Context(), envOptions{}, func(e *env) error {
				stats, err := e.orch.CacheStatus(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(os.Stdout, stats)
				}
				printKeyValue("Backend", stats.Backend)
				printKeyValue("Entries", fmt.Sprintf("%d", stats.Entries))
				printKeyValue("Size", formatBytes(stats.Bytes))
				if stats.Location != "" {
					printKeyValue("Location", stats.Location)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stats as JSON")
	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached analysis results",
		Long: `Clear removes every cached result so the next run spawns an agent for
each resource. Published findings are left in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd.Context(), envOptions{}, func(e *env) error {
				n, err := e.orch.CacheClear(cmd.Context())
				if err != nil {
					return err
				}
				if n == 0 {
					printInfo("Cache is empty")
					return nil
				}
				printSuccess("Cleared %d cached entries", n)
				return nil
			})
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd.Context(), envOptions{}, func(e *env) error {
				switch e.cfg.Cache.Backend {
				case cache.BackendRedis:
					fmt.Println(e.cfg.Cache.RedisURL)
				case cache.BackendFile:
					fmt.Println(e.cfg.Cache.Dir)
				default:
					printInfo("The %s cache has no location", e.cfg.Cache.Backend)
				}
				return nil
			})
		},
	}
}

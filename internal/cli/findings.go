package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackscan/pkg/errors"
	"github.com/matzehuels/stackscan/pkg/findings"
	"github.com/matzehuels/stackscan/pkg/orchestrator"
)

// findingsOpts holds options for the findings command.
type findingsOpts struct {
	resource    string
	minSeverity string
	json        bool
	exportMongo bool
}

// findingsCommand creates the findings command.
func (c *CLI) findingsCommand() *cobra.Command {
	var opts findingsOpts

	cmd := &cobra.Command{
		Use:   "findings",
		Short: "Show aggregated findings",
		Long: `Findings merges the published finding sets of every resource, ordered by
resource, then by descending severity. Malformed finding files are skipped
with a warning.

With --export-mongo the report also replaces the stored findings of every
resource it covers in the configured MongoDB database.`,
		Example: `  stackscan findings --min-severity high
  stackscan findings --resource api --json
  stackscan findings --export-mongo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd.Context(), envOptions{}, func(e *env) error {
				return c.runFindings(cmd.Context(), e, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.resource, "resource", "r", "", "only this resource")
	cmd.Flags().StringVarP(&opts.minSeverity, "min-severity", "s", "", "drop findings below this severity (info, low, medium, high, critical)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&opts.exportMongo, "export-mongo", false, "export the report to MongoDB")
	_ = cmd.RegisterFlagCompletionFunc("resource", c.completeResources)

	return cmd
}

func (c *CLI) runFindings(ctx context.Context, e *env, opts findingsOpts) error {
	var minSev findings.Severity
	if opts.minSeverity != "" {
		s, err := findings.ParseSeverity(opts.minSeverity)
		if err != nil {
			return err
		}
		minSev = s
	}

	report, err := e.orch.Findings(ctx, orchestrator.FindingsQuery{Resource: opts.resource, MinSeverity: minSev})
	if err != nil {
		return err
	}

	if opts.exportMongo {
		n, err := exportMongo(ctx, e, report)
		if err != nil {
			return err
		}
		loggerFromContext(ctx).Info("exported findings", "count", n, "resources", len(report.Resources))
	}

	if opts.json {
		return writeJSON(os.Stdout, report)
	}
	printReport(report)
	return nil
}

func exportMongo(ctx context.Context, e *env, report *findings.Report) (int, error) {
	cfg := e.cfg.Export
	if cfg.MongoURI == "" {
		return 0, errors.New(errors.ErrCodeInvalidInput, "export.mongo_uri is not configured")
	}
	sink, err := findings.NewMongoSink(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return 0, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sink.Close(closeCtx)
	}()
	return sink.Export(ctx, report)
}

func printReport(report *findings.Report) {
	for _, s := range report.Skipped {
		printWarning("skipped %s: %s", s.Path, s.Error)
	}
	if len(report.Findings) == 0 {
		printInfo("No findings across %d resources", len(report.Resources))
		return
	}

	fmt.Println(findingsTable(report.Findings).Render())
	printNewline()

	summary := report.Summary()
	var parts []string
	for _, sev := range []findings.Severity{findings.Critical, findings.High, findings.Medium, findings.Low, findings.Info} {
		if n := summary[sev.String()]; n > 0 {
			parts = append(parts, severityStyle(sev).Render(fmt.Sprintf("%d %s", n, sev)))
		}
	}
	printKeyValue("Findings", fmt.Sprintf("%d in %d resources", len(report.Findings), len(report.Resources)))
	printKeyValue("Severity", strings.Join(parts, StyleDim.Render(" · ")))
}

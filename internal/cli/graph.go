package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackscan/pkg/errors"
	"github.com/matzehuels/stackscan/pkg/graph"
)

// Graph output formats.
const (
	formatJSON = "json"
	formatDOT  = "dot"
	formatSVG  = "svg"
)

// graphOpts holds options for the graph command.
type graphOpts struct {
	format   string
	output   string
	detailed bool
}

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the resource dependency graph",
		Long: `Graph extracts the manifests of every configured resource, resolves their
dependencies against each other and prints the resulting graph with its
execution levels. A cycle is reported, not treated as an error.

The format is inferred from the output extension when --format is omitted.`,
		Example: `  stackscan graph
  stackscan graph --format dot | dot -Tpng -o graph.png
  stackscan graph -o graph.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd.Context(), envOptions{}, func(e *env) error {
				format, err := graphFormat(opts.format, opts.output)
				if err != nil {
					return err
				}
				a, err := e.orch.Graph(cmd.Context())
				if err != nil {
					return err
				}

				var data []byte
				switch format {
				case formatJSON:
					var buf bytes.Buffer
					if err := writeJSON(&buf, a); err != nil {
						return err
					}
					data = buf.Bytes()
				case formatDOT:
					data = []byte(graph.ToDOT(a, graph.DOTOptions{Detailed: opts.detailed}))
				case formatSVG:
					if data, err = graph.RenderSVG(cmd.Context(), graph.ToDOT(a, graph.DOTOptions{Detailed: opts.detailed})); err != nil {
						return err
					}
				}

				logger := loggerFromContext(cmd.Context())
				if len(a.Cycle) > 0 {
					logger.Warn("dependency cycle", "resources", strings.Join(a.Cycle, ", "))
				}
				logger.Info("graph planned",
					"resources", a.Stats.Resources, "edges", a.Stats.Edges, "levels", a.Stats.Levels,
					"most_depended", a.Stats.MostDepended)
				return writeOutput(opts.output, data)
			})
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "", "output format: json, dot, svg (default json)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "label nodes with identity and level")

	return cmd
}

// graphFormat resolves the output format from the flag or the file extension.
func graphFormat(format, output string) (string, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(output)) {
		case ".dot", ".gv":
			return formatDOT, nil
		case ".svg":
			return formatSVG, nil
		default:
			return formatJSON, nil
		}
	}
	switch f := strings.ToLower(format); f {
	case formatJSON, formatDOT, formatSVG:
		return f, nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "unknown format %q (valid: json, dot, svg)", format)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	printSuccess("Graph written")
	printFile(path)
	return nil
}

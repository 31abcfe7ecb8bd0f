package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackscan/pkg/api"
	"github.com/matzehuels/stackscan/pkg/observability/prommetrics"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve status, findings and metrics over HTTP",
		Long: `Serve exposes a read-only JSON API over the state directory together with
Prometheus metrics. Every request reconciles agents, so the API reflects runs
started from other processes.

Routes:
  GET /healthz  GET /status  GET /agents  GET /agents/{id}
  GET /findings GET /cache   GET /graph   GET /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			prommetrics.New(reg).Install()

			return c.withEnv(cmd.Context(), envOptions{l1: true}, func(e *env) error {
				addr := listen
				if addr == "" {
					addr = e.cfg.Server.Listen
				}
				handler := api.NewHandler(e.orch, api.Options{Logger: c.Logger, Gatherer: reg})

				ready := make(chan string, 1)
				go func() {
					if bound, ok := <-ready; ok {
						printSuccess("Listening on %s", StyleHighlight.Render("http://"+bound))
						printDetail("Press Ctrl+C to stop")
					}
				}()
				return api.Serve(cmd.Context(), addr, handler, c.Logger, ready)
			})
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")

	return cmd
}

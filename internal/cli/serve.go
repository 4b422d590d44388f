// serve.go implements the "researchmeshd serve" command running the HTTP API.
package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/researchmesh"
	"github.com/hupe1980/researchmesh/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research session API over HTTP",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	mesh, err := researchmesh.New(cfg, func(o *researchmesh.Options) {
		o.Logger = logger
	})
	if err != nil {
		return err
	}
	defer mesh.Close()

	handler := httpapi.NewHandler(mesh.Manager(), func(o *httpapi.Options) {
		o.Logger = logger
	})
	server := httpapi.NewServer(handler, func(o *httpapi.ServerOptions) {
		o.Addr = cfg.Server.Addr
		o.ShutdownTimeout = cfg.Server.ShutdownTimeout()
		o.Logger = logger
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.ListenAndServe(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

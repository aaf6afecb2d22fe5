package cli

import (
	"github.com/spf13/cobra"

	"dicomviz/internal/web"
	"dicomviz/pkg/config"
)

// serveOpts holds the command-line flags for the serve command.
type serveOpts struct {
	addr       string
	configPath string
}

func newServeCmd() *cobra.Command {
	opts := serveOpts{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload/process HTTP API",
		Long: `Serve the upload and processing API. Clients upload DICOM files,
then request 2D, 3D or point-cloud processing; rendering runs in a
dicomviz subprocess and produced images are served back as static
files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.addr != "" {
				cfg.Server.Addr = opts.addr
			}

			srv, err := web.NewServer(cfg, logger)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.configPath, "config", "dicomviz.yaml", "path to the YAML configuration file")

	return cmd
}

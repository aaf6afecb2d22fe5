// Package cli implements the dicomviz command-line interface.
//
// The main commands are:
//   - view2d: render windowed slice views from a DICOM series
//   - view3d: render isosurface snapshots and a rotation sequence
//   - pointcloud: sample the volume into a sparse colored point list
//   - serve: run the upload/process HTTP API
//
// All commands support --verbose (-v) for debug-level logging. Loggers
// are passed through context.Context.
package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// Execute runs the dicomviz CLI and returns an error if any command
// fails.
func Execute() error {
	var verbose bool

	root := &cobra.Command{
		Use:          "dicomviz",
		Short:        "dicomviz renders DICOM series as 2D views, 3D surfaces and point clouds",
		Long:         `dicomviz loads a directory of DICOM slice files, stacks them into a volume and renders windowed slice views, isosurface snapshots with rotation sequences, or a downsampled point cloud for external viewers.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newView2DCmd())
	root.AddCommand(newView3DCmd())
	root.AddCommand(newPointCloudCmd())
	root.AddCommand(newServeCmd())

	return root.ExecuteContext(context.Background())
}

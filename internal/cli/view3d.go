package cli

import (
	"github.com/spf13/cobra"

	"dicomviz/pkg/config"
	"dicomviz/pkg/pipeline"
)

// view3DOpts holds the command-line flags for the view3d command.
type view3DOpts struct {
	folder        string
	output        string
	imageSize     int
	frameCount    int
	isoPercentile float64
	urlPrefix     string
}

func newView3DCmd() *cobra.Command {
	defaults := config.DefaultConfig()
	opts := view3DOpts{
		output:        "static/results",
		imageSize:     defaults.Render.ImageSize,
		frameCount:    defaults.Render.FrameCount,
		isoPercentile: defaults.Render.IsoPercentile,
		urlPrefix:     "/static/results/",
	}

	cmd := &cobra.Command{
		Use:   "view3d",
		Short: "Render isosurface snapshots and a rotation sequence",
		Long: `Extract an isosurface from the stacked volume and render it from a
fixed set of viewpoints, plus an animated rotation sequence and an HTML
viewer page. Falls back to direct volume rendering when no surface can
be extracted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			_, err := pipeline.Run3D(pipeline.Options{
				InputDir:      opts.folder,
				OutputDir:     opts.output,
				ImageSize:     opts.imageSize,
				FrameCount:    opts.frameCount,
				IsoPercentile: opts.isoPercentile,
				URLPrefix:     opts.urlPrefix,
				Log:           logger,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&opts.folder, "folder", "", "directory containing DICOM slice files")
	cmd.Flags().StringVarP(&opts.output, "output", "o", opts.output, "output directory for rendered images")
	cmd.Flags().IntVar(&opts.imageSize, "size", opts.imageSize, "square pixel size of the rendered snapshots")
	cmd.Flags().IntVar(&opts.frameCount, "frame-count", opts.frameCount, "number of frames in the rotation sequence")
	cmd.Flags().Float64Var(&opts.isoPercentile, "iso-percentile", opts.isoPercentile, "intensity percentile of the isosurface threshold")
	cmd.Flags().StringVar(&opts.urlPrefix, "url-prefix", opts.urlPrefix, "URL prefix of artifact links in the viewer page")
	_ = cmd.MarkFlagRequired("folder")

	return cmd
}

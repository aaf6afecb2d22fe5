package cli

import (
	"github.com/spf13/cobra"

	"dicomviz/internal/models"
	"dicomviz/pkg/config"
	"dicomviz/pkg/pipeline"
)

// view2DOpts holds the command-line flags for the view2d command.
type view2DOpts struct {
	folder     string
	output     string
	center     float64
	width      float64
	opacity    float64
	orthogonal bool
	frames     bool
	frameCount int
}

func newView2DCmd() *cobra.Command {
	defaults := config.DefaultConfig()
	opts := view2DOpts{
		output:     "static/results",
		center:     defaults.Window.Center,
		width:      defaults.Window.Width,
		opacity:    defaults.Window.Opacity,
		orthogonal: true,
		frameCount: defaults.Render.FrameCount,
	}

	cmd := &cobra.Command{
		Use:   "view2d",
		Short: "Render windowed slice views from a DICOM series",
		Long: `Render the middle slice of a DICOM series with CT windowing applied,
plus an axial/coronal/sagittal composite and, optionally, an annotated
rotation frame sequence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			_, err := pipeline.Run2D(pipeline.Options{
				InputDir:   opts.folder,
				OutputDir:  opts.output,
				Window:     models.WindowParams{Center: opts.center, Width: opts.width},
				Opacity:    opts.opacity,
				Orthogonal: opts.orthogonal,
				Frames:     opts.frames,
				FrameCount: opts.frameCount,
				Log:        logger,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&opts.folder, "folder", "", "directory containing DICOM slice files")
	cmd.Flags().StringVarP(&opts.output, "output", "o", opts.output, "output directory for rendered images")
	cmd.Flags().Float64Var(&opts.center, "window-center", opts.center, "CT window center in Hounsfield units")
	cmd.Flags().Float64Var(&opts.width, "window-width", opts.width, "CT window width in Hounsfield units")
	cmd.Flags().Float64Var(&opts.opacity, "opacity", opts.opacity, "global opacity of the rendered slices")
	cmd.Flags().BoolVar(&opts.orthogonal, "orthogonal", opts.orthogonal, "also render the three-plane composite")
	cmd.Flags().BoolVar(&opts.frames, "frames", opts.frames, "also export the annotated rotation frame sequence")
	cmd.Flags().IntVar(&opts.frameCount, "frame-count", opts.frameCount, "number of frames in the rotation sequence")
	_ = cmd.MarkFlagRequired("folder")

	return cmd
}

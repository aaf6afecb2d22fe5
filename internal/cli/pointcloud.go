package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"dicomviz/pkg/config"
	"dicomviz/pkg/pipeline"
)

// pointCloudOpts holds the command-line flags for the pointcloud
// command.
type pointCloudOpts struct {
	folder    string
	stride    int
	threshold int
	keepProb  float64
	seed      int64
}

func newPointCloudCmd() *cobra.Command {
	defaults := config.DefaultConfig()
	opts := pointCloudOpts{
		stride:    defaults.PointCloud.Stride,
		threshold: defaults.PointCloud.Threshold,
		keepProb:  defaults.PointCloud.KeepProbability,
	}

	cmd := &cobra.Command{
		Use:   "pointcloud",
		Short: "Sample the volume into a sparse colored point cloud",
		Long: `Downsample the stacked volume into a sparse list of colored points
and write it as JSON on stdout, for consumption by browser-side 3D
viewers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			cloud, err := pipeline.RunPointCloud(pipeline.Options{
				InputDir:  opts.folder,
				Stride:    opts.stride,
				Threshold: opts.threshold,
				KeepProb:  opts.keepProb,
				Seed:      opts.seed,
				Log:       logger,
			})
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(cloud)
		},
	}

	cmd.Flags().StringVar(&opts.folder, "folder", "", "directory containing DICOM slice files")
	cmd.Flags().IntVar(&opts.stride, "stride", opts.stride, "voxel step per axis when downsampling")
	cmd.Flags().IntVar(&opts.threshold, "threshold", opts.threshold, "background cutoff in normalized intensity")
	cmd.Flags().Float64Var(&opts.keepProb, "keep", opts.keepProb, "probability of keeping a surviving voxel")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed for thinning (0 uses the clock)")
	_ = cmd.MarkFlagRequired("folder")

	return cmd
}

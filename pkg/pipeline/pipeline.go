// Package pipeline wires the loader, assembler, intensity mapper and
// renderers into the three invocation modes of the tool: 2D rendering,
// 3D rendering and point-cloud sampling. Each run fully loads,
// assembles, maps and renders before returning; no state survives
// between invocations.
package pipeline

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/stat"

	"dicomviz/internal/models"
	"dicomviz/pkg/loader"
	"dicomviz/pkg/mesh"
	"dicomviz/pkg/pointcloud"
	"dicomviz/pkg/render"
	"dicomviz/pkg/volume"
)

// Options configures one pipeline invocation.
type Options struct {
	// InputDir contains the DICOM slice files.
	InputDir string

	// OutputDir receives produced artifacts (file-producing modes).
	OutputDir string

	// Window and Opacity drive the 2D intensity mapping.
	Window  models.WindowParams
	Opacity float64

	// Orthogonal and Frames toggle the extra 2D artifacts.
	Orthogonal bool
	Frames     bool

	// ImageSize, FrameCount and IsoPercentile drive the 3D mode.
	ImageSize     int
	FrameCount    int
	IsoPercentile float64

	// URLPrefix prefixes artifact names in the generated viewer page.
	URLPrefix string

	// Stride, Threshold, KeepProb and Seed drive point-cloud sampling.
	// Seed zero means seed from the clock.
	Stride    int
	Threshold int
	KeepProb  float64
	Seed      int64

	// Log receives progress and warnings; nil uses the default logger.
	Log *log.Logger
}

func (o *Options) logger() *log.Logger {
	if o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// loadVolume runs the shared front half of every mode: scan the input
// directory, order the slices and stack them into a raw volume. The
// returned slices are sorted, with the reference slice first.
func loadVolume(opts *Options) (*models.Volume, []models.Slice, error) {
	logger := opts.logger()

	slices, err := loader.New(logger).LoadDirectory(opts.InputDir)
	if err != nil {
		return nil, nil, err
	}

	vol, err := volume.NewAssembler(logger).Assemble(slices)
	if err != nil {
		return nil, nil, err
	}
	return vol, slices, nil
}

// Run2D renders the current-session slice view and, optionally, the
// orthogonal triple view and the annotated rotation frame sequence.
// Returns the paths of the artifacts written.
func Run2D(opts Options) ([]string, error) {
	logger := opts.logger()

	vol, slices, err := loadVolume(&opts)
	if err != nil {
		return nil, err
	}
	volume.ApplyHounsfield(vol, slices, logger)

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var artifacts []string

	session := render.NewSession(vol)
	if opts.Window.Width > 0 {
		session.SetWindow(opts.Window)
	}
	opacity := opts.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 1.0
	}
	session.SetOpacity(opacity)

	sliceView := filepath.Join(opts.OutputDir, "slice_view.png")
	if err := render.SavePNG(session.Image(), sliceView); err != nil {
		return artifacts, err
	}
	artifacts = append(artifacts, sliceView)
	logger.Info("wrote slice view", "file", sliceView, "slice", session.SliceIndex())

	if opts.Orthogonal {
		composite, err := render.OrthogonalView(vol, session.Window(), opacity)
		if err != nil {
			return artifacts, err
		}
		multiView := filepath.Join(opts.OutputDir, "multi_view.png")
		if err := render.SavePNG(composite, multiView); err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, multiView)
		logger.Info("wrote orthogonal view", "file", multiView)
	}

	if opts.Frames {
		framesDir := filepath.Join(opts.OutputDir, "ct_frames")
		if err := render.ExportRotationFrames(vol, session.Window(), opacity, framesDir, opts.FrameCount); err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, framesDir)
		logger.Info("wrote rotation frames", "dir", framesDir)
	}

	return artifacts, nil
}

// Run3D renders surface snapshots from the named viewpoints plus a
// rotation GIF, falling back to direct volume rendering and finally to
// a placeholder image, so the mode always terminates with at least one
// artifact. A failure of one viewpoint aborts only that viewpoint.
func Run3D(opts Options) ([]string, error) {
	logger := opts.logger()

	vol, _, err := loadVolume(&opts)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	norm := volume.Normalize255(vol)
	field := make([]float64, len(norm))
	for i, v := range norm {
		field[i] = float64(v)
	}

	urlPrefix := opts.URLPrefix
	if urlPrefix == "" {
		urlPrefix = "/static/results/"
	}

	var artifacts, views []string

	surface, err := buildSurfaceRenderer(field, vol, opts, logger)
	if err != nil {
		logger.Warn("surface extraction failed, falling back to volume rendering", "err", err)
	} else {
		for _, vp := range render.NamedViewpoints {
			path := filepath.Join(opts.OutputDir, fmt.Sprintf("3d_hologram_%s.png", vp.Name))
			if err := renderViewpoint(surface, vp, path); err != nil {
				logger.Warn("viewpoint render failed", "view", vp.Name, "err", err)
				continue
			}
			artifacts = append(artifacts, path)
			views = append(views, urlPrefix+filepath.Base(path))
		}

		gifPath := filepath.Join(opts.OutputDir, "3d_hologram.gif")
		if err := surface.RenderRotationGIF(gifPath, opts.FrameCount); err != nil {
			logger.Warn("rotation sequence failed", "err", err)
		} else {
			artifacts = append(artifacts, gifPath)
			views = append(views, urlPrefix+filepath.Base(gifPath))
		}
	}

	primary := filepath.Join(opts.OutputDir, "3d_hologram.png")
	switch {
	case surface != nil && len(artifacts) > 0:
		if err := renderViewpoint(surface, render.NamedViewpoints[0], primary); err != nil {
			logger.Warn("primary snapshot failed", "err", err)
		} else {
			artifacts = append(artifacts, primary)
			views = append(views, urlPrefix+filepath.Base(primary))
		}
	default:
		img, err := render.RenderVolumeDirect(norm, vol.Width, vol.Height, vol.Depth)
		if err != nil {
			logger.Error("volume rendering fallback failed, emitting placeholder", "err", err)
			img = render.FailurePlaceholder(opts.ImageSize)
		}
		if err := render.SavePNG(img, primary); err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, primary)
		views = append(views, urlPrefix+filepath.Base(primary))
	}

	viewerPath := filepath.Join(opts.OutputDir, "viewer.html")
	if err := render.WriteViewerHTML(viewerPath, views); err != nil {
		logger.Warn("viewer page failed", "err", err)
	} else {
		artifacts = append(artifacts, viewerPath)
	}

	logger.Info("3D rendering complete", "artifacts", len(artifacts))
	return artifacts, nil
}

// buildSurfaceRenderer extracts the isosurface at the configured
// percentile of the normalized intensity distribution and wraps it in a
// renderer.
func buildSurfaceRenderer(field []float64, vol *models.Volume, opts Options, logger *log.Logger) (*render.SurfaceRenderer, error) {
	pct := opts.IsoPercentile
	if pct <= 0 || pct >= 1 {
		pct = 0.75
	}

	sorted := make([]float64, len(field))
	copy(sorted, field)
	sort.Float64s(sorted)
	iso := stat.Quantile(pct, stat.Empirical, sorted, nil)
	logger.Debug("isosurface threshold", "percentile", pct, "value", iso)

	tris, err := mesh.NewIsoSurface(field, vol.Width, vol.Height, vol.Depth, iso).Triangles()
	if err != nil {
		return nil, err
	}
	logger.Info("extracted isosurface", "triangles", len(tris), "iso", iso)

	return render.NewSurfaceRenderer(tris, opts.ImageSize, logger)
}

// renderViewpoint renders one named viewpoint to path, converting any
// panic in the rasteriser into an error so a single bad view cannot
// abort its siblings.
func renderViewpoint(r *render.SurfaceRenderer, vp render.Viewpoint, path string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &render.RenderFailedError{Stage: vp.Name, Err: fmt.Errorf("%v", rec)}
		}
	}()
	return render.SavePNG(r.Render(vp.Azimuth, vp.Elevation), path)
}

// RunPointCloud samples the normalized volume into a sparse colored
// point list.
func RunPointCloud(opts Options) (models.PointCloud, error) {
	vol, _, err := loadVolume(&opts)
	if err != nil {
		return models.PointCloud{}, err
	}
	norm := volume.Normalize255(vol)

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	sampler := pointcloud.New(opts.Stride, opts.Threshold, opts.KeepProb, rng)
	cloud := sampler.Sample(norm, vol.Width, vol.Height, vol.Depth)
	opts.logger().Info("sampled point cloud", "points", len(cloud.Points),
		"dims", fmt.Sprintf("%dx%dx%d", cloud.Dims[0], cloud.Dims[1], cloud.Dims[2]))
	return cloud, nil
}

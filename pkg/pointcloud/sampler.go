// Package pointcloud downsamples a normalized volume into a sparse
// colored point list for lightweight client-side 3D display.
package pointcloud

import (
	"math/rand"

	"dicomviz/internal/models"
)

// Defaults chosen to keep browser-side point counts manageable on
// typical CT series.
const (
	DefaultStride    = 4
	DefaultThreshold = 50
	DefaultKeepProb  = 0.3
)

// Color bands by intensity tier of the normalized [0,255] volume.
var (
	colorLow  = [3]float64{0.2, 0.5, 0.8}
	colorMid  = [3]float64{0.9, 0.3, 0.3}
	colorHigh = [3]float64{0.9, 0.9, 0.2}
)

// Sampler extracts a thinned point cloud from a normalized volume. The
// random source drives the probabilistic thinning and is injected so
// callers can pin a seed for reproducible output.
type Sampler struct {
	Stride    int
	Threshold uint8
	KeepProb  float64
	rng       *rand.Rand
}

// New creates a Sampler with the given thinning source. Non-positive
// stride, zero threshold or out-of-range probability fall back to the
// defaults.
func New(stride int, threshold int, keepProb float64, rng *rand.Rand) *Sampler {
	if stride <= 0 {
		stride = DefaultStride
	}
	if threshold <= 0 || threshold > 255 {
		threshold = DefaultThreshold
	}
	if keepProb <= 0 || keepProb > 1 {
		keepProb = DefaultKeepProb
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Sampler{Stride: stride, Threshold: uint8(threshold), KeepProb: keepProb, rng: rng}
}

// Sample walks the volume at the configured stride, drops voxels at or
// below the background threshold, keeps each survivor with probability
// KeepProb and colors it by intensity tier. Point coordinates are
// indices into the downsampled grid whose extents are reported in Dims.
// A volume with nothing above threshold yields empty lists, not an
// error.
func (s *Sampler) Sample(norm []uint8, width, height, depth int) models.PointCloud {
	nx := sampledExtent(width, s.Stride)
	ny := sampledExtent(height, s.Stride)
	nz := sampledExtent(depth, s.Stride)

	cloud := models.PointCloud{
		Points: make([][3]int, 0),
		Colors: make([][3]float64, 0),
		Dims:   [3]int{nx, ny, nz},
	}

	for sz := 0; sz < nz; sz++ {
		for sy := 0; sy < ny; sy++ {
			for sx := 0; sx < nx; sx++ {
				v := norm[(sz*s.Stride)*width*height+(sy*s.Stride)*width+sx*s.Stride]
				if v <= s.Threshold {
					continue
				}
				if s.rng.Float64() > s.KeepProb {
					continue
				}

				cloud.Points = append(cloud.Points, [3]int{sx, sy, sz})
				switch {
				case v < 100:
					cloud.Colors = append(cloud.Colors, colorLow)
				case v < 200:
					cloud.Colors = append(cloud.Colors, colorMid)
				default:
					cloud.Colors = append(cloud.Colors, colorHigh)
				}
			}
		}
	}
	return cloud
}

// sampledExtent is the number of voxels a strided walk visits along one
// axis of the given extent.
func sampledExtent(extent, stride int) int {
	if extent <= 0 {
		return 0
	}
	return (extent + stride - 1) / stride
}

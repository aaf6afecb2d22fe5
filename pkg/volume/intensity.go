package volume

import (
	"image"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"

	"dicomviz/internal/models"
)

// ApplyHounsfield converts the raw volume to Hounsfield units in place
// using hu = raw*slope + intercept. The coefficients come from the
// reference (first, post-sort) slice and are applied volume-wide even
// when later slices carry different values; that matches the historic
// behaviour of this pipeline and is only surfaced as a warning here.
// Missing coefficients default to slope=1, intercept=0.
func ApplyHounsfield(vol *models.Volume, slices []models.Slice, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	slope, intercept := 1.0, 0.0
	if len(slices) > 0 {
		ref := slices[0].Meta
		if ref.RescaleSlope != nil {
			slope = *ref.RescaleSlope
		}
		if ref.RescaleIntercept != nil {
			intercept = *ref.RescaleIntercept
		}
		if ref.RescaleSlope == nil && ref.RescaleIntercept == nil {
			logger.Warn("no rescale metadata, using raw pixel values")
		}
		for i := 1; i < len(slices); i++ {
			m := slices[i].Meta
			if (m.RescaleSlope != nil && *m.RescaleSlope != slope) ||
				(m.RescaleIntercept != nil && *m.RescaleIntercept != intercept) {
				logger.Warn("per-slice rescale coefficients differ, applying reference values volume-wide",
					"reference", slices[0].Filename, "divergent", slices[i].Filename)
				break
			}
		}
	}

	if slope == 1 && intercept == 0 {
		return
	}
	for i, v := range vol.Data {
		vol.Data[i] = v*slope + intercept
	}
}

// WindowImage maps one plane of intensity values to a transparent
// grayscale image using the CT window [center-width/2, center+width/2].
// Values are clipped into the window and normalized to [0,1]; the alpha
// channel is the normalized value scaled by opacity, so low-intensity
// tissue renders more transparent. A degenerate window (high == low)
// yields a fully black, fully transparent image of the correct shape.
func WindowImage(plane []float64, width, height int, p models.WindowParams, opacity float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	low := p.Center - p.Width/2
	high := p.Center + p.Width/2
	if high == low {
		return img
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := plane[y*width+x]
			if v < low {
				v = low
			} else if v > high {
				v = high
			}
			n := (v - low) / (high - low)

			g := uint8(n*255 + 0.5)
			a := uint8(n*opacity*255 + 0.5)
			o := y*img.Stride + 4*x
			img.Pix[o] = g
			img.Pix[o+1] = g
			img.Pix[o+2] = g
			img.Pix[o+3] = a
		}
	}
	return img
}

// Normalize255 linearly rescales the whole volume to [0,255] using the
// global minimum and maximum, for the 3D and point-cloud paths. A
// constant-valued volume yields all zeros rather than dividing by zero.
func Normalize255(vol *models.Volume) []uint8 {
	out := make([]uint8, len(vol.Data))
	if len(vol.Data) == 0 {
		return out
	}

	lo := floats.Min(vol.Data)
	hi := floats.Max(vol.Data)
	if hi == lo {
		return out
	}

	scale := 255 / (hi - lo)
	for i, v := range vol.Data {
		out[i] = uint8((v-lo)*scale + 0.5)
	}
	return out
}

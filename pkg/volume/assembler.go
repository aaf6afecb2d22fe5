// Package volume assembles ordered 2D slices into a 3D scalar field and
// maps raw sample intensities to display values: Hounsfield rescale, CT
// windowing and full-range normalization.
package volume

import (
	"fmt"
	"image"
	"sort"

	"github.com/charmbracelet/log"
	"golang.org/x/image/draw"

	"dicomviz/internal/models"
)

// DimensionMismatchError reports a slice that could not be resampled to
// the reference in-plane shape.
type DimensionMismatchError struct {
	File               string
	WantRows, WantCols int
	GotRows, GotCols   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("slice %s: cannot resample %dx%d to reference shape %dx%d",
		e.File, e.GotRows, e.GotCols, e.WantRows, e.WantCols)
}

// Assembler stacks slices into a Volume.
type Assembler struct {
	log *log.Logger
}

// NewAssembler creates an Assembler. A nil logger falls back to the
// process default.
func NewAssembler(logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.Default()
	}
	return &Assembler{log: logger}
}

// Assemble sorts the slices ascending by ordering key (stable, ties keep
// read order), resamples any slice whose in-plane shape differs from the
// first slice's, and stacks them along z. The input slice is reordered in
// place so that slices[0] is the reference slice afterwards.
//
// Voxel spacing comes from the reference slice's PixelSpacing and
// SliceThickness when present, otherwise defaults to 1mm with a logged
// warning.
func (a *Assembler) Assemble(slices []models.Slice) (*models.Volume, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("no slices to assemble")
	}

	sort.SliceStable(slices, func(i, j int) bool {
		if slices[i].Key != slices[j].Key {
			return slices[i].Key < slices[j].Key
		}
		return slices[i].ReadIndex < slices[j].ReadIndex
	})

	ref := &slices[0]
	if ref.Rows <= 0 || ref.Cols <= 0 {
		return nil, &DimensionMismatchError{
			File:     ref.Filename,
			GotRows:  ref.Rows,
			GotCols:  ref.Cols,
			WantRows: ref.Rows,
			WantCols: ref.Cols,
		}
	}

	width, height, depth := ref.Cols, ref.Rows, len(slices)
	vol := &models.Volume{
		Data:    make([]float64, width*height*depth),
		Width:   width,
		Height:  height,
		Depth:   depth,
		Spacing: [3]float64{1, 1, 1},
	}

	for z := range slices {
		s := &slices[z]
		pixels := s.Pixels
		if s.Rows != height || s.Cols != width {
			resampled, err := resample(s, height, width)
			if err != nil {
				return nil, err
			}
			a.log.Warn("resampled slice to reference shape",
				"file", s.Filename, "from", fmt.Sprintf("%dx%d", s.Rows, s.Cols),
				"to", fmt.Sprintf("%dx%d", height, width))
			pixels = resampled
		}

		base := z * width * height
		for i, p := range pixels {
			vol.Data[base+i] = float64(p)
		}
	}

	if ref.Meta.PixelSpacing != nil && ref.Meta.SliceThickness != nil {
		vol.Spacing = [3]float64{
			ref.Meta.PixelSpacing[0],
			ref.Meta.PixelSpacing[1],
			*ref.Meta.SliceThickness,
		}
	} else {
		a.log.Warn("spacing metadata missing, assuming 1mm voxels", "file", ref.Filename)
	}

	a.log.Info("assembled volume",
		"shape", fmt.Sprintf("%dx%dx%d", width, height, depth),
		"spacing", fmt.Sprintf("%.2f/%.2f/%.2f", vol.Spacing[0], vol.Spacing[1], vol.Spacing[2]),
		"order", slices[0].Source.String())
	return vol, nil
}

// resample scales a slice's pixel grid to rows x cols with bilinear
// interpolation. Interpolation only ever produces values between
// existing neighbours, so the original value range is preserved.
func resample(s *models.Slice, rows, cols int) ([]int32, error) {
	if s.Rows <= 0 || s.Cols <= 0 || len(s.Pixels) < s.Rows*s.Cols {
		return nil, &DimensionMismatchError{
			File:     s.Filename,
			WantRows: rows,
			WantCols: cols,
			GotRows:  s.Rows,
			GotCols:  s.Cols,
		}
	}

	src := image.NewGray16(image.Rect(0, 0, s.Cols, s.Rows))
	for y := 0; y < s.Rows; y++ {
		for x := 0; x < s.Cols; x++ {
			v := s.Pixels[y*s.Cols+x]
			src.Pix[y*src.Stride+2*x] = uint8(v >> 8)
			src.Pix[y*src.Stride+2*x+1] = uint8(v)
		}
	}

	dst := image.NewGray16(image.Rect(0, 0, cols, rows))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]int32, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			hi := uint16(dst.Pix[y*dst.Stride+2*x])
			lo := uint16(dst.Pix[y*dst.Stride+2*x+1])
			out[y*cols+x] = int32(hi<<8 | lo)
		}
	}
	return out, nil
}

package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"dicomviz/internal/models"
	"dicomviz/pkg/volume"
)

// Axis selects the plane orientation when extracting 2D slices from the
// volume.
type Axis int

const (
	// AxisZ extracts an axial (XY) plane.
	AxisZ Axis = iota
	// AxisY extracts a coronal (XZ) plane.
	AxisY
	// AxisX extracts a sagittal (YZ) plane.
	AxisX
)

// ExtractPlane pulls one 2D plane of intensities out of the volume at
// the given position along the axis. The returned plane is row-major
// with the reported width and height.
func ExtractPlane(vol *models.Volume, axis Axis, position int) (plane []float64, width, height int, err error) {
	switch axis {
	case AxisZ:
		if position < 0 || position >= vol.Depth {
			return nil, 0, 0, fmt.Errorf("axial position %d outside depth %d", position, vol.Depth)
		}
		return vol.SliceData(position), vol.Width, vol.Height, nil

	case AxisY:
		if position < 0 || position >= vol.Height {
			return nil, 0, 0, fmt.Errorf("coronal position %d outside height %d", position, vol.Height)
		}
		plane = make([]float64, vol.Width*vol.Depth)
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				plane[z*vol.Width+x] = vol.At(x, position, z)
			}
		}
		return plane, vol.Width, vol.Depth, nil

	case AxisX:
		if position < 0 || position >= vol.Width {
			return nil, 0, 0, fmt.Errorf("sagittal position %d outside width %d", position, vol.Width)
		}
		plane = make([]float64, vol.Height*vol.Depth)
		for z := 0; z < vol.Depth; z++ {
			for y := 0; y < vol.Height; y++ {
				plane[z*vol.Height+y] = vol.At(position, y, z)
			}
		}
		return plane, vol.Height, vol.Depth, nil
	}
	return nil, 0, 0, fmt.Errorf("invalid axis %d", axis)
}

// OrthogonalView renders the middle axial, coronal and sagittal planes
// side by side in a single 1x3 composite, each windowed with the same
// parameters on a black background.
func OrthogonalView(vol *models.Volume, win models.WindowParams, opacity float64) (*image.NRGBA, error) {
	positions := []struct {
		axis Axis
		pos  int
	}{
		{AxisZ, vol.Depth / 2},
		{AxisY, vol.Height / 2},
		{AxisX, vol.Width / 2},
	}

	var panels []*image.NRGBA
	maxH, totalW := 0, 0
	for _, p := range positions {
		plane, w, h, err := ExtractPlane(vol, p.axis, p.pos)
		if err != nil {
			return nil, err
		}
		panel := volume.WindowImage(plane, w, h, win, opacity)
		panels = append(panels, panel)
		if h > maxH {
			maxH = h
		}
		totalW += w
	}

	const gap = 4
	composite := image.NewNRGBA(image.Rect(0, 0, totalW+gap*(len(panels)-1), maxH))
	draw.Draw(composite, composite.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	offset := 0
	for _, panel := range panels {
		b := panel.Bounds()
		top := (maxH - b.Dy()) / 2
		dst := image.Rect(offset, top, offset+b.Dx(), top+b.Dy())
		draw.Draw(composite, dst, panel, b.Min, draw.Over)
		offset += b.Dx() + gap
	}
	return composite, nil
}

// Package render turns an assembled volume into output artifacts: a
// windowed slice view, an orthogonal triple view, annotated rotation
// frames, and 3D surface or volume snapshots from fixed camera
// viewpoints. Nothing in this package opens a display surface; every
// mode renders into plain images suitable for headless batch use.
package render

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"dicomviz/internal/models"
	"dicomviz/pkg/volume"
)

// Session holds the state of one interactive 2D viewing session: the
// volume, the current slice index and the current window parameters.
// Parameter changes recompute the windowed image and return it; the
// session never retains intermediate frames.
type Session struct {
	vol     *models.Volume
	idx     int
	win     models.WindowParams
	opacity float64
}

// NewSession starts a session on the middle slice with the default
// CT window and full opacity.
func NewSession(vol *models.Volume) *Session {
	return &Session{
		vol:     vol,
		idx:     vol.Depth / 2,
		win:     models.DefaultWindow,
		opacity: 1.0,
	}
}

// SliceIndex returns the current slice index.
func (s *Session) SliceIndex() int { return s.idx }

// Window returns the current window parameters.
func (s *Session) Window() models.WindowParams { return s.win }

// SetOpacity sets the global opacity factor and returns the image
// rendered with the new value.
func (s *Session) SetOpacity(opacity float64) *image.NRGBA {
	s.opacity = opacity
	return s.Image()
}

// SetSlice moves the session to slice i, clamped to the valid range,
// and returns the freshly windowed image.
func (s *Session) SetSlice(i int) *image.NRGBA {
	if i < 0 {
		i = 0
	} else if i >= s.vol.Depth {
		i = s.vol.Depth - 1
	}
	s.idx = i
	return s.Image()
}

// SetWindow updates the window center/width and returns the freshly
// windowed image.
func (s *Session) SetWindow(p models.WindowParams) *image.NRGBA {
	s.win = p
	return s.Image()
}

// Image renders the current slice with the current parameters.
func (s *Session) Image() *image.NRGBA {
	plane := s.vol.SliceData(s.idx)
	return volume.WindowImage(plane, s.vol.Width, s.vol.Height, s.win, s.opacity)
}

// SavePNG writes img to path, creating the file.
func SavePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

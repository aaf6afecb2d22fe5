package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"dicomviz/internal/models"
	"dicomviz/pkg/volume"
)

// DefaultFrameCount is the number of frames in a full rotation
// sequence, 10 degrees per frame.
const DefaultFrameCount = 36

// ExportRotationFrames emits frameCount annotated frames into outDir as
// frame_000.png .. frame_NNN.png. Frame i shows slice i modulo the
// volume depth, wrapping when the frame count exceeds the slice count,
// with a faint grid overlay and angle/frame/slice text.
func ExportRotationFrames(vol *models.Volume, win models.WindowParams, opacity float64, outDir string, frameCount int) error {
	if frameCount <= 0 {
		frameCount = DefaultFrameCount
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating frames directory: %w", err)
	}

	degreesPerFrame := 360 / frameCount
	for i := 0; i < frameCount; i++ {
		sliceIdx := i % vol.Depth
		plane := vol.SliceData(sliceIdx)
		windowed := volume.WindowImage(plane, vol.Width, vol.Height, win, opacity)

		frame := image.NewNRGBA(windowed.Bounds())
		draw.Draw(frame, frame.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		draw.Draw(frame, frame.Bounds(), windowed, windowed.Bounds().Min, draw.Over)

		drawGrid(frame)
		annotate(frame, []string{
			fmt.Sprintf("Angle: %d deg", i*degreesPerFrame),
			fmt.Sprintf("Frame: %d/%d", i+1, frameCount),
			fmt.Sprintf("Slice: %d/%d", sliceIdx+1, vol.Depth),
		})

		name := filepath.Join(outDir, fmt.Sprintf("frame_%03d.png", i))
		if err := SavePNG(frame, name); err != nil {
			return err
		}
	}
	return nil
}

// drawGrid overlays faint white lines at every tenth of the image.
func drawGrid(img *image.NRGBA) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stepY, stepX := h/10, w/10
	if stepY < 1 {
		stepY = 1
	}
	if stepX < 1 {
		stepX = 1
	}

	faint := color.NRGBA{R: 255, G: 255, B: 255, A: 51}
	for y := 0; y < h; y += stepY {
		for x := 0; x < w; x++ {
			blend(img, x, y, faint)
		}
	}
	for x := 0; x < w; x += stepX {
		for y := 0; y < h; y++ {
			blend(img, x, y, faint)
		}
	}
}

// blend draws c over the pixel at (x, y) with source-over compositing.
func blend(img *image.NRGBA, x, y int, c color.NRGBA) {
	o := y*img.Stride + 4*x
	a := uint32(c.A)
	img.Pix[o] = uint8((uint32(c.R)*a + uint32(img.Pix[o])*(255-a)) / 255)
	img.Pix[o+1] = uint8((uint32(c.G)*a + uint32(img.Pix[o+1])*(255-a)) / 255)
	img.Pix[o+2] = uint8((uint32(c.B)*a + uint32(img.Pix[o+2])*(255-a)) / 255)
	if img.Pix[o+3] < c.A {
		img.Pix[o+3] = 255
	}
}

// annotate writes the lines bottom-up in the lower-left corner.
func annotate(img *image.NRGBA, lines []string) {
	face := basicfont.Face7x13
	b := img.Bounds()
	y := b.Max.Y - 8
	for _, line := range lines {
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.White),
			Face: face,
			Dot:  fixed.P(b.Min.X+8, y),
		}
		d.DrawString(line)
		y -= face.Metrics().Height.Ceil() + 2
	}
}

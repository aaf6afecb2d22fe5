package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"math"
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/spatial/r3"

	"dicomviz/pkg/mesh"
)

// RenderFailedError reports that a 3D rendering stage failed after its
// fallback was exhausted.
type RenderFailedError struct {
	Stage string
	Err   error
}

func (e *RenderFailedError) Error() string {
	return fmt.Sprintf("rendering failed at %s: %v", e.Stage, e.Err)
}

func (e *RenderFailedError) Unwrap() error { return e.Err }

// Viewpoint is a named fixed camera position, in degrees.
type Viewpoint struct {
	Name      string
	Azimuth   float64
	Elevation float64
}

// NamedViewpoints is the fixed sequence of snapshot cameras: straight
// on, two oblique views and a top-down view.
var NamedViewpoints = []Viewpoint{
	{Name: "front", Azimuth: 0, Elevation: 0},
	{Name: "angle1", Azimuth: 45, Elevation: 20},
	{Name: "angle2", Azimuth: 90, Elevation: 20},
	{Name: "top", Azimuth: 0, Elevation: 90},
}

// SurfaceRenderer rasterises a triangle mesh with an orthographic
// camera, a depth buffer and headlight shading. The background is left
// transparent so snapshots compose over any page background.
type SurfaceRenderer struct {
	tris   []mesh.Triangle
	center r3.Vec
	radius float64
	size   int
	log    *log.Logger
}

// NewSurfaceRenderer prepares a renderer producing size x size images.
// Returns an error when the mesh is empty.
func NewSurfaceRenderer(tris []mesh.Triangle, size int, logger *log.Logger) (*SurfaceRenderer, error) {
	if len(tris) == 0 {
		return nil, fmt.Errorf("empty mesh")
	}
	if logger == nil {
		logger = log.Default()
	}
	if size <= 0 {
		size = 800
	}

	// Bounding sphere of the mesh fixes the camera distance and the
	// orthographic scale for every viewpoint.
	min := tris[0].V0
	max := tris[0].V0
	for _, t := range tris {
		for _, v := range []r3.Vec{t.V0, t.V1, t.V2} {
			min.X = math.Min(min.X, v.X)
			min.Y = math.Min(min.Y, v.Y)
			min.Z = math.Min(min.Z, v.Z)
			max.X = math.Max(max.X, v.X)
			max.Y = math.Max(max.Y, v.Y)
			max.Z = math.Max(max.Z, v.Z)
		}
	}
	center := r3.Scale(0.5, r3.Add(min, max))
	radius := 0.5 * r3.Norm(r3.Sub(max, min))
	if radius == 0 {
		return nil, fmt.Errorf("degenerate mesh extent")
	}

	return &SurfaceRenderer{
		tris:   tris,
		center: center,
		radius: radius,
		size:   size,
		log:    logger,
	}, nil
}

// Render draws the mesh from the given camera angles. Azimuth rotates
// around the volume's z axis, elevation lifts the camera toward +z.
func (r *SurfaceRenderer) Render(azimuthDeg, elevationDeg float64) *image.NRGBA {
	az := azimuthDeg * math.Pi / 180
	el := elevationDeg * math.Pi / 180

	eyeDir := r3.Vec{
		X: math.Sin(az) * math.Cos(el),
		Y: -math.Cos(az) * math.Cos(el),
		Z: math.Sin(el),
	}
	forward := r3.Scale(-1, eyeDir)

	up := r3.Vec{Z: 1}
	if math.Abs(r3.Dot(forward, up)) > 0.99 {
		up = r3.Vec{Y: 1}
	}
	right := r3.Unit(r3.Cross(forward, up))
	upv := r3.Cross(right, forward)

	img := image.NewNRGBA(image.Rect(0, 0, r.size, r.size))
	depth := make([]float64, r.size*r.size)
	for i := range depth {
		depth[i] = math.Inf(1)
	}

	scale := float64(r.size) * 0.45 / r.radius
	half := float64(r.size) / 2

	project := func(v r3.Vec) (px, py, pz float64) {
		d := r3.Sub(v, r.center)
		return half + r3.Dot(d, right)*scale,
			half - r3.Dot(d, upv)*scale,
			r3.Dot(d, forward)
	}

	for _, t := range r.tris {
		// Headlight shading with a soft ambient floor.
		lambert := math.Max(0, r3.Dot(t.Normal, r3.Scale(-1, forward)))
		shade := 0.3 + 0.7*lambert
		c := uint8(255 * shade)

		x0, y0, z0 := project(t.V0)
		x1, y1, z1 := project(t.V1)
		x2, y2, z2 := project(t.V2)
		r.fillTriangle(img, depth, x0, y0, z0, x1, y1, z1, x2, y2, z2, c)
	}
	return img
}

// fillTriangle rasterises one shaded triangle with barycentric
// coverage tests and per-pixel depth interpolation.
func (r *SurfaceRenderer) fillTriangle(img *image.NRGBA, depth []float64,
	x0, y0, z0, x1, y1, z1, x2, y2, z2 float64, shade uint8) {

	area := (x1-x0)*(y2-y0) - (x2-x0)*(y1-y0)
	if area == 0 {
		return
	}

	minX := int(math.Max(0, math.Floor(math.Min(x0, math.Min(x1, x2)))))
	maxX := int(math.Min(float64(r.size-1), math.Ceil(math.Max(x0, math.Max(x1, x2)))))
	minY := int(math.Max(0, math.Floor(math.Min(y0, math.Min(y1, y2)))))
	maxY := int(math.Min(float64(r.size-1), math.Ceil(math.Max(y0, math.Max(y1, y2)))))

	for py := minY; py <= maxY; py++ {
		for px := minX; px <= maxX; px++ {
			cx, cy := float64(px)+0.5, float64(py)+0.5
			w0 := ((x1-cx)*(y2-cy) - (x2-cx)*(y1-cy)) / area
			w1 := ((x2-cx)*(y0-cy) - (x0-cx)*(y2-cy)) / area
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}

			z := w0*z0 + w1*z1 + w2*z2
			idx := py*r.size + px
			if z >= depth[idx] {
				continue
			}
			depth[idx] = z

			o := py*img.Stride + 4*px
			img.Pix[o] = shade
			img.Pix[o+1] = shade
			img.Pix[o+2] = shade
			img.Pix[o+3] = 255
		}
	}
}

// RenderRotationGIF renders a full 360-degree rotation as an animated
// GIF, rotating the camera by 360/frames degrees per frame at a fixed
// 20-degree elevation.
func (r *SurfaceRenderer) RenderRotationGIF(path string, frames int) error {
	if frames <= 0 {
		frames = DefaultFrameCount
	}

	palette := make(color.Palette, 256)
	for i := range palette {
		palette[i] = color.Gray{Y: uint8(i)}
	}

	anim := &gif.GIF{LoopCount: 0}
	step := 360.0 / float64(frames)
	for i := 0; i < frames; i++ {
		frame := r.Render(float64(i)*step, 20)

		paletted := image.NewPaletted(frame.Bounds(), palette)
		draw.Draw(paletted, paletted.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		draw.Draw(paletted, paletted.Bounds(), frame, frame.Bounds().Min, draw.Over)
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, 10)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := gif.EncodeAll(f, anim); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

// RenderVolumeDirect is the fallback when surface extraction produced
// nothing usable: front-to-back emission/absorption compositing of the
// normalized volume along the viewing axis, tinted with a bluish
// bone-like ramp.
func RenderVolumeDirect(norm []uint8, width, height, depth int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 || depth <= 0 || len(norm) < width*height*depth {
		return nil, fmt.Errorf("degenerate volume %dx%dx%d", width, height, depth)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var accR, accG, accB, accA float64
			for z := 0; z < depth && accA < 0.98; z++ {
				v := float64(norm[z*width*height+y*width+x]) / 255
				if v == 0 {
					continue
				}
				a := v * 0.08
				br, bg, bb := boneRamp(v)
				accR += (1 - accA) * a * br
				accG += (1 - accA) * a * bg
				accB += (1 - accA) * a * bb
				accA += (1 - accA) * a
			}

			o := y*img.Stride + 4*x
			img.Pix[o] = uint8(math.Min(255, accR*255))
			img.Pix[o+1] = uint8(math.Min(255, accG*255))
			img.Pix[o+2] = uint8(math.Min(255, accB*255))
			img.Pix[o+3] = uint8(math.Min(255, accA*255))
		}
	}
	return img, nil
}

// boneRamp maps a normalized intensity to a bluish grayscale, brighter
// values whitening toward the top of the ramp.
func boneRamp(t float64) (r, g, b float64) {
	r = math.Min(1, t*0.89)
	g = math.Min(1, t*0.89+0.03*math.Min(1, t*2))
	b = math.Min(1, t*1.09)
	return r, g, b
}

// FailurePlaceholder produces the terminal "rendering failed" artifact
// so callers always receive an image even when every render path broke.
func FailurePlaceholder(size int) *image.NRGBA {
	if size <= 0 {
		size = 800
	}
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	const msg = "3D rendering failed"
	face := basicfont.Face7x13
	w := font.MeasureString(face, msg).Ceil()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P((size-w)/2, size/2),
	}
	d.DrawString(msg)
	return img
}

// Package mesh extracts a triangle mesh approximating an isosurface of
// a 3D scalar field. Each grid cell is decomposed into six tetrahedra
// which are polygonized independently, producing a watertight surface
// without lookup tables.
package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Triangle is one facet of the extracted surface. The normal is unit
// length and points away from the region above the iso level.
type Triangle struct {
	V0, V1, V2 r3.Vec
	Normal     r3.Vec
}

// IsoSurface extracts triangles at a fixed intensity threshold from a
// volume stored flat in z-major order (index = z*width*height + y*width + x).
type IsoSurface struct {
	data                 []float64
	width, height, depth int
	iso                  float64
}

// NewIsoSurface creates an extractor over the given scalar field.
func NewIsoSurface(data []float64, width, height, depth int, iso float64) *IsoSurface {
	return &IsoSurface{data: data, width: width, height: height, depth: depth, iso: iso}
}

// corner offsets of a unit cell, indexed 0..7.
var cellCorners = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// six tetrahedra covering a cell, as corner indices. All share the
// 0-6 diagonal so neighbouring cells tile consistently.
var cellTetrahedra = [6][4]int{
	{0, 5, 1, 6},
	{0, 1, 2, 6},
	{0, 2, 3, 6},
	{0, 3, 7, 6},
	{0, 7, 4, 6},
	{0, 4, 5, 6},
}

// Triangles walks every cell of the volume and returns the extracted
// surface. An error is returned when the volume is too small to contain
// a single cell or the threshold intersects nothing.
func (s *IsoSurface) Triangles() ([]Triangle, error) {
	if s.width < 2 || s.height < 2 || s.depth < 2 {
		return nil, fmt.Errorf("volume %dx%dx%d too small for surface extraction",
			s.width, s.height, s.depth)
	}

	var tris []Triangle
	var pos [8]r3.Vec
	var val [8]float64

	for z := 0; z < s.depth-1; z++ {
		for y := 0; y < s.height-1; y++ {
			for x := 0; x < s.width-1; x++ {
				for i, c := range cellCorners {
					cx, cy, cz := x+c[0], y+c[1], z+c[2]
					pos[i] = r3.Vec{X: float64(cx), Y: float64(cy), Z: float64(cz)}
					val[i] = s.data[cz*s.width*s.height+cy*s.width+cx]
				}
				for _, tet := range cellTetrahedra {
					tris = s.polygonizeTetra(tris, &pos, &val, tet)
				}
			}
		}
	}

	if len(tris) == 0 {
		return nil, fmt.Errorf("iso level %.2f intersects no cells", s.iso)
	}
	return tris, nil
}

// polygonizeTetra emits zero, one or two triangles for one tetrahedron
// depending on which of its four corners sit above the iso level.
func (s *IsoSurface) polygonizeTetra(tris []Triangle, pos *[8]r3.Vec, val *[8]float64, tet [4]int) []Triangle {
	var above [4]bool
	count := 0
	for i, ci := range tet {
		if val[ci] > s.iso {
			above[i] = true
			count++
		}
	}

	edge := func(a, b int) r3.Vec {
		return s.interpolate(pos[tet[a]], pos[tet[b]], val[tet[a]], val[tet[b]])
	}

	switch count {
	case 0, 4:
		return tris

	case 1, 3:
		// One corner is isolated on its side of the surface; the cut is a
		// single triangle across the three edges meeting at that corner.
		iso3 := above
		if count == 3 {
			for i := range iso3 {
				iso3[i] = !iso3[i]
			}
		}
		var apex int
		for i, in := range iso3 {
			if in {
				apex = i
			}
		}
		others := make([]int, 0, 3)
		for i := 0; i < 4; i++ {
			if i != apex {
				others = append(others, i)
			}
		}
		tris = s.appendOriented(tris,
			edge(apex, others[0]), edge(apex, others[1]), edge(apex, others[2]))

	case 2:
		// Two corners on each side; the cut is a quad across four edges,
		// emitted as two triangles.
		var hi, lo []int
		for i := 0; i < 4; i++ {
			if above[i] {
				hi = append(hi, i)
			} else {
				lo = append(lo, i)
			}
		}
		a := edge(hi[0], lo[0])
		b := edge(hi[0], lo[1])
		c := edge(hi[1], lo[1])
		d := edge(hi[1], lo[0])
		tris = s.appendOriented(tris, a, b, c)
		tris = s.appendOriented(tris, a, c, d)
	}
	return tris
}

// interpolate finds the crossing point of the iso level along one edge.
func (s *IsoSurface) interpolate(p1, p2 r3.Vec, v1, v2 float64) r3.Vec {
	if v2 == v1 {
		return r3.Scale(0.5, r3.Add(p1, p2))
	}
	t := (s.iso - v1) / (v2 - v1)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return r3.Add(p1, r3.Scale(t, r3.Sub(p2, p1)))
}

// appendOriented adds a triangle with its normal flipped, if needed, to
// point down the field gradient (out of the solid). Degenerate slivers
// are dropped.
func (s *IsoSurface) appendOriented(tris []Triangle, a, b, c r3.Vec) []Triangle {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if r3.Norm(n) == 0 {
		return tris
	}
	n = r3.Unit(n)

	centroid := r3.Scale(1.0/3.0, r3.Add(a, r3.Add(b, c)))
	if r3.Dot(n, s.gradientAt(centroid)) > 0 {
		n = r3.Scale(-1, n)
		b, c = c, b
	}
	return append(tris, Triangle{V0: a, V1: b, V2: c, Normal: n})
}

// gradientAt estimates the field gradient near p with forward/backward
// differences, clamped at the volume boundary.
func (s *IsoSurface) gradientAt(p r3.Vec) r3.Vec {
	clamp := func(v, max int) int {
		if v < 0 {
			return 0
		}
		if v > max {
			return max
		}
		return v
	}
	x := clamp(int(p.X+0.5), s.width-1)
	y := clamp(int(p.Y+0.5), s.height-1)
	z := clamp(int(p.Z+0.5), s.depth-1)

	at := func(x, y, z int) float64 {
		return s.data[z*s.width*s.height+y*s.width+x]
	}
	return r3.Vec{
		X: at(clamp(x+1, s.width-1), y, z) - at(clamp(x-1, s.width-1), y, z),
		Y: at(x, clamp(y+1, s.height-1), z) - at(x, clamp(y-1, s.height-1), z),
		Z: at(x, y, clamp(z+1, s.depth-1)) - at(x, y, clamp(z-1, s.depth-1)),
	}
}

package models

import "fmt"

// OrderingSource identifies which metadata attribute supplied the
// ordering key of a slice. The loader tries sources in declared order
// and records the first one that was present, so callers can tell a
// spatially meaningful ordering from a directory-listing fallback.
type OrderingSource int

const (
	// OrderByPosition means the key came from the out-of-plane component
	// of ImagePositionPatient.
	OrderByPosition OrderingSource = iota

	// OrderByLocation means the key came from the SliceLocation scalar.
	OrderByLocation

	// OrderByInstance means the key came from the InstanceNumber integer.
	OrderByInstance

	// OrderByFileIndex means no spatial metadata was present and the key
	// is the slice's position in directory-listing order.
	OrderByFileIndex
)

// String returns a short human-readable name for logging.
func (s OrderingSource) String() string {
	switch s {
	case OrderByPosition:
		return "image-position"
	case OrderByLocation:
		return "slice-location"
	case OrderByInstance:
		return "instance-number"
	case OrderByFileIndex:
		return "file-index"
	}
	return fmt.Sprintf("OrderingSource(%d)", int(s))
}

// Metadata is the subset of DICOM attributes the pipeline reads.
// Every field is independently optional; a nil pointer means the
// attribute was absent or unparseable in the source file.
type Metadata struct {
	// ImagePositionPatient is the (x, y, z) position of the first pixel,
	// in mm. The z component orders slices along the scan axis.
	ImagePositionPatient *[3]float64

	// SliceLocation is the position of the slice plane in mm.
	SliceLocation *float64

	// InstanceNumber is the acquisition index of the slice.
	InstanceNumber *int

	// PixelSpacing is the in-plane (row, column) spacing in mm.
	PixelSpacing *[2]float64

	// SliceThickness is the nominal slice thickness in mm, used as the
	// inter-slice spacing of the assembled volume.
	SliceThickness *float64

	// RescaleSlope and RescaleIntercept map raw samples to Hounsfield
	// units via hu = raw*slope + intercept.
	RescaleSlope     *float64
	RescaleIntercept *float64
}

// Slice is one 2D cross-sectional image plane read from a single file.
// It is immutable once the loader returns it and is discarded after the
// assembler has stacked it into a Volume.
type Slice struct {
	// Filename is the base name of the source file.
	Filename string

	// Rows and Cols are the in-plane pixel dimensions.
	Rows, Cols int

	// Pixels holds the raw integer samples in row-major order,
	// before any rescale is applied.
	Pixels []int32

	// Key is the ordering key and Source says where it came from.
	Key    float64
	Source OrderingSource

	// ReadIndex is the position of the file in directory-listing order,
	// used to break ordering ties deterministically.
	ReadIndex int

	// Meta carries the optional per-slice DICOM attributes.
	Meta Metadata
}

// Volume is the 3D scalar field formed by stacking ordered slices.
// Data is a flat array in z-major order: index = z*Width*Height + y*Width + x,
// where z is the slice index, y the row and x the column.
type Volume struct {
	Data []float64

	// Width is the number of columns, Height the number of rows and
	// Depth the number of slices.
	Width, Height, Depth int

	// Spacing is the physical voxel size in mm: in-plane x and y
	// followed by the inter-slice spacing.
	Spacing [3]float64
}

// At returns the value at voxel (x, y, z). No bounds checking; callers
// iterate within the declared dimensions.
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[z*v.Width*v.Height+y*v.Width+x]
}

// SliceData copies the z-th plane into a freshly allocated buffer of
// Width*Height values.
func (v *Volume) SliceData(z int) []float64 {
	plane := make([]float64, v.Width*v.Height)
	copy(plane, v.Data[z*v.Width*v.Height:(z+1)*v.Width*v.Height])
	return plane
}

// WindowParams selects the intensity range mapped to the visible
// grayscale band. Values below Center-Width/2 render black, values
// above Center+Width/2 render white.
type WindowParams struct {
	Center float64
	Width  float64
}

// DefaultWindow is the viewer's start-up window, a wide lung-style
// setting that shows air through soft tissue.
var DefaultWindow = WindowParams{Center: -600, Width: 1500}

// PointCloud is a sparse colored sampling of a volume for lightweight
// client-side display. Points are integer voxel coordinates in the
// downsampled grid; Colors are parallel RGB triplets in [0,1].
type PointCloud struct {
	Points [][3]int     `json:"points"`
	Colors [][3]float64 `json:"colors"`
	Dims   [3]int       `json:"dimensions"`
}

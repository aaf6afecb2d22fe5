// Package loader reads a directory of DICOM slice files and extracts
// pixel data plus the metadata needed to order and scale the slices.
// Individual unreadable files are skipped so that one corrupt export
// cannot fail a whole scan directory.
package loader

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicomviz/internal/models"
)

// EmptyInputError reports a directory that contained no parseable
// DICOM slices at all.
type EmptyInputError struct {
	Dir string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("no parseable DICOM slices found in %s (expected .dcm or .ima files)", e.Dir)
}

// Loader reads slice files from a directory.
type Loader struct {
	log *log.Logger
}

// New creates a Loader. A nil logger falls back to the process default.
func New(logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{log: logger}
}

// recognized DICOM file suffixes, matched case-insensitively.
var sliceExtensions = map[string]bool{
	".dcm": true,
	".ima": true,
}

// LoadDirectory parses every recognized slice file in dir and returns
// the collection in directory-listing order. Files that fail to parse
// are logged and skipped. Returns *EmptyInputError when nothing could
// be parsed.
func (l *Loader) LoadDirectory(dir string) ([]models.Slice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading slice directory: %w", err)
	}

	var slices []models.Slice
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.Type().IsRegular() {
			continue
		}
		if !sliceExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}

		s, err := l.parseFile(filepath.Join(dir, name))
		if err != nil {
			l.log.Warn("skipping unreadable slice file", "file", name, "err", err)
			continue
		}
		s.ReadIndex = len(slices)
		l.assignOrderingKey(&s)
		slices = append(slices, s)
	}

	if len(slices) == 0 {
		return nil, &EmptyInputError{Dir: dir}
	}

	l.log.Info("loaded slices", "dir", dir, "count", len(slices),
		"rows", slices[0].Rows, "cols", slices[0].Cols)
	return slices, nil
}

// parseFile reads one DICOM file into a Slice. The first frame of the
// pixel data supplies the samples; metadata attributes are captured
// individually and may each be absent.
func (l *Loader) parseFile(path string) (models.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return models.Slice{}, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	pixelElem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return models.Slice{}, fmt.Errorf("%s has no pixel data", filepath.Base(path))
	}
	info := dicom.MustGetPixelDataInfo(pixelElem.Value)
	if len(info.Frames) == 0 {
		return models.Slice{}, fmt.Errorf("%s has no frames", filepath.Base(path))
	}
	img, err := info.Frames[0].GetImage()
	if err != nil {
		return models.Slice{}, fmt.Errorf("decoding frame of %s: %w", filepath.Base(path), err)
	}

	rows, cols, pixels := imageToPixels(img)
	if rows == 0 || cols == 0 {
		return models.Slice{}, fmt.Errorf("%s has a degenerate %dx%d frame", filepath.Base(path), rows, cols)
	}

	return models.Slice{
		Filename: filepath.Base(path),
		Rows:     rows,
		Cols:     cols,
		Pixels:   pixels,
		Meta:     readMetadata(&ds),
	}, nil
}

// imageToPixels flattens a decoded frame into raw integer samples.
// Native monochrome frames decode to Gray16 carrying the raw values
// unchanged; anything else is reduced to its 16-bit luminance.
func imageToPixels(img image.Image) (rows, cols int, pixels []int32) {
	b := img.Bounds()
	rows, cols = b.Dy(), b.Dx()
	pixels = make([]int32, rows*cols)

	switch im := img.(type) {
	case *image.Gray16:
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				pixels[y*cols+x] = int32(im.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				pixels[y*cols+x] = int32(r)
			}
		}
	}
	return rows, cols, pixels
}

// readMetadata captures the optional attributes into a typed record.
// Each attribute is probed independently; absence is not an error.
func readMetadata(ds *dicom.Dataset) models.Metadata {
	var m models.Metadata

	if vals, ok := elementFloats(ds, tag.ImagePositionPatient); ok && len(vals) >= 3 {
		m.ImagePositionPatient = &[3]float64{vals[0], vals[1], vals[2]}
	}
	if vals, ok := elementFloats(ds, tag.SliceLocation); ok && len(vals) >= 1 {
		m.SliceLocation = &vals[0]
	}
	if vals, ok := elementFloats(ds, tag.InstanceNumber); ok && len(vals) >= 1 {
		n := int(vals[0])
		m.InstanceNumber = &n
	}
	if vals, ok := elementFloats(ds, tag.PixelSpacing); ok && len(vals) >= 2 {
		m.PixelSpacing = &[2]float64{vals[0], vals[1]}
	}
	if vals, ok := elementFloats(ds, tag.SliceThickness); ok && len(vals) >= 1 {
		m.SliceThickness = &vals[0]
	}
	if vals, ok := elementFloats(ds, tag.RescaleSlope); ok && len(vals) >= 1 {
		m.RescaleSlope = &vals[0]
	}
	if vals, ok := elementFloats(ds, tag.RescaleIntercept); ok && len(vals) >= 1 {
		m.RescaleIntercept = &vals[0]
	}
	return m
}

// elementFloats looks up a tag and coerces its value into floats.
// DICOM decimal and integer strings arrive as string slices, other
// numeric VRs as ints or floats; all three forms are accepted.
func elementFloats(ds *dicom.Dataset, t tag.Tag) ([]float64, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return nil, false
	}

	switch v := elem.Value.GetValue().(type) {
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, false
			}
			out = append(out, f)
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, true
	case []float64:
		return v, true
	}
	return nil, false
}

// orderingExtractors are tried in priority order; the first one whose
// attribute is present supplies the slice's ordering key.
var orderingExtractors = []struct {
	source models.OrderingSource
	fn     func(m *models.Metadata) (float64, bool)
}{
	{models.OrderByPosition, func(m *models.Metadata) (float64, bool) {
		if m.ImagePositionPatient == nil {
			return 0, false
		}
		return m.ImagePositionPatient[2], true
	}},
	{models.OrderByLocation, func(m *models.Metadata) (float64, bool) {
		if m.SliceLocation == nil {
			return 0, false
		}
		return *m.SliceLocation, true
	}},
	{models.OrderByInstance, func(m *models.Metadata) (float64, bool) {
		if m.InstanceNumber == nil {
			return 0, false
		}
		return float64(*m.InstanceNumber), true
	}},
}

// assignOrderingKey applies the extractor chain, falling back to the
// directory-listing index with a warning when no spatial attribute is
// present. File order carries no anatomical guarantee.
func (l *Loader) assignOrderingKey(s *models.Slice) {
	for _, ex := range orderingExtractors {
		if key, ok := ex.fn(&s.Meta); ok {
			s.Key = key
			s.Source = ex.source
			return
		}
	}
	s.Key = float64(s.ReadIndex)
	s.Source = models.OrderByFileIndex
	l.log.Warn("no ordering metadata, using directory order", "file", s.Filename)
}

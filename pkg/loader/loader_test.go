package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicomviz/internal/models"
)

func mustNewElement(t tag.Tag, data interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, data)
	if err != nil {
		panic(fmt.Sprintf("creating element for tag %v: %v", t, err))
	}
	return elem
}

// writeTestDICOM writes a minimal monochrome DICOM file whose pixel
// values follow value+index, plus any extra metadata elements.
func writeTestDICOM(t *testing.T, path string, rows, cols int, value uint16, extra ...*dicom.Element) {
	t.Helper()

	pixelsPerFrame := rows * cols
	nativeFrame := frame.NewNativeFrame[uint16](16, rows, cols, pixelsPerFrame, 1)
	for i := 0; i < pixelsPerFrame; i++ {
		nativeFrame.RawData[i] = value + uint16(i)
	}

	pixelDataInfo := dicom.PixelDataInfo{
		Frames: []*frame.Frame{{
			Encapsulated: false,
			NativeData:   nativeFrame,
		}},
	}

	elements := []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
		mustNewElement(tag.SOPInstanceUID, []string{fmt.Sprintf("1.2.3.4.%d", value)}),
		mustNewElement(tag.Rows, []int{rows}),
		mustNewElement(tag.Columns, []int{cols}),
		mustNewElement(tag.BitsAllocated, []int{16}),
		mustNewElement(tag.BitsStored, []int{16}),
		mustNewElement(tag.HighBit, []int{15}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
	}
	elements = append(elements, extra...)
	elements = append(elements, mustNewElement(tag.PixelData, pixelDataInfo))

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	if err := dicom.Write(f, dicom.Dataset{Elements: elements}); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// TestLoadDirectory verifies pixel extraction, extension filtering and
// that unreadable files are skipped rather than failing the scan.
func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()

	writeTestDICOM(t, filepath.Join(dir, "a.dcm"), 4, 4, 100)
	writeTestDICOM(t, filepath.Join(dir, "b.DCM"), 4, 4, 200)
	writeTestDICOM(t, filepath.Join(dir, "c.ima"), 4, 4, 300)

	// Neither of these may appear in the result.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not dicom"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.dcm"), []byte("not dicom"), 0644); err != nil {
		t.Fatal(err)
	}

	slices, err := New(nil).LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory failed: %v", err)
	}
	if len(slices) != 3 {
		t.Fatalf("got %d slices, want 3", len(slices))
	}

	for _, s := range slices {
		if s.Rows != 4 || s.Cols != 4 {
			t.Errorf("%s: got shape %dx%d, want 4x4", s.Filename, s.Rows, s.Cols)
		}
		if len(s.Pixels) != 16 {
			t.Errorf("%s: got %d pixels, want 16", s.Filename, len(s.Pixels))
		}
	}

	// Directory listing is lexicographic, so a.dcm comes first and its
	// first raw sample must round-trip unchanged.
	if slices[0].Filename != "a.dcm" {
		t.Fatalf("got first slice %s, want a.dcm", slices[0].Filename)
	}
	if slices[0].Pixels[0] != 100 || slices[0].Pixels[15] != 115 {
		t.Errorf("raw samples did not round-trip: got %d..%d", slices[0].Pixels[0], slices[0].Pixels[15])
	}
}

// TestLoadDirectoryOrderingMetadata verifies that the position tag is
// parsed into the ordering key.
func TestLoadDirectoryOrderingMetadata(t *testing.T) {
	dir := t.TempDir()

	writeTestDICOM(t, filepath.Join(dir, "s1.dcm"), 2, 2, 10,
		mustNewElement(tag.ImagePositionPatient, []string{"-100.0", "-100.0", "12.5"}),
		mustNewElement(tag.RescaleSlope, []string{"1"}),
		mustNewElement(tag.RescaleIntercept, []string{"-1024"}),
		mustNewElement(tag.PixelSpacing, []string{"0.7", "0.7"}),
		mustNewElement(tag.SliceThickness, []string{"2.5"}),
	)

	slices, err := New(nil).LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory failed: %v", err)
	}
	s := slices[0]

	if s.Source != models.OrderByPosition {
		t.Errorf("got ordering source %v, want %v", s.Source, models.OrderByPosition)
	}
	if s.Key != 12.5 {
		t.Errorf("got ordering key %v, want 12.5", s.Key)
	}
	if s.Meta.RescaleIntercept == nil || *s.Meta.RescaleIntercept != -1024 {
		t.Errorf("rescale intercept not captured: %v", s.Meta.RescaleIntercept)
	}
	if s.Meta.PixelSpacing == nil || *s.Meta.PixelSpacing != [2]float64{0.7, 0.7} {
		t.Errorf("pixel spacing not captured: %v", s.Meta.PixelSpacing)
	}
	if s.Meta.SliceThickness == nil || *s.Meta.SliceThickness != 2.5 {
		t.Errorf("slice thickness not captured: %v", s.Meta.SliceThickness)
	}
}

// TestLoadDirectoryEmpty verifies the typed error for directories with
// nothing parseable.
func TestLoadDirectoryEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := New(nil).LoadDirectory(dir)
	var emptyErr *EmptyInputError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("got error %v, want *EmptyInputError", err)
	}
	if emptyErr.Dir != dir {
		t.Errorf("error reports dir %s, want %s", emptyErr.Dir, dir)
	}
}

// TestAssignOrderingKey exercises the fallback chain on bare metadata.
func TestAssignOrderingKey(t *testing.T) {
	loc := 7.5
	inst := 3
	pos := [3]float64{0, 0, -42}

	cases := []struct {
		name       string
		meta       models.Metadata
		wantKey    float64
		wantSource models.OrderingSource
	}{
		{"position wins over all", models.Metadata{ImagePositionPatient: &pos, SliceLocation: &loc, InstanceNumber: &inst}, -42, models.OrderByPosition},
		{"location wins over instance", models.Metadata{SliceLocation: &loc, InstanceNumber: &inst}, 7.5, models.OrderByLocation},
		{"instance number", models.Metadata{InstanceNumber: &inst}, 3, models.OrderByInstance},
		{"file index fallback", models.Metadata{}, 9, models.OrderByFileIndex},
	}

	l := New(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := models.Slice{ReadIndex: 9, Meta: tc.meta}
			l.assignOrderingKey(&s)
			if s.Key != tc.wantKey {
				t.Errorf("got key %v, want %v", s.Key, tc.wantKey)
			}
			if s.Source != tc.wantSource {
				t.Errorf("got source %v, want %v", s.Source, tc.wantSource)
			}
		})
	}
}

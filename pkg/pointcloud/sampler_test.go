package pointcloud

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniformVolume fills a w*h*d buffer with one value.
func uniformVolume(w, h, d int, v uint8) []uint8 {
	norm := make([]uint8, w*h*d)
	for i := range norm {
		norm[i] = v
	}
	return norm
}

func TestSampleThresholdFiltersBackground(t *testing.T) {
	w, h, d := 8, 8, 8
	norm := uniformVolume(w, h, d, 10)
	// One voxel above threshold, on the strided grid.
	norm[4*w*h+4*w+4] = 150

	s := New(4, 50, 1.0, rand.New(rand.NewSource(7)))
	cloud := s.Sample(norm, w, h, d)

	require.Len(t, cloud.Points, 1)
	assert.Equal(t, [3]int{1, 1, 1}, cloud.Points[0])
	assert.Equal(t, colorMid, cloud.Colors[0])
}

func TestSampleColorTiers(t *testing.T) {
	w, h, d := 4, 4, 4
	norm := make([]uint8, w*h*d)
	// Three voxels on the stride-4 grid boundary would collide, so use
	// stride 1 and spread the tiers along x.
	norm[0] = 60  // low tier
	norm[1] = 150 // mid tier
	norm[2] = 250 // high tier

	s := New(1, 50, 1.0, rand.New(rand.NewSource(1)))
	cloud := s.Sample(norm, w, h, d)

	require.Len(t, cloud.Points, 3)
	assert.Equal(t, colorLow, cloud.Colors[0])
	assert.Equal(t, colorMid, cloud.Colors[1])
	assert.Equal(t, colorHigh, cloud.Colors[2])
}

func TestSampleDeterministicWithSeed(t *testing.T) {
	w, h, d := 16, 16, 16
	norm := uniformVolume(w, h, d, 200)

	a := New(2, 50, 0.3, rand.New(rand.NewSource(42))).Sample(norm, w, h, d)
	b := New(2, 50, 0.3, rand.New(rand.NewSource(42))).Sample(norm, w, h, d)

	assert.Equal(t, a.Points, b.Points)
	assert.Equal(t, a.Colors, b.Colors)
	assert.NotEmpty(t, a.Points)

	// A different seed thins differently.
	c := New(2, 50, 0.3, rand.New(rand.NewSource(43))).Sample(norm, w, h, d)
	assert.NotEqual(t, a.Points, c.Points)
}

func TestSampleEmptyVolume(t *testing.T) {
	cloud := New(4, 50, 0.3, rand.New(rand.NewSource(1))).Sample(uniformVolume(8, 8, 8, 0), 8, 8, 8)

	assert.NotNil(t, cloud.Points)
	assert.NotNil(t, cloud.Colors)
	assert.Empty(t, cloud.Points)
	assert.Equal(t, [3]int{2, 2, 2}, cloud.Dims)
}

func TestSampleDims(t *testing.T) {
	// 10 voxels at stride 4 visit indices 0, 4, 8.
	cloud := New(4, 50, 0.3, nil).Sample(uniformVolume(10, 10, 10, 0), 10, 10, 10)
	assert.Equal(t, [3]int{3, 3, 3}, cloud.Dims)
}

func TestNewDefaults(t *testing.T) {
	s := New(0, 0, 0, nil)
	assert.Equal(t, DefaultStride, s.Stride)
	assert.Equal(t, uint8(DefaultThreshold), s.Threshold)
	assert.Equal(t, DefaultKeepProb, s.KeepProb)
}

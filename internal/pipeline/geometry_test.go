package pipeline

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeScale_WithinBounds(t *testing.T) {
	for _, tc := range []struct{ w, h int }{
		{1, 1}, {1000, 3000}, {999, 10}, {640, 480},
	} {
		s, err := ComputeScale(tc.w, tc.h, 1000, 3000)
		require.NoError(t, err)
		assert.False(t, s.NeedsResize(), "%dx%d", tc.w, tc.h)
		assert.Equal(t, 1.0, s.Factor)
		assert.Equal(t, tc.w, s.Width)
		assert.Equal(t, tc.h, s.Height)
	}
}

func TestComputeScale_Bounded(t *testing.T) {
	sizes := []struct{ w, h, maxW, maxH int }{
		{2000, 4000, 1000, 3000},
		{1001, 1, 1000, 3000},
		{1200, 9000, 1000, 3000},
		{4999, 3001, 1000, 3000},
		{333, 777, 100, 100},
		{7, 1000, 10, 999},
	}
	for _, tc := range sizes {
		s, err := ComputeScale(tc.w, tc.h, tc.maxW, tc.maxH)
		require.NoError(t, err)
		assert.True(t, s.NeedsResize())
		assert.LessOrEqual(t, s.Width, tc.maxW)
		assert.LessOrEqual(t, s.Height, tc.maxH)
		// aspect ratio within one pixel of rounding
		assert.InDelta(t, float64(tc.w)*s.Factor, float64(s.Width), 1)
		assert.InDelta(t, float64(tc.h)*s.Factor, float64(s.Height), 1)
	}
}

func TestComputeScale_SmallerFactorWins(t *testing.T) {
	s, err := ComputeScale(2000, 4000, 1000, 3000)
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.Factor)
	assert.Equal(t, 1000, s.Width)
	assert.Equal(t, 2000, s.Height)

	s, err = ComputeScale(500, 6000, 1000, 3000)
	require.NoError(t, err)
	assert.Equal(t, 250, s.Width)
	assert.Equal(t, 3000, s.Height)
}

func TestComputeScale_Degenerate(t *testing.T) {
	_, err := ComputeScale(0, 10, 100, 100)
	assert.ErrorIs(t, err, ErrDecode)
	_, err = ComputeScale(10, -1, 100, 100)
	assert.ErrorIs(t, err, ErrDecode)
	_, err = ComputeScale(10, 10, 0, 100)
	assert.Error(t, err)
}

func TestComputeCenterCrop(t *testing.T) {
	tests := []struct {
		name             string
		srcW, srcH       int
		targetW, targetH int
		want             image.Rectangle
	}{
		{"wider source is centered horizontally", 1200, 450, 600, 450, image.Rect(300, 0, 900, 450)},
		{"taller source is top aligned", 400, 1200, 600, 450, image.Rect(0, 0, 400, 300)},
		{"same ratio keeps everything", 800, 600, 600, 450, image.Rect(0, 0, 800, 600)},
		{"square source", 500, 500, 600, 450, image.Rect(0, 0, 500, 375)},
		{"one pixel wide", 1, 1000, 600, 450, image.Rect(0, 0, 1, 1)},
		{"one pixel tall", 1000, 1, 600, 450, image.Rect(499, 0, 500, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeCenterCrop(tt.srcW, tt.srcH, tt.targetW, tt.targetH)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.In(image.Rect(0, 0, tt.srcW, tt.srcH)))
		})
	}
}

func TestComputeCenterCrop_NeverExceedsSource(t *testing.T) {
	for w := 1; w < 60; w += 7 {
		for h := 1; h < 60; h += 5 {
			got, err := ComputeCenterCrop(w, h, 600, 450)
			require.NoError(t, err)
			assert.False(t, got.Empty())
			assert.True(t, got.In(image.Rect(0, 0, w, h)), "%dx%d -> %v", w, h, got)
		}
	}
}

func TestComputeCenterCrop_Degenerate(t *testing.T) {
	_, err := ComputeCenterCrop(0, 0, 600, 450)
	assert.ErrorIs(t, err, ErrDecode)
}

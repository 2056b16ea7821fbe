package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparkline_Empty(t *testing.T) {
	s := NewSparkline()

	assert.Equal(t, "", s.Render())
	assert.Equal(t, 0, s.Len())
}

func TestSparkline_ScalesToMax(t *testing.T) {
	// Given: a week of query counts
	s := NewSparkline()
	for _, v := range []float64{0, 10, 40, 80, 20, 5, 80} {
		s.Add(v)
	}

	// Then: the peak renders as the full block and zero as the lowest
	bars := []rune(s.Render())
	assert.Len(t, bars, 7)
	assert.Equal(t, '▁', bars[0])
	assert.Equal(t, '█', bars[3])
	assert.Equal(t, '█', bars[6])
	assert.Equal(t, float64(80), s.Max())
}

func TestSparkline_AllZeros(t *testing.T) {
	s := NewSparkline()
	s.Add(0)
	s.Add(0)
	s.Add(0)

	assert.Equal(t, "▁▁▁", s.Render())
}

func TestSparkline_RenderLast(t *testing.T) {
	s := NewSparkline()
	for i := 0; i < 30; i++ {
		s.Add(float64(i))
	}

	last := []rune(s.RenderLast(7))
	assert.Len(t, last, 7)
	// The newest value is the series max, so it renders full.
	assert.Equal(t, '█', last[6])
}

func TestSparkline_RenderLast_ShortSeries(t *testing.T) {
	s := NewSparkline()
	s.Add(1)
	s.Add(2)

	assert.Equal(t, s.Render(), s.RenderLast(7))
}

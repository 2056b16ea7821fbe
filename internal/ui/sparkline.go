package ui

import "strings"

// sparkChars are the block characters for chart bars, empty to full.
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline charts a short series of counts, one character per value.
// The analytics summary view uses it for per-day query and click
// volumes.
type Sparkline struct {
	values []float64
	max    float64
}

// NewSparkline creates an empty sparkline.
func NewSparkline() *Sparkline {
	return &Sparkline{}
}

// Add appends a value to the series.
func (s *Sparkline) Add(value float64) {
	s.values = append(s.values, value)
	if value > s.max {
		s.max = value
	}
}

// Len returns the number of values in the series.
func (s *Sparkline) Len() int {
	return len(s.values)
}

// Max returns the largest value seen.
func (s *Sparkline) Max() float64 {
	return s.max
}

// Render returns the series as block characters. An all-zero series
// renders as the lowest bar; an empty one as the empty string.
func (s *Sparkline) Render() string {
	if len(s.values) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(s.values) * 3) // UTF-8 blocks are 3 bytes

	for _, v := range s.values {
		idx := 0
		if s.max > 0 {
			idx = int(v / s.max * float64(len(sparkChars)-1))
			if idx < 0 {
				idx = 0
			}
			if idx >= len(sparkChars) {
				idx = len(sparkChars) - 1
			}
		}
		sb.WriteRune(sparkChars[idx])
	}

	return sb.String()
}

// RenderLast renders only the most recent n values.
func (s *Sparkline) RenderLast(n int) string {
	if n <= 0 || n >= len(s.values) {
		return s.Render()
	}
	trimmed := Sparkline{values: s.values[len(s.values)-n:], max: s.max}
	return trimmed.Render()
}

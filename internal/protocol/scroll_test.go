package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp01(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.5, 1},
		{math.Inf(1), 1},
		{math.Inf(-1), 0},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Clamp01(tc.in), "Clamp01(%v)", tc.in)
	}
}

func TestFraction_ZeroExtentIsZero(t *testing.T) {
	// No overflow: scrollHeight == clientHeight.
	assert.Equal(t, 0.0, Fraction(0, 1000, 1000))
	assert.Equal(t, 0.0, Fraction(250, 1000, 1000))
	// Content smaller than the viewport.
	assert.Equal(t, 0.0, Fraction(10, 400, 1000))
	// Garbage metrics never produce NaN or Inf.
	f := Fraction(math.NaN(), math.Inf(1), math.Inf(1))
	assert.False(t, math.IsNaN(f) || math.IsInf(f, 0))
}

func TestFraction_Offset_EndToEnd(t *testing.T) {
	// Frame A: 2000 tall, 1000 visible, scrolled to 500.
	pct := Fraction(500, 2000, 1000)
	assert.Equal(t, 0.5, pct)

	// Frame B: 4000 tall, 1000 visible.
	assert.Equal(t, 1500.0, Offset(pct, 4000, 1000))
}

func TestExtent_Max(t *testing.T) {
	e := Extent{ScrollWidth: 1200, ClientWidth: 1280, ScrollHeight: 3000, ClientHeight: 900}
	assert.Equal(t, 0.0, e.MaxLeft())
	assert.Equal(t, 2100.0, e.MaxTop())
}

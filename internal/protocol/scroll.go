package protocol

import "math"

// Extent is the scroll geometry of a document: total content size and the
// visible client size on both axes, in CSS pixels.
type Extent struct {
	ScrollWidth  float64 `json:"scrollWidth"`
	ScrollHeight float64 `json:"scrollHeight"`
	ClientWidth  float64 `json:"clientWidth"`
	ClientHeight float64 `json:"clientHeight"`
}

// MaxTop is the vertical scrollable range, never negative.
func (e Extent) MaxTop() float64 { return span(e.ScrollHeight, e.ClientHeight) }

// MaxLeft is the horizontal scrollable range, never negative.
func (e Extent) MaxLeft() float64 { return span(e.ScrollWidth, e.ClientWidth) }

// Clamp01 limits p to [0,1]. NaN maps to 0.
func Clamp01(p float64) float64 {
	switch {
	case math.IsNaN(p), p <= 0:
		return 0
	case p >= 1:
		return 1
	}
	return p
}

// Fraction converts a pixel offset into a fraction of the scrollable range
// (scrollSize - clientSize). Documents without overflow yield 0.
func Fraction(offset, scrollSize, clientSize float64) float64 {
	extent := span(scrollSize, clientSize)
	if extent == 0 {
		return 0
	}
	return Clamp01(offset / extent)
}

// Offset is the inverse of Fraction: the pixel offset for fraction p.
func Offset(p, scrollSize, clientSize float64) float64 {
	return Clamp01(p) * span(scrollSize, clientSize)
}

func span(scrollSize, clientSize float64) float64 {
	d := finite(scrollSize) - finite(clientSize)
	if d <= 0 {
		return 0
	}
	return d
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

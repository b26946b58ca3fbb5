// Package overlay turns findings reported in the 0..1000 virtual square into
// shapes positioned on the displayed media.
package overlay

import (
	"errors"
	"math"

	"scan-viewer/api/internal/vlm/types"
)

// ErrNotLoaded is returned when the media has no displayed size yet.
var ErrNotLoaded = errors.New("overlay: media not loaded")

// Vec is a screen-space point.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a screen-space rectangle. W and H are never negative.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// Normalizer maps virtual coordinates onto a displayed width and height in the
// media's own frame. Zoom and pan are applied afterwards to media and overlay
// together, so they never enter here.
type Normalizer struct {
	w, h float64
}

func NewNormalizer(width, height float64) (Normalizer, error) {
	if !(width > 0) || !(height > 0) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return Normalizer{}, ErrNotLoaded
	}
	return Normalizer{w: width, h: height}, nil
}

func (n Normalizer) Width() float64  { return n.w }
func (n Normalizer) Height() float64 { return n.h }

func (n Normalizer) X(v float64) float64 { return clampVirtual(v) / types.Scale * n.w }
func (n Normalizer) Y(v float64) float64 { return clampVirtual(v) / types.Scale * n.h }

func (n Normalizer) Point(p types.Point) Vec {
	return Vec{X: n.X(p.X), Y: n.Y(p.Y)}
}

func (n Normalizer) Points(ps []types.Point) []Vec {
	out := make([]Vec, 0, len(ps))
	for _, p := range ps {
		out = append(out, n.Point(p))
	}
	return out
}

// Box scales b. Inverted extents collapse to a zero-size rectangle at the
// min corner.
func (n Normalizer) Box(b types.BoundingBox) Rect {
	x0, y0 := n.X(b.XMin), n.Y(b.YMin)
	x1, y1 := n.X(b.XMax), n.Y(b.YMax)
	return Rect{X: x0, Y: y0, W: math.Max(0, x1-x0), H: math.Max(0, y1-y0)}
}

func clampVirtual(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > types.Scale {
		return types.Scale
	}
	return v
}

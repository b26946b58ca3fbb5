// Package viewer holds the zoom, pan and tone adjustments that are applied to
// the media and its overlay as one unit.
package viewer

import (
	"fmt"
	"math"
)

const (
	DefaultZoom       = 1.0
	DefaultBrightness = 100.0
	DefaultContrast   = 100.0

	MinZoom = 0.5
	MaxZoom = 5.0

	MinLevel = 50.0
	MaxLevel = 150.0
)

type Pan struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State is a value type; every method returns the updated copy.
type State struct {
	Zoom       float64 `json:"zoom"`
	Pan        Pan     `json:"pan"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
}

func Default() State {
	return State{Zoom: DefaultZoom, Brightness: DefaultBrightness, Contrast: DefaultContrast}
}

func (s State) ZoomBy(delta float64) State { return s.SetZoom(s.Zoom + delta) }

func (s State) SetZoom(v float64) State {
	s.Zoom = clamp(v, MinZoom, MaxZoom, s.Zoom)
	return s
}

func (s State) SetBrightness(v float64) State {
	s.Brightness = clamp(v, MinLevel, MaxLevel, s.Brightness)
	return s
}

func (s State) SetContrast(v float64) State {
	s.Contrast = clamp(v, MinLevel, MaxLevel, s.Contrast)
	return s
}

// PanBy and SetPan are not clamped; the media may be dragged off-screen.
func (s State) PanBy(dx, dy float64) State {
	return s.SetPan(s.Pan.X+dx, s.Pan.Y+dy)
}

func (s State) SetPan(x, y float64) State {
	if finite(x) && finite(y) {
		s.Pan = Pan{X: x, Y: y}
	}
	return s
}

func (s State) Reset() State { return Default() }

func (s State) IsDefault() bool { return s == Default() }

// CSSTransform is the transform for the wrapper holding media and overlay.
func (s State) CSSTransform() string {
	return fmt.Sprintf("translate(%gpx, %gpx) scale(%g)", s.Pan.X, s.Pan.Y, s.Zoom)
}

func (s State) CSSFilter() string {
	return fmt.Sprintf("brightness(%g%%) contrast(%g%%)", s.Brightness, s.Contrast)
}

// clamp keeps the previous value for NaN and infinities.
func clamp(v, lo, hi, prev float64) float64 {
	if !finite(v) {
		return prev
	}
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

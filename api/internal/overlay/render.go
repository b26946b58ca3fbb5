package overlay

import (
	"math"

	"scan-viewer/api/internal/vlm/types"
)

type Kind string

const (
	KindPolygon Kind = "polygon"
	KindRect    Kind = "rect"
)

const (
	ColorHigh     = "#EF4444"
	ColorModerate = "#EAB308"
	ColorFluid    = "#3B82F6"
	ColorDefault  = "#FFFFFF"

	PolygonFillOpacity = 0.2
	RectFillOpacity    = 0.1

	// Stroke, label offset and font size are in virtual units.
	StrokeWidth   = 2.0
	LabelOffset   = 10.0
	LabelFontSize = 24.0
)

// NoFocus means no finding is hovered.
const NoFocus = -1

// ColorFor maps severity to its display colour. Unknown tags get the default.
func ColorFor(s types.Severity) string {
	switch s {
	case types.SeverityHigh:
		return ColorHigh
	case types.SeverityModerate:
		return ColorModerate
	case types.SeverityFluid:
		return ColorFluid
	default:
		return ColorDefault
	}
}

type Shape struct {
	Index        int            `json:"index"`
	Kind         Kind           `json:"kind"`
	Label        string         `json:"label"`
	Severity     types.Severity `json:"severity"`
	Color        string         `json:"color"`
	FillOpacity  float64        `json:"fill_opacity"`
	StrokeWidth  float64        `json:"stroke_width"`
	Points       []Vec          `json:"points,omitempty"`
	Rect         *Rect          `json:"rect,omitempty"`
	LabelAt      Vec            `json:"label_at"`
	LabelSize    float64        `json:"label_size"`
	LabelVisible bool           `json:"label_visible"`
}

// Outline returns the shape's vertices in drawing order.
func (s Shape) Outline() []Vec {
	if s.Kind == KindPolygon {
		return s.Points
	}
	r := s.Rect
	return []Vec{{r.X, r.Y}, {r.X + r.W, r.Y}, {r.X + r.W, r.Y + r.H}, {r.X, r.Y + r.H}}
}

type Options struct {
	Visible bool
	// Focus is the index of the hovered finding, or NoFocus.
	Focus  int
	Width  float64
	Height float64
}

type Scene struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Loaded  bool    `json:"loaded"`
	Visible bool    `json:"visible"`
	Shapes  []Shape `json:"shapes"`
}

// Render lays out one shape per finding. It has no side effects and returns
// the same scene for the same inputs. An unloaded media or a hidden overlay
// yields a scene without shapes.
func Render(findings []types.Finding, opts Options) Scene {
	scene := Scene{Width: opts.Width, Height: opts.Height, Visible: opts.Visible, Shapes: []Shape{}}
	n, err := NewNormalizer(opts.Width, opts.Height)
	if err != nil {
		return scene
	}
	scene.Loaded = true
	if !opts.Visible {
		return scene
	}
	stroke := math.Max(1, StrokeWidth/types.Scale*math.Min(n.Width(), n.Height()))
	for i, f := range findings {
		sh := Shape{
			Index:        i,
			Label:        f.Label,
			Severity:     f.Severity,
			Color:        ColorFor(f.Severity),
			StrokeWidth:  stroke,
			LabelAt:      n.Point(LabelAnchor(f)),
			LabelSize:    LabelFontSize / types.Scale * n.Height(),
			LabelVisible: i == opts.Focus,
		}
		if f.HasPolygon() {
			sh.Kind = KindPolygon
			sh.FillOpacity = PolygonFillOpacity
			sh.Points = n.Points(f.Polygon)
		} else {
			r := n.Box(f.Coordinates)
			sh.Kind = KindRect
			sh.FillOpacity = RectFillOpacity
			sh.Rect = &r
		}
		scene.Shapes = append(scene.Shapes, sh)
	}
	return scene
}

// LabelAnchor is the label baseline in virtual units: the box's top-left
// corner lifted by LabelOffset, never above the top edge.
func LabelAnchor(f types.Finding) types.Point {
	return types.Point{X: f.Coordinates.XMin, Y: math.Max(0, f.Coordinates.YMin-LabelOffset)}
}

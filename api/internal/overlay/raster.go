package overlay

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"scan-viewer/api/internal/vlm/types"
)

type BurnOptions struct {
	Visible bool
	Focus   int
	// AllLabels draws every label; a still image has no hover.
	AllLabels bool
}

// Burn draws the overlay onto a copy of img at its native size. The source
// image is not modified.
func Burn(img image.Image, findings []types.Finding, opts BurnOptions) *image.NRGBA {
	dst := imaging.Clone(img)
	b := dst.Bounds()
	scene := Render(findings, Options{
		Visible: opts.Visible,
		Focus:   opts.Focus,
		Width:   float64(b.Dx()),
		Height:  float64(b.Dy()),
	})
	for _, sh := range scene.Shapes {
		rgb := parseHex(sh.Color)
		outline := sh.Outline()
		fillPath(dst, outline, withAlpha(rgb, sh.FillOpacity))
		strokePath(dst, outline, sh.StrokeWidth, withAlpha(rgb, 1))
		if sh.LabelVisible || opts.AllLabels {
			drawLabel(dst, sh.LabelAt, sh.Label)
		}
	}
	return dst
}

func fillPath(dst *image.NRGBA, pts []Vec, c color.NRGBA) {
	if len(pts) < 3 || c.A == 0 {
		return
	}
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}

// strokePath outlines the closed path with one quad per edge. All quads
// share orientation so overlapping corners saturate instead of cancelling.
func strokePath(dst *image.NRGBA, pts []Vec, width float64, c color.NRGBA) {
	if len(pts) == 0 {
		return
	}
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	half := width / 2
	drawn := false
	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		dx, dy := q.X-p.X, q.Y-p.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		// extend along the edge so the joins are covered
		ex, ey := dx/l*half, dy/l*half
		nx, ny := -dy/l*half, dx/l*half
		z.MoveTo(float32(p.X-ex+nx), float32(p.Y-ey+ny))
		z.LineTo(float32(q.X+ex+nx), float32(q.Y+ey+ny))
		z.LineTo(float32(q.X+ex-nx), float32(q.Y+ey-ny))
		z.LineTo(float32(p.X-ex-nx), float32(p.Y-ey-ny))
		z.ClosePath()
		drawn = true
	}
	if !drawn {
		// a zero-size box still marks its position
		p := pts[0]
		z.MoveTo(float32(p.X-half), float32(p.Y-half))
		z.LineTo(float32(p.X+half), float32(p.Y-half))
		z.LineTo(float32(p.X+half), float32(p.Y+half))
		z.LineTo(float32(p.X-half), float32(p.Y+half))
		z.ClosePath()
	}
	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}

func drawLabel(dst *image.NRGBA, at Vec, text string) {
	face := basicfont.Face7x13
	x := int(math.Round(at.X))
	y := int(math.Round(at.Y))
	// keep the glyphs inside the image when the anchor hugs the top edge
	if y < face.Ascent {
		y = face.Ascent
	}
	shadow := &font.Drawer{Dst: dst, Src: image.Black, Face: face}
	for _, off := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		shadow.Dot = fixed.P(x+off[0], y+off[1])
		shadow.DrawString(text)
	}
	d := &font.Drawer{Dst: dst, Src: image.White, Face: face, Dot: fixed.P(x, y)}
	d.DrawString(text)
}

func withAlpha(c color.NRGBA, opacity float64) color.NRGBA {
	c.A = uint8(math.Round(math.Max(0, math.Min(1, opacity)) * 255))
	return c
}

func parseHex(s string) color.NRGBA {
	if len(s) != 7 || s[0] != '#' {
		return color.NRGBA{255, 255, 255, 255}
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.NRGBA{255, 255, 255, 255}
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

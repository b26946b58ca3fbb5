package viewer

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Apply renders s onto img, which should already carry the burned overlay so
// shapes move and scale with the pixels. The output keeps img's size like a
// fixed viewport: zoom scales around the centre, pan shifts by pixels, and
// uncovered areas are black.
func (s State) Apply(img image.Image) *image.NRGBA {
	out := s.tone(img)
	if s.Zoom == DefaultZoom && s.Pan == (Pan{}) {
		return out
	}
	b := out.Bounds()
	w, h := b.Dx(), b.Dy()
	zw := max(1, int(math.Round(float64(w)*s.Zoom)))
	zh := max(1, int(math.Round(float64(h)*s.Zoom)))
	scaled := imaging.Resize(out, zw, zh, imaging.Lanczos)

	canvas := imaging.New(w, h, color.NRGBA{0, 0, 0, 255})
	x := (w-zw)/2 + int(math.Round(s.Pan.X))
	y := (h-zh)/2 + int(math.Round(s.Pan.Y))
	return imaging.Paste(canvas, scaled, image.Pt(x, y))
}

// tone matches the browser filter: brightness multiplies, contrast scales
// around mid-grey.
func (s State) tone(img image.Image) *image.NRGBA {
	if s.Brightness == DefaultBrightness && s.Contrast == DefaultContrast {
		return imaging.Clone(img)
	}
	br := s.Brightness / 100
	ct := s.Contrast / 100
	var lut [256]uint8
	for i := range lut {
		v := math.Min(1, float64(i)/255*br)
		v = (v-0.5)*ct + 0.5
		lut[i] = uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
}

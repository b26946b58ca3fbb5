package overlay

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"scan-viewer/api/internal/vlm/types"
)

// SVG renders the overlay as a percentage layer sized to the media element:
// viewBox is the virtual square and the aspect ratio is not preserved, so it
// stretches exactly over the media and follows any transform applied to it.
func SVG(findings []types.Finding, visible bool, focus int) string {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1000 1000" preserveAspectRatio="none" width="100%" height="100%">`)
	b.WriteString(`<style>g.finding text{opacity:0}g.finding:hover text,g.finding.focus text{opacity:1}</style>`)
	if visible {
		for i, f := range findings {
			writeFinding(&b, i, f, i == focus)
		}
	}
	b.WriteString(`</svg>`)
	return b.String()
}

func writeFinding(b *strings.Builder, i int, f types.Finding, focused bool) {
	color := ColorFor(f.Severity)
	class := "finding"
	if focused {
		class += " focus"
	}
	fmt.Fprintf(b, `<g class="%s" data-index="%d">`, class, i)
	if f.HasPolygon() {
		pts := make([]string, 0, len(f.Polygon))
		for _, p := range f.Polygon {
			pts = append(pts, num(clampVirtual(p.X))+","+num(clampVirtual(p.Y)))
		}
		fmt.Fprintf(b, `<polygon points="%s" fill="%s" fill-opacity="%s" stroke="%s" stroke-width="%s"/>`,
			strings.Join(pts, " "), color, num(PolygonFillOpacity), color, num(StrokeWidth))
	} else {
		c := f.Coordinates
		x0, y0 := clampVirtual(c.XMin), clampVirtual(c.YMin)
		w := max(0, clampVirtual(c.XMax)-x0)
		h := max(0, clampVirtual(c.YMax)-y0)
		fmt.Fprintf(b, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s" fill-opacity="%s" stroke="%s" stroke-width="%s"/>`,
			num(x0), num(y0), num(w), num(h), color, num(RectFillOpacity), color, num(StrokeWidth))
	}
	at := LabelAnchor(f)
	fmt.Fprintf(b, `<text x="%s" y="%s" fill="white" font-size="%s" font-weight="bold" style="text-shadow:0 0 4px black">`,
		num(clampVirtual(at.X)), num(clampVirtual(at.Y)), num(LabelFontSize))
	_ = xml.EscapeText(b, []byte(f.Label))
	b.WriteString(`</text></g>`)
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

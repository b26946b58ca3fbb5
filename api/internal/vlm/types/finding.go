package types

import (
	"fmt"
	"strings"
)

// Scale is the side of the virtual square every coordinate is reported in,
// independent of the media's pixel size or aspect ratio.
const Scale = 1000.0

type Severity string

const (
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
	SeverityLow      Severity = "low"
	SeverityFluid    Severity = "fluid"
)

// BoundingBox uses the 0..1000 virtual square. xmin<xmax and ymin<ymax are
// expected but not enforced.
type BoundingBox struct {
	YMin float64 `json:"ymin"`
	XMin float64 `json:"xmin"`
	YMax float64 `json:"ymax"`
	XMax float64 `json:"xmax"`
}

// Degenerate is true when the box has no area.
func (b BoundingBox) Degenerate() bool {
	return b.XMin >= b.XMax || b.YMin >= b.YMax
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Finding struct {
	Label       string      `json:"label"`
	Severity    Severity    `json:"severity"`
	Coordinates BoundingBox `json:"coordinates"`
	Polygon     []Point     `json:"polygon,omitempty"`
	Description string      `json:"description,omitempty"`
}

// HasPolygon tells the renderer to prefer the segmentation outline.
func (f Finding) HasPolygon() bool { return len(f.Polygon) > 0 }

func (f Finding) Clone() Finding {
	out := f
	if f.Polygon != nil {
		out.Polygon = append([]Point(nil), f.Polygon...)
	}
	return out
}

type AnalysisResult struct {
	Report   string    `json:"report"`
	Findings []Finding `json:"findings"`
}

func (r AnalysisResult) Clone() AnalysisResult {
	out := AnalysisResult{Report: r.Report, Findings: make([]Finding, 0, len(r.Findings))}
	for _, f := range r.Findings {
		out.Findings = append(out.Findings, f.Clone())
	}
	return out
}

type Sensitivity string

const (
	SensitivityLow      Sensitivity = "low"
	SensitivityStandard Sensitivity = "standard"
	SensitivityHigh     Sensitivity = "high"
)

// ParseSensitivity accepts any case; empty means standard.
func ParseSensitivity(s string) (Sensitivity, error) {
	switch v := Sensitivity(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return SensitivityStandard, nil
	case SensitivityLow, SensitivityStandard, SensitivityHigh:
		return v, nil
	default:
		return "", fmt.Errorf("unknown sensitivity %q; use low|standard|high", s)
	}
}

func (s Sensitivity) Upper() string { return strings.ToUpper(string(s)) }

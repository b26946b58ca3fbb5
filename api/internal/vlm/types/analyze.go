package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"scan-viewer/api/internal/util"
)

type AnalyzeRequest struct {
	Media       []byte      `json:"-"`
	MIME        string      `json:"mime"`
	Sensitivity Sensitivity `json:"sensitivity"`
}

// wire shapes keep pointers so that absent required fields can be told apart
// from zero values.
type wireBox struct {
	YMin *float64 `json:"ymin"`
	XMin *float64 `json:"xmin"`
	YMax *float64 `json:"ymax"`
	XMax *float64 `json:"xmax"`
}

type wireFinding struct {
	Label       *string  `json:"label"`
	Severity    *string  `json:"severity"`
	Coordinates *wireBox `json:"coordinates"`
	Polygon     []Point  `json:"polygon"`
	Description string   `json:"description"`
}

type wireAnalysis struct {
	Report   *string        `json:"report"`
	Findings *[]wireFinding `json:"findings"`
}

// DecodeAnalysis parses model output into an AnalysisResult and rejects
// payloads missing report, findings or the per-finding label, severity and
// coordinates. Code fences around the JSON are tolerated.
func DecodeAnalysis(raw string) (AnalysisResult, error) {
	txt := util.StripCodeFences(raw)
	if txt == "" {
		return AnalysisResult{}, errors.New("empty response")
	}
	var w wireAnalysis
	if err := json.Unmarshal([]byte(txt), &w); err != nil {
		return AnalysisResult{}, fmt.Errorf("bad JSON: %w", err)
	}
	if w.Report == nil {
		return AnalysisResult{}, errors.New("missing report")
	}
	if w.Findings == nil {
		return AnalysisResult{}, errors.New("missing findings")
	}
	out := AnalysisResult{Report: *w.Report, Findings: make([]Finding, 0, len(*w.Findings))}
	for i, wf := range *w.Findings {
		f, err := wf.finding()
		if err != nil {
			return AnalysisResult{}, fmt.Errorf("findings[%d]: %w", i, err)
		}
		out.Findings = append(out.Findings, f)
	}
	return out, nil
}

func (wf wireFinding) finding() (Finding, error) {
	if wf.Label == nil || strings.TrimSpace(*wf.Label) == "" {
		return Finding{}, errors.New("missing label")
	}
	if wf.Severity == nil || strings.TrimSpace(*wf.Severity) == "" {
		return Finding{}, errors.New("missing severity")
	}
	box, err := wf.Coordinates.box()
	if err != nil {
		return Finding{}, err
	}
	return Finding{
		Label:       strings.TrimSpace(*wf.Label),
		Severity:    Severity(strings.ToLower(strings.TrimSpace(*wf.Severity))),
		Coordinates: box,
		Polygon:     wf.Polygon,
		Description: wf.Description,
	}, nil
}

func (b *wireBox) box() (BoundingBox, error) {
	if b == nil {
		return BoundingBox{}, errors.New("missing coordinates")
	}
	if b.YMin == nil || b.XMin == nil || b.YMax == nil || b.XMax == nil {
		return BoundingBox{}, errors.New("incomplete coordinates")
	}
	return BoundingBox{YMin: *b.YMin, XMin: *b.XMin, YMax: *b.YMax, XMax: *b.XMax}, nil
}

package types

import "testing"

func TestFindingFromArgs(t *testing.T) {
	args := map[string]any{
		"label":    "Liver",
		"severity": "moderate",
		"ymin":     float64(100),
		"xmin":     float64(150),
		"ymax":     float64(400),
		"xmax":     float64(500),
		"polygon": []any{
			map[string]any{"x": float64(150), "y": float64(100)},
			map[string]any{"x": float64(500), "y": float64(120)},
			map[string]any{"x": float64(320), "y": float64(400)},
		},
	}
	f, err := FindingFromArgs(args)
	if err != nil {
		t.Fatalf("FindingFromArgs() error = %v", err)
	}
	if f.Label != "Liver" || f.Severity != SeverityModerate {
		t.Errorf("unexpected finding %+v", f)
	}
	if f.Coordinates != (BoundingBox{YMin: 100, XMin: 150, YMax: 400, XMax: 500}) {
		t.Errorf("unexpected box %+v", f.Coordinates)
	}
	if len(f.Polygon) != 3 {
		t.Errorf("expected 3 polygon points, got %d", len(f.Polygon))
	}
	if f.Description != CopilotDescription {
		t.Errorf("description should default to %q, got %q", CopilotDescription, f.Description)
	}
}

func TestFindingFromArgsWithoutPolygon(t *testing.T) {
	f, err := FindingFromArgs(map[string]any{
		"label": "Aorta", "severity": "low", "ymin": 1, "xmin": "2", "ymax": int64(3), "xmax": float32(4),
	})
	if err != nil {
		t.Fatalf("FindingFromArgs() error = %v", err)
	}
	if f.HasPolygon() {
		t.Errorf("expected no polygon, got %v", f.Polygon)
	}
	if f.Coordinates.XMin != 2 || f.Coordinates.XMax != 4 {
		t.Errorf("numbers not converted: %+v", f.Coordinates)
	}
}

func TestFindingFromArgsRejectsMissingFields(t *testing.T) {
	cases := []map[string]any{
		{"severity": "low", "ymin": 1.0, "xmin": 1.0, "ymax": 2.0, "xmax": 2.0},
		{"label": "A", "ymin": 1.0, "xmin": 1.0, "ymax": 2.0, "xmax": 2.0},
		{"label": "A", "severity": "low", "xmin": 1.0, "ymax": 2.0, "xmax": 2.0},
		{"label": "A", "severity": "low", "ymin": 1.0, "xmin": 1.0, "ymax": 2.0, "xmax": 2.0, "polygon": "nope"},
	}
	for i, args := range cases {
		if _, err := FindingFromArgs(args); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// HighlightTool is the function the model may call during conversation to
// draw a structure on the scan.
const HighlightTool = "highlight_anatomy"

// FindingFromArgs turns highlight_anatomy arguments into a Finding. The
// description is always the copilot placeholder.
func FindingFromArgs(args map[string]any) (Finding, error) {
	label, _ := args["label"].(string)
	if strings.TrimSpace(label) == "" {
		return Finding{}, errors.New("highlight: missing label")
	}
	sev, _ := args["severity"].(string)
	if strings.TrimSpace(sev) == "" {
		return Finding{}, errors.New("highlight: missing severity")
	}
	var box BoundingBox
	for _, c := range []struct {
		key string
		dst *float64
	}{
		{"ymin", &box.YMin}, {"xmin", &box.XMin}, {"ymax", &box.YMax}, {"xmax", &box.XMax},
	} {
		v, err := number(args[c.key])
		if err != nil {
			return Finding{}, fmt.Errorf("highlight: %s: %w", c.key, err)
		}
		*c.dst = v
	}
	poly, err := polygon(args["polygon"])
	if err != nil {
		return Finding{}, fmt.Errorf("highlight: polygon: %w", err)
	}
	return Finding{
		Label:       strings.TrimSpace(label),
		Severity:    Severity(strings.ToLower(strings.TrimSpace(sev))),
		Coordinates: box,
		Polygon:     poly,
		Description: CopilotDescription,
	}, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func polygon(v any) ([]Point, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", v)
	}
	out := make([]Point, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("[%d]: unexpected type %T", i, it)
		}
		x, err := number(m["x"])
		if err != nil {
			return nil, fmt.Errorf("[%d].x: %w", i, err)
		}
		y, err := number(m["y"])
		if err != nil {
			return nil, fmt.Errorf("[%d].y: %w", i, err)
		}
		out = append(out, Point{X: x, Y: y})
	}
	return out, nil
}

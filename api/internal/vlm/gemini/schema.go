package gemini

import (
	"github.com/google/generative-ai-go/genai"

	"scan-viewer/api/internal/vlm/prompt"
	"scan-viewer/api/internal/vlm/types"
)

var severityEnum = []string{
	string(types.SeverityHigh),
	string(types.SeverityModerate),
	string(types.SeverityFluid),
	string(types.SeverityLow),
}

func pointSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"x": {Type: genai.TypeNumber},
			"y": {Type: genai.TypeNumber},
		},
		Required: []string{"x", "y"},
	}
}

func analysisSchema() *genai.Schema {
	finding := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"label":       {Type: genai.TypeString},
			"severity":    {Type: genai.TypeString, Enum: severityEnum},
			"description": {Type: genai.TypeString},
			"coordinates": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"ymin": {Type: genai.TypeNumber},
					"xmin": {Type: genai.TypeNumber},
					"ymax": {Type: genai.TypeNumber},
					"xmax": {Type: genai.TypeNumber},
				},
				Required: []string{"ymin", "xmin", "ymax", "xmax"},
			},
			"polygon": {Type: genai.TypeArray, Items: pointSchema()},
		},
		Required: []string{"label", "severity", "coordinates"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"report":   {Type: genai.TypeString},
			"findings": {Type: genai.TypeArray, Items: finding},
		},
		Required: []string{"report", "findings"},
	}
}

func researchSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {Type: genai.TypeString},
			"sources": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title": {Type: genai.TypeString},
						"uri":   {Type: genai.TypeString},
					},
					Required: []string{"uri"},
				},
			},
		},
		Required: []string{"summary"},
	}
}

func highlightTool() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        types.HighlightTool,
			Description: prompt.HighlightDescription,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"label":    {Type: genai.TypeString, Description: "Name of the structure (e.g., Liver, Aorta, Tumor)"},
					"severity": {Type: genai.TypeString, Enum: severityEnum, Description: "Risk level for coloring"},
					"ymin":     {Type: genai.TypeNumber, Description: "Top coordinate (0-1000)"},
					"xmin":     {Type: genai.TypeNumber, Description: "Left coordinate (0-1000)"},
					"ymax":     {Type: genai.TypeNumber, Description: "Bottom coordinate (0-1000)"},
					"xmax":     {Type: genai.TypeNumber, Description: "Right coordinate (0-1000)"},
					"polygon": {
						Type:        genai.TypeArray,
						Description: "Optional list of points for polygon segmentation",
						Items:       pointSchema(),
					},
				},
				Required: []string{"label", "severity", "ymin", "xmin", "ymax", "xmax"},
			},
		}},
	}
}

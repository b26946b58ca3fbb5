// Package prompt holds the instructions sent to the vision-language models.
package prompt

import (
	_ "embed"
	"fmt"

	"scan-viewer/api/internal/vlm/types"
)

var (
	//go:embed analyze_system.txt
	AnalyzeSystem string

	//go:embed copilot_system.txt
	CopilotSystem string
)

const (
	ScanReference = "Here is the patient scan for reference."

	HighlightDescription = "Highlight or segment a specific anatomical structure or pathology on the image based on user request."

	ResearchSystem = "You are a medical research assistant. Cite only sources you are confident exist."
)

func AnalyzeUser(sens types.Sensitivity) string {
	return fmt.Sprintf(`Analyze this medical scan (image or volumetric video).

SETTINGS:
- Detection Sensitivity: %s

TASKS:
1. Identify findings based on the sensitivity level.
2. Check for organ displacement or size changes (hepatomegaly, etc.) and segment them.
3. Generate a structured report.
4. Provide bounding boxes AND polygon segmentation masks for pathologies where possible.
5. Include a Differential Diagnosis section in the Impression.`, sens.Upper())
}

func ResearchUser(query string) string {
	return fmt.Sprintf(`Find the latest medical research papers, clinical trials and treatment guidelines regarding: %q.
Summarize the key findings, potential treatments and recent breakthroughs.
Return STRICT JSON: {"summary": "markdown text", "sources": [{"title": "...", "uri": "https://..."}]}`, query)
}

// OllamaChatFormat tells models without tool calling how to request
// highlights inside a JSON reply.
const OllamaChatFormat = `Reply with STRICT JSON only:
{"text": "your answer", "highlights": [{"label": "...", "severity": "high|moderate|fluid|low", "ymin": 0-1000, "xmin": 0-1000, "ymax": 0-1000, "xmax": 0-1000, "polygon": [{"x": 0-1000, "y": 0-1000}]}]}
Use an empty highlights array unless the user asked you to locate, find or show something.`

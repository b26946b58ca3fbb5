package gemini

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"

	"scan-viewer/api/internal/vlm/prompt"
	"scan-viewer/api/internal/vlm/types"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func response(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestHighlightsFromCalls(t *testing.T) {
	e := New("k", "m", "", quiet())
	resp := response(
		genai.Text("Here it is."),
		genai.FunctionCall{Name: types.HighlightTool, Args: map[string]any{
			"label": "Liver", "severity": "moderate",
			"ymin": 100.0, "xmin": 200.0, "ymax": 400.0, "xmax": 600.0,
		}},
		genai.FunctionCall{Name: types.HighlightTool, Args: map[string]any{"label": "Broken"}},
		genai.FunctionCall{Name: "other_tool", Args: map[string]any{}},
	)
	got := e.highlights(resp)
	if len(got) != 1 {
		t.Fatalf("highlights = %+v", got)
	}
	f := got[0]
	if f.Label != "Liver" || f.Coordinates.XMax != 600 || f.Description != types.CopilotDescription {
		t.Errorf("finding = %+v", f)
	}
	if txt := allText(resp); txt != "Here it is." {
		t.Errorf("allText() = %q", txt)
	}
}

func TestHistoryPutsScanFirst(t *testing.T) {
	h := history(types.ConverseRequest{
		History: []types.Turn{{Role: types.RoleUser, Text: "q"}, {Role: types.RoleModel, Text: "a"}},
		Message: "next",
		Media:   []byte("\x89PNG\r\n\x1a\n...."),
	})
	if len(h) != 3 {
		t.Fatalf("history len = %d", len(h))
	}
	if h[0].Role != "user" || len(h[0].Parts) != 2 {
		t.Fatalf("first content = %+v", h[0])
	}
	if b, ok := h[0].Parts[0].(*genai.Blob); !ok || b.MIMEType != "image/png" {
		t.Errorf("scan part = %#v", h[0].Parts[0])
	}
	if txt, _ := h[0].Parts[1].(genai.Text); string(txt) != prompt.ScanReference {
		t.Errorf("scan caption = %q", txt)
	}
	if h[2].Role != "model" {
		t.Errorf("turn role = %q", h[2].Role)
	}

	if h := history(types.ConverseRequest{Message: "hi"}); len(h) != 0 {
		t.Errorf("history without media = %+v", h)
	}
}

func TestCitations(t *testing.T) {
	uri := "https://pubmed.example/1"
	resp := response(genai.Text("{}"))
	resp.Candidates[0].CitationMetadata = &genai.CitationMetadata{
		CitationSources: []*genai.CitationSource{{URI: &uri}, {URI: nil}, nil},
	}
	got := citations(resp)
	if len(got) != 1 || got[0].URI != uri {
		t.Errorf("citations() = %+v", got)
	}
}

func TestSchemasRequireCoreFields(t *testing.T) {
	s := analysisSchema()
	if len(s.Required) != 2 {
		t.Errorf("analysis required = %v", s.Required)
	}
	f := s.Properties["findings"].Items
	want := map[string]bool{"label": true, "severity": true, "coordinates": true}
	for _, r := range f.Required {
		delete(want, r)
	}
	if len(want) != 0 {
		t.Errorf("finding schema missing required %v", want)
	}
	decl := highlightTool().FunctionDeclarations[0]
	if decl.Name != "highlight_anatomy" || len(decl.Parameters.Required) != 6 {
		t.Errorf("tool = %+v", decl)
	}
}

func TestWithRetry(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), func() (*genai.GenerateContentResponse, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("503")
		}
		return response(genai.Text("ok")), nil
	})
	if err != nil || calls != 2 {
		t.Errorf("calls = %d err = %v", calls, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = withRetry(ctx, func() (*genai.GenerateContentResponse, error) { return nil, errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMissingKey(t *testing.T) {
	e := New("", "m", "", quiet())
	_, err := e.Analyze(context.Background(), types.AnalyzeRequest{Media: []byte{1}})
	var ae *types.AnalysisError
	if !errors.As(err, &ae) {
		t.Errorf("expected AnalysisError, got %v", err)
	}
	_, err = e.Converse(context.Background(), types.ConverseRequest{Message: "hi"})
	var ce *types.ChatError
	if !errors.As(err, &ce) {
		t.Errorf("expected ChatError, got %v", err)
	}
	res, err := e.Research(context.Background(), types.ResearchRequest{Query: "x"})
	if err != nil || res.Summary != types.ResearchFailed {
		t.Errorf("Research() = %+v, %v", res, err)
	}
}

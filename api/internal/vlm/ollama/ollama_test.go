package ollama

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/sirupsen/logrus"

	"scan-viewer/api/internal/vlm/types"
)

type fakeChat struct {
	reply string
	err   error
	got   *api.ChatRequest
}

func (f *fakeChat) Chat(_ context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	f.got = req
	if f.err != nil {
		return f.err
	}
	return fn(api.ChatResponse{Message: api.Message{Role: "assistant", Content: f.reply}})
}

func engine(fc *fakeChat) *Engine {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Engine{Model: "llava", client: fc, log: l}
}

func TestAnalyze(t *testing.T) {
	fc := &fakeChat{reply: `{"report":"R","findings":[{"label":"Mass","severity":"HIGH","coordinates":{"ymin":1,"xmin":2,"ymax":3,"xmax":4}}]}`}
	res, err := engine(fc).Analyze(context.Background(), types.AnalyzeRequest{Media: []byte{1, 2}, MIME: "image/png", Sensitivity: types.SensitivityHigh})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.Report != "R" || len(res.Findings) != 1 || res.Findings[0].Severity != types.SeverityHigh {
		t.Errorf("result = %+v", res)
	}
	if *fc.got.Stream || len(fc.got.Messages) != 2 || len(fc.got.Messages[1].Images) != 1 {
		t.Errorf("request = %+v", fc.got)
	}
	if !strings.Contains(fc.got.Messages[1].Content, "HIGH") {
		t.Errorf("prompt lacks sensitivity: %q", fc.got.Messages[1].Content)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	var ae *types.AnalysisError
	tests := []struct {
		name string
		fc   *fakeChat
		req  types.AnalyzeRequest
	}{
		{"transport", &fakeChat{err: errors.New("refused")}, types.AnalyzeRequest{Media: []byte{1}}},
		{"missing findings", &fakeChat{reply: `{"report":"R"}`}, types.AnalyzeRequest{Media: []byte{1}}},
		{"empty", &fakeChat{reply: ""}, types.AnalyzeRequest{Media: []byte{1}}},
		{"no media", &fakeChat{}, types.AnalyzeRequest{}},
		{"video", &fakeChat{}, types.AnalyzeRequest{Media: []byte{1}, MIME: "video/mp4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine(tt.fc).Analyze(context.Background(), tt.req); !errors.As(err, &ae) {
				t.Errorf("expected AnalysisError, got %v", err)
			}
		})
	}
}

func TestConverse(t *testing.T) {
	fc := &fakeChat{reply: `{"text":"","highlights":[{"label":"Aorta","severity":"moderate","ymin":10,"xmin":20,"ymax":30,"xmax":40},{"label":"bad"}]}`}
	res, err := engine(fc).Converse(context.Background(), types.ConverseRequest{
		History: []types.Turn{{Role: types.RoleUser, Text: "hi"}, {Role: types.RoleModel, Text: "hello"}},
		Message: "show the aorta",
		Media:   []byte{1},
		MIME:    "image/png",
	})
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	if len(res.Findings) != 1 || res.Findings[0].Label != "Aorta" || res.Text != types.ReplyHighlighted {
		t.Errorf("result = %+v", res)
	}
	roles := []string{}
	for _, m := range fc.got.Messages {
		roles = append(roles, m.Role)
	}
	if strings.Join(roles, ",") != "system,user,user,assistant,user" {
		t.Errorf("roles = %v", roles)
	}

	fc = &fakeChat{reply: "just words"}
	res, _ = engine(fc).Converse(context.Background(), types.ConverseRequest{Message: "?"})
	if res.Text != "just words" || len(res.Findings) != 0 {
		t.Errorf("plain reply = %+v", res)
	}

	fc = &fakeChat{err: errors.New("down")}
	_, err = engine(fc).Converse(context.Background(), types.ConverseRequest{Message: "?"})
	var ce *types.ChatError
	if !errors.As(err, &ce) {
		t.Errorf("expected ChatError, got %v", err)
	}
}

func TestResearch(t *testing.T) {
	fc := &fakeChat{reply: `{"summary":"S","sources":[{"title":"A","uri":"https://a"},{"title":"A2","uri":"https://a"}]}`}
	res, err := engine(fc).Research(context.Background(), types.ResearchRequest{Query: "edema"})
	if err != nil || res.Summary != "S" || len(res.Sources) != 1 || res.Sources[0].Title != "A" {
		t.Errorf("Research() = %+v, %v", res, err)
	}
	fc = &fakeChat{err: errors.New("down")}
	res, err = engine(fc).Research(context.Background(), types.ResearchRequest{Query: "edema"})
	if err != nil || res.Summary != types.ResearchFailed {
		t.Errorf("Research() failure = %+v, %v", res, err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("not a url", "llava", logrus.New()); err == nil {
		t.Error("expected error")
	}
	e, err := New("http://localhost:11434/api/chat", "llava", logrus.New())
	if err != nil || e.GetModel() != "llava" {
		t.Errorf("New() = %+v, %v", e, err)
	}
}

// Package ollama implements vlm.Engine on a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/sirupsen/logrus"

	"scan-viewer/api/internal/vlm/prompt"
	"scan-viewer/api/internal/vlm/types"
)

// defaultTimeout applies when the caller set no deadline; local vision models
// on CPU are slow.
const defaultTimeout = 300 * time.Second

// chatter is the part of *api.Client the engine uses.
type chatter interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

type Engine struct {
	Model  string
	client chatter
	log    *logrus.Logger
}

func New(baseURL, model string, log *logrus.Logger) (*Engine, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid OLLAMA_URL %q", baseURL)
	}
	base := &url.URL{Scheme: u.Scheme, Host: u.Host}
	return &Engine{
		Model:  strings.TrimSpace(model),
		client: api.NewClient(base, http.DefaultClient),
		log:    log,
	}, nil
}

func (e *Engine) Name() string     { return "ollama" }
func (e *Engine) GetModel() string { return e.Model }

var (
	formatJSON     = json.RawMessage(`"json"`)
	analysisFormat = json.RawMessage(`{
  "type": "object",
  "properties": {
    "report": {"type": "string"},
    "findings": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "label": {"type": "string"},
          "severity": {"type": "string", "enum": ["high", "moderate", "fluid", "low"]},
          "description": {"type": "string"},
          "coordinates": {
            "type": "object",
            "properties": {
              "ymin": {"type": "number"}, "xmin": {"type": "number"},
              "ymax": {"type": "number"}, "xmax": {"type": "number"}
            },
            "required": ["ymin", "xmin", "ymax", "xmax"]
          },
          "polygon": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {"x": {"type": "number"}, "y": {"type": "number"}},
              "required": ["x", "y"]
            }
          }
        },
        "required": ["label", "severity", "coordinates"]
      }
    }
  },
  "required": ["report", "findings"]
}`)
)

// chat sends a non-streaming request and returns the assistant content.
func (e *Engine) chat(ctx context.Context, msgs []api.Message, format json.RawMessage) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	stream := false
	req := &api.ChatRequest{
		Model:    e.Model,
		Messages: msgs,
		Stream:   &stream,
		Format:   format,
		Options:  map[string]any{"temperature": 0},
	}
	var b strings.Builder
	err := e.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

func (e *Engine) Analyze(ctx context.Context, in types.AnalyzeRequest) (types.AnalysisResult, error) {
	res, err := e.analyze(ctx, in)
	if err != nil {
		return types.AnalysisResult{}, &types.AnalysisError{Engine: e.Name(), Err: err}
	}
	return res, nil
}

func (e *Engine) analyze(ctx context.Context, in types.AnalyzeRequest) (types.AnalysisResult, error) {
	if len(in.Media) == 0 {
		return types.AnalysisResult{}, errors.New("no media")
	}
	if strings.HasPrefix(in.MIME, "video/") {
		return types.AnalysisResult{}, errors.New("video input is not supported by ollama")
	}
	sens := in.Sensitivity
	if sens == "" {
		sens = types.SensitivityStandard
	}
	msgs := []api.Message{
		{Role: "system", Content: prompt.AnalyzeSystem},
		{Role: "user", Content: prompt.AnalyzeUser(sens), Images: []api.ImageData{api.ImageData(in.Media)}},
	}
	txt, err := e.chat(ctx, msgs, analysisFormat)
	if err != nil {
		return types.AnalysisResult{}, err
	}
	res, err := types.DecodeAnalysis(txt)
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("decode: %w", err)
	}
	return res, nil
}

func (e *Engine) Converse(ctx context.Context, in types.ConverseRequest) (types.ConverseResult, error) {
	txt, err := e.chat(ctx, messages(in), formatJSON)
	if err != nil {
		return types.ConverseResult{}, &types.ChatError{Engine: e.Name(), Err: err}
	}
	text, findings := e.decodeReply(txt)
	return types.ConverseResult{Text: types.DefaultReply(text, len(findings)), Findings: findings}, nil
}

func messages(in types.ConverseRequest) []api.Message {
	msgs := []api.Message{{Role: "system", Content: prompt.CopilotSystem + "\n" + prompt.OllamaChatFormat}}
	if len(in.Media) > 0 && !strings.HasPrefix(in.MIME, "video/") {
		msgs = append(msgs, api.Message{
			Role:    "user",
			Content: prompt.ScanReference,
			Images:  []api.ImageData{api.ImageData(in.Media)},
		})
	}
	for _, t := range in.History {
		role := "user"
		if t.Role == types.RoleModel {
			role = "assistant"
		}
		msgs = append(msgs, api.Message{Role: role, Content: t.Text})
	}
	return append(msgs, api.Message{Role: "user", Content: in.Message})
}

type reply struct {
	Text       string           `json:"text"`
	Highlights []map[string]any `json:"highlights"`
}

// decodeReply maps the highlights array exactly like tool calls. A reply
// that is not JSON is taken as plain text.
func (e *Engine) decodeReply(raw string) (string, []types.Finding) {
	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return raw, nil
	}
	var out []types.Finding
	for _, args := range r.Highlights {
		f, err := types.FindingFromArgs(args)
		if err != nil {
			e.log.WithField("engine", e.Name()).WithError(err).Warn("skipping malformed highlight")
			continue
		}
		out = append(out, f)
	}
	return strings.TrimSpace(r.Text), out
}

func (e *Engine) Research(ctx context.Context, in types.ResearchRequest) (types.ResearchResult, error) {
	q := strings.TrimSpace(in.Query)
	fail := types.ResearchResult{Summary: types.ResearchFailed, Sources: []types.Source{}}
	if q == "" {
		return fail, nil
	}
	msgs := []api.Message{
		{Role: "system", Content: prompt.ResearchSystem},
		{Role: "user", Content: prompt.ResearchUser(q)},
	}
	txt, err := e.chat(ctx, msgs, formatJSON)
	if err != nil {
		e.log.WithField("engine", e.Name()).WithError(err).Warn("research failed")
		return fail, nil
	}
	out := types.DecodeResearch(txt)
	out.Sources = types.DedupeSources(out.Sources)
	return out, nil
}

// Package gemini implements vlm.Engine on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const maxAttempts = 3

type Engine struct {
	APIKey        string
	Model         string
	ResearchModel string
	log           *logrus.Logger
}

func New(apiKey, model, researchModel string, log *logrus.Logger) *Engine {
	model = strings.TrimSpace(model)
	researchModel = strings.TrimSpace(researchModel)
	if researchModel == "" {
		researchModel = model
	}
	return &Engine{
		APIKey:        strings.TrimSpace(apiKey),
		Model:         model,
		ResearchModel: researchModel,
		log:           log,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) client(ctx context.Context) (*genai.Client, error) {
	if e.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	return genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
}

// withRetry retries transport failures with a linear backoff.
func withRetry(ctx context.Context, call func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
		}
	}
	return nil, lastErr
}

// --------------------------- helpers ---------------------------

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

// allText joins every text part of the first candidate.
func allText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

func ptrFloat32(v float32) *float32 { return &v }

package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"scan-viewer/api/internal/util"
	"scan-viewer/api/internal/vlm/prompt"
	"scan-viewer/api/internal/vlm/types"
)

// Analyze asks for a structured report and findings under the JSON schema.
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
	cl, err := e.client(ctx)
	if err != nil {
		return types.AnalysisResult{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   analysisSchema(),
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.AnalyzeSystem)}}

	sens := in.Sensitivity
	if sens == "" {
		sens = types.SensitivityStandard
	}
	parts := []genai.Part{
		&genai.Blob{MIMEType: util.PickMIME(in.MIME, "", in.Media), Data: in.Media},
		genai.Text(prompt.AnalyzeUser(sens)),
	}
	resp, err := withRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		return m.GenerateContent(ctx, parts...)
	})
	if err != nil {
		return types.AnalysisResult{}, err
	}
	res, err := types.DecodeAnalysis(firstText(resp))
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("decode: %w", err)
	}
	return res, nil
}

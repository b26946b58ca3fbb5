package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"scan-viewer/api/internal/vlm/prompt"
	"scan-viewer/api/internal/vlm/types"
)

// Research summarises recent literature on a query. Failures are logged and
// reported in the summary instead of being returned.
func (e *Engine) Research(ctx context.Context, in types.ResearchRequest) (types.ResearchResult, error) {
	res, err := e.research(ctx, in)
	if err != nil {
		e.log.WithField("engine", e.Name()).WithError(err).Warn("research failed")
		return types.ResearchResult{Summary: types.ResearchFailed, Sources: []types.Source{}}, nil
	}
	return res, nil
}

func (e *Engine) research(ctx context.Context, in types.ResearchRequest) (types.ResearchResult, error) {
	q := strings.TrimSpace(in.Query)
	if q == "" {
		return types.ResearchResult{}, errors.New("empty query")
	}
	cl, err := e.client(ctx)
	if err != nil {
		return types.ResearchResult{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.ResearchModel)
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   researchSchema(),
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.ResearchSystem)}}

	resp, err := withRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		return m.GenerateContent(ctx, genai.Text(prompt.ResearchUser(q)))
	})
	if err != nil {
		return types.ResearchResult{}, err
	}
	out := types.DecodeResearch(firstText(resp))
	out.Sources = types.DedupeSources(append(out.Sources, citations(resp)...))
	return out, nil
}

func citations(resp *genai.GenerateContentResponse) []types.Source {
	if resp == nil {
		return nil
	}
	var out []types.Source
	for _, c := range resp.Candidates {
		if c == nil || c.CitationMetadata == nil {
			continue
		}
		for _, s := range c.CitationMetadata.CitationSources {
			if s == nil || s.URI == nil {
				continue
			}
			out = append(out, types.Source{URI: *s.URI})
		}
	}
	return out
}

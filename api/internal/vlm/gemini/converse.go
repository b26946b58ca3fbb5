package gemini

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"

	"scan-viewer/api/internal/util"
	"scan-viewer/api/internal/vlm/prompt"
	"scan-viewer/api/internal/vlm/types"
)

// Converse answers one chat turn. The model may call highlight_anatomy; each
// call becomes a finding.
func (e *Engine) Converse(ctx context.Context, in types.ConverseRequest) (types.ConverseResult, error) {
	cl, err := e.client(ctx)
	if err != nil {
		return types.ConverseResult{}, &types.ChatError{Engine: e.Name(), Err: err}
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.CopilotSystem)}}
	m.Tools = []*genai.Tool{highlightTool()}

	hist := history(in)
	cs := m.StartChat()
	resp, err := withRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		// SendMessage keeps the failed user turn in History.
		cs.History = append([]*genai.Content(nil), hist...)
		return cs.SendMessage(ctx, genai.Text(in.Message))
	})
	if err != nil {
		return types.ConverseResult{}, &types.ChatError{Engine: e.Name(), Err: err}
	}
	findings := e.highlights(resp)
	return types.ConverseResult{
		Text:     types.DefaultReply(allText(resp), len(findings)),
		Findings: findings,
	}, nil
}

// history puts the scan first, then the prior turns.
func history(in types.ConverseRequest) []*genai.Content {
	out := make([]*genai.Content, 0, len(in.History)+1)
	if len(in.Media) > 0 {
		out = append(out, &genai.Content{
			Role: string(types.RoleUser),
			Parts: []genai.Part{
				&genai.Blob{MIMEType: util.PickMIME(in.MIME, "", in.Media), Data: in.Media},
				genai.Text(prompt.ScanReference),
			},
		})
	}
	for _, t := range in.History {
		out = append(out, &genai.Content{Role: string(t.Role), Parts: []genai.Part{genai.Text(t.Text)}})
	}
	return out
}

func (e *Engine) highlights(resp *genai.GenerateContentResponse) []types.Finding {
	var out []types.Finding
	for _, call := range functionCalls(resp) {
		if call.Name != types.HighlightTool {
			continue
		}
		f, err := types.FindingFromArgs(call.Args)
		if err != nil {
			e.log.WithFields(logrus.Fields{"engine": e.Name(), "tool": call.Name}).WithError(err).Warn("skipping malformed tool call")
			continue
		}
		out = append(out, f)
	}
	return out
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []genai.FunctionCall
	for _, p := range resp.Candidates[0].Content.Parts {
		switch c := p.(type) {
		case genai.FunctionCall:
			out = append(out, c)
		case *genai.FunctionCall:
			if c != nil {
				out = append(out, *c)
			}
		}
	}
	return out
}

// Package vlm defines the contract every vision-language backend implements.
package vlm

import (
	"context"
	"fmt"
	"strings"

	"scan-viewer/api/internal/vlm/types"
)

type Engine interface {
	Name() string
	GetModel() string
	// Analyze returns a validated result or a *types.AnalysisError.
	Analyze(ctx context.Context, in types.AnalyzeRequest) (types.AnalysisResult, error)
	// Converse returns the reply and any findings the model asked to
	// highlight, or a *types.ChatError.
	Converse(ctx context.Context, in types.ConverseRequest) (types.ConverseResult, error)
	// Research never fails; on error the summary says so.
	Research(ctx context.Context, in types.ResearchRequest) (types.ResearchResult, error)
}

const (
	EngineGemini = "gemini"
	EngineOllama = "ollama"
)

// Engines holds the configured backends. A nil field means the backend is
// disabled.
type Engines struct {
	Gemini Engine
	Ollama Engine
}

func (e *Engines) GetEngine(name string) (Engine, error) {
	var eng Engine
	switch strings.ToLower(strings.TrimSpace(name)) {
	case EngineGemini:
		eng = e.Gemini
	case EngineOllama:
		eng = e.Ollama
	default:
		return nil, fmt.Errorf("unknown engine %q; use '%s' or '%s'", name, EngineGemini, EngineOllama)
	}
	if eng == nil {
		return nil, fmt.Errorf("engine %q is not configured", name)
	}
	return eng, nil
}

// Available lists the configured engine names.
func (e *Engines) Available() []string {
	var out []string
	if e.Gemini != nil {
		out = append(out, EngineGemini)
	}
	if e.Ollama != nil {
		out = append(out, EngineOllama)
	}
	return out
}

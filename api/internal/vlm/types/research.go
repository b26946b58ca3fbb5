package types

import (
	"encoding/json"
	"strings"

	"scan-viewer/api/internal/util"
)

type ResearchRequest struct {
	Query string `json:"query"`
}

type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type ResearchResult struct {
	Summary string   `json:"summary"`
	Sources []Source `json:"sources"`
}

const (
	ResearchNotFound = "No research found."
	ResearchFailed   = "Failed to fetch research data."
)

// DedupeSources keeps the first source for each URI, preserving order.
// Sources without a URI are dropped.
func DedupeSources(in []Source) []Source {
	seen := make(map[string]struct{}, len(in))
	out := make([]Source, 0, len(in))
	for _, s := range in {
		uri := strings.TrimSpace(s.URI)
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = uri
		}
		out = append(out, Source{Title: title, URI: uri})
	}
	return out
}

// DecodeResearch reads a {"summary","sources"} reply. Text that is not JSON
// is used as the summary.
func DecodeResearch(raw string) ResearchResult {
	txt := util.StripCodeFences(raw)
	var out ResearchResult
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		out = ResearchResult{Summary: txt}
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		out.Summary = ResearchNotFound
	}
	return out
}

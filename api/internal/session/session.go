// Package session keeps the viewer state for one loaded scan and enforces how
// asynchronous results are merged into it.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scan-viewer/api/internal/media"
	"scan-viewer/api/internal/viewer"
	"scan-viewer/api/internal/vlm/types"
)

var (
	ErrBusy      = errors.New("session: a request of this kind is already running")
	ErrStale     = errors.New("session: result belongs to a replaced upload")
	ErrNoMedia   = errors.New("session: no media loaded")
	ErrNotFound  = errors.New("session: not found")
	ErrEmptyText = errors.New("session: empty text")
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseReady       Phase = "ready"
	PhaseChatPending Phase = "chat_pending"
)

type kind uint8

const (
	kindAnalysis kind = iota + 1
	kindChat
	kindResearch
)

// Ticket ties an in-flight request to the upload it was started for.
type Ticket struct {
	gen  uint64
	kind kind
}

type Session struct {
	id      string
	created time.Time
	now     func() time.Time

	mu          sync.Mutex
	engine      string
	sensitivity types.Sensitivity
	gen         uint64
	media       *media.Media
	analysis    *types.AnalysisResult
	chat        []types.ChatMessage
	research    *types.ResearchResult
	view        viewer.State
	overlayOn   bool
	analyzing   bool
	chatting    bool
	searching   bool
	lastErr     string
	touched     time.Time
}

func New(engine string, sens types.Sensitivity) *Session {
	return newSession(engine, sens, time.Now)
}

func newSession(engine string, sens types.Sensitivity, now func() time.Time) *Session {
	if sens == "" {
		sens = types.SensitivityStandard
	}
	t := now()
	return &Session{
		id:          uuid.NewString(),
		created:     t,
		now:         now,
		engine:      engine,
		sensitivity: sens,
		view:        viewer.Default(),
		overlayOn:   true,
		touched:     t,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Engine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func (s *Session) SetEngine(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = name
	s.touch()
}

func (s *Session) Sensitivity() types.Sensitivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensitivity
}

// SetSensitivity applies to the next analysis.
func (s *Session) SetSensitivity(sens types.Sensitivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensitivity = sens
	s.touch()
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

func (s *Session) touch() { s.touched = s.now() }

// Upload loads new media and resets everything derived from the previous one.
// It is always accepted; results of requests started before it become stale.
func (s *Session) Upload(m *media.Media) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.media = m
	s.analysis = nil
	s.chat = nil
	s.research = nil
	s.view = viewer.Default()
	s.overlayOn = true
	s.analyzing, s.chatting, s.searching = false, false, false
	s.lastErr = ""
	s.touch()
	return s.gen
}

// Media returns the loaded media or ErrNoMedia.
func (s *Session) Media() (*media.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.media == nil {
		return nil, ErrNoMedia
	}
	return s.media, nil
}

func (s *Session) phase() Phase {
	switch {
	case s.analyzing:
		return PhaseAnalyzing
	case s.chatting:
		return PhaseChatPending
	case s.analysis != nil:
		return PhaseReady
	default:
		return PhaseIdle
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase()
}

// check must be called with mu held.
func (s *Session) check(t Ticket, k kind) error {
	if t.kind != k || t.gen != s.gen {
		return ErrStale
	}
	return nil
}

// ---- analysis ----

// BeginAnalysis starts a full analysis at the given sensitivity.
func (s *Session) BeginAnalysis(sens types.Sensitivity) (Ticket, *media.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.media == nil {
		return Ticket{}, nil, ErrNoMedia
	}
	if s.analyzing {
		return Ticket{}, nil, ErrBusy
	}
	if sens != "" {
		s.sensitivity = sens
	}
	s.analyzing = true
	s.lastErr = ""
	s.touch()
	return Ticket{gen: s.gen, kind: kindAnalysis}, s.media, nil
}

// ReplaceFindings installs a full analysis result. The report and every
// finding, including ones added from chat, are replaced.
func (s *Session) ReplaceFindings(t Ticket, res types.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(t, kindAnalysis); err != nil {
		return err
	}
	r := res.Clone()
	s.analysis = &r
	s.analyzing = false
	s.touch()
	return nil
}

// FailAnalysis ends the request and keeps the last good result, if any.
func (s *Session) FailAnalysis(t Ticket, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(t, kindAnalysis); err != nil {
		return err
	}
	s.analyzing = false
	if cause != nil {
		s.lastErr = cause.Error()
	}
	s.touch()
	return nil
}

// ---- chat ----

// ChatContext is what the model needs to answer a turn.
type ChatContext struct {
	History []types.Turn
	Media   *media.Media
}

// BeginChat records the user's message and returns the history that preceded
// it.
func (s *Session) BeginChat(text string) (Ticket, ChatContext, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Ticket{}, ChatContext{}, ErrEmptyText
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatting {
		return Ticket{}, ChatContext{}, ErrBusy
	}
	hist := make([]types.Turn, 0, len(s.chat))
	for _, m := range s.chat {
		hist = append(hist, types.Turn{Role: m.Role, Text: m.Text})
	}
	s.chat = append(s.chat, s.message(types.RoleUser, text))
	s.chatting = true
	s.touch()
	return Ticket{gen: s.gen, kind: kindChat}, ChatContext{History: hist, Media: s.media}, nil
}

// AppendFindings records the model's reply and adds findings from it to the
// current result. Existing findings and the report are left as they are and
// nothing is deduplicated. Without an analysis result there is nothing to
// append to and the findings are discarded.
func (s *Session) AppendFindings(t Ticket, reply string, findings []types.Finding) (types.ChatMessage, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(t, kindChat); err != nil {
		return types.ChatMessage{}, 0, err
	}
	msg := s.message(types.RoleModel, types.DefaultReply(reply, len(findings)))
	s.chat = append(s.chat, msg)
	s.chatting = false
	added := 0
	if s.analysis != nil {
		for _, f := range findings {
			f = f.Clone()
			if f.Description == "" {
				f.Description = types.CopilotDescription
			}
			s.analysis.Findings = append(s.analysis.Findings, f)
			added++
		}
	}
	s.touch()
	return msg, added, nil
}

// FailChat answers the turn with a fixed apology.
func (s *Session) FailChat(t Ticket, cause error) (types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(t, kindChat); err != nil {
		return types.ChatMessage{}, err
	}
	msg := s.message(types.RoleModel, types.ReplyChatFailed)
	s.chat = append(s.chat, msg)
	s.chatting = false
	if cause != nil {
		s.lastErr = cause.Error()
	}
	s.touch()
	return msg, nil
}

func (s *Session) message(role types.Role, text string) types.ChatMessage {
	return types.ChatMessage{ID: uuid.NewString(), Role: role, Text: text, Timestamp: s.now()}
}

// ---- research ----

func (s *Session) BeginResearch(query string) (Ticket, error) {
	if strings.TrimSpace(query) == "" {
		return Ticket{}, ErrEmptyText
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searching {
		return Ticket{}, ErrBusy
	}
	s.searching = true
	s.touch()
	return Ticket{gen: s.gen, kind: kindResearch}, nil
}

func (s *Session) CompleteResearch(t Ticket, res types.ResearchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(t, kindResearch); err != nil {
		return err
	}
	res.Sources = append([]types.Source(nil), res.Sources...)
	s.research = &res
	s.searching = false
	s.touch()
	return nil
}

// FailResearch stores the fixed failure summary in place of a result.
func (s *Session) FailResearch(t Ticket, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(t, kindResearch); err != nil {
		return err
	}
	s.research = &types.ResearchResult{Summary: types.ResearchFailed}
	s.searching = false
	if cause != nil {
		s.lastErr = cause.Error()
	}
	s.touch()
	return nil
}

// ---- view ----

// UpdateView applies fn to the current view state and stores the result.
func (s *Session) UpdateView(fn func(viewer.State) viewer.State) viewer.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = fn(s.view)
	s.touch()
	return s.view
}

func (s *Session) ResetView() viewer.State {
	return s.UpdateView(viewer.State.Reset)
}

func (s *Session) SetOverlayVisible(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlayOn = on
	s.touch()
}

// Frame is everything needed to draw the current picture.
type Frame struct {
	Media          *media.Media
	Findings       []types.Finding
	View           viewer.State
	OverlayVisible bool
}

func (s *Session) Frame() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.media == nil {
		return Frame{}, ErrNoMedia
	}
	f := Frame{Media: s.media, View: s.view, OverlayVisible: s.overlayOn}
	if s.analysis != nil {
		f.Findings = s.analysis.Clone().Findings
	}
	return f, nil
}

// View is a read-only copy of the session for clients.
type View struct {
	ID             string                `json:"id"`
	Engine         string                `json:"engine"`
	Sensitivity    types.Sensitivity     `json:"sensitivity"`
	Phase          Phase                 `json:"phase"`
	Media          *media.Media          `json:"media,omitempty"`
	Analysis       *types.AnalysisResult `json:"analysis,omitempty"`
	Chat           []types.ChatMessage   `json:"chat"`
	Research       *types.ResearchResult `json:"research,omitempty"`
	View           viewer.State          `json:"view"`
	Transform      string                `json:"transform"`
	Filter         string                `json:"filter"`
	OverlayVisible bool                  `json:"overlay_visible"`
	Analyzing      bool                  `json:"analyzing"`
	Chatting       bool                  `json:"chatting"`
	Searching      bool                  `json:"searching"`
	LastError      string                `json:"last_error,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:             s.id,
		Engine:         s.engine,
		Sensitivity:    s.sensitivity,
		Phase:          s.phase(),
		Media:          s.media,
		Chat:           append([]types.ChatMessage{}, s.chat...),
		View:           s.view,
		Transform:      s.view.CSSTransform(),
		Filter:         s.view.CSSFilter(),
		OverlayVisible: s.overlayOn,
		Analyzing:      s.analyzing,
		Chatting:       s.chatting,
		Searching:      s.searching,
		LastError:      s.lastErr,
		CreatedAt:      s.created,
		UpdatedAt:      s.touched,
	}
	if s.analysis != nil {
		a := s.analysis.Clone()
		v.Analysis = &a
	}
	if s.research != nil {
		r := *s.research
		r.Sources = append([]types.Source{}, s.research.Sources...)
		v.Research = &r
	}
	return v
}

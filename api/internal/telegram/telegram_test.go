package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"scan-viewer/api/internal/media"
	"scan-viewer/api/internal/service"
	"scan-viewer/api/internal/session"
	"scan-viewer/api/internal/viewer"
	"scan-viewer/api/internal/vlm"
	"scan-viewer/api/internal/vlm/types"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  func(tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (f *fakeAPI) GetUpdates(c tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	return f.updates(c)
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) photos() []tgbotapi.PhotoConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.PhotoConfig
	for _, c := range f.sent {
		if p, ok := c.(tgbotapi.PhotoConfig); ok {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

type fakeEngine struct {
	analysis types.AnalysisResult
	reply    types.ConverseResult
	chatErr  error
}

func (f *fakeEngine) Name() string     { return "gemini" }
func (f *fakeEngine) GetModel() string { return "fake" }
func (f *fakeEngine) Analyze(context.Context, types.AnalyzeRequest) (types.AnalysisResult, error) {
	return f.analysis, nil
}
func (f *fakeEngine) Converse(context.Context, types.ConverseRequest) (types.ConverseResult, error) {
	if f.chatErr != nil {
		return types.ConverseResult{}, &types.ChatError{Engine: "gemini", Err: f.chatErr}
	}
	return f.reply, nil
}
func (f *fakeEngine) Research(context.Context, types.ResearchRequest) (types.ResearchResult, error) {
	return types.ResearchResult{Summary: "Edema is fluid.", Sources: []types.Source{{Title: "Review", URI: "https://pubmed.example/1"}}}, nil
}

func scanPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	img.Set(0, 0, color.NRGBA{255, 255, 255, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newRouter(t *testing.T, eng *fakeEngine) (*Router, *fakeAPI) {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	api := &fakeAPI{}
	scan := scanPNG(t)
	r := &Router{
		API: api,
		Svc: service.NewScanService(service.Options{
			Engines:       &vlm.Engines{Gemini: eng},
			Sessions:      session.NewManager(time.Hour, l),
			DefaultEngine: "gemini",
			Logger:        l,
		}),
		Log: l,
		Download: func(_ context.Context, url string) ([]byte, error) {
			if !strings.HasPrefix(url, "https://files.example/") {
				return nil, fmt.Errorf("unexpected url %q", url)
			}
			return scan, nil
		},
	}
	return r, api
}

func command(text string) tgbotapi.Update {
	cmd, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 42},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func text(s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}, Text: s}}
}

func photo() tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: 42},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}}
}

func analysis() types.AnalysisResult {
	return types.AnalysisResult{Report: "Right lower lobe opacity.", Findings: []types.Finding{{
		Label: "Opacity", Severity: types.SeverityHigh, Description: "Dense consolidation",
		Coordinates: types.BoundingBox{XMin: 100, YMin: 100, XMax: 600, YMax: 600},
	}}}
}

func contains(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func TestStartAndUnknownCommand(t *testing.T) {
	r, api := newRouter(t, &fakeEngine{})
	ctx := context.Background()
	r.HandleUpdate(ctx, command("/start"))
	r.HandleUpdate(ctx, command("/frobnicate"))
	got := api.texts()
	if len(got) != 2 || got[0] != helpText || !strings.Contains(got[1], "Unknown command") {
		t.Errorf("texts = %q", got)
	}
}

func TestPhotoAnalysisAndChat(t *testing.T) {
	eng := &fakeEngine{
		analysis: analysis(),
		reply: types.ConverseResult{Findings: []types.Finding{{
			Label: "Heart", Severity: types.SeverityLow,
			Coordinates: types.BoundingBox{XMin: 300, YMin: 300, XMax: 500, YMax: 500},
		}}},
	}
	r, api := newRouter(t, eng)
	ctx := context.Background()

	r.HandleUpdate(ctx, photo())
	if p := api.photos(); len(p) != 1 || p[0].Caption != "1 finding(s)" {
		t.Fatalf("photos after upload = %+v", p)
	}
	if !contains(api.texts(), "Opacity (high): Dense consolidation") {
		t.Errorf("report missing: %q", api.texts())
	}

	api.reset()
	r.HandleUpdate(ctx, text("where is the heart?"))
	if p := api.photos(); len(p) != 1 || p[0].Caption != types.ReplyHighlighted {
		t.Fatalf("photos after chat = %+v", p)
	}

	api.reset()
	r.HandleUpdate(ctx, command("/report"))
	if got := api.texts(); len(got) != 1 || !strings.Contains(got[0], "2. 🔵 Heart") {
		t.Errorf("report = %q", got)
	}
}

func TestChatFailureApologises(t *testing.T) {
	r, api := newRouter(t, &fakeEngine{analysis: analysis(), chatErr: errors.New("down")})
	ctx := context.Background()
	r.HandleUpdate(ctx, photo())
	api.reset()
	r.HandleUpdate(ctx, text("hello"))
	if got := api.texts(); len(got) != 1 || got[0] != types.ReplyChatFailed {
		t.Errorf("texts = %q", got)
	}
}

func TestViewCommands(t *testing.T) {
	r, api := newRouter(t, &fakeEngine{analysis: analysis()})
	ctx := context.Background()

	r.HandleUpdate(ctx, command("/zoom 2"))
	if got := api.texts(); len(got) != 1 || !strings.Contains(got[0], "Send a scan first") {
		t.Errorf("zoom without media = %q", got)
	}

	r.HandleUpdate(ctx, photo())
	api.reset()
	r.HandleUpdate(ctx, command("/zoom 10"))
	r.HandleUpdate(ctx, command("/brightness 300"))
	p := api.photos()
	if len(p) != 2 || p[1].Caption != "Zoom 5x · brightness 150% · contrast 100%" {
		t.Fatalf("captions = %+v", p)
	}

	api.reset()
	r.HandleUpdate(ctx, command("/contrast lots"))
	if got := api.texts(); len(got) != 1 || got[0] != "usage: /contrast <50-150>" {
		t.Errorf("bad arg = %q", got)
	}

	r.HandleUpdate(ctx, command("/overlay off"))
	sess, _ := r.sessionFor(42)
	if sess.Snapshot().OverlayVisible {
		t.Error("overlay still visible")
	}

	r.HandleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb", Data: cbReset, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
	}})
	if v := sess.Snapshot().View; !v.IsDefault() {
		t.Errorf("view after reset = %+v", v)
	}
	r.HandleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb", Data: cbOverlay, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
	}})
	if !sess.Snapshot().OverlayVisible {
		t.Error("overlay toggle did not show findings")
	}
}

func TestSensitivityAndEngine(t *testing.T) {
	r, api := newRouter(t, &fakeEngine{analysis: analysis()})
	ctx := context.Background()

	r.HandleUpdate(ctx, command("/sensitivity high"))
	r.HandleUpdate(ctx, command("/sensitivity extreme"))
	r.HandleUpdate(ctx, command("/engine ollama"))
	got := api.texts()
	if len(got) != 3 || !strings.Contains(got[0], "next scan") || !strings.HasPrefix(got[1], "❌") || !strings.HasPrefix(got[2], "❌") {
		t.Errorf("texts = %q", got)
	}
	sess, _ := r.sessionFor(42)
	if sess.Sensitivity() != types.SensitivityHigh {
		t.Errorf("sensitivity = %q", sess.Sensitivity())
	}
}

func TestResearch(t *testing.T) {
	r, api := newRouter(t, &fakeEngine{})
	r.HandleUpdate(context.Background(), command("/research"))
	r.HandleUpdate(context.Background(), command("/research pulmonary edema"))
	got := api.texts()
	if len(got) != 2 || !strings.HasPrefix(got[0], "Usage") || !strings.Contains(got[1], "https://pubmed.example/1") {
		t.Errorf("texts = %q", got)
	}
}

func TestSessionForConcurrentFirstUpdates(t *testing.T) {
	r, _ := newRouter(t, &fakeEngine{})
	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := r.sessionFor(7)
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = sess.ID()
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("chat got several sessions: %v", ids)
		}
	}

	if err := r.Svc.DeleteSession(ids[0]); err != nil {
		t.Fatal(err)
	}
	sess, err := r.sessionFor(7)
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID() == ids[0] {
		t.Error("evicted session reused")
	}
	again, _ := r.sessionFor(7)
	if again.ID() != sess.ID() {
		t.Errorf("replacement session not kept: %s vs %s", again.ID(), sess.ID())
	}
}

func TestViewEdit(t *testing.T) {
	tests := []struct {
		cmd, args string
		wantErr   bool
		zoom      float64
	}{
		{"zoom", "in", false, 1.5},
		{"zoom", "-", false, 0.5},
		{"zoom", "3", false, 3},
		{"zoom", "big", true, 0},
		{"brightness", "120%", false, 1},
	}
	for _, tt := range tests {
		edit, err := viewEdit(tt.cmd, tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("viewEdit(%q, %q) error = %v", tt.cmd, tt.args, err)
			continue
		}
		if err == nil {
			if got := edit(viewer.Default()).Zoom; got != tt.zoom {
				t.Errorf("viewEdit(%q, %q) zoom = %v, want %v", tt.cmd, tt.args, got, tt.zoom)
			}
		}
	}
}

func TestNotice(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{session.ErrStale, ""},
		{session.ErrBusy, "⏳ Still working on the previous request, please wait."},
		{&media.UploadError{Reason: "unsupported type"}, "Cannot read this file: unsupported type"},
		{&types.AnalysisError{Engine: "gemini", Err: errors.New("x")}, "❌ Analysis failed. Please try again."},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), "⌛ The model took too long. Please try again."},
	}
	for _, tt := range tests {
		if got := notice(tt.err); got != tt.want {
			t.Errorf("notice(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRetryDelayFromError(t *testing.T) {
	tests := []struct {
		err  error
		want time.Duration
	}{
		{nil, 0},
		{errors.New("Too Many Requests: retry after 7"), 7 * time.Second},
		{errors.New("too many requests"), 3 * time.Second},
		{errors.New("bad gateway"), time.Second},
	}
	for _, tt := range tests {
		if got := retryDelayFromError(tt.err); got != tt.want {
			t.Errorf("retryDelayFromError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRunPollingAdvancesOffset(t *testing.T) {
	r, api := newRouter(t, &fakeEngine{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var offsets []int
	api.updates = func(c tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
		offsets = append(offsets, c.Offset)
		if len(offsets) == 1 {
			upd := command("/help")
			upd.UpdateID = 5
			return []tgbotapi.Update{upd}, nil
		}
		cancel()
		return nil, nil
	}
	if err := r.RunPolling(ctx); err != nil {
		t.Fatalf("RunPolling() = %v", err)
	}
	if len(offsets) != 2 || offsets[1] != 6 {
		t.Errorf("offsets = %v", offsets)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(api.texts()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := api.texts(); len(got) != 1 || got[0] != helpText {
		t.Errorf("texts = %q", got)
	}
}

func TestWebhookHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r, _ := newRouter(t, &fakeEngine{})
	path := WebhookPath("123:abc")
	if !strings.HasPrefix(path, "/webhook/") || len(path) != len("/webhook/")+16 {
		t.Fatalf("path = %q", path)
	}
	g := gin.New()
	g.POST(path, r.WebhookHandler(context.Background()))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"update_id":1}`)))
	if w.Code != http.StatusOK {
		t.Errorf("valid update = %d", w.Code)
	}
	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad update = %d", w.Code)
	}
}

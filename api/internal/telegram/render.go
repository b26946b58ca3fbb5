package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scan-viewer/api/internal/media"
	"scan-viewer/api/internal/overlay"
	"scan-viewer/api/internal/session"
	"scan-viewer/api/internal/util"
	"scan-viewer/api/internal/vlm/types"
)

const (
	maxText    = 3900
	maxCaption = 1000
)

const (
	cbZoomIn  = "zoom_in"
	cbZoomOut = "zoom_out"
	cbOverlay = "overlay"
	cbReset   = "reset"
)

// zoomStep is the change applied by the zoom buttons and /zoom in|out.
const zoomStep = 0.5

func viewKeyboard(overlayOn bool) tgbotapi.InlineKeyboardMarkup {
	toggle := "Hide findings"
	if !overlayOn {
		toggle = "Show findings"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Zoom −", cbZoomOut),
			tgbotapi.NewInlineKeyboardButtonData("Zoom +", cbZoomIn),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(toggle, cbOverlay),
			tgbotapi.NewInlineKeyboardButtonData("Reset view", cbReset),
		),
	)
}

// sendSnapshot sends the scan with the findings burned in, labels always
// shown since the chat has no hover.
func (r *Router) sendSnapshot(chatID int64, sess *session.Session, caption string) error {
	out, err := r.Svc.Snapshot(sess, media.JPEG, overlay.NoFocus, true)
	if err != nil {
		return err
	}
	r.action(chatID, tgbotapi.ChatUploadPhoto)
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "scan.jpg", Bytes: out})
	photo.Caption = util.Truncate(caption, maxCaption)
	photo.ReplyMarkup = viewKeyboard(sess.Snapshot().OverlayVisible)
	_, err = r.API.Send(photo)
	return err
}

// showScan sends the snapshot; for videos only the caption text is sent.
func (r *Router) showScan(chatID int64, sess *session.Session, caption string) {
	err := r.sendSnapshot(chatID, sess, caption)
	switch {
	case err == nil:
	case errors.Is(err, media.ErrNotRaster):
		if caption != "" {
			r.send(chatID, caption)
		}
	default:
		r.fail(chatID, err)
	}
}

func (r *Router) analyze(ctx context.Context, chatID int64, sess *session.Session, sens types.Sensitivity) {
	r.action(chatID, tgbotapi.ChatTyping)
	res, err := r.Svc.Analyze(ctx, sess, sens)
	if err != nil {
		r.fail(chatID, err)
		return
	}
	r.showScan(chatID, sess, findingsSummary(res.Findings))
	r.send(chatID, formatReport(res))
}

func findingsSummary(fs []types.Finding) string {
	if len(fs) == 0 {
		return "No findings."
	}
	return fmt.Sprintf("%d finding(s)", len(fs))
}

func severityMark(s types.Severity) string {
	switch s {
	case types.SeverityHigh:
		return "🔴"
	case types.SeverityModerate:
		return "🟡"
	case types.SeverityLow:
		return "🔵"
	default:
		return "⚪"
	}
}

func formatFindings(b *strings.Builder, fs []types.Finding) {
	for i, f := range fs {
		fmt.Fprintf(b, "%d. %s %s (%s)", i+1, severityMark(f.Severity), f.Label, f.Severity)
		if d := strings.TrimSpace(f.Description); d != "" {
			b.WriteString(": ")
			b.WriteString(d)
		}
		b.WriteByte('\n')
	}
}

func formatReport(res types.AnalysisResult) string {
	var b strings.Builder
	b.WriteString("📋 Report\n\n")
	if s := strings.TrimSpace(res.Report); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	if len(res.Findings) > 0 {
		b.WriteString("\nFindings:\n")
		formatFindings(&b, res.Findings)
	}
	return util.Truncate(strings.TrimRight(b.String(), "\n"), maxText)
}

func formatResearch(res types.ResearchResult) string {
	var b strings.Builder
	b.WriteString("🔎 ")
	b.WriteString(strings.TrimSpace(res.Summary))
	if len(res.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, s := range res.Sources {
			title := s.Title
			if title == "" {
				title = s.URI
			}
			fmt.Fprintf(&b, "• %s\n  %s\n", title, s.URI)
		}
	}
	return util.Truncate(strings.TrimRight(b.String(), "\n"), maxText)
}

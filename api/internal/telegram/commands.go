package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scan-viewer/api/internal/session"
	"scan-viewer/api/internal/viewer"
)

const helpText = `Send a scan (photo, image file or video) and I will mark the findings on it.
Then ask follow-up questions in plain text; I can highlight structures you ask about.

/sensitivity low|standard|high - detection sensitivity (re-runs the analysis)
/zoom in|out|<0.5-5> - zoom the snapshot
/brightness <50-150> - brightness in percent
/contrast <50-150> - contrast in percent
/reset - reset zoom and tone
/overlay on|off - show or hide the findings
/research <query> - look up literature
/engine gemini|ollama - switch model backend
/report - show the last report`

func (r *Router) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "sensitivity":
		r.cmdSensitivity(ctx, cid, args)
	case "zoom", "brightness", "contrast":
		r.cmdView(cid, msg.Command(), args)
	case "reset":
		r.withSession(cid, func(sess *session.Session) {
			sess.ResetView()
			r.showScan(cid, sess, "View reset.")
		})
	case "overlay":
		r.cmdOverlay(cid, args)
	case "research":
		r.cmdResearch(ctx, cid, args)
	case "engine":
		r.cmdEngine(cid, args)
	case "report":
		r.withSession(cid, func(sess *session.Session) {
			v := sess.Snapshot()
			if v.Analysis == nil {
				r.fail(cid, session.ErrNoMedia)
				return
			}
			r.send(cid, formatReport(*v.Analysis))
		})
	default:
		r.send(cid, "Unknown command. /help lists what I can do.")
	}
}

func (r *Router) withSession(chatID int64, fn func(*session.Session)) {
	sess, err := r.sessionFor(chatID)
	if err != nil {
		r.fail(chatID, err)
		return
	}
	fn(sess)
}

func (r *Router) cmdSensitivity(ctx context.Context, cid int64, args string) {
	r.withSession(cid, func(sess *session.Session) {
		if args == "" {
			r.send(cid, "Current sensitivity: "+string(sess.Sensitivity())+"\nUsage: /sensitivity low|standard|high")
			return
		}
		sens, err := r.Svc.SetSensitivity(sess, args)
		if err != nil {
			r.fail(cid, err)
			return
		}
		if _, err := sess.Media(); err != nil {
			r.send(cid, "✅ Sensitivity: "+string(sens)+". It applies to the next scan.")
			return
		}
		r.send(cid, "✅ Sensitivity: "+string(sens)+". Re-analyzing…")
		r.analyze(ctx, cid, sess, sens)
	})
}

// viewEdit parses a /zoom, /brightness or /contrast argument into a view
// change.
func viewEdit(cmd, args string) (func(viewer.State) viewer.State, error) {
	if cmd == "zoom" {
		switch strings.ToLower(args) {
		case "in", "+":
			return func(v viewer.State) viewer.State { return v.ZoomBy(zoomStep) }, nil
		case "out", "-":
			return func(v viewer.State) viewer.State { return v.ZoomBy(-zoomStep) }, nil
		}
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(args, "%"), 64)
	if err != nil {
		return nil, fmt.Errorf("usage: /%s %s", cmd, usage(cmd))
	}
	switch cmd {
	case "zoom":
		return func(v viewer.State) viewer.State { return v.SetZoom(n) }, nil
	case "brightness":
		return func(v viewer.State) viewer.State { return v.SetBrightness(n) }, nil
	default:
		return func(v viewer.State) viewer.State { return v.SetContrast(n) }, nil
	}
}

func usage(cmd string) string {
	if cmd == "zoom" {
		return "in|out|<0.5-5>"
	}
	return "<50-150>"
}

func (r *Router) cmdView(cid int64, cmd, args string) {
	edit, err := viewEdit(cmd, args)
	if err != nil {
		r.send(cid, err.Error())
		return
	}
	r.withSession(cid, func(sess *session.Session) {
		if _, err := sess.Media(); err != nil {
			r.fail(cid, err)
			return
		}
		v := sess.UpdateView(edit)
		r.showScan(cid, sess, viewCaption(v))
	})
}

func viewCaption(v viewer.State) string {
	return fmt.Sprintf("Zoom %gx · brightness %g%% · contrast %g%%", v.Zoom, v.Brightness, v.Contrast)
}

func parseSwitch(s string) (on, ok bool) {
	switch strings.ToLower(s) {
	case "on", "show", "1", "true":
		return true, true
	case "off", "hide", "0", "false":
		return false, true
	}
	return false, false
}

func (r *Router) cmdOverlay(cid int64, args string) {
	r.withSession(cid, func(sess *session.Session) {
		on, ok := parseSwitch(args)
		if !ok {
			on = !sess.Snapshot().OverlayVisible
		}
		sess.SetOverlayVisible(on)
		if _, err := sess.Media(); err != nil {
			r.send(cid, overlayText(on))
			return
		}
		r.showScan(cid, sess, overlayText(on))
	})
}

func overlayText(on bool) string {
	if on {
		return "Findings shown."
	}
	return "Findings hidden."
}

func (r *Router) cmdResearch(ctx context.Context, cid int64, query string) {
	if query == "" {
		r.send(cid, "Usage: /research <query>")
		return
	}
	r.withSession(cid, func(sess *session.Session) {
		r.action(cid, tgbotapi.ChatTyping)
		res, err := r.Svc.Research(ctx, sess, query)
		if err != nil {
			r.fail(cid, err)
			return
		}
		r.send(cid, formatResearch(res))
	})
}

func (r *Router) cmdEngine(cid int64, args string) {
	r.withSession(cid, func(sess *session.Session) {
		if args == "" {
			r.send(cid, "Current engine: "+sess.Engine()+"\nAvailable: "+strings.Join(r.Svc.Engines(), ", "))
			return
		}
		name := strings.Fields(args)[0]
		if err := r.Svc.SetEngine(sess, name); err != nil {
			r.fail(cid, err)
			return
		}
		r.send(cid, "✅ Engine: "+sess.Engine())
	})
}

// chat sends a plain-text turn to the model. New highlights come back as a
// fresh snapshot.
func (r *Router) chat(ctx context.Context, cid int64, text string) {
	r.withSession(cid, func(sess *session.Session) {
		r.action(cid, tgbotapi.ChatTyping)
		reply, err := r.Svc.Chat(ctx, sess, text)
		if err != nil {
			if reply.Message.Text != "" {
				r.send(cid, reply.Message.Text)
				r.Log.WithError(err).WithField("chat", cid).Warn("telegram chat failed")
				return
			}
			r.fail(cid, err)
			return
		}
		if reply.Added > 0 {
			r.showScan(cid, sess, reply.Message.Text)
			return
		}
		r.send(cid, reply.Message.Text)
	})
}

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	_, _ = r.API.Request(tgbotapi.NewCallback(cb.ID, ""))
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	cid := cb.Message.Chat.ID
	r.withSession(cid, func(sess *session.Session) {
		if _, err := sess.Media(); err != nil {
			r.fail(cid, err)
			return
		}
		var caption string
		switch cb.Data {
		case cbZoomIn:
			caption = viewCaption(sess.UpdateView(func(v viewer.State) viewer.State { return v.ZoomBy(zoomStep) }))
		case cbZoomOut:
			caption = viewCaption(sess.UpdateView(func(v viewer.State) viewer.State { return v.ZoomBy(-zoomStep) }))
		case cbOverlay:
			on := !sess.Snapshot().OverlayVisible
			sess.SetOverlayVisible(on)
			caption = overlayText(on)
		case cbReset:
			sess.ResetView()
			caption = "View reset."
		default:
			return
		}
		r.showScan(cid, sess, caption)
	})
}

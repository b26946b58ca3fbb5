// Package telegram is the chat front end: one viewer session per chat.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"scan-viewer/api/internal/media"
	"scan-viewer/api/internal/service"
	"scan-viewer/api/internal/session"
	"scan-viewer/api/internal/vlm/types"
)

// API is the part of *tgbotapi.BotAPI the router uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

type Router struct {
	API API
	Svc *service.ScanService
	Log *logrus.Logger

	// Timeout bounds the handling of one update. Zero means 3 minutes.
	Timeout time.Duration
	// Download fetches a file URL; nil uses an HTTP GET.
	Download func(ctx context.Context, url string) ([]byte, error)

	chats sync.Map // chatID -> session id
}

func (r *Router) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 3 * time.Minute
}

// Dispatch handles upd in its own goroutine so a slow analysis does not
// block other chats.
func (r *Router) Dispatch(ctx context.Context, upd tgbotapi.Update) {
	go func() {
		ctx, cancel := context.WithTimeout(ctx, r.timeout())
		defer cancel()
		r.HandleUpdate(ctx, upd)
	}()
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if p := recover(); p != nil {
			r.Log.WithField("panic", p).Error("telegram update panicked")
		}
	}()

	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	switch {
	case msg.IsCommand():
		r.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, msg)
	case msg.Document != nil:
		r.acceptDocument(ctx, msg)
	case msg.Video != nil:
		r.acceptVideo(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		r.chat(ctx, msg.Chat.ID, msg.Text)
	}
}

// sessionFor returns the chat's session, opening a new one when none exists
// or the old one was evicted.
// Concurrent first updates from one chat settle on a single session; the
// losers' sessions are deleted.
func (r *Router) sessionFor(chatID int64) (*session.Session, error) {
	for {
		prev, ok := r.chats.Load(chatID)
		if ok {
			if sess, err := r.Svc.Session(prev.(string)); err == nil {
				return sess, nil
			}
		}
		sess, err := r.Svc.CreateSession("", "")
		if err != nil {
			return nil, err
		}
		var won bool
		if ok {
			won = r.chats.CompareAndSwap(chatID, prev, sess.ID())
		} else {
			_, loaded := r.chats.LoadOrStore(chatID, sess.ID())
			won = !loaded
		}
		if won {
			r.Log.WithFields(logrus.Fields{"chat": chatID, "session": sess.ID()}).Info("chat session opened")
			return sess, nil
		}
		_ = r.Svc.DeleteSession(sess.ID())
	}
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.API.Send(msg); err != nil {
		r.Log.WithError(err).WithField("chat", chatID).Warn("telegram send failed")
	}
}

func (r *Router) action(chatID int64, action string) {
	_, _ = r.API.Request(tgbotapi.NewChatAction(chatID, action))
}

// notice turns an error into a short user-facing message. Stale results are
// dropped silently since a newer upload already superseded them.
func notice(err error) string {
	var (
		up *media.UploadError
		ae *types.AnalysisError
		ce *types.ChatError
		iv *service.InvalidInputError
	)
	switch {
	case err == nil, errors.Is(err, session.ErrStale):
		return ""
	case errors.Is(err, session.ErrBusy):
		return "⏳ Still working on the previous request, please wait."
	case errors.Is(err, session.ErrNoMedia):
		return "Send a scan first (photo, image file or video)."
	case errors.Is(err, session.ErrEmptyText):
		return "The message is empty."
	case errors.Is(err, media.ErrNotRaster):
		return "Videos cannot be rendered here; the report is above."
	case errors.As(err, &up):
		return "Cannot read this file: " + up.Reason
	case errors.As(err, &iv):
		return "❌ " + iv.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "⌛ The model took too long. Please try again."
	case errors.As(err, &ae):
		return "❌ Analysis failed. Please try again."
	case errors.As(err, &ce):
		return types.ReplyChatFailed
	default:
		return "❌ Something went wrong."
	}
}

func (r *Router) fail(chatID int64, err error) {
	if text := notice(err); text != "" {
		r.send(chatID, text)
	}
	if err != nil && !errors.Is(err, session.ErrStale) {
		r.Log.WithError(err).WithField("chat", chatID).Warn("telegram request failed")
	}
}

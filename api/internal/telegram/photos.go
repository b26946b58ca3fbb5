package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

func (r *Router) fetch(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.API.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	dl := r.Download
	if dl == nil {
		dl = download
	}
	b, err := dl(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return b, nil
}

func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	ph := msg.Photo[len(msg.Photo)-1]
	r.ingest(ctx, msg.Chat.ID, ph.FileID, "photo.jpg", "")
}

func (r *Router) acceptDocument(ctx context.Context, msg *tgbotapi.Message) {
	doc := msg.Document
	if !strings.HasPrefix(doc.MimeType, "image/") && !strings.HasPrefix(doc.MimeType, "video/") {
		r.send(msg.Chat.ID, "Send an image or a video file.")
		return
	}
	r.ingest(ctx, msg.Chat.ID, doc.FileID, doc.FileName, doc.MimeType)
}

func (r *Router) acceptVideo(ctx context.Context, msg *tgbotapi.Message) {
	v := msg.Video
	r.ingest(ctx, msg.Chat.ID, v.FileID, v.FileName, v.MimeType)
}

// ingest loads the file into the chat's session and runs a full analysis.
func (r *Router) ingest(ctx context.Context, chatID int64, fileID, name, mime string) {
	sess, err := r.sessionFor(chatID)
	if err != nil {
		r.fail(chatID, err)
		return
	}
	data, err := r.fetch(ctx, fileID)
	if err != nil {
		r.Log.WithError(err).WithField("chat", chatID).Warn("telegram file fetch failed")
		r.send(chatID, "Could not download the file. Please send it again.")
		return
	}
	m, err := r.Svc.Upload(sess, name, mime, data)
	if err != nil {
		r.fail(chatID, err)
		return
	}
	r.Log.WithFields(logrus.Fields{"chat": chatID, "session": sess.ID(), "mime": m.MIME}).Info("telegram scan received")

	r.send(chatID, fmt.Sprintf("Scan received. Analyzing with %s (%s sensitivity)…", sess.Engine(), sess.Sensitivity()))
	r.analyze(ctx, chatID, sess, "")
}

package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return time.Second
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RunPolling long-polls for updates until ctx is done. Errors back off and
// never stop the loop.
func (r *Router) RunPolling(ctx context.Context) error {
	const (
		baseDelay = time.Second
		maxDelay  = 15 * time.Second
	)
	offset := 0
	r.Log.Info("telegram polling started")
	for ctx.Err() == nil {
		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := r.API.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			r.Log.WithError(err).WithField("retry_in", d.String()).Warn("telegram polling error")
			sleep(ctx, d)
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			r.Dispatch(ctx, upd)
		}
		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
	r.Log.Info("telegram polling stopped")
	return nil
}

// WebhookPath is the secret path derived from the bot token.
func WebhookPath(token string) string {
	h := sha256.Sum256([]byte(token))
	return "/webhook/" + hex.EncodeToString(h[:])[:16]
}

// RegisterWebhook points Telegram at baseURL+path, dropping updates queued
// while the bot was down.
func (r *Router) RegisterWebhook(baseURL, path string) error {
	wh, err := tgbotapi.NewWebhook(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := r.API.Request(wh); err != nil {
		return err
	}
	r.Log.WithField("path", path).Info("telegram webhook registered")
	return nil
}

// WebhookHandler accepts pushed updates. Handling outlives the request, so
// ctx should be the process context.
func (r *Router) WebhookHandler(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		var upd tgbotapi.Update
		if err := json.NewDecoder(c.Request.Body).Decode(&upd); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		r.Dispatch(ctx, upd)
		c.Status(http.StatusOK)
	}
}

// Package handle exposes the scan service over HTTP.
package handle

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"scan-viewer/api/internal/media"
	"scan-viewer/api/internal/overlay"
	"scan-viewer/api/internal/service"
	"scan-viewer/api/internal/session"
	"scan-viewer/api/internal/vlm/types"
)

type Handle struct {
	svc            *service.ScanService
	logger         *logrus.Logger
	requestTimeout time.Duration
	maxUpload      int64
}

func New(svc *service.ScanService, logger *logrus.Logger, requestTimeout time.Duration, maxUpload int64) *Handle {
	if requestTimeout <= 0 {
		requestTimeout = 180 * time.Second
	}
	return &Handle{svc: svc, logger: logger, requestTimeout: requestTimeout, maxUpload: maxUpload}
}

func writeJSON(c *gin.Context, code int, v any) {
	c.JSON(code, v)
}

// deadline honours X-Request-Timeout (seconds) or ?timeoutSec.
func (h *Handle) deadline(c *gin.Context) (context.Context, context.CancelFunc) {
	d := h.requestTimeout
	if ts := c.GetHeader("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			d = time.Duration(v) * time.Second
		}
	} else if ts := c.Query("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			d = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(c.Request.Context(), d)
}

func (h *Handle) session(c *gin.Context) (*session.Session, bool) {
	sess, err := h.svc.Session(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return sess, true
}

func statusFor(err error) int {
	var (
		inv *service.InvalidInputError
		up  *media.UploadError
		ae  *types.AnalysisError
		ce  *types.ChatError
	)
	switch {
	case errors.As(err, &inv), errors.Is(err, session.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrStale), errors.Is(err, session.ErrNoMedia):
		return http.StatusConflict
	case errors.As(err, &up), errors.Is(err, media.ErrNotRaster), errors.Is(err, overlay.ErrNotLoaded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &ae), errors.As(err, &ce):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handle) fail(c *gin.Context, err error) {
	h.failWith(c, err, nil)
}

// failWith writes the error with extra fields merged into the body.
func (h *Handle) failWith(c *gin.Context, err error, extra gin.H) {
	code := statusFor(err)
	entry := h.logger.WithFields(logrus.Fields{"path": c.FullPath(), "status": code}).WithError(err)
	if code >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	body := gin.H{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(c, code, body)
}

func (h *Handle) Health(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "engines": h.svc.Engines()})
}

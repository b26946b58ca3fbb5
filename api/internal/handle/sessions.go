package handle

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type createSessionRequest struct {
	Engine      string `json:"engine"`
	Sensitivity string `json:"sensitivity"`
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handle) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := bindOptional(c, &req); err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}
	sess, err := h.svc.CreateSession(req.Engine, req.Sensitivity)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, sess.Snapshot())
}

func (h *Handle) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, sess.Snapshot())
}

func (h *Handle) DeleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setEngineRequest struct {
	Engine string `json:"engine" binding:"required"`
}

func (h *Handle) SetEngine(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req setEngineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}
	if err := h.svc.SetEngine(sess, req.Engine); err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess.Snapshot())
}

package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scan-viewer/api/internal/service"
	"scan-viewer/api/internal/vlm/types"
)

type analyzeRequest struct {
	Sensitivity string `json:"sensitivity"`
}

// Analyze re-runs the full analysis; the result replaces every finding.
func (h *Handle) Analyze(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req analyzeRequest
	if err := bindOptional(c, &req); err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}
	var sens types.Sensitivity
	if req.Sensitivity != "" {
		s, err := types.ParseSensitivity(req.Sensitivity)
		if err != nil {
			h.fail(c, &service.InvalidInputError{Err: err})
			return
		}
		sens = s
	}
	ctx, cancel := h.deadline(c)
	defer cancel()
	res, err := h.svc.Analyze(ctx, sess, sens)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"analysis": res, "session": sess.Snapshot()})
}

type chatRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handle) Chat(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}
	ctx, cancel := h.deadline(c)
	defer cancel()
	reply, err := h.svc.Chat(ctx, sess, req.Text)
	if err != nil {
		extra := gin.H{}
		if reply.Message.ID != "" {
			extra["message"] = reply.Message
		}
		h.failWith(c, err, extra)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"reply": reply, "session": sess.Snapshot()})
}

type researchRequest struct {
	Query string `json:"query" binding:"required"`
}

func (h *Handle) Research(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req researchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}
	ctx, cancel := h.deadline(c)
	defer cancel()
	res, err := h.svc.Research(ctx, sess, req.Query)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

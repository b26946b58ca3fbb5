package handle

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"scan-viewer/api/internal/util"
)

type uploadRequest struct {
	Name     string `json:"name"`
	MediaB64 string `json:"media_b64" binding:"required"`
	MIME     string `json:"mime"`
}

// UploadMedia accepts a multipart "file" or a JSON body with base64 data and
// starts the analysis unless ?analyze=false.
func (h *Handle) UploadMedia(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	var (
		name, mime string
		data       []byte
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			writeJSON(c, http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeJSON(c, http.StatusBadRequest, gin.H{"error": "cannot read file"})
			return
		}
		defer f.Close()
		if data, err = io.ReadAll(f); err != nil {
			writeJSON(c, http.StatusBadRequest, gin.H{"error": "cannot read file"})
			return
		}
		name, mime = fh.Filename, fh.Header.Get("Content-Type")
	} else {
		var req uploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
			return
		}
		b, hint, err := util.DecodeBase64MaybeDataURL(req.MediaB64)
		if err != nil || len(b) == 0 {
			writeJSON(c, http.StatusBadRequest, gin.H{"error": "bad media_b64"})
			return
		}
		name, data = req.Name, b
		mime = util.PickMIME(req.MIME, hint, b)
	}

	if _, err := h.svc.Upload(sess, name, mime, data); err != nil {
		h.fail(c, err)
		return
	}
	if analyze, _ := strconv.ParseBool(c.DefaultQuery("analyze", "true")); analyze {
		ctx, cancel := h.deadline(c)
		defer cancel()
		if _, err := h.svc.Analyze(ctx, sess, ""); err != nil {
			h.failWith(c, err, gin.H{"session": sess.Snapshot()})
			return
		}
	}
	writeJSON(c, http.StatusOK, sess.Snapshot())
}

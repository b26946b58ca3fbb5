package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scan-viewer/api/internal/media"
	"scan-viewer/api/internal/overlay"
	"scan-viewer/api/internal/service"
	"scan-viewer/api/internal/session"
	"scan-viewer/api/internal/viewer"
)

type viewResponse struct {
	View           viewer.State `json:"view"`
	Transform      string       `json:"transform"`
	Filter         string       `json:"filter"`
	OverlayVisible bool         `json:"overlay_visible"`
}

func viewOf(sess *session.Session) viewResponse {
	v := sess.Snapshot()
	return viewResponse{View: v.View, Transform: v.Transform, Filter: v.Filter, OverlayVisible: v.OverlayVisible}
}

type zoomRequest struct {
	Delta float64 `json:"delta"`
}

func (h *Handle) Zoom(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}
	sess.UpdateView(func(v viewer.State) viewer.State { return v.ZoomBy(req.Delta) })
	writeJSON(c, http.StatusOK, viewOf(sess))
}

type patchViewRequest struct {
	Zoom           *float64    `json:"zoom"`
	Brightness     *float64    `json:"brightness"`
	Contrast       *float64    `json:"contrast"`
	Pan            *viewer.Pan `json:"pan"`
	PanBy          *viewer.Pan `json:"pan_by"`
	OverlayVisible *bool       `json:"overlay_visible"`
}

func (h *Handle) PatchView(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req patchViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}
	sess.UpdateView(func(v viewer.State) viewer.State {
		if req.Zoom != nil {
			v = v.SetZoom(*req.Zoom)
		}
		if req.Brightness != nil {
			v = v.SetBrightness(*req.Brightness)
		}
		if req.Contrast != nil {
			v = v.SetContrast(*req.Contrast)
		}
		if req.Pan != nil {
			v = v.SetPan(req.Pan.X, req.Pan.Y)
		}
		if req.PanBy != nil {
			v = v.PanBy(req.PanBy.X, req.PanBy.Y)
		}
		return v
	})
	if req.OverlayVisible != nil {
		sess.SetOverlayVisible(*req.OverlayVisible)
	}
	writeJSON(c, http.StatusOK, viewOf(sess))
}

func (h *Handle) ResetView(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.ResetView()
	writeJSON(c, http.StatusOK, viewOf(sess))
}

func focusParam(c *gin.Context) int {
	if v, err := strconv.Atoi(c.Query("focus")); err == nil && v >= 0 {
		return v
	}
	return overlay.NoFocus
}

// Overlay returns the shapes laid out for the displayed media size. A zero
// size yields an empty scene.
func (h *Handle) Overlay(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	w, _ := strconv.ParseFloat(c.Query("width"), 64)
	hgt, _ := strconv.ParseFloat(c.Query("height"), 64)
	scene, err := h.svc.Scene(sess, w, hgt, focusParam(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, scene)
}

func (h *Handle) OverlaySVG(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	svg, err := h.svc.SVG(sess, focusParam(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/svg+xml", []byte(svg))
}

func (h *Handle) Snapshot(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	format, err := media.ParseFormat(c.Query("format"))
	if err != nil {
		h.fail(c, &service.InvalidInputError{Err: err})
		return
	}
	labels, _ := strconv.ParseBool(c.DefaultQuery("labels", "false"))
	out, err := h.svc.Snapshot(sess, format, focusParam(c), labels)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, format.ContentType(), out)
}

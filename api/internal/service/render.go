package service

import (
	"bytes"

	"scan-viewer/api/internal/media"
	"scan-viewer/api/internal/overlay"
	"scan-viewer/api/internal/session"
)

// Scene lays the overlay out for a media element displayed at width x height.
func (s *ScanService) Scene(sess *session.Session, width, height float64, focus int) (overlay.Scene, error) {
	f, err := sess.Frame()
	if err != nil {
		return overlay.Scene{}, err
	}
	return overlay.Render(f.Findings, overlay.Options{
		Visible: f.OverlayVisible,
		Focus:   focus,
		Width:   width,
		Height:  height,
	}), nil
}

func (s *ScanService) SVG(sess *session.Session, focus int) (string, error) {
	f, err := sess.Frame()
	if err != nil {
		return "", err
	}
	return overlay.SVG(f.Findings, f.OverlayVisible, focus), nil
}

// Snapshot burns the overlay into the image, applies the view and encodes
// the result.
func (s *ScanService) Snapshot(sess *session.Session, format media.Format, focus int, allLabels bool) ([]byte, error) {
	f, err := sess.Frame()
	if err != nil {
		return nil, err
	}
	img, err := f.Media.Decode()
	if err != nil {
		return nil, err
	}
	burned := overlay.Burn(img, f.Findings, overlay.BurnOptions{
		Visible:   f.OverlayVisible,
		Focus:     focus,
		AllLabels: allLabels,
	})
	var buf bytes.Buffer
	if err := media.Encode(&buf, f.View.Apply(burned), format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

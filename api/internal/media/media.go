// Package media validates uploaded scans and converts them between bytes and
// rasters.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"scan-viewer/api/internal/util"
)

// ErrNotRaster is returned when a raster is requested for a video.
var ErrNotRaster = errors.New("media: video has no raster snapshot")

// UploadError means the uploaded file could not be accepted.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload: %s: %v", e.Reason, e.Err)
	}
	return "upload: " + e.Reason
}

func (e *UploadError) Unwrap() error { return e.Err }

// Media is one loaded scan. Data is never modified after Load.
type Media struct {
	Name    string `json:"name"`
	MIME    string `json:"mime"`
	Size    int    `json:"size"`
	Hash    string `json:"hash"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	IsVideo bool   `json:"is_video"`

	Data []byte `json:"-"`
}

// DefaultMaxPixels bounds the declared size of an image accepted by Load.
const DefaultMaxPixels = 50_000_000

// Load sniffs the type and, for images, reads the pixel size.
func Load(name, mime string, data []byte) (*Media, error) {
	return LoadLimit(name, mime, data, DefaultMaxPixels)
}

// LoadLimit is Load with an explicit pixel budget. maxPixels <= 0 means
// DefaultMaxPixels.
func LoadLimit(name, mime string, data []byte, maxPixels int) (*Media, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if len(data) == 0 {
		return nil, &UploadError{Reason: "empty file"}
	}
	mime = util.PickMIME(mime, "", data)
	m := &Media{
		Name: strings.TrimSpace(name),
		MIME: mime,
		Size: len(data),
		Hash: util.SHA256Hex(data),
		Data: data,
	}
	switch {
	case strings.HasPrefix(mime, "video/"):
		m.IsVideo = true
	case strings.HasPrefix(mime, "image/"):
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, &UploadError{Reason: "unreadable image", Err: err}
		}
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return nil, &UploadError{Reason: "image has no pixels"}
		}
		if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
			return nil, &UploadError{Reason: "image too large"}
		}
		m.Width, m.Height = cfg.Width, cfg.Height
	default:
		return nil, &UploadError{Reason: "unsupported media type " + mime}
	}
	if m.Name == "" {
		m.Name = "scan"
	}
	return m, nil
}

// Decode returns the image raster with EXIF orientation applied.
func (m *Media) Decode() (image.Image, error) {
	if m.IsVideo {
		return nil, ErrNotRaster
	}
	img, err := imaging.Decode(bytes.NewReader(m.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &UploadError{Reason: "unreadable image", Err: err}
	}
	return img, nil
}

// Format is an output encoding for rendered snapshots.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	WebP Format = "webp"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case WebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// Encode writes img in the requested format.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(90))
	case WebP:
		return webp.Encode(w, img, &webp.Options{Quality: 90})
	default:
		return imaging.Encode(w, img, imaging.PNG)
	}
}

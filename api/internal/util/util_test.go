package util

import (
	"encoding/base64"
	"testing"
)

func TestStripCodeFences(t *testing.T) {
	for in, want := range map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{}\n```":            "{}",
		"  {\"b\":2}  ":            `{"b":2}`,
	} {
		if got := StripCodeFences(in); got != want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("abcdefghij", 4); got != "abcd…" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("привет", 3); got != "п…" {
		t.Errorf("rune boundary not respected: %q", got)
	}
}

func TestDecodeBase64MaybeDataURL(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	b64 := base64.StdEncoding.EncodeToString(payload)

	data, mime, err := DecodeBase64MaybeDataURL("data:image/png;base64," + b64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mime != "image/png" || string(data) != string(payload) {
		t.Errorf("got %q %v", mime, data)
	}

	data, mime, err = DecodeBase64MaybeDataURL(b64)
	if err != nil || mime != "" || len(data) != len(payload) {
		t.Errorf("plain base64: %v %q %v", data, mime, err)
	}

	if _, _, err := DecodeBase64MaybeDataURL("%%%"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestPickMIME(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000000000")
	if got := PickMIME("video/mp4", "image/png", png); got != "video/mp4" {
		t.Errorf("explicit should win, got %q", got)
	}
	if got := PickMIME("application/octet-stream", "", png); got != "image/png" {
		t.Errorf("octet-stream should fall through to sniffing, got %q", got)
	}
	if got := PickMIME("", "Image/JPEG; q=1", nil); got != "image/jpeg" {
		t.Errorf("hint should be normalised, got %q", got)
	}
	if got := PickMIME("", "", nil); got != "application/octet-stream" {
		t.Errorf("got %q", got)
	}
}

package server

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"

	"github.com/aixgo-dev/visionguide/pkg/audio"
)

const responseTextPreview = 200

var jpegMagic = []byte{0xFF, 0xD8}

func isJPEG(b []byte) bool {
	return bytes.HasPrefix(b, jpegMagic)
}

// upload describes the accepted form of one multipart file field.
type upload struct {
	field       string
	extensions  []string
	contentType func(string) bool
	sniff       func([]byte) bool
	maxBytes    int64
	kind        string
}

func imageUpload(maxBytes int64) upload {
	return upload{
		field:      "image",
		extensions: []string{".jpg", ".jpeg"},
		contentType: func(ct string) bool {
			return ct == "image/jpeg"
		},
		sniff:    isJPEG,
		maxBytes: maxBytes,
		kind:     "JPEG image",
	}
}

func audioUpload(maxBytes int64) upload {
	return upload{
		field:      "audio",
		extensions: []string{".wav"},
		contentType: func(ct string) bool {
			return strings.HasPrefix(ct, "audio/")
		},
		sniff:    audio.IsWAV,
		maxBytes: maxBytes,
		kind:     "WAV audio",
	}
}

// read validates and reads the file header fh. Errors are *echo.HTTPError
// with status 400 or 413.
func (u upload) read(fh *multipart.FileHeader) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !contains(u.extensions, ext) {
		return nil, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("%s must have one of the extensions %s", u.field, strings.Join(u.extensions, ", ")))
	}
	if ct := fh.Header.Get(echo.HeaderContentType); ct != "" && ct != "application/octet-stream" && !u.contentType(mediaType(ct)) {
		return nil, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("%s has unsupported content type %q", u.field, ct))
	}
	if fh.Size > u.maxBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("%s exceeds the %d MB limit", u.field, u.maxBytes>>20))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("cannot read %s", u.field))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, u.maxBytes+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("cannot read %s", u.field))
	}
	if int64(len(data)) > u.maxBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("%s exceeds the %d MB limit", u.field, u.maxBytes>>20))
	}
	if !u.sniff(data) {
		return nil, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("%s is not a valid %s", u.field, u.kind))
	}
	return data, nil
}

func mediaType(ct string) string {
	mt, _, _ := strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// headerSafe returns the first responseTextPreview characters of s with
// control characters replaced by spaces, so it fits in a header value.
func headerSafe(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == responseTextPreview {
			break
		}
		if unicode.IsControl(r) {
			r = ' '
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

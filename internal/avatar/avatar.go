// Package avatar stores profile pictures and returns their public URL.
package avatar

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MaxSize caps an uploaded picture.
const MaxSize = 5 << 20

var (
	// ErrDisabled is returned when no storage backend is configured.
	ErrDisabled = errors.New("avatar storage not configured")
	// ErrInvalidImage is returned for empty, oversized or non-image uploads.
	ErrInvalidImage = errors.New("upload must be an image up to 5MB")
)

// Object is one picture to store. Key identifies it inside the backend and
// is reused so a new upload replaces the old picture.
type Object struct {
	Key         string
	Filename    string
	ContentType string
	Data        []byte
}

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// Disabled rejects every upload.
type Disabled struct{}

func (Disabled) Upload(context.Context, Object) (string, error) { return "", ErrDisabled }

// Validate sniffs the content type and enforces the size limit. It fills
// ContentType when the caller left it empty.
func Validate(obj *Object) error {
	if len(obj.Data) == 0 || len(obj.Data) > MaxSize {
		return ErrInvalidImage
	}
	sniffed := http.DetectContentType(obj.Data)
	if !strings.HasPrefix(sniffed, "image/") {
		return ErrInvalidImage
	}
	if obj.ContentType == "" || !strings.HasPrefix(obj.ContentType, "image/") {
		obj.ContentType = sniffed
	}
	return nil
}

// DecodeDataURL accepts "data:image/png;base64,..." or bare base64.
func DecodeDataURL(s string) (data []byte, contentType string, err error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("%w: malformed data URL", ErrInvalidImage)
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		s = payload
	}
	data, err = base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return data, contentType, nil
}

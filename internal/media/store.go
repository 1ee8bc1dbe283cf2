package media

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/dumaterial/materials-api/internal/domain"
)

// ErrNotConfigured is returned by Unconfigured for every operation.
var ErrNotConfigured = errors.New("media store not configured")

// Upload describes one file handed to the media host.
type Upload struct {
	Field       domain.AssetField
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store hosts material files and hands out durable references to them.
type Store interface {
	Put(ctx context.Context, upload Upload) (domain.MediaAsset, error)
	Delete(ctx context.Context, publicID string) error
	DownloadURL(ctx context.Context, publicID, filename string) (string, error)
}

// Unconfigured rejects every call. It stands in when no bucket is set so the
// auth endpoints keep working.
type Unconfigured struct{}

func (Unconfigured) Put(context.Context, Upload) (domain.MediaAsset, error) {
	return domain.MediaAsset{}, ErrNotConfigured
}

func (Unconfigured) Delete(context.Context, string) error {
	return ErrNotConfigured
}

func (Unconfigured) DownloadURL(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

// ObjectKey builds a collision-free key under folder for filename.
func ObjectKey(prefix, folder, filename string) string {
	return path.Join(prefix, folder, uuid.NewString()+"-"+SanitizeFilename(filename))
}

// OriginalFilename recovers the sanitized upload name from a key built by ObjectKey.
func OriginalFilename(key string) string {
	base := path.Base(key)
	if len(base) > 37 && base[36] == '-' {
		if _, err := uuid.Parse(base[:36]); err == nil {
			return base[37:]
		}
	}
	return base
}

// SanitizeFilename keeps the base name and replaces anything outside [A-Za-z0-9._-].
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}

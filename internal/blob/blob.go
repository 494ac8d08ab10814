// Package blob keeps payment screenshots in content-addressed storage.
// A reference has the form "sha256:<hex digest><extension>", for example
// "sha256:9f86d0...0f00a08.png". The same bytes always map to the same ref.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"storefront/config"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidRef = errors.New("invalid blob reference")
	ErrNotImage   = errors.New("content is not an image")
)

const refPrefix = "sha256:"

var (
	refPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}(\.[a-z0-9]{1,8})?$`)
	extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
)

// Store persists screenshots and hands back their reference.
type Store interface {
	Put(ctx context.Context, filename string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Image is the result of sniffing uploaded bytes.
type Image struct {
	ContentType string
	Extension   string
}

// rasterTypes are the screenshot formats accepted and served back. Vector and
// markup based images (SVG) can carry script and are refused.
var rasterTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

func rasterType(m *mimetype.MIME) (string, bool) {
	for _, t := range rasterTypes {
		if m.Is(t) {
			return t, true
		}
	}
	return "", false
}

// DetectImage sniffs data and rejects anything that is not a raster image.
func DetectImage(data []byte) (Image, error) {
	m := mimetype.Detect(data)
	ct, ok := rasterType(m)
	if !ok {
		return Image{}, fmt.Errorf("%w: detected %s", ErrNotImage, m.String())
	}
	return Image{ContentType: ct, Extension: m.Extension()}, nil
}

// ContentType is the type stored bytes are served with. Anything that is not
// an accepted raster image is served as opaque binary.
func ContentType(data []byte) string {
	if ct, ok := rasterType(mimetype.Detect(data)); ok {
		return ct
	}
	return "application/octet-stream"
}

// NewRef derives the reference for data. The extension comes from the
// sniffed content and falls back to the uploaded filename.
func NewRef(filename string, data []byte) string {
	sum := sha256.Sum256(data)
	return refPrefix + hex.EncodeToString(sum[:]) + extensionFor(filename, data)
}

func extensionFor(filename string, data []byte) string {
	ext := mimetype.Detect(data).Extension()
	if ext == "" {
		ext = filepath.Ext(filename)
	}
	ext = strings.ToLower(ext)
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// objectName validates ref and returns the name it is stored under.
func objectName(ref string) (string, error) {
	if !refPattern.MatchString(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return strings.TrimPrefix(ref, refPrefix), nil
}

// NewStore picks the backend named by cfg.Type.
func NewStore(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case "", "fs":
		return NewFileStore(filepath.Join(cfg.DataDir, "screenshots"))
	case "s3":
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported blob storage type: %s", cfg.Type)
	}
}

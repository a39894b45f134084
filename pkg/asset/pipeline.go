package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"tobiascms/pkg/domain"
	"tobiascms/pkg/storage"
)

// ErrValidation marks a file rejected before any I/O: wrong type or
// too large.
var ErrValidation = errors.New("invalid file")

// File is an uploaded binary plus the metadata the browser sent.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

var allowedTypes = map[string]domain.MediaKind{
	"image/jpeg":      domain.MediaImage,
	"image/png":       domain.MediaImage,
	"image/webp":      domain.MediaImage,
	"image/gif":       domain.MediaImage,
	"video/mp4":       domain.MediaVideo,
	"video/webm":      domain.MediaVideo,
	"video/quicktime": domain.MediaVideo,
}

// Config bounds uploads and the image re-encode step.
type Config struct {
	MaxBytes          int64 // reject files larger than this
	CompressThreshold int64 // images at or below this size are uploaded as-is
	MaxDimension      int   // longest edge after re-encode
	JPEGQuality       int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		MaxBytes:          50 * 1024 * 1024,
		CompressThreshold: 300 * 1024,
		MaxDimension:      1920,
		JPEGQuality:       80,
	}
}

// Pipeline validates uploads, issues temporary preview handles, and
// produces durable blob uploads.
type Pipeline struct {
	cfg      Config
	blobs    storage.BlobStore
	registry *HandleRegistry
	logger   *slog.Logger
}

// NewPipeline constructs the pipeline. Zero config values fall back to
// defaults.
func NewPipeline(cfg Config, blobs storage.BlobStore, registry *HandleRegistry) *Pipeline {
	def := DefaultConfig()
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.CompressThreshold <= 0 {
		cfg.CompressThreshold = def.CompressThreshold
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = def.MaxDimension
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if registry == nil {
		registry = NewHandleRegistry()
	}
	return &Pipeline{cfg: cfg, blobs: blobs, registry: registry, logger: slog.Default()}
}

// Registry exposes the temp-handle registry for preview serving and
// leak checks.
func (p *Pipeline) Registry() *HandleRegistry { return p.registry }

// Validate checks size and media type without any I/O.
func (p *Pipeline) Validate(f *File) (domain.MediaKind, error) {
	if f == nil || len(f.Data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrValidation)
	}
	if int64(len(f.Data)) > p.cfg.MaxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, p.cfg.MaxBytes)
	}
	contentType := normalizeContentType(f)
	kind, ok := allowedTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported media type %q", ErrValidation, contentType)
	}
	return kind, nil
}

// Prepare validates the file and returns a temporary, immediately
// renderable handle. It performs no network I/O.
func (p *Pipeline) Prepare(f *File) (*Handle, error) {
	kind, err := p.Validate(f)
	if err != nil {
		return nil, err
	}
	return p.registry.acquire(f.Data, kind), nil
}

// Commit produces the durable upload: large images are re-encoded to
// bounded dimensions and quality, then the bytes are stored at a path
// namespaced by the owning entity id with a collision-resistant
// filename. A failing upload propagates; the temporary preview is
// never promoted to durable silently.
func (p *Pipeline) Commit(ctx context.Context, f *File, bucket, scopeID string) (string, domain.MediaKind, error) {
	kind, err := p.Validate(f)
	if err != nil {
		return "", "", err
	}
	data := f.Data
	contentType := normalizeContentType(f)
	ext := extensionFor(f, contentType)
	if kind == domain.MediaImage && int64(len(data)) > p.cfg.CompressThreshold {
		if encoded, err := p.reencode(data); err != nil {
			// Upload the original rather than fail the whole
			// operation on an undecodable image.
			p.logger.Warn("image re-encode failed, uploading original", "name", f.Name, "err", err)
		} else {
			data = encoded
			contentType = "image/jpeg"
			ext = ".jpg"
		}
	}
	path := scopeID + "/" + uuid.New().String() + ext
	url, err := p.blobs.Upload(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return "", "", fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return url, kind, nil
}

// reencode scales the image down to the configured longest edge and
// re-encodes it as JPEG.
func (p *Pipeline) reencode(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > p.cfg.MaxDimension || h > p.cfg.MaxDimension {
		scale := float64(p.cfg.MaxDimension) / float64(max(w, h))
		dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: p.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// extTypes resolves the extensions of the allowed formats without
// depending on the host's mime.types database.
var extTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

// normalizeContentType trusts the declared MIME type when it is in the
// allow-list, falling back to the filename extension otherwise.
func normalizeContentType(f *File) string {
	contentType := strings.TrimSpace(strings.ToLower(f.ContentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if _, ok := allowedTypes[contentType]; ok {
		return contentType
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	if byExt, ok := extTypes[ext]; ok {
		return byExt
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		if i := strings.Index(byExt, ";"); i >= 0 {
			byExt = strings.TrimSpace(byExt[:i])
		}
		return byExt
	}
	return contentType
}

func extensionFor(f *File, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(f.Name)); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

package asset

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"tobiascms/pkg/domain"
	"tobiascms/pkg/storage"
)

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *storage.MemoryBlobStore) {
	t.Helper()
	blobs := storage.NewMemoryBlobStore()
	return NewPipeline(cfg, blobs, NewHandleRegistry()), blobs
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	p, _ := newTestPipeline(t, Config{MaxBytes: 1024})

	tests := []struct {
		name string
		file *File
		kind domain.MediaKind
		ok   bool
	}{
		{"png by content type", &File{Name: "a", ContentType: "image/png", Data: []byte{1}}, domain.MediaImage, true},
		{"content type with params", &File{Name: "a", ContentType: "image/jpeg; charset=binary", Data: []byte{1}}, domain.MediaImage, true},
		{"mp4 by content type", &File{Name: "a", ContentType: "video/mp4", Data: []byte{1}}, domain.MediaVideo, true},
		{"fallback to extension", &File{Name: "clip.webm", ContentType: "application/octet-stream", Data: []byte{1}}, domain.MediaVideo, true},
		{"unsupported type", &File{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte{1}}, "", false},
		{"empty file", &File{Name: "a", ContentType: "image/png"}, "", false},
		{"nil file", nil, "", false},
		{"too large", &File{Name: "a", ContentType: "image/png", Data: make([]byte, 2048)}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := p.Validate(tt.file)
			if tt.ok {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				if kind != tt.kind {
					t.Fatalf("kind = %q, want %q", kind, tt.kind)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestPrepareAndRelease(t *testing.T) {
	p, _ := newTestPipeline(t, Config{})
	data := encodePNG(t, 4, 4)

	handle, err := p.Prepare(&File{Name: "a.png", ContentType: "image/png", Data: data})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !handle.Temporary() || !strings.HasPrefix(handle.URL, "mem://") {
		t.Fatalf("handle url = %q", handle.URL)
	}
	if handle.Kind != domain.MediaImage {
		t.Fatalf("handle kind = %q", handle.Kind)
	}
	resolved, ok := p.Registry().Resolve(handle.URL)
	if !ok || !bytes.Equal(resolved, data) {
		t.Fatal("preview bytes not resolvable while handle is live")
	}
	if n := p.Registry().Outstanding(); n != 1 {
		t.Fatalf("outstanding = %d, want 1", n)
	}

	handle.Release()
	handle.Release() // double release is safe
	if n := p.Registry().Outstanding(); n != 0 {
		t.Fatalf("outstanding after release = %d, want 0", n)
	}
	if _, ok := p.Registry().Resolve(handle.URL); ok {
		t.Fatal("released preview still resolvable")
	}

	var nilHandle *Handle
	nilHandle.Release() // tolerated, mirrors the no-file mutation path
}

func TestCommitSmallImageUnchanged(t *testing.T) {
	p, blobs := newTestPipeline(t, Config{})
	data := encodePNG(t, 4, 4)

	url, kind, err := p.Commit(context.Background(), &File{Name: "a.png", ContentType: "image/png", Data: data}, "media-products", "prod1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if kind != domain.MediaImage {
		t.Fatalf("kind = %q", kind)
	}
	path := strings.TrimPrefix(url, "memory://media-products/")
	if !strings.HasPrefix(path, "prod1/") || !strings.HasSuffix(path, ".png") {
		t.Fatalf("object path = %q", path)
	}
	stored, ok := blobs.Get("media-products", path)
	if !ok || !bytes.Equal(stored, data) {
		t.Fatal("small image was not uploaded as-is")
	}
}

func TestCommitShrinksLargeImage(t *testing.T) {
	p, blobs := newTestPipeline(t, Config{CompressThreshold: 16, MaxDimension: 8})
	data := encodePNG(t, 32, 16)

	url, _, err := p.Commit(context.Background(), &File{Name: "big.png", ContentType: "image/png", Data: data}, "media-products", "prod1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !strings.HasSuffix(url, ".jpg") {
		t.Fatalf("re-encoded object url = %q", url)
	}
	path := strings.TrimPrefix(url, "memory://media-products/")
	stored, ok := blobs.Get("media-products", path)
	if !ok {
		t.Fatal("re-encoded object missing")
	}
	img, err := jpeg.Decode(bytes.NewReader(stored))
	if err != nil {
		t.Fatalf("decode stored jpeg: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > 8 || bounds.Dy() > 8 {
		t.Fatalf("stored dimensions = %dx%d, want longest edge <= 8", bounds.Dx(), bounds.Dy())
	}
	// Aspect ratio survives the shrink.
	if bounds.Dx() != 8 || bounds.Dy() != 4 {
		t.Fatalf("stored dimensions = %dx%d, want 8x4", bounds.Dx(), bounds.Dy())
	}
}

func TestCommitVideoNeverReencoded(t *testing.T) {
	p, blobs := newTestPipeline(t, Config{CompressThreshold: 1})
	data := []byte("not really a video but large enough")

	url, kind, err := p.Commit(context.Background(), &File{Name: "clip.mp4", ContentType: "video/mp4", Data: data}, "media-gallery", "g1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if kind != domain.MediaVideo {
		t.Fatalf("kind = %q", kind)
	}
	path := strings.TrimPrefix(url, "memory://media-gallery/")
	if !strings.HasSuffix(path, ".mp4") {
		t.Fatalf("object path = %q", path)
	}
	stored, _ := blobs.Get("media-gallery", path)
	if !bytes.Equal(stored, data) {
		t.Fatal("video bytes were altered")
	}
}

func TestCommitUndecodableImageUploadsOriginal(t *testing.T) {
	p, blobs := newTestPipeline(t, Config{CompressThreshold: 1})
	data := []byte("claims to be png, is not")

	url, _, err := p.Commit(context.Background(), &File{Name: "bad.png", ContentType: "image/png", Data: data}, "media-products", "p1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	path := strings.TrimPrefix(url, "memory://media-products/")
	stored, _ := blobs.Get("media-products", path)
	if !bytes.Equal(stored, data) {
		t.Fatal("original bytes not preserved for undecodable image")
	}
}

package asset

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"tobiascms/pkg/domain"
)

// tempScheme prefixes session-local preview references. They resolve
// only through the registry that issued them.
const tempScheme = "mem://"

// Handle is the current media reference for a record: either a
// temporary session-local preview or a durable blob store URL. A
// temporary handle must be released exactly once when superseded,
// rolled back, or abandoned.
type Handle struct {
	URL  string
	Kind domain.MediaKind

	reg  *HandleRegistry
	once sync.Once
}

// Temporary reports whether the handle is a session-local preview.
func (h *Handle) Temporary() bool { return h.reg != nil }

// Release frees the session-local bytes. Safe to call more than once
// and on durable handles.
func (h *Handle) Release() {
	if h == nil || h.reg == nil {
		return
	}
	h.once.Do(func() { h.reg.release(h.URL) })
}

// HandleRegistry tracks outstanding temporary handles and their bytes.
// Outstanding lets tests assert that no preview leaked.
type HandleRegistry struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewHandleRegistry initializes an empty registry.
func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{entries: make(map[string][]byte)}
}

func (r *HandleRegistry) acquire(data []byte, kind domain.MediaKind) *Handle {
	url := tempScheme + uuid.New().String()
	r.mu.Lock()
	r.entries[url] = data
	r.mu.Unlock()
	return &Handle{URL: url, Kind: kind, reg: r}
}

func (r *HandleRegistry) release(url string) {
	r.mu.Lock()
	delete(r.entries, url)
	r.mu.Unlock()
}

// Resolve returns the bytes behind a temporary URL, so the preview can
// be rendered while the durable upload is still in flight.
func (r *HandleRegistry) Resolve(url string) ([]byte, bool) {
	if !strings.HasPrefix(url, tempScheme) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.entries[url]
	return data, ok
}

// Outstanding returns the number of unreleased temporary handles.
func (r *HandleRegistry) Outstanding() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Package blob is a registry of in-memory binary objects addressed by
// "blob:" locators. Every object is owned by exactly one Handle and stays
// reachable until that handle is released.
package blob

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Scheme prefixes every locator handed out by a Registry.
const Scheme = "blob:"

var (
	// ErrEmpty is returned when creating a blob from no data.
	ErrEmpty = errors.New("empty blob data")
	// ErrReleased is returned when a handle is released more than once.
	ErrReleased = errors.New("blob already released")
)

// ErrNotFound is returned when a locator does not name a live blob.
type ErrNotFound struct {
	Locator string
}

func (e ErrNotFound) Error() string {
	if e.Locator == "" {
		return "blob not found"
	}

	return "blob not found: " + e.Locator
}

type entry struct {
	mediaType string
	data      []byte
}

// Registry holds the backing data for live handles. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	created  int
	released int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Create copies data into the registry and returns the owning handle.
func (r *Registry) Create(mediaType string, data []byte) (*Handle, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	locator := Scheme + uuid.New().String()

	r.mu.Lock()
	r.entries[locator] = &entry{mediaType: mediaType, data: buf}
	r.created++
	r.mu.Unlock()

	return &Handle{
		registry:  r,
		locator:   locator,
		mediaType: mediaType,
		size:      len(buf),
	}, nil
}

// Open dereferences a live locator. The returned slice is a copy.
func (r *Registry) Open(locator string) (string, []byte, error) {
	if !strings.HasPrefix(locator, Scheme) {
		return "", nil, ErrNotFound{Locator: locator}
	}

	r.mu.RLock()
	e, ok := r.entries[locator]
	r.mu.RUnlock()
	if !ok {
		return "", nil, ErrNotFound{Locator: locator}
	}

	data := make([]byte, len(e.data))
	copy(data, e.data)
	return e.mediaType, data, nil
}

// Live returns the number of handles created but not yet released.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Stats returns how many handles were created and released over the
// registry's lifetime.
func (r *Registry) Stats() (created, released int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.created, r.released
}

func (r *Registry) release(locator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[locator]; !ok {
		return ErrReleased
	}
	delete(r.entries, locator)
	r.released++
	return nil
}

// Handle owns one blob in a Registry.
type Handle struct {
	registry  *Registry
	locator   string
	mediaType string
	size      int

	once sync.Once
}

// URL returns the dereferenceable locator, e.g. "blob:6f1c...".
func (h *Handle) URL() string { return h.locator }

// MediaType returns the declared media type of the blob.
func (h *Handle) MediaType() string { return h.mediaType }

// Size returns the blob length in bytes.
func (h *Handle) Size() int { return h.size }

// Release frees the backing data. Only the first call has an effect; later
// calls return ErrReleased.
func (h *Handle) Release() error {
	err := ErrReleased
	h.once.Do(func() {
		err = h.registry.release(h.locator)
	})
	return err
}

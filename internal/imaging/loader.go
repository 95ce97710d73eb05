package imaging

import (
	"container/list"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Resolver maps an image identifier to its encoded bytes.
//
// Implementations return a *MissingResourceError when the identifier is
// unknown or its backing data no longer exists.
type Resolver interface {
	Resolve(id string) ([]byte, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(id string) ([]byte, error)

// Resolve calls f(id).
func (f ResolverFunc) Resolve(id string) ([]byte, error) { return f(id) }

// FileResolver treats identifiers as filesystem paths, optionally relative
// to Root.
type FileResolver struct {
	Root string
}

// Resolve reads the file named by id.
func (r FileResolver) Resolve(id string) ([]byte, error) {
	path := id
	if r.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(r.Root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingResourceError{ID: id, Err: err}
		}
		return nil, fmt.Errorf("failed to read image %q: %w", id, err)
	}
	return data, nil
}

// CacheStats counts cache activity since construction or the last Clear.
type CacheStats struct {
	Hits      int `json:"hits"`
	Misses    int `json:"misses"`
	Evictions int `json:"evictions"`
	Resident  int `json:"resident"`
	Capacity  int `json:"capacity"`
}

// ImageCache keeps at most Capacity decoded images resident and evicts in
// strict insertion order.
//
// A hit never changes an entry's position: the entry inserted earliest among
// the resident ones is always the next to go, however often it was fetched
// in between. This is FIFO, not LRU.
//
// The cache is a memory device only. Get returns the same pixels for an
// identifier whether or not it was evicted and decoded again.
//
// ImageCache is safe for concurrent use; each Get runs as one exclusive
// section over the resident map and the eviction queue.
//
// # Example Usage
//
//	cache, err := imaging.NewImageCache(20, imaging.FileResolver{})
//	if err != nil {
//	    return err
//	}
//	img, err := cache.Get("/photos/cat.jpg")
type ImageCache struct {
	mu       sync.Mutex
	capacity int
	resolver Resolver
	images   map[string]*list.Element
	// order holds ids newest at the front, oldest at the back.
	order *list.List
	stats CacheStats
}

type cacheEntry struct {
	id  string
	img image.Image
}

// NewImageCache creates an empty cache holding at most capacity images.
//
// Parameters:
//   - capacity: Maximum number of resident decoded images. Must be >= 1.
//   - resolver: Source of encoded bytes for cache misses. Must not be nil.
func NewImageCache(capacity int, resolver Resolver) (*ImageCache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("cache capacity must be at least 1, got %d", capacity)
	}
	if resolver == nil {
		return nil, errors.New("cache resolver is nil")
	}
	return &ImageCache{
		capacity: capacity,
		resolver: resolver,
		images:   make(map[string]*list.Element, capacity),
		order:    list.New(),
	}, nil
}

// Get returns the decoded image for id, decoding it on a miss.
//
// # Errors
//
//   - *MissingResourceError if the resolver cannot find id
//   - *DecodeError if the bytes are not a supported image
//
// A failed Get leaves the resident set and the eviction order untouched:
// eviction only happens once the new image has been decoded.
func (c *ImageCache) Get(id string) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.images[id]; ok {
		c.stats.Hits++
		return el.Value.(*cacheEntry).img, nil
	}
	c.stats.Misses++

	data, err := c.resolver.Resolve(id)
	if err != nil {
		return nil, err
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, &DecodeError{ID: id, Err: err}
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.images, oldest.Value.(*cacheEntry).id)
		c.stats.Evictions++
	}
	c.images[id] = c.order.PushFront(&cacheEntry{id: id, img: img})

	return img, nil
}

// Resident returns the ids currently held, newest first.
func (c *ImageCache) Resident() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(*cacheEntry).id)
	}
	return ids
}

// Len returns the number of resident images.
func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the maximum number of resident images.
func (c *ImageCache) Capacity() int { return c.capacity }

// Stats returns a snapshot of the hit, miss and eviction counters.
func (c *ImageCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Resident = c.order.Len()
	s.Capacity = c.capacity
	return s
}

// Clear drops every resident image and resets the counters.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	c.stats = CacheStats{}
	c.mu.Unlock()
}

// Evict removes id if it is resident and reports whether it was. The next
// Get decodes it again.
func (c *ImageCache) Evict(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.images[id]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.images, id)
	c.stats.Evictions++
	return true
}

// ListImages returns the image files directly inside dir, sorted by file
// name. The order is significant: it becomes the initial queue order of the
// assignment engine.
//
// Subdirectories and files without a recognised image extension are
// skipped.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !IsImageFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// IsImageFile reports whether name carries one of the decodable image
// extensions.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

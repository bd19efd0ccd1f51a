package worldstream

import (
	"bytes"
	"container/list"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/bmp"
)

// TextureKey identifies a decoded texture by its source object path and
// texture name (spec.md §3).
type TextureKey struct {
	ObjectPath string
	Name       string
}

// textureEntry is the value stored at each LRU node.
type textureEntry struct {
	key   TextureKey
	image image.Image
}

// TextureCache is a process-wide, capacity-limited map of TextureKey to
// decoded image with strict LRU eviction (spec.md §4.2). It must only be
// used from the scheduler/main thread; see DESIGN.md for the
// decode-off-cache, insert-on-one-thread rationale this mirrors.
type TextureCache struct {
	capacity int
	byKey    map[TextureKey]*list.Element
	order    *list.List // front = most recently used
}

// NewTextureCache creates a cache with the given capacity. A non-positive
// capacity falls back to the spec.md §6 default of 512.
func NewTextureCache(capacity int) *TextureCache {
	if capacity <= 0 {
		capacity = 512
	}
	return &TextureCache{
		capacity: capacity,
		byKey:    make(map[TextureKey]*list.Element),
		order:    list.New(),
	}
}

// Len returns the number of cached entries.
func (c *TextureCache) Len() int { return c.order.Len() }

// Get returns the cached image for key, moving it to the front (most
// recently used). ok is false on a miss.
func (c *TextureCache) Get(key TextureKey) (image.Image, bool) {
	el, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*textureEntry).image, true
}

// Put inserts or replaces the image for key, then evicts from the back
// while over capacity. Invariant (spec.md §8 item 3): after Put, Len() <=
// capacity and the evicted key is always the least-recently-used one.
func (c *TextureCache) Put(key TextureKey, img image.Image) {
	if el, ok := c.byKey[key]; ok {
		el.Value.(*textureEntry).image = img
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&textureEntry{key: key, image: img})
	c.byKey[key] = el
	for c.order.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *TextureCache) evictOldest() {
	back := c.order.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*textureEntry)
	delete(c.byKey, entry.key)
	c.order.Remove(back)
}

// Keys returns cache keys from most- to least-recently-used, for tests and
// the debug overlay.
func (c *TextureCache) Keys() []TextureKey {
	out := make([]TextureKey, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*textureEntry).key)
	}
	return out
}

// textureCandidateExtensions lists the extensions tried, in order, when a
// texture verb names a file without a recognized extension (spec.md §4.4).
var textureCandidateExtensions = []string{"", ".jpg", ".jpeg", ".png", ".bmp", ".dds", ".dds.gz"}

// CandidateNames returns the ordered list of filenames to try for a texture
// verb's bare name argument, per spec.md §4.4.
func CandidateNames(name string) []string {
	names := make([]string, 0, len(textureCandidateExtensions)*2)
	for _, ext := range textureCandidateExtensions {
		if ext == "" {
			names = append(names, name)
			continue
		}
		names = append(names, name+ext, strings.ToUpper(name)+ext)
	}
	return names
}

// DecodeTexture decodes raw bytes into an image.Image, dispatching on the
// filename's extension. DDS/DDS.GZ have no available decoder in the Go
// ecosystem outside cgo bindings (see DESIGN.md Open Questions); for those
// it returns ErrUnsupportedFormat so the §4.4 candidate-extension fallback
// loop moves on to the next candidate rather than failing the whole verb.
func DecodeTexture(filename string, data []byte) (image.Image, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".png"):
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, newError(KindDecodeFailed, "texture:"+filename, err)
		}
		return img, nil
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, newError(KindDecodeFailed, "texture:"+filename, err)
		}
		return img, nil
	case strings.HasSuffix(lower, ".bmp"):
		img, err := bmp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, newError(KindDecodeFailed, "texture:"+filename, err)
		}
		return img, nil
	case strings.HasSuffix(lower, ".dds"), strings.HasSuffix(lower, ".dds.gz"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	default:
		// No extension (or one candidate tries the bare name): sniff via
		// the standard decoder registry.
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, newError(KindDecodeFailed, "texture:"+filename, err)
		}
		return img, nil
	}
}

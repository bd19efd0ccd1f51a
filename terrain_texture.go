package worldstream

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TerrainTextureCache maps numeric terrain texture ids to decoded images,
// deduplicating concurrent first-fetches of the same id with singleflight
// (spec.md §4.8), mirroring template_pool.go's per-model_id load dedup.
type TerrainTextureCache struct {
	resolve    func(id uint16) []string
	downloader AssetDownloader
	objectPath string
	password   string

	group singleflight.Group
	mu    sync.Mutex
	cache map[uint16]TextureImage
}

// NewTerrainTextureCache wires a TerrainTextureCache. resolve maps a
// numeric texture id to the ordered list of candidate filenames to try
// (spec.md §4.8.6, §6 "Terrain texture URLs": `terrain<id>.{jpg,png}`
// tried in order).
func NewTerrainTextureCache(downloader AssetDownloader, objectPath, password string, resolve func(uint16) []string) *TerrainTextureCache {
	return &TerrainTextureCache{
		resolve:    resolve,
		downloader: downloader,
		objectPath: objectPath,
		password:   password,
		cache:      make(map[uint16]TextureImage),
	}
}

// Get returns the decoded image for id, downloading and decoding it at
// most once even under concurrent callers (spec.md §8 invariant 2's
// "at most one load per key" pattern, applied to terrain texture ids).
func (c *TerrainTextureCache) Get(ctx context.Context, id uint16) (TextureImage, error) {
	c.mu.Lock()
	if img, ok := c.cache[id]; ok {
		c.mu.Unlock()
		return img, nil
	}
	c.mu.Unlock()

	key := fmt.Sprintf("%d", id)
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		if img, ok := c.cache[id]; ok {
			c.mu.Unlock()
			return img, nil
		}
		c.mu.Unlock()

		candidates := c.resolve(id)
		var lastErr error
		for _, filename := range candidates {
			data, derr := c.downloader.Download(ctx, c.objectPath, filename, c.password)
			if derr != nil {
				lastErr = newError(KindAssetNotFound, "terrain_texture:"+filename, derr)
				continue
			}
			img, derr := DecodeTexture(filename, data)
			if derr != nil {
				lastErr = derr
				continue
			}
			c.mu.Lock()
			c.cache[id] = img
			c.mu.Unlock()
			return img, nil
		}
		if lastErr == nil {
			lastErr = newError(KindAssetNotFound, "terrain_texture", fmt.Errorf("no candidate filenames for texture id %d", id))
		}
		return nil, lastErr
	})
	if err != nil {
		return nil, err
	}
	return result.(TextureImage), nil
}

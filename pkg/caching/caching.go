// Package caching keeps fetched listing pages on disk for a short TTL so
// repeated runs against the same day do not re-read the remote directory.
package caching

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dtnitsch/aemo-scada/pkg/storage"
)

// Cache is a file-per-URL store with a TTL.
type Cache struct {
	path    string
	ttl     time.Duration
	storage *storage.Storage
	now     func() time.Time
}

// NewCache creates the cache directory if it doesn't exist.
func NewCache(path string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{path: path, ttl: ttl, storage: &storage.Storage{}, now: time.Now}, nil
}

// key generates a SHA256 hash of the URL to use as a filename.
func (c *Cache) key(url string) string {
	hash := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%x", hash)
}

func (c *Cache) file(url string) string {
	return filepath.Join(c.path, c.key(url)+".html")
}

// Get returns the cached body for url if present and younger than the TTL.
func (c *Cache) Get(url string) ([]byte, bool) {
	filePath := c.file(url)
	stats, err := c.storage.GetFileStats(filePath)
	if err != nil {
		return nil, false
	}
	if c.now().Sub(stats.ModTime) > c.ttl {
		return nil, false
	}
	data, err := c.storage.ReadFile(filePath)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores data for url.
func (c *Cache) Set(url string, data []byte) error {
	if err := c.storage.SaveFile(c.file(url), data); err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}

// Getter fetches a URL body. *fetcher.Fetcher satisfies it.
type Getter interface {
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

// CachedGetter serves GetBytes from the cache when fresh.
type CachedGetter struct {
	Cache *Cache
	Next  Getter
}

func (g *CachedGetter) GetBytes(ctx context.Context, url string) ([]byte, error) {
	if data, ok := g.Cache.Get(url); ok {
		return data, nil
	}
	data, err := g.Next.GetBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	// A cache write failure only costs a refetch next time.
	_ = g.Cache.Set(url, data)
	return data, nil
}

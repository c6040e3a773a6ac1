// codecache.go: On-disk cache for bundle activator libraries
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	codeCacheIndexSize = 256
	codeCacheIndexTTL  = 10 * time.Minute
)

// CodeCache is a directory where activator libraries are materialized so the
// host can load them from a real file path. Libraries from directory bundles
// are used in place; libraries from archive bundles are extracted into
// <base>/<symbolic-name>_<version>/.
//
// An expirable LRU remembers recently prepared paths. An expired or evicted
// entry only means the next Prepare re-checks the file on disk.
type CodeCache struct {
	basePath string
	index    *lru.LRU[string, string]
	mu       sync.Mutex
}

// NewCodeCache creates a cache rooted at basePath. The directory is created
// lazily by Clear or Prepare.
func NewCodeCache(basePath string) *CodeCache {
	return &CodeCache{
		basePath: basePath,
		index:    lru.NewLRU[string, string](codeCacheIndexSize, nil, codeCacheIndexTTL),
	}
}

// Path returns the cache root.
func (c *CodeCache) Path() string { return c.basePath }

// Clear removes every cached file and recreates an empty cache directory.
// A missing directory is not an error.
func (c *CodeCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index.Purge()
	if err := os.RemoveAll(c.basePath); err != nil {
		return NewCodeCacheError(c.basePath, "failed to clear code cache", err)
	}
	if err := os.MkdirAll(c.basePath, 0750); err != nil {
		return NewCodeCacheError(c.basePath, "failed to create code cache", err)
	}
	return nil
}

// Prepare returns a loadable file path for the manifest's activator library.
// It returns "" when the bundle declares no library.
func (c *CodeCache) Prepare(manifest *Manifest, storage BundleStorage) (string, error) {
	library := manifest.ActivatorLibrary()
	if library == "" {
		return "", nil
	}

	if dir, ok := storage.(*DirectoryStorage); ok {
		path, ok := dir.resolve(library)
		if !ok {
			return "", NewCodeCacheError(library, "invalid activator library path", nil)
		}
		if _, err := os.Stat(path); err != nil {
			return "", NewResourceNotFoundError(dir.GetPath(), library)
		}
		return path, nil
	}

	key := fmt.Sprintf("%s_%s/%s", manifest.SymbolicName(), manifest.Version(), library)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.index.Get(key); ok {
		if _, err := os.Stat(cached); err == nil {
			return cached, nil
		}
		c.index.Remove(key)
	}

	clean, ok := cleanResourceName(library)
	if !ok {
		return "", NewCodeCacheError(library, "invalid activator library path", nil)
	}
	target := filepath.Join(c.basePath, manifest.SymbolicName()+"_"+manifest.Version(), filepath.FromSlash(clean))

	data, err := ReadResource(storage, clean)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return "", NewCodeCacheError(target, "failed to create cache entry", err)
	}
	// #nosec G306 -- shared objects must be readable by the loader
	if err := os.WriteFile(target, data, 0640); err != nil {
		return "", NewCodeCacheError(target, "failed to write cache entry", err)
	}

	c.index.Add(key, target)
	return target, nil
}

// Evict forgets every cached library of the given bundle and removes its
// directory.
func (c *CodeCache) Evict(manifest *Manifest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := manifest.SymbolicName() + "_" + manifest.Version()
	for _, key := range c.index.Keys() {
		if len(key) > len(prefix) && key[:len(prefix)+1] == prefix+"/" {
			c.index.Remove(key)
		}
	}
	if err := os.RemoveAll(filepath.Join(c.basePath, prefix)); err != nil {
		return NewCodeCacheError(prefix, "failed to evict cache entry", err)
	}
	return nil
}

// writable reports whether files can be created under dir.
func writable(dir string) bool {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}

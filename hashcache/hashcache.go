// Package hashcache is a process-wide key→digest map backed by a
// single bbolt file on disk, keyed by (canonical path, size, mtime) so
// a stale entry for a changed file simply misses rather than needing
// explicit invalidation. Records are gob-encoded, mirroring the
// hasher backend's own hashRecord encode/decode pattern.
package hashcache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/eldenglass/vfsdiff/vfs"
)

var bucketName = []byte("digests")

// Key identifies one cache entry. Two files with the same path but
// different size or mtime never collide.
type Key struct {
	Path    string
	Size    int64
	ModTime int64 // Unix nanoseconds
}

func (k Key) encode() []byte {
	return []byte(fmt.Sprintf("%s\x00%d\x00%d", k.Path, k.Size, k.ModTime))
}

// NewKey builds a Key from a canonical absolute path and metadata.
func NewKey(canonicalPath string, size int64, modTime time.Time) Key {
	return Key{Path: canonicalPath, Size: size, ModTime: modTime.UnixNano()}
}

type record struct {
	Digest  vfs.Digest
	Created time.Time
}

func (r record) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (record, error) {
	var r record
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r)
	return r, err
}

// Cache is an in-memory map guarded by a mutex, with an on-disk bbolt
// file as its backing store. Get/Put never touch disk; Persist snapshots
// the whole map into the bbolt file in one transaction.
type Cache struct {
	path string
	db   *bbolt.DB

	mu   sync.Mutex
	data map[Key]vfs.Digest
}

// Open loads any existing cache at path (creating the file if absent)
// and returns a Cache with its contents already resident in memory. A
// file that bbolt cannot open, including one that is not a bbolt
// database at all, is reported as a KindIO error, not KindConfig.
// Records whose key or value fail to decode are skipped; only a
// failure of the load transaction itself is reported as KindConfig.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(path), err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open", vfs.Path(path), err)
	}
	c := &Cache{path: path, db: db, data: make(map[Key]vfs.Digest)}
	if err := c.loadAll(); err != nil {
		db.Close()
		return nil, vfs.NewError(vfs.KindConfig, "open", vfs.Path(path), err)
	}
	return c, nil
}

func (c *Cache) loadAll() error {
	return c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			key, err := decodeKey(k)
			if err != nil {
				return nil // skip unreadable entries rather than fail the whole load
			}
			rec, err := decodeRecord(v)
			if err != nil {
				return nil
			}
			c.data[key] = rec.Digest
			return nil
		})
	})
}

func decodeKey(raw []byte) (Key, error) {
	parts := bytes.Split(raw, []byte{0})
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("malformed cache key %q", raw)
	}
	var size, mtime int64
	if _, err := fmt.Sscanf(string(parts[1]), "%d", &size); err != nil {
		return Key{}, fmt.Errorf("malformed cache key %q", raw)
	}
	if _, err := fmt.Sscanf(string(parts[2]), "%d", &mtime); err != nil {
		return Key{}, fmt.Errorf("malformed cache key %q", raw)
	}
	return Key{Path: string(parts[0]), Size: size, ModTime: mtime}, nil
}

// Get returns the cached digest for key, if present.
func (c *Cache) Get(key Key) (vfs.Digest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[key]
	return d, ok
}

// Put records digest for key in memory; it is not written to disk
// until Persist is called.
func (c *Cache) Put(key Key, digest vfs.Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = digest
}

// Persist atomically writes the whole in-memory map to the backing
// bbolt file in one transaction. Intended to be called between scans,
// not during: a failure here is a warning, never a comparison failure.
func (c *Cache) Persist() error {
	c.mu.Lock()
	snapshot := make(map[Key]vfs.Digest, len(c.data))
	for k, v := range c.data {
		snapshot[k] = v
	}
	c.mu.Unlock()

	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		for k, v := range snapshot {
			rec := record{Digest: v, Created: time.Now()}
			data, err := rec.encode()
			if err != nil {
				return err
			}
			if err := b.Put(k.encode(), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the backing file handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

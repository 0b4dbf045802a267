// Copyright Peton Labs, 2026. All rights reserved.

// Package cache is a content-addressable store for downloaded documents.
// Keys are derived deterministically from item identifiers so the same
// article always maps to the same path across reruns; a cache miss is a
// distinguished outcome, not an error.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// ErrNotFound reports a cache miss. Callers fall through to a direct
// fetch; it is never fatal to the pipeline.
var ErrNotFound = errors.New("cache: object not found")

// metaExt is the sidecar extension holding object metadata.
const metaExt = ".meta.yaml"

// Metadata describes a cached object. Empty fields are stripped before
// the sidecar is written.
type Metadata struct {
	Title       string    `yaml:"title,omitempty"`
	DOI         string    `yaml:"doi,omitempty"`
	PMID        string    `yaml:"pmid,omitempty"`
	Source      string    `yaml:"source,omitempty"`
	ContentType string    `yaml:"content_type,omitempty"`
	Size        int64     `yaml:"size"`
	UploadedAt  time.Time `yaml:"uploaded_at"`
}

// ObjectInfo is one listing entry.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store keeps documents under a base directory with YAML metadata
// sidecars. Entries are immutable once written unless overwrite is
// requested explicitly.
type Store struct {
	dir     string
	prefix  string
	maxSize int64
}

// New builds a Store rooted at cfg.Dir. The directory is created on
// first use, not here, so constructing a Store never touches the disk.
func New(cfg types.CacheConfig) *Store {
	maxSize := int64(cfg.MaxFileSizeMB) * 1024 * 1024
	if maxSize <= 0 {
		maxSize = 50 * 1024 * 1024
	}
	return &Store{
		dir:     cfg.Dir,
		prefix:  cfg.KeyPrefix,
		maxSize: maxSize,
	}
}

// MaxSize returns the per-object size cap in bytes.
func (s *Store) MaxSize() int64 { return s.maxSize }

// Store writes data under the deterministic key for item. When the key
// already exists and overwrite is false, the existing key is returned
// without rewriting (idempotent no-op). Items without identifiers fall
// back to a content-hash key.
func (s *Store) Store(data []byte, item types.WorkItem, source string, overwrite bool) (string, error) {
	if int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("cache: object too large (%d bytes, max %d)", len(data), s.maxSize)
	}

	key, ok := s.KeyFor(item)
	if !ok {
		key = s.contentKey(data)
	}

	path := s.path(key)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return key, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("cache: creating directory: %w", err)
	}

	// Write to a temp file and rename so readers never see partial objects.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*.tmp")
	if err != nil {
		return "", fmt.Errorf("cache: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("cache: writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("cache: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("cache: renaming object: %w", err)
	}

	meta := Metadata{
		Title:       item.Title,
		DOI:         NormalizeDOI(item.DOI),
		PMID:        item.PMID,
		Source:      source,
		ContentType: "application/pdf",
		Size:        int64(len(data)),
		UploadedAt:  time.Now().UTC(),
	}
	if err := s.writeMetadata(key, meta); err != nil {
		return "", err
	}
	return key, nil
}

// Retrieve returns the object bytes, or ErrNotFound on a miss.
func (s *Store) Retrieve(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cache: reading %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether the key is present.
func (s *Store) Exists(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Metadata returns the sidecar metadata for key, or ErrNotFound.
func (s *Store) Metadata(key string) (Metadata, error) {
	data, err := os.ReadFile(s.path(key) + metaExt)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, fmt.Errorf("cache: reading metadata for %s: %w", key, err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("cache: parsing metadata for %s: %w", key, err)
	}
	return meta, nil
}

// List returns entries whose key starts with prefix. An empty prefix
// lists the whole configured namespace.
func (s *Store) List(prefix string) ([]ObjectInfo, error) {
	if prefix == "" {
		prefix = s.prefix
	}

	var out []ObjectInfo
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, metaExt) {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: listing %s: %w", prefix, err)
	}
	return out, nil
}

// Delete removes the object and its metadata sidecar. Deleting a
// missing key is not an error.
func (s *Store) Delete(key string) error {
	path := s.path(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: deleting %s: %w", key, err)
	}
	if err := os.Remove(path + metaExt); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: deleting metadata for %s: %w", key, err)
	}
	return nil
}

// CleanupOlderThan deletes objects last modified more than days ago and
// returns the number removed.
func (s *Store) CleanupOlderThan(days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	objects, err := s.List("")
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, obj := range objects {
		if obj.LastModified.Before(cutoff) {
			if err := s.Delete(obj.Key); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

func (s *Store) writeMetadata(key string, meta Metadata) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("cache: marshaling metadata: %w", err)
	}
	if err := os.WriteFile(s.path(key)+metaExt, data, 0o644); err != nil {
		return fmt.Errorf("cache: writing metadata: %w", err)
	}
	return nil
}

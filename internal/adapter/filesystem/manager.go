package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/port"
)

const (
	metaSuffix = ".meta"
	tempSuffix = ".tmp"
)

// Manager handles the cache directory: one data file and one metadata
// sidecar per resource, named after the hash of the canonical URL
type Manager struct {
	rootDir string
	codec   port.MetadataCodec
}

// Ensure Manager implements port.CacheFileSystem
var _ port.CacheFileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithCodec(rootDir, JSONCodec{})
}

// NewManagerWithCodec creates a new filesystem manager with a custom metadata codec
func NewManagerWithCodec(rootDir string, codec port.MetadataCodec) (*Manager, error) {
	// Ensure root directory exists
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}

	return &Manager{
		rootDir: rootDir,
		codec:   codec,
	}, nil
}

// RootDir returns the cache root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// DataPath returns the data file path for a canonical URL
func (m *Manager) DataPath(url string) string {
	return filepath.Join(m.rootDir, domain.ResourceKey(url)+domain.ResourceExtension(url))
}

// MetaPath returns the metadata sidecar path for a canonical URL
func (m *Manager) MetaPath(url string) string {
	return m.DataPath(url) + metaSuffix
}

// OpenData opens or creates the data file of a resource
func (m *Manager) OpenData(url string) (port.SparseFile, error) {
	return openSparseFile(m.DataPath(url))
}

// LoadMetadata reads the metadata record of a resource
func (m *Manager) LoadMetadata(url string) (*domain.CacheMetadata, error) {
	return m.readMetadata(m.MetaPath(url))
}

func (m *Manager) readMetadata(path string) (*domain.CacheMetadata, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	return m.codec.Decode(data)
}

// SaveMetadata durably replaces the metadata record of a resource.
// The record is written to a temp file, synced and renamed over the old one.
func (m *Manager) SaveMetadata(meta *domain.CacheMetadata) error {
	data, err := m.codec.Encode(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	metaPath := m.MetaPath(meta.URL)
	tempPath := metaPath + tempSuffix

	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp metadata file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close metadata file: %w", err)
	}

	if err := os.Rename(tempPath, metaPath); err != nil {
		return fmt.Errorf("failed to rename temp metadata file: %w", err)
	}
	return nil
}

// ListMetadata returns every readable metadata record in the cache directory.
// Unreadable records are skipped.
func (m *Manager) ListMetadata() ([]*domain.CacheMetadata, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache dir: %w", err)
	}

	var out []*domain.CacheMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}
		meta, err := m.readMetadata(filepath.Join(m.rootDir, entry.Name()))
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

// Remove deletes the data file and metadata record of a resource
func (m *Manager) Remove(url string) (uint64, error) {
	dataPath := m.DataPath(url)

	var freed uint64
	if info, err := os.Stat(dataPath); err == nil {
		freed = allocatedSize(info)
	}

	for _, path := range []string{dataPath, m.MetaPath(url), m.MetaPath(url) + tempSuffix} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err)
		}
	}
	return freed, nil
}

// GetCacheSize returns the allocated size of cached data files
func (m *Manager) GetCacheSize() (uint64, error) {
	var size uint64
	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && isDataFileName(info.Name()) {
			size += allocatedSize(info)
		}
		return nil
	})
	return size, err
}

// CleanStaleFiles removes leftover temp files and data files without a
// metadata record that are older than the specified duration.
// Returns the number of files deleted.
func (m *Manager) CleanStaleFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}

		name := entry.Name()
		if !isCacheFileName(name) {
			continue
		}
		path := filepath.Join(m.rootDir, name)
		stale := false
		switch {
		case strings.HasSuffix(name, tempSuffix):
			stale = true
		case strings.HasSuffix(name, metaSuffix):
		default:
			if _, err := os.Stat(path + metaSuffix); os.IsNotExist(err) {
				stale = true
			}
		}

		if stale {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
	}
	return count, nil
}

// isCacheFileName reports whether name belongs to a resource: a hex key
// followed by an optional extension and sidecar suffixes. Anything else in
// the cache directory, such as a catalog database, is left alone.
func isCacheFileName(name string) bool {
	key, _, _ := strings.Cut(name, ".")
	if len(key) != 64 {
		return false
	}
	for _, c := range key {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

func isDataFileName(name string) bool {
	return isCacheFileName(name) && !strings.HasSuffix(name, metaSuffix) && !strings.HasSuffix(name, tempSuffix)
}

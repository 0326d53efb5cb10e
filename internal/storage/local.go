package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finparse/statements/internal/common"
)

// FileInfo describes one stored upload.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	SHA256     string    `json:"sha256"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Store defines the interface for upload storage.
type Store interface {
	Save(name string, r io.Reader) (*FileInfo, error)
	Get(id string) (*FileInfo, error)
	Read(id string) ([]byte, error)
	List(limit int) ([]*FileInfo, error)
	Delete(id string) error
}

const metaSuffix = ".json"

// LocalStore implements Store on the local filesystem. Each upload is written
// as <id> plus an <id>.json metadata sidecar, so the index survives restarts.
// Saving a byte-identical file returns the existing entry instead of storing
// a duplicate.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*FileInfo
	byHash    map[string]string // sha256 -> id
}

// NewLocalStore creates a LocalStore rooted at uploadDir and rebuilds the
// index from the metadata sidecars already on disk.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	s := &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*FileInfo),
		byHash:    make(map[string]string),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) loadIndex() error {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return fmt.Errorf("scanning upload directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.uploadDir, e.Name()))
		if err != nil {
			return fmt.Errorf("reading metadata %s: %w", e.Name(), err)
		}
		var info FileInfo
		if err := json.Unmarshal(b, &info); err != nil {
			return fmt.Errorf("decoding metadata %s: %w", e.Name(), err)
		}
		// skip sidecars whose data file is gone
		if _, err := os.Stat(filepath.Join(s.uploadDir, info.ID)); err != nil {
			continue
		}
		s.files[info.ID] = &info
		s.byHash[info.SHA256] = info.ID
	}
	return nil
}

// Save stores a file and returns its metadata.
func (s *LocalStore) Save(name string, r io.Reader) (*FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	sum := hex.EncodeToString(h.Sum(nil))

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byHash[sum]; ok {
		os.Remove(path)
		return s.files[existing], nil
	}

	info := &FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		SHA256:     sum,
		UploadedAt: time.Now(),
	}
	meta, err := json.Marshal(info)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(path+metaSuffix, meta, 0o644); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing metadata: %w", err)
	}
	s.files[id] = info
	s.byHash[sum] = id
	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, common.ErrNotFound)
	}
	return info, nil
}

// Read returns the stored bytes for a file ID.
func (s *LocalStore) Read(id string) ([]byte, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.uploadDir, id))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return b, nil
}

// List returns stored files, newest first, up to limit.
func (s *LocalStore) List(limit int) ([]*FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*FileInfo, 0, len(s.files))
	for _, info := range s.files {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a file, its metadata sidecar, and its index entries.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id, common.ErrNotFound)
	}
	if err := os.Remove(filepath.Join(s.uploadDir, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file: %w", err)
	}
	if err := os.Remove(filepath.Join(s.uploadDir, id+metaSuffix)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing metadata: %w", err)
	}
	delete(s.files, id)
	delete(s.byHash, info.SHA256)
	return nil
}

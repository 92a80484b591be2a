package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore keeps every transcript in memory and snapshots the full set to
// a JSON file on each mutation. Writes go through a temp file and rename so
// a crash never leaves a torn snapshot.
type FileStore struct {
	path string

	mu   sync.Mutex
	byID map[string]Transcript
}

func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		byID: make(map[string]Transcript),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file %s: %w", path, err)
	}

	var records []Transcript
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse store file %s: %w", path, err)
	}
	for _, t := range records {
		fs.byID[t.ID] = t
	}
	return fs, nil
}

func (fs *FileStore) Save(ctx context.Context, t *Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.byID[t.ID] = *t
	return fs.persistLocked()
}

func (fs *FileStore) List(ctx context.Context, ownerID string) ([]Transcript, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var out []Transcript
	for _, t := range fs.byID {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (fs *FileStore) Delete(ctx context.Context, id, ownerID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	t, ok := fs.byID[id]
	if !ok || t.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(fs.byID, id)
	return fs.persistLocked()
}

func (fs *FileStore) persistLocked() error {
	records := make([]Transcript, 0, len(fs.byID))
	for _, t := range fs.byID {
		records = append(records, t)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write store snapshot: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("replace store snapshot: %w", err)
	}
	return nil
}

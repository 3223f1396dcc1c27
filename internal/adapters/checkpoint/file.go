package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"mediamigrate/internal/utils/errs"
)

type checkpointFile struct {
	Completed []string `json:"completed"`
}

// FileStore implements ports.CheckpointStore as a single JSON file. Saves
// are serialized by a mutex and written via a temp file plus rename, so a
// crash mid-save leaves the previous checkpoint intact.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the checkpoint. A missing file is a normal empty start; an
// unparseable file is errs.ErrCheckpointCorrupt, which callers treat as
// fatal rather than silently restarting from zero.
func (s *FileStore) Load(ctx context.Context) (map[string]struct{}, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}

	var cp checkpointFile
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrCheckpointCorrupt, s.path, err)
	}

	completed := make(map[string]struct{}, len(cp.Completed))
	for _, id := range cp.Completed {
		completed[id] = struct{}{}
	}
	return completed, nil
}

// Save writes the complete set. Only one save proceeds at a time.
func (s *FileStore) Save(ctx context.Context, completed map[string]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(completed))
	for id := range completed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(checkpointFile{Completed: ids}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", s.path, err)
	}
	return nil
}

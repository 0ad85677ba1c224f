package service

import (
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/vivekbarnaon/Doc-Scanner/model"
)

// HistoryStore persists past processing results. The workflow depends on
// this abstraction so tests can swap in an in-memory implementation.
type HistoryStore interface {
	Load() ([]model.ProcessingResult, error)
	Save(results []model.ProcessingResult) error
	Clear() error
}

// FileHistoryStore keeps the full history as a single JSON array on disk,
// overwritten wholesale on every save. A malformed or incompatible file is
// treated as empty history rather than an error.
type FileHistoryStore struct {
	path string
	mu   sync.Mutex
}

func NewFileHistoryStore(path string) *FileHistoryStore {
	return &FileHistoryStore{path: path}
}

func (s *FileHistoryStore) Load() ([]model.ProcessingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.ProcessingResult{}, nil
		}
		return nil, err
	}

	var results []model.ProcessingResult
	if err := json.Unmarshal(data, &results); err != nil {
		// Fail soft: unreadable history is discarded, not fatal
		slog.Warn("discarding malformed history file", "path", s.path, "error", err)
		return []model.ProcessingResult{}, nil
	}
	if results == nil {
		results = []model.ProcessingResult{}
	}
	return results, nil
}

func (s *FileHistoryStore) Save(results []model.ProcessingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func (s *FileHistoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MergeResults combines two result lists, keeping the first occurrence per
// id. New results are listed before existing ones, so a fresh result with
// a colliding id wins over a stale persisted copy.
func MergeResults(newResults, existing []model.ProcessingResult) []model.ProcessingResult {
	merged := make([]model.ProcessingResult, 0, len(newResults)+len(existing))
	seen := make(map[string]bool, len(newResults)+len(existing))

	for _, result := range append(append([]model.ProcessingResult{}, newResults...), existing...) {
		if seen[result.ID] {
			continue
		}
		seen[result.ID] = true
		merged = append(merged, result)
	}
	return merged
}

// SortResults orders results by timestamp descending, most recent first.
// Ties keep insertion order.
func SortResults(results []model.ProcessingResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
}

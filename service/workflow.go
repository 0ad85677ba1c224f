package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vivekbarnaon/Doc-Scanner/model"
	"github.com/vivekbarnaon/Doc-Scanner/pkg/logger"
)

// ErrTypeBusy is returned when an operation of the same processing type is
// already in flight. Types are independent: a busy image pipeline does not
// block PDF or merge operations.
var ErrTypeBusy = errors.New("an operation of this type is already in progress")

// FileProcessor is the slice of the scanner client the workflow needs
type FileProcessor interface {
	ProcessFile(ctx context.Context, ptype model.ProcessingType, files []NamedFile) *model.ProcessingResult
}

// Workflow orchestrates upload-and-process operations: it tracks a busy
// flag per processing type, keeps this session's results in memory and
// mirrors every outcome into the history store.
type Workflow struct {
	processor FileProcessor
	history   HistoryStore

	mu      sync.Mutex
	busy    map[model.ProcessingType]bool
	results []model.ProcessingResult
}

func NewWorkflow(processor FileProcessor, history HistoryStore) *Workflow {
	return &Workflow{
		processor: processor,
		history:   history,
		busy:      make(map[model.ProcessingType]bool),
	}
}

// Process runs one operation for the given type. The result is always a
// terminal ProcessingResult (success or error); the only error this
// method returns is ErrTypeBusy or an invalid type.
func (w *Workflow) Process(ctx context.Context, ptype model.ProcessingType, files []NamedFile) (*model.ProcessingResult, error) {
	if !ptype.Valid() {
		return nil, fmt.Errorf("unknown processing type: %s", ptype)
	}

	w.mu.Lock()
	if w.busy[ptype] {
		w.mu.Unlock()
		return nil, ErrTypeBusy
	}
	w.busy[ptype] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.busy[ptype] = false
		w.mu.Unlock()
	}()

	result := w.processor.ProcessFile(ctx, ptype, files)
	w.record(ctx, *result)

	if result.Status == model.StatusError {
		logger.Warn(ctx, "processing failed", "type", ptype, "file", result.FileName, "error", result.ErrorMessage)
	} else {
		logger.Info(ctx, "processing completed", "type", ptype, "file", result.FileName)
	}

	return result, nil
}

// record prepends the result to the in-memory list and mirrors the merged
// list into the history store. The read-merge-write is last-writer-wins;
// concurrent writers from separate instances are out of scope.
func (w *Workflow) record(ctx context.Context, result model.ProcessingResult) {
	w.mu.Lock()
	w.results = append([]model.ProcessingResult{result}, w.results...)
	snapshot := make([]model.ProcessingResult, len(w.results))
	copy(snapshot, w.results)
	w.mu.Unlock()

	existing, err := w.history.Load()
	if err != nil {
		logger.Warn(ctx, "failed to load history", "error", err)
		existing = nil
	}
	if err := w.history.Save(MergeResults(snapshot, existing)); err != nil {
		logger.Warn(ctx, "failed to save history", "error", err)
	}
}

// Busy returns a snapshot of the per-type busy flags
func (w *Workflow) Busy() map[model.ProcessingType]bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	flags := make(map[model.ProcessingType]bool, len(model.ProcessingTypes()))
	for _, ptype := range model.ProcessingTypes() {
		flags[ptype] = w.busy[ptype]
	}
	return flags
}

// Results returns this session's results, most recent first
func (w *Workflow) Results() []model.ProcessingResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	results := make([]model.ProcessingResult, len(w.results))
	copy(results, w.results)
	return results
}

// FindResult looks up a result by id, checking this session's results
// before the persisted history
func (w *Workflow) FindResult(id string) (*model.ProcessingResult, bool) {
	w.mu.Lock()
	for _, result := range w.results {
		if result.ID == id {
			w.mu.Unlock()
			return &result, true
		}
	}
	w.mu.Unlock()

	persisted, err := w.history.Load()
	if err != nil {
		return nil, false
	}
	for _, result := range persisted {
		if result.ID == id {
			return &result, true
		}
	}
	return nil, false
}

// History returns the persisted history sorted by timestamp descending
func (w *Workflow) History() ([]model.ProcessingResult, error) {
	results, err := w.history.Load()
	if err != nil {
		return nil, err
	}
	SortResults(results)
	return results, nil
}

// ClearHistory empties both the in-memory results and the persisted store
func (w *Workflow) ClearHistory() error {
	w.mu.Lock()
	w.results = nil
	w.mu.Unlock()

	return w.history.Clear()
}

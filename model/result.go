package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProcessingType identifies which backend pipeline handles a file
type ProcessingType string

const (
	TypeImageToCSV ProcessingType = "imgtocsv"
	TypePDFToCSV   ProcessingType = "pdfcsv"
	TypeMergeCSV   ProcessingType = "mergecsv"
)

// processEndpoints maps each processing type to its backend route.
// Adding a type is a single entry here.
var processEndpoints = map[ProcessingType]string{
	TypeImageToCSV: "/api/process/image-to-csv",
	TypePDFToCSV:   "/api/process/pdf-to-csv",
	TypeMergeCSV:   "/api/process/merge-csv",
}

// Valid reports whether t is one of the known processing types
func (t ProcessingType) Valid() bool {
	_, ok := processEndpoints[t]
	return ok
}

// Endpoint returns the backend route for the processing type
func (t ProcessingType) Endpoint() (string, error) {
	endpoint, ok := processEndpoints[t]
	if !ok {
		return "", fmt.Errorf("unknown processing type: %s", t)
	}
	return endpoint, nil
}

// ProcessingTypes returns all known processing types
func ProcessingTypes() []ProcessingType {
	return []ProcessingType{TypeImageToCSV, TypePDFToCSV, TypeMergeCSV}
}

// Result status constants
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ProcessingResult is one terminal outcome of a file operation.
// A result is never mutated after creation.
type ProcessingResult struct {
	ID           string         `json:"id"`
	Type         ProcessingType `json:"type"`
	FileName     string         `json:"fileName"`
	Timestamp    time.Time      `json:"timestamp"`
	Status       string         `json:"status"`
	CSVContent   string         `json:"csvContent,omitempty"`
	DownloadURL  string         `json:"downloadUrl,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// NewResultID builds a unique result identifier from the processing type,
// the current time and a random suffix. The id is the sole de-duplication
// key when histories are merged.
func NewResultID(t ProcessingType) string {
	return fmt.Sprintf("%s_%d_%s", t, time.Now().UnixMilli(), uuid.New().String()[:8])
}

// PreviewContent is a bounded header+rows view of a result CSV. It is
// derived on demand and never persisted.
type PreviewContent struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

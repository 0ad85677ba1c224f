package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vivekbarnaon/Doc-Scanner/config"
	"github.com/vivekbarnaon/Doc-Scanner/model"
	"github.com/vivekbarnaon/Doc-Scanner/pkg/logger"
)

// ScannerService is the client for the remote document-processing backend.
// Processing calls never return an error: every failure is normalized into
// a ProcessingResult with status=error so callers handle a single shape.
type ScannerService struct {
	config     *config.BackendConfig
	httpClient *http.Client
}

// NamedFile pairs an uploaded file's original name with its content
type NamedFile struct {
	Name   string
	Reader io.Reader
}

// UploadResponse represents the backend's reply to a file upload
type UploadResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	FileID           string `json:"file_id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	FileType         string `json:"file_type,omitempty"`
}

// Name returns the best available original filename
func (r *UploadResponse) Name() string {
	if r.OriginalFilename != "" {
		return r.OriginalFilename
	}
	return r.Filename
}

// processResponse represents the reply from the processing endpoints
type processResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	FileID         string `json:"file_id"`
	OutputFilename string `json:"output_filename"`
	DownloadURL    string `json:"download_url"`
	CSVContent     string `json:"csv_content"`
}

func NewScannerService(cfg *config.BackendConfig) *ScannerService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		// Backend processing can take minutes
		timeout = 5 * time.Minute
	}
	return &ScannerService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// UploadFile uploads a single file and returns the backend's file handle.
// The error message comes from the backend's message field when present,
// falling back to a transport-level description.
func (s *ScannerService) UploadFile(ctx context.Context, file NamedFile) (*UploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writeFilePart(writer, "file", file); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/api/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	s.setAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(transportErrorMessage(err))
	}
	defer resp.Body.Close()

	var result UploadResponse
	if err := decodeAPIResponse(resp, &result); err != nil {
		return nil, err
	}
	if result.FileID == "" {
		return nil, errors.New("upload failed: backend did not return a file id")
	}

	logger.Debug(ctx, "file uploaded", "file_id", result.FileID, "filename", result.Name())
	return &result, nil
}

// ProcessUploadedFile asks the backend to run the pipeline for the given
// processing type on an already uploaded file
func (s *ScannerService) ProcessUploadedFile(ctx context.Context, fileID, filename string, ptype model.ProcessingType) *model.ProcessingResult {
	endpoint, err := ptype.Endpoint()
	if err != nil {
		return s.errorResult(ptype, filename, err.Error())
	}

	body, err := json.Marshal(map[string]string{"file_id": fileID})
	if err != nil {
		return s.errorResult(ptype, filename, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return s.errorResult(ptype, filename, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	s.setAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.Warn(ctx, "processing request failed", "type", ptype, "error", err)
		return s.errorResult(ptype, filename, transportErrorMessage(err))
	}
	defer resp.Body.Close()

	var result processResponse
	if err := decodeAPIResponse(resp, &result); err != nil {
		return s.errorResult(ptype, filename, err.Error())
	}

	return s.successResult(ptype, filename, &result)
}

// MergeCSVFiles sends two CSV files straight to the merge endpoint,
// bypassing the generic upload step
func (s *ScannerService) MergeCSVFiles(ctx context.Context, baseFile, newFile NamedFile) *model.ProcessingResult {
	fileName := fmt.Sprintf("merged_%s_%s", baseFile.Name, newFile.Name)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writeFilePart(writer, "base_file", baseFile); err != nil {
		return s.errorResult(model.TypeMergeCSV, fileName, err.Error())
	}
	if err := writeFilePart(writer, "new_file", newFile); err != nil {
		return s.errorResult(model.TypeMergeCSV, fileName, err.Error())
	}
	if err := writer.Close(); err != nil {
		return s.errorResult(model.TypeMergeCSV, fileName, err.Error())
	}

	endpoint, _ := model.TypeMergeCSV.Endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+endpoint, &buf)
	if err != nil {
		return s.errorResult(model.TypeMergeCSV, fileName, err.Error())
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	s.setAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.Warn(ctx, "merge request failed", "error", err)
		return s.errorResult(model.TypeMergeCSV, fileName, transportErrorMessage(err))
	}
	defer resp.Body.Close()

	var result processResponse
	if err := decodeAPIResponse(resp, &result); err != nil {
		return s.errorResult(model.TypeMergeCSV, fileName, err.Error())
	}

	return s.successResult(model.TypeMergeCSV, fileName, &result)
}

// ProcessFile is the high level entry point: merge requests with two or
// more files go directly to the merge endpoint; everything else uploads
// the first file, reconciles the requested type against the backend's
// file-type hint and triggers processing. It never fails: any error at
// any stage becomes an error-status result.
func (s *ScannerService) ProcessFile(ctx context.Context, ptype model.ProcessingType, files []NamedFile) *model.ProcessingResult {
	if len(files) == 0 {
		return s.errorResult(ptype, "", "No file provided.")
	}

	if ptype == model.TypeMergeCSV && len(files) >= 2 {
		return s.MergeCSVFiles(ctx, files[0], files[1])
	}

	upload, err := s.UploadFile(ctx, files[0])
	if err != nil {
		return s.errorResult(ptype, files[0].Name, err.Error())
	}

	ptype = reconcileType(ptype, upload.FileType)
	return s.ProcessUploadedFile(ctx, upload.FileID, upload.Name(), ptype)
}

// Health checks whether the backend is reachable
func (s *ScannerService) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *ScannerService) successResult(ptype model.ProcessingType, filename string, resp *processResponse) *model.ProcessingResult {
	return &model.ProcessingResult{
		ID:          model.NewResultID(ptype),
		Type:        ptype,
		FileName:    filename,
		Timestamp:   time.Now(),
		Status:      model.StatusSuccess,
		CSVContent:  resp.CSVContent,
		DownloadURL: s.absoluteURL(resp.DownloadURL),
	}
}

func (s *ScannerService) errorResult(ptype model.ProcessingType, filename, message string) *model.ProcessingResult {
	if message == "" {
		message = "An unknown error occurred."
	}
	return &model.ProcessingResult{
		ID:           model.NewResultID(ptype),
		Type:         ptype,
		FileName:     filename,
		Timestamp:    time.Now(),
		Status:       model.StatusError,
		ErrorMessage: message,
	}
}

// setAuthHeader attaches the function key header when a key is configured
func (s *ScannerService) setAuthHeader(req *http.Request) {
	if s.config.APIKey != "" {
		req.Header.Set("x-functions-key", s.config.APIKey)
	}
}

// absoluteURL resolves backend-relative download links against the
// backend root URL
func (s *ScannerService) absoluteURL(u string) string {
	if u == "" || strings.Contains(u, "://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return strings.TrimRight(s.config.RootURL, "/") + u
}

// reconcileType trusts the backend's detected file type over the caller's
// requested processing type when the two disagree
func reconcileType(requested model.ProcessingType, hint string) model.ProcessingType {
	switch strings.ToLower(hint) {
	case "image", "img", "jpg", "jpeg", "png", "bmp", "gif":
		return model.TypeImageToCSV
	case "pdf":
		return model.TypePDFToCSV
	case "csv":
		return model.TypeMergeCSV
	}
	return requested
}

func writeFilePart(writer *multipart.Writer, field string, file NamedFile) error {
	part, err := writer.CreateFormFile(field, file.Name)
	if err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return fmt.Errorf("failed to read file %q: %w", file.Name, err)
	}
	return nil
}

// decodeAPIResponse reads the body and maps backend error payloads and
// non-2xx statuses to errors carrying a user-facing message. The backend
// signals failures with an `error` field that may be a boolean or the
// message itself, alongside an optional `message` field.
func decodeAPIResponse(resp *http.Response, v any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var apiErr struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &apiErr) == nil && errorFieldSet(apiErr.Error) {
		if apiErr.Message != "" {
			return errors.New(apiErr.Message)
		}
		if msg, ok := apiErr.Error.(string); ok && msg != "" {
			return errors.New(msg)
		}
		return errors.New(statusErrorMessage(resp.StatusCode))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if apiErr.Message != "" {
			return errors.New(apiErr.Message)
		}
		return errors.New(statusErrorMessage(resp.StatusCode))
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func errorFieldSet(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		return true
	}
}

func transportErrorMessage(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "The processing is taking too long. Please try again later."
	}
	return "Network error. Please check your connection and try again."
}

func statusErrorMessage(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "Processing service not found. The backend may be unreachable or misconfigured."
	case status >= 500:
		return "The processing service reported a server error. Please try again later."
	case status >= 400:
		return fmt.Sprintf("Request failed with status %d.", status)
	default:
		return "An unknown error occurred."
	}
}

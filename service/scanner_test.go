package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vivekbarnaon/Doc-Scanner/config"
	"github.com/vivekbarnaon/Doc-Scanner/model"
)

func testBackendConfig(url string) *config.BackendConfig {
	return &config.BackendConfig{
		BaseURL:        url,
		RootURL:        url,
		APIKey:         "test-function-key",
		TimeoutSeconds: 5,
	}
}

func TestNewScannerService(t *testing.T) {
	cfg := testBackendConfig("http://localhost:7071")
	svc := NewScannerService(cfg)
	if svc == nil {
		t.Fatal("Expected non-nil service")
	}
	if svc.config != cfg {
		t.Error("Expected config to be set")
	}
	if svc.httpClient == nil {
		t.Error("Expected httpClient to be set")
	}
}

func TestUploadFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/upload" {
			t.Errorf("Expected /api/upload, got %s", r.URL.Path)
		}
		if r.Header.Get("x-functions-key") != "test-function-key" {
			t.Error("Expected x-functions-key header")
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("Expected multipart field 'file': %v", err)
		}
		defer file.Close()
		if header.Filename != "scan.jpg" {
			t.Errorf("Expected filename 'scan.jpg', got '%s'", header.Filename)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"success":           true,
			"file_id":           "abc123.jpg",
			"original_filename": "scan.jpg",
			"file_type":         "image",
		})
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	resp, err := svc.UploadFile(context.Background(), NamedFile{Name: "scan.jpg", Reader: strings.NewReader("img-bytes")})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.FileID != "abc123.jpg" {
		t.Errorf("Expected file id 'abc123.jpg', got '%s'", resp.FileID)
	}
	if resp.Name() != "scan.jpg" {
		t.Errorf("Expected name 'scan.jpg', got '%s'", resp.Name())
	}
	if resp.FileType != "image" {
		t.Errorf("Expected file type 'image', got '%s'", resp.FileType)
	}
}

func TestUploadFileNoAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-functions-key") != "" {
			t.Error("Expected no x-functions-key header when key is unset")
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "file_id": "id-1"})
	}))
	defer server.Close()

	cfg := testBackendConfig(server.URL)
	cfg.APIKey = ""
	svc := NewScannerService(cfg)
	if _, err := svc.UploadFile(context.Background(), NamedFile{Name: "a.csv", Reader: strings.NewReader("x")}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestUploadFileBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   true,
			"message": "No file found in the request.",
		})
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	_, err := svc.UploadFile(context.Background(), NamedFile{Name: "scan.jpg", Reader: strings.NewReader("x")})
	if err == nil {
		t.Fatal("Expected error for backend error payload")
	}
	if err.Error() != "No file found in the request." {
		t.Errorf("Expected backend message, got '%s'", err.Error())
	}
}

func TestUploadFileErrorString(t *testing.T) {
	// Some backend variants put the message in the error field itself
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": "storage unavailable"})
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	_, err := svc.UploadFile(context.Background(), NamedFile{Name: "scan.jpg", Reader: strings.NewReader("x")})
	if err == nil {
		t.Fatal("Expected error")
	}
	if err.Error() != "storage unavailable" {
		t.Errorf("Expected error field message, got '%s'", err.Error())
	}
}

func TestUploadFileNetworkError(t *testing.T) {
	svc := NewScannerService(testBackendConfig("http://invalid-host-that-does-not-exist:9999"))
	_, err := svc.UploadFile(context.Background(), NamedFile{Name: "scan.jpg", Reader: strings.NewReader("x")})
	if err == nil {
		t.Fatal("Expected error for network failure")
	}
	if !strings.Contains(err.Error(), "Network error") {
		t.Errorf("Expected friendly network message, got '%s'", err.Error())
	}
}

func TestProcessUploadedFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/process/image-to-csv" {
			t.Errorf("Expected image endpoint, got %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["file_id"] != "abc123.jpg" {
			t.Errorf("Expected file_id 'abc123.jpg', got '%s'", body["file_id"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"download_url": "/api/download/abc123_processed.csv",
		})
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	result := svc.ProcessUploadedFile(context.Background(), "abc123.jpg", "scan.jpg", model.TypeImageToCSV)

	if result.Status != model.StatusSuccess {
		t.Fatalf("Expected success, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.Type != model.TypeImageToCSV {
		t.Errorf("Expected type imgtocsv, got %s", result.Type)
	}
	if result.FileName != "scan.jpg" {
		t.Errorf("Expected file name 'scan.jpg', got '%s'", result.FileName)
	}
	expected := server.URL + "/api/download/abc123_processed.csv"
	if result.DownloadURL != expected {
		t.Errorf("Expected absolute download URL '%s', got '%s'", expected, result.DownloadURL)
	}
	if result.ID == "" || result.Timestamp.IsZero() {
		t.Error("Expected id and timestamp to be set")
	}
}

func TestProcessUploadedFileBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   true,
			"message": "File with ID 'missing.pdf' not found in storage.",
		})
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	result := svc.ProcessUploadedFile(context.Background(), "missing.pdf", "doc.pdf", model.TypePDFToCSV)

	if result.Status != model.StatusError {
		t.Fatalf("Expected error status, got %s", result.Status)
	}
	if result.ErrorMessage != "File with ID 'missing.pdf' not found in storage." {
		t.Errorf("Expected backend message, got '%s'", result.ErrorMessage)
	}
}

func TestProcessUploadedFileServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	result := svc.ProcessUploadedFile(context.Background(), "f.pdf", "doc.pdf", model.TypePDFToCSV)

	if result.Status != model.StatusError {
		t.Fatalf("Expected error status, got %s", result.Status)
	}
	if !strings.Contains(result.ErrorMessage, "server error") {
		t.Errorf("Expected server error message, got '%s'", result.ErrorMessage)
	}
}

func TestProcessUploadedFileUnknownType(t *testing.T) {
	svc := NewScannerService(testBackendConfig("http://localhost:7071"))
	result := svc.ProcessUploadedFile(context.Background(), "f.docx", "doc.docx", model.ProcessingType("docx"))

	if result.Status != model.StatusError {
		t.Fatalf("Expected error status, got %s", result.Status)
	}
	if result.ErrorMessage == "" {
		t.Error("Expected non-empty error message")
	}
}

func TestProcessUploadedFileNetworkError(t *testing.T) {
	svc := NewScannerService(testBackendConfig("http://invalid-host-that-does-not-exist:9999"))
	result := svc.ProcessUploadedFile(context.Background(), "f.jpg", "scan.jpg", model.TypeImageToCSV)

	if result.Status != model.StatusError {
		t.Fatalf("Expected error status, got %s", result.Status)
	}
	if result.ErrorMessage == "" {
		t.Error("Expected non-empty error message")
	}
}

func TestMergeCSVFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/process/merge-csv" {
			t.Errorf("Expected merge endpoint, got %s", r.URL.Path)
		}
		if _, _, err := r.FormFile("base_file"); err != nil {
			t.Errorf("Expected 'base_file' field: %v", err)
		}
		if _, _, err := r.FormFile("new_file"); err != nil {
			t.Errorf("Expected 'new_file' field: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"download_url": "/api/download/merged_xyz.csv",
		})
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	result := svc.MergeCSVFiles(context.Background(),
		NamedFile{Name: "base.csv", Reader: strings.NewReader("a,b\n1,2")},
		NamedFile{Name: "new.csv", Reader: strings.NewReader("a,b\n3,4")},
	)

	if result.Status != model.StatusSuccess {
		t.Fatalf("Expected success, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.FileName != "merged_base.csv_new.csv" {
		t.Errorf("Expected synthesized merge name, got '%s'", result.FileName)
	}
	if result.Type != model.TypeMergeCSV {
		t.Errorf("Expected mergecsv type, got %s", result.Type)
	}
}

func TestProcessFileNeverFails(t *testing.T) {
	// Upload fails; ProcessFile must still return a uniform error result
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": true, "message": "upload exploded"})
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	result := svc.ProcessFile(context.Background(), model.TypeImageToCSV, []NamedFile{
		{Name: "scan.jpg", Reader: strings.NewReader("x")},
	})

	if result == nil {
		t.Fatal("Expected non-nil result")
	}
	if result.Status != model.StatusError {
		t.Fatalf("Expected error status, got %s", result.Status)
	}
	if result.ErrorMessage != "upload exploded" {
		t.Errorf("Expected upload error message, got '%s'", result.ErrorMessage)
	}
}

func TestProcessFileNoFiles(t *testing.T) {
	svc := NewScannerService(testBackendConfig("http://localhost:7071"))
	result := svc.ProcessFile(context.Background(), model.TypePDFToCSV, nil)

	if result.Status != model.StatusError {
		t.Fatalf("Expected error status, got %s", result.Status)
	}
	if result.ErrorMessage == "" {
		t.Error("Expected non-empty error message")
	}
}

func TestProcessFileTypeAutoCorrection(t *testing.T) {
	// Caller asks for image processing but the backend detects a PDF:
	// the PDF endpoint must be called
	var processedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/upload":
			json.NewEncoder(w).Encode(map[string]any{
				"success":           true,
				"file_id":           "f1.pdf",
				"original_filename": "report.pdf",
				"file_type":         "pdf",
			})
		default:
			processedPath = r.URL.Path
			json.NewEncoder(w).Encode(map[string]any{
				"success":      true,
				"download_url": "/api/download/f1_processed.csv",
			})
		}
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	result := svc.ProcessFile(context.Background(), model.TypeImageToCSV, []NamedFile{
		{Name: "report.pdf", Reader: strings.NewReader("%PDF-")},
	})

	if result.Status != model.StatusSuccess {
		t.Fatalf("Expected success, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if processedPath != "/api/process/pdf-to-csv" {
		t.Errorf("Expected PDF endpoint after auto-correction, got '%s'", processedPath)
	}
	if result.Type != model.TypePDFToCSV {
		t.Errorf("Expected corrected type pdfcsv, got %s", result.Type)
	}
}

func TestProcessFileMergeTwoFiles(t *testing.T) {
	uploadCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/upload" {
			uploadCalled = true
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"download_url": "/api/download/merged.csv",
		})
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	result := svc.ProcessFile(context.Background(), model.TypeMergeCSV, []NamedFile{
		{Name: "base.csv", Reader: strings.NewReader("a\n1")},
		{Name: "new.csv", Reader: strings.NewReader("a\n2")},
	})

	if result.Status != model.StatusSuccess {
		t.Fatalf("Expected success, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if uploadCalled {
		t.Error("Expected merge to bypass the generic upload step")
	}
}

func TestProcessFileMergeSingleFileFallback(t *testing.T) {
	// With a single file in merge mode the workflow falls back to the
	// upload+process path instead of rejecting
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/upload" {
			json.NewEncoder(w).Encode(map[string]any{
				"success": true, "file_id": "one.csv", "original_filename": "one.csv", "file_type": "csv",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "download_url": "/api/download/m.csv"})
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	result := svc.ProcessFile(context.Background(), model.TypeMergeCSV, []NamedFile{
		{Name: "one.csv", Reader: strings.NewReader("a\n1")},
	})

	if result.Status != model.StatusSuccess {
		t.Fatalf("Expected success, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if len(paths) != 2 || paths[0] != "/api/upload" || paths[1] != "/api/process/merge-csv" {
		t.Errorf("Expected upload then merge, got %v", paths)
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("Expected /api/health, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	if err := svc.Health(context.Background()); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestHealthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewScannerService(testBackendConfig(server.URL))
	if err := svc.Health(context.Background()); err == nil {
		t.Error("Expected error for unhealthy backend")
	}
}

func TestReconcileType(t *testing.T) {
	cases := []struct {
		requested model.ProcessingType
		hint      string
		expected  model.ProcessingType
	}{
		{model.TypeImageToCSV, "pdf", model.TypePDFToCSV},
		{model.TypePDFToCSV, "image", model.TypeImageToCSV},
		{model.TypeImageToCSV, "csv", model.TypeMergeCSV},
		{model.TypeImageToCSV, "", model.TypeImageToCSV},
		{model.TypePDFToCSV, "weird", model.TypePDFToCSV},
		{model.TypeImageToCSV, "JPEG", model.TypeImageToCSV},
	}

	for _, tc := range cases {
		got := reconcileType(tc.requested, tc.hint)
		if got != tc.expected {
			t.Errorf("reconcileType(%s, %q): expected %s, got %s", tc.requested, tc.hint, tc.expected, got)
		}
	}
}

func TestAbsoluteURL(t *testing.T) {
	svc := NewScannerService(&config.BackendConfig{
		BaseURL: "http://localhost:7071",
		RootURL: "http://localhost:7071/",
	})

	cases := map[string]string{
		"":                          "",
		"/api/download/a.csv":       "http://localhost:7071/api/download/a.csv",
		"api/download/a.csv":        "http://localhost:7071/api/download/a.csv",
		"https://cdn.example/a.csv": "https://cdn.example/a.csv",
	}

	for input, expected := range cases {
		if got := svc.absoluteURL(input); got != expected {
			t.Errorf("absoluteURL(%q): expected %q, got %q", input, expected, got)
		}
	}
}

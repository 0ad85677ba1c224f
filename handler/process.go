package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vivekbarnaon/Doc-Scanner/model"
	"github.com/vivekbarnaon/Doc-Scanner/service"
)

// allowedExtensions are the upload formats the backend pipelines accept
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
	".csv":  true,
}

type ProcessHandler struct {
	workflow       *service.Workflow
	preview        *service.PreviewService
	scanner        *service.ScannerService
	maxUploadBytes int64
}

func NewProcessHandler(workflow *service.Workflow, preview *service.PreviewService, scanner *service.ScannerService, maxUploadBytes int64) *ProcessHandler {
	return &ProcessHandler{
		workflow:       workflow,
		preview:        preview,
		scanner:        scanner,
		maxUploadBytes: maxUploadBytes,
	}
}

// Process runs one upload-and-process operation for the type in the URL.
// The response is always a ProcessingResult: backend and transport
// failures arrive as status=error results with HTTP 200, because the
// operation itself completed. Only caller mistakes (bad type, no files,
// type already busy) get error statuses.
func (h *ProcessHandler) Process(c *gin.Context) {
	ptype := model.ProcessingType(c.Param("type"))
	if !ptype.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown processing type '%s'", ptype)})
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	form, err := c.MultipartForm()
	if err != nil {
		status := http.StatusBadRequest
		if errors.As(err, new(*http.MaxBytesError)) || strings.Contains(err.Error(), "request body too large") {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": "Invalid upload: " + err.Error()})
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}

	files := make([]service.NamedFile, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, header := range headers {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !allowedExtensions[ext] {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unsupported file format '%s'. Allowed: jpg, jpeg, png, pdf, csv", ext)})
			return
		}

		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
			return
		}
		opened = append(opened, f)
		files = append(files, service.NamedFile{Name: header.Filename, Reader: f})
	}

	result, err := h.workflow.Process(c.Request.Context(), ptype, files)
	if err != nil {
		if errors.Is(err, service.ErrTypeBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": "An operation of this type is already in progress. Please wait for it to finish."})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Status returns the per-type busy flags
func (h *ProcessHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"busy": h.workflow.Busy()})
}

// Results returns this session's results, most recent first
func (h *ProcessHandler) Results(c *gin.Context) {
	results := h.workflow.Results()
	if results == nil {
		results = []model.ProcessingResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Preview returns the bounded header+rows preview for a result. Preview
// failures are scoped here and never touch the stored result.
func (h *ProcessHandler) Preview(c *gin.Context) {
	id := c.Param("id")

	result, ok := h.workflow.FindResult(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Result not found"})
		return
	}
	if result.Status != model.StatusSuccess {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No preview available for a failed operation"})
		return
	}

	content, err := h.preview.FetchPreview(c.Request.Context(), result)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, content)
}

// Download hands out the result CSV: inline content is served directly
// with a generated filename, otherwise the client is redirected to the
// backend's download link.
func (h *ProcessHandler) Download(c *gin.Context) {
	id := c.Param("id")

	result, ok := h.workflow.FindResult(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Result not found"})
		return
	}

	if result.CSVContent != "" {
		name := downloadName(result)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, "text/csv", []byte(result.CSVContent))
		return
	}
	if result.DownloadURL != "" {
		c.Redirect(http.StatusFound, result.DownloadURL)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "No downloadable output for this result"})
}

// Health reports liveness and whether the processing backend is reachable
func (h *ProcessHandler) Health(c *gin.Context) {
	if err := h.scanner.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "degraded",
			"backend": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": "reachable"})
}

// downloadName builds the suggested filename for a served CSV
func downloadName(result *model.ProcessingResult) string {
	base := strings.TrimSuffix(result.FileName, filepath.Ext(result.FileName))
	if base == "" {
		base = "output"
	}
	return fmt.Sprintf("%s_%s_%d.csv", result.Type, base, result.Timestamp.Unix())
}

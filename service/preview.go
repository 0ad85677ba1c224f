package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vivekbarnaon/Doc-Scanner/model"
)

// maxPreviewRows bounds how many data rows a preview shows
const maxPreviewRows = 10

// ParseCSVPreview converts raw CSV text into a bounded header+rows
// structure for display. It intentionally splits on newlines and commas
// without quote-aware escaping: the preview is a best-effort first look
// at the data, not an RFC 4180 parse.
func ParseCSVPreview(text string) model.PreviewContent {
	content := model.PreviewContent{Headers: []string{}, Rows: [][]string{}}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return content
	}

	content.Headers = splitPreviewFields(lines[0])

	end := len(lines)
	if end > maxPreviewRows+1 {
		end = maxPreviewRows + 1
	}
	for _, line := range lines[1:end] {
		content.Rows = append(content.Rows, splitPreviewFields(line))
	}
	return content
}

func splitPreviewFields(line string) []string {
	parts := strings.Split(line, ",")
	fields := make([]string, len(parts))
	for i, part := range parts {
		fields[i] = strings.ReplaceAll(strings.TrimSpace(part), `"`, "")
	}
	return fields
}

// PreviewService builds previews for processing results, fetching the
// result CSV over HTTP when only a download link is stored
type PreviewService struct {
	httpClient *http.Client
}

func NewPreviewService() *PreviewService {
	return &PreviewService{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchPreview returns the preview for a result. Inline CSV content
// (legacy results) is used directly; otherwise the download URL is
// fetched. Failures here are scoped to the preview and never affect the
// stored result.
func (s *PreviewService) FetchPreview(ctx context.Context, result *model.ProcessingResult) (model.PreviewContent, error) {
	if result.CSVContent != "" {
		return ParseCSVPreview(result.CSVContent), nil
	}
	if result.DownloadURL == "" {
		return model.PreviewContent{}, fmt.Errorf("download URL not available")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.DownloadURL, nil)
	if err != nil {
		return model.PreviewContent{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.PreviewContent{}, fmt.Errorf("could not load preview data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.PreviewContent{}, fmt.Errorf("could not load preview data: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.PreviewContent{}, fmt.Errorf("could not read preview data: %w", err)
	}

	return ParseCSVPreview(string(body)), nil
}

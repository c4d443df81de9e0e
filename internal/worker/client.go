// Package worker implements the claimed-job processing step (C8): it
// calls the analyzer over HTTP, transitions the job through its terminal
// states, and raises the completion notification. Grounded on
// original_source threat-service/app/analysis/services/analysis_service.py
// (the HTTP client: multipart upload, content-type-from-extension, first
// 500 chars of an error body) and analysis_processing_service.py (the
// process() orchestration: not-found/skipped/claim/log/image-check/call/
// fail/success/notify flow).
package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"
)

// AnalyzerError wraps a failed call to the analyzer service, carrying the
// message the job's error_message column records.
type AnalyzerError struct {
	Message string
}

func (e *AnalyzerError) Error() string { return e.Message }

// AnalyzerClient calls the analyzer's threat-model analysis endpoint.
type AnalyzerClient struct {
	baseURL string
	http    *http.Client
}

// NewAnalyzerClient builds a client with the original's 300-second timeout.
func NewAnalyzerClient(baseURL string) *AnalyzerClient {
	return &AnalyzerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 300 * time.Second},
	}
}

// Endpoint is the analyzer path this client posts images to.
func (c *AnalyzerClient) Endpoint() string {
	return c.baseURL + "/api/v1/threat-model/analyze"
}

func contentTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Analyze posts imageBytes (named imageFilename) to the analyzer and
// returns the raw JSON response body. Non-2xx responses and any transport
// failure are surfaced as *AnalyzerError with the original's message
// shapes preserved ("threat-analyzer HTTP error: ..." / "threat-analyzer
// request failed: ...").
func (c *AnalyzerClient) Analyze(ctx context.Context, imageBytes []byte, imageFilename string) ([]byte, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, imageFilename))
	header.Set("Content-Type", contentTypeForPath(imageFilename))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, &AnalyzerError{Message: fmt.Sprintf("threat-analyzer request failed: %s", err)}
	}
	if _, err := part.Write(imageBytes); err != nil {
		return nil, &AnalyzerError{Message: fmt.Sprintf("threat-analyzer request failed: %s", err)}
	}
	if err := mw.Close(); err != nil {
		return nil, &AnalyzerError{Message: fmt.Sprintf("threat-analyzer request failed: %s", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), body)
	if err != nil {
		return nil, &AnalyzerError{Message: fmt.Sprintf("threat-analyzer request failed: %s", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &AnalyzerError{Message: fmt.Sprintf("threat-analyzer request failed: %s", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AnalyzerError{Message: fmt.Sprintf("threat-analyzer request failed: %s", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(respBody)
		if len(detail) > 500 {
			detail = detail[:500]
		}
		return nil, &AnalyzerError{Message: fmt.Sprintf("threat-analyzer HTTP error: %d - %s", resp.StatusCode, detail)}
	}
	return respBody, nil
}

// Package ingest submits downloaded documents to the processing
// pipeline's intake endpoint.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Document carries the classification metadata submitted alongside the
// file content.
type Document struct {
	TenantID    string   `json:"tenant_id"`
	Filename    string   `json:"filename"`
	RemotePath  string   `json:"remote_path"`
	SystemPath  string   `json:"system_path"`
	Directories []string `json:"directories"`
	DocType     string   `json:"doc_type"`
	SystemTag   string   `json:"system_tag"`
	MimeType    string   `json:"mime_type,omitempty"`
	Source      string   `json:"source"`
}

// Sink accepts a document for processing and returns the id the
// pipeline assigned to it.
type Sink interface {
	Ingest(ctx context.Context, content []byte, doc Document) (docID string, err error)
}

// RejectedError indicates the pipeline refused the document. Rejections
// are permanent for the submitted content; the sync engine records them
// per file instead of retrying.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("document rejected (%d): %s", e.StatusCode, e.Message)
}

// HTTPSink posts documents to the intake endpoint as multipart uploads
// authenticated with a shared-salt tenant signature.
type HTTPSink struct {
	url        string
	tenantSalt string
	httpClient *http.Client
}

// NewHTTPSink creates a sink for the given intake URL.
func NewHTTPSink(url, tenantSalt string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPSink{
		url:        url,
		tenantSalt: tenantSalt,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Ingest uploads the document. 4xx responses map to RejectedError,
// everything else is returned as a transient failure.
func (s *HTTPSink) Ingest(ctx context.Context, content []byte, doc Document) (string, error) {
	doc.Source = "onedrive"

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", doc.Filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("failed to write file content: %w", err)
	}

	meta, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := writer.WriteField("data", string(meta)); err != nil {
		return "", fmt.Errorf("failed to write metadata field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Tenant-ID", doc.TenantID)
	req.Header.Set("X-Tenant-Signature", signTenant(doc.TenantID, s.tenantSalt))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("intake request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result struct {
			DocID string `json:"doc_id"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil {
			return "", fmt.Errorf("failed to decode intake response: %w", err)
		}
		return result.DocID, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", &RejectedError{StatusCode: resp.StatusCode, Message: string(respBody)}
	default:
		return "", fmt.Errorf("intake error %d: %s", resp.StatusCode, string(respBody))
	}
}

// signTenant derives the request signature the intake endpoint expects.
func signTenant(tenantID, salt string) string {
	sum := sha256.Sum256([]byte(tenantID + salt))
	return hex.EncodeToString(sum[:])
}

// Package graph is a Microsoft Graph drive client scoped to the
// operations the sync engine needs: folder listing, content download
// and a drive provisioning probe.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vesseldocs/drivesync/internal/storage"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// TokenProvider supplies a valid bearer token per request so the client
// transparently benefits from refresh.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Options tunes the client. Zero values fall back to sane defaults.
type Options struct {
	BaseURL           string
	Timeout           time.Duration // metadata requests
	DownloadTimeout   time.Duration // content downloads
	RequestsPerSecond float64
	MaxRetries        int
}

// Client calls the Graph drive endpoints for a single account.
type Client struct {
	baseURL        string
	tokens         TokenProvider
	httpClient     *http.Client
	downloadClient *http.Client
	limiter        *rate.Limiter
	maxRetries     int
}

// NewClient creates a Graph client backed by the given token provider.
func NewClient(tokens TokenProvider, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 5 * time.Minute
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 8
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		tokens:         tokens,
		httpClient:     &http.Client{Timeout: opts.Timeout},
		downloadClient: &http.Client{Timeout: opts.DownloadTimeout},
		limiter:        rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		maxRetries:     opts.MaxRetries,
	}
}

type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	ETag                 string    `json:"eTag"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// List returns the immediate children of a folder, following
// @odata.nextLink pagination until exhausted. An empty path or "/"
// addresses the drive root.
func (c *Client) List(ctx context.Context, path string) ([]storage.FileInfo, error) {
	endpoint, err := c.childrenURL(path)
	if err != nil {
		return nil, err
	}

	var files []storage.FileInfo
	for endpoint != "" {
		var page childrenPage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			files = append(files, toFileInfo(path, item))
		}
		endpoint = page.NextLink
	}
	return files, nil
}

func toFileInfo(parentPath string, item driveItem) storage.FileInfo {
	info := storage.FileInfo{
		ID:          item.ID,
		Name:        item.Name,
		Path:        joinDrivePath(parentPath, item.Name),
		IsDir:       item.Folder != nil,
		Size:        item.Size,
		Fingerprint: item.ETag,
		ModifiedAt:  item.LastModifiedDateTime,
	}
	if item.File != nil {
		info.MimeType = item.File.MimeType
	}
	return info
}

func joinDrivePath(parent, name string) string {
	parent = strings.Trim(parent, "/")
	if parent == "" {
		return "/" + name
	}
	return "/" + parent + "/" + name
}

// childrenURL builds the children endpoint for a drive-relative path,
// rejecting traversal segments before anything hits the wire.
func (c *Client) childrenURL(path string) (string, error) {
	cleaned := strings.Trim(path, "/")
	if cleaned == "" {
		return c.baseURL + "/me/drive/root/children", nil
	}

	segments := strings.Split(cleaned, "/")
	escaped := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return "", &Error{Kind: KindInvalid, Message: fmt.Sprintf("invalid path segment in %q", path)}
		}
		escaped = append(escaped, url.PathEscape(seg))
	}

	return fmt.Sprintf("%s/me/drive/root:/%s:/children", c.baseURL, strings.Join(escaped, "/")), nil
}

// Download streams the content of a drive item. The caller must close
// the returned reader.
func (c *Client) Download(ctx context.Context, itemID string) (io.ReadCloser, error) {
	if itemID == "" {
		return nil, &Error{Kind: KindInvalid, Message: "empty item id"}
	}
	endpoint := fmt.Sprintf("%s/me/drive/items/%s/content", c.baseURL, url.PathEscape(itemID))

	resp, err := c.do(ctx, c.downloadClient, endpoint)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CheckProvisioned probes /me/drive. OneDrive for Business drives are
// provisioned lazily; a 404 here means the user never opened OneDrive.
func (c *Client) CheckProvisioned(ctx context.Context) error {
	var probe struct {
		ID string `json:"id"`
	}
	return c.getJSON(ctx, c.baseURL+"/me/drive", &probe)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.do(ctx, c.httpClient, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode graph response: %w", err)
	}
	return nil
}

// do issues a GET with rate limiting and bounded retries for throttling
// and transient server errors. On success the caller owns the body.
func (c *Client) do(ctx context.Context, client *http.Client, endpoint string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &Error{Kind: KindUnavailable, Message: err.Error()}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := classify(resp)
		resp.Body.Close()

		switch apiErr.Kind {
		case KindRateLimited:
			wait := retryAfter(resp)
			log.Printf("[graph] throttled, waiting %s before retry", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			lastErr = apiErr
		case KindUnavailable:
			lastErr = apiErr
		default:
			return nil, apiErr
		}
	}

	return nil, lastErr
}

func classify(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := graphErrorMessage(body)

	e := &Error{StatusCode: resp.StatusCode, Message: msg}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.Kind = KindUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		e.Kind = KindNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	default:
		e.Kind = KindUnavailable
	}
	return e
}

func graphErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		return fmt.Sprintf("%s: %s", payload.Error.Code, payload.Error.Message)
	}
	return strings.TrimSpace(string(body))
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 2 * time.Second
}

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/assetsync/internal/hasher"
)

// maxErrorBody caps how much of an error response is kept in a StatusError
const maxErrorBody = 512

// HTTPIndex implements Index against the asset backend's HTTP API
type HTTPIndex struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// HTTPOption configures an HTTPIndex
type HTTPOption func(*HTTPIndex)

// WithHTTPClient configures the HTTP client used for requests
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(i *HTTPIndex) {
		i.client = client
	}
}

// WithLogger configures the logger for non-fatal failures
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(i *HTTPIndex) {
		i.logger = logger
	}
}

// NewHTTPIndex creates an index for the backend at baseURL
func NewHTTPIndex(baseURL string, opts ...HTTPOption) (*HTTPIndex, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}

	i := &HTTPIndex{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Exists asks the backend whether it holds the hash. 200 means present and
// 404 means absent; anything else is an error.
func (i *HTTPIndex) Exists(ctx context.Context, hash string) (bool, error) {
	if !hasher.Valid(hash) {
		return false, fmt.Errorf("%w: bad content hash %q", ErrInvalidUpload, hash)
	}

	endpoint := i.baseURL + "/check-asset?" + url.Values{"hash": {hash}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return false, &UnreachableError{Op: "check-asset", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return true, nil
	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return false, nil
	default:
		return false, statusError("check-asset", resp)
	}
}

// Store posts the asset bytes with its metadata in headers. The backend must
// answer with a JSON acknowledgement for the upload to count.
func (i *HTTPIndex) Store(ctx context.Context, upload Upload) error {
	if err := upload.validate(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+"/asset", bytes.NewReader(upload.Data))
	if err != nil {
		return err
	}
	meta := upload.Metadata
	req.Header.Set("content-type", upload.ContentType)
	req.Header.Set("file-name", headerValue(meta.Name))
	req.Header.Set("width", strconv.Itoa(meta.Width))
	req.Header.Set("height", strconv.Itoa(meta.Height))
	req.Header.Set("hash", meta.Hash)
	if meta.Location != "" {
		req.Header.Set("location", headerValue(meta.Location))
	}
	if !meta.CreatedAt.IsZero() {
		req.Header.Set("created-at", meta.CreatedAt.UTC().Format(time.RFC3339))
	}
	if len(meta.Properties) > 0 {
		props, err := json.Marshal(meta.Properties)
		if err != nil {
			return fmt.Errorf("failed to encode properties: %w", err)
		}
		req.Header.Set("properties", string(props))
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return &UnreachableError{Op: "asset", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("asset", resp)
	}

	var ack map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return &StatusError{Op: "asset", Code: resp.StatusCode, Body: "response is not a JSON acknowledgement"}
	}

	if len(upload.Thumbnail) > 0 {
		if err := i.storeThumbnail(ctx, meta.Hash, upload.Thumbnail); err != nil {
			i.logger.Warn("thumbnail upload failed", "hash", meta.Hash, "error", err)
		}
	}
	return nil
}

func (i *HTTPIndex) storeThumbnail(ctx context.Context, hash string, thumb []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+"/asset/thumbnail", bytes.NewReader(thumb))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "image/jpeg")
	req.Header.Set("hash", hash)

	resp, err := i.client.Do(req)
	if err != nil {
		return &UnreachableError{Op: "asset/thumbnail", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("asset/thumbnail", resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

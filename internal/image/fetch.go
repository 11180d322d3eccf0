package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultConcurrency = 3
	DefaultTimeout     = 10 * time.Second
	DefaultMaxBytes    = 20 << 20
	defaultMimeType    = "image/png"
)

// ImageResult contains a fetched image and its declared type.
type ImageResult struct {
	Data     []byte
	MimeType string
}

// ErrFetchTimeout is returned (wrapped) when a fetch exceeds its timeout.
var ErrFetchTimeout = errors.New("image fetch timed out")

// ErrBodyTooLarge is wrapped in a NetworkError when a body exceeds the size limit.
var ErrBodyTooLarge = errors.New("image body exceeds size limit")

// HTTPError reports a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

// NetworkError reports any transport failure other than a timeout.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FetcherConfig configures a Fetcher. Zero values select defaults.
type FetcherConfig struct {
	Client       *http.Client
	AllowedHosts []string // nil uses DefaultAllowedHosts
	MaxBytes     int64
	Cache        *Cache // optional, owned by the caller
	Logger       *slog.Logger
	UserAgent    string
}

// Fetcher downloads images referenced in model output.
type Fetcher struct {
	client    *http.Client
	validator *Validator
	maxBytes  int64
	cache     *Cache
	logger    *slog.Logger
	userAgent string
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		client:    cfg.Client,
		validator: NewValidator(cfg.AllowedHosts),
		maxBytes:  cfg.MaxBytes,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		userAgent: cfg.UserAgent,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.userAgent == "" {
		f.userAgent = "gemchat"
	}
	return f
}

// Fetch issues a GET for rawURL bounded by timeout and reads the whole body.
// Errors are ErrFetchTimeout (wrapped), *HTTPError or *NetworkError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*ImageResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, classifyFetchError(ctx, rawURL, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &NetworkError{URL: rawURL, Err: ErrBodyTooLarge}
	}

	return &ImageResult{Data: data, MimeType: contentType(resp.Header.Get("Content-Type"))}, nil
}

func classifyFetchError(ctx context.Context, rawURL string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrFetchTimeout, rawURL)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrFetchTimeout, rawURL)
	}
	return &NetworkError{URL: rawURL, Err: err}
}

// contentType strips parameters from a Content-Type header value.
func contentType(header string) string {
	if strings.TrimSpace(header) == "" {
		return defaultMimeType
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil || mediaType == "" {
		return defaultMimeType
	}
	return mediaType
}

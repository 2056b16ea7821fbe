package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/pkg/version"
)

const (
	// DefaultDownloadTimeout bounds a single feed fetch end to end.
	DefaultDownloadTimeout = 300 * time.Second

	// DefaultMaxFeedSize is the payload cap in bytes.
	DefaultMaxFeedSize = 500 * 1024 * 1024

	downloadChunkSize = 32 * 1024
)

// Downloader fetches feed payloads over HTTP. Size is enforced twice:
// against the declared Content-Length before reading and against the
// actual byte count while streaming, since suppliers routinely omit or
// misreport the header. Each feed host gets a circuit breaker so a dead
// host is rejected up front instead of eating the full timeout on every
// attempt.
type Downloader struct {
	client  *http.Client
	logger  *slog.Logger
	maxSize int64

	mu       sync.Mutex
	breakers map[string]*verrors.CircuitBreaker
}

// NewDownloader returns a downloader with the given timeout and size
// cap. Zero values fall back to the defaults.
func NewDownloader(logger *slog.Logger, timeout time.Duration, maxSize int64) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFeedSize
	}
	return &Downloader{
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		maxSize:  maxSize,
		breakers: make(map[string]*verrors.CircuitBreaker),
	}
}

// breaker returns the circuit breaker for a feed host, creating it on
// first use.
func (d *Downloader) breaker(host string) *verrors.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.breakers[host]
	if !ok {
		cb = verrors.NewCircuitBreaker(host)
		d.breakers[host] = cb
	}
	return cb
}

// Download fetches the feed at rawURL and returns its bytes. Non-200
// responses and oversized payloads are rejected. Only transport
// failures, timeouts and HTTP 5xx count toward the host's circuit
// breaker; a 404 or an oversized feed is deterministic and retrying it
// elsewhere would fail the same way.
func (d *Downloader) Download(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "http" && u.Scheme != "https" {
		return nil, verrors.FeedError(verrors.ErrCodeFeedDownload,
			fmt.Sprintf("invalid feed url: %s", rawURL), err)
	}

	cb := d.breaker(u.Host)
	if !cb.Allow() {
		return nil, verrors.FeedError(verrors.ErrCodeFeedDownload,
			fmt.Sprintf("feed host %s is failing, retry later", u.Host), verrors.ErrCircuitOpen)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, verrors.FeedError(verrors.ErrCodeFeedDownload, "failed to build request", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		cb.RecordFailure()
		if isTimeout(err) {
			return nil, verrors.FeedError(verrors.ErrCodeFeedTimeout,
				fmt.Sprintf("feed download timed out after %s", d.client.Timeout), err)
		}
		return nil, verrors.FeedError(verrors.ErrCodeFeedDownload, "feed download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= http.StatusInternalServerError {
			cb.RecordFailure()
		}
		return nil, verrors.FeedError(verrors.ErrCodeFeedDownload,
			fmt.Sprintf("feed download failed: HTTP %d", resp.StatusCode), nil)
	}

	if resp.ContentLength > d.maxSize {
		return nil, verrors.FeedError(verrors.ErrCodeFeedTooLarge,
			fmt.Sprintf("feed too large: %d bytes (limit %d)", resp.ContentLength, d.maxSize), nil)
	}

	body, err := d.readCapped(ctx, resp.Body, resp.ContentLength)
	if err != nil {
		return nil, err
	}
	cb.RecordSuccess()

	d.logger.Info("feed downloaded",
		"url", rawURL,
		"bytes", len(body),
		"took_ms", time.Since(start).Milliseconds())
	return body, nil
}

// readCapped streams the body in chunks, failing as soon as the size
// cap is crossed rather than after buffering the whole payload.
func (d *Downloader) readCapped(ctx context.Context, body io.Reader, hint int64) ([]byte, error) {
	var buf bytes.Buffer
	if hint > 0 && hint <= d.maxSize {
		buf.Grow(int(hint))
	}

	chunk := make([]byte, downloadChunkSize)
	var total int64
	for {
		select {
		case <-ctx.Done():
			return nil, verrors.FeedError(verrors.ErrCodeFeedTimeout, "feed download cancelled", ctx.Err())
		default:
		}

		n, err := body.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > d.maxSize {
				return nil, verrors.FeedError(verrors.ErrCodeFeedTooLarge,
					fmt.Sprintf("feed too large: exceeded %d bytes", d.maxSize), nil)
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if isTimeout(err) {
				return nil, verrors.FeedError(verrors.ErrCodeFeedTimeout, "feed download timed out", err)
			}
			return nil, verrors.FeedError(verrors.ErrCodeFeedDownload, "failed to read feed body", err)
		}
	}
	return buf.Bytes(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr interface{ Timeout() bool }
	return errors.As(err, &nerr) && nerr.Timeout()
}

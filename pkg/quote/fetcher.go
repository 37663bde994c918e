package quote

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/alim08/landing/pkg/metrics"
)

const (
	// DefaultBaseURL is the quote history page, templated with ?code=.
	DefaultBaseURL = "https://kabutan.jp/stock/kabuka"
	DefaultTimeout = 10 * time.Second

	userAgent   = "Mozilla/5.0 (compatible; landing-quote/1.0)"
	maxBodySize = 4 << 20
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=quote_test -destination=mock_http_client_test.go -source=fetcher.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher performs the single upstream GET for a ticker code.
type Fetcher struct {
	baseURL string
	client  HTTPClient
	timeout time.Duration
}

// Fetch returns the page body for code. It never retries.
func (f *Fetcher) Fetch(ctx context.Context, code string) (body string, err error) {
	start := time.Now()
	defer func() {
		metrics.QuoteFetchDuration.WithLabelValues(metrics.Status(err)).Observe(time.Since(start).Seconds())
	}()

	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", &NetworkFailure{Code: code, Err: fmt.Errorf("invalid base url: %w", err)}
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &NetworkFailure{Code: code, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &NetworkFailure{Code: code, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return "", &NetworkFailure{Code: code, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", &NetworkFailure{Code: code, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(data), nil
}

// newHTTPClient is shared by every fetch of a Service so connections pool.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   20,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

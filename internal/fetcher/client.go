package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/corpix/uarand"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
)

// maxBodyBytes caps how much of a response body is parsed.
const maxBodyBytes = 5 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func (f *Fetcher) userAgent() string {
	if f.cfg.RotateUA || f.cfg.UserAgent == "" {
		return uarand.GetRandom()
	}
	return f.cfg.UserAgent
}

// getDocument performs one GET, waiting on the rate limiter first. Client
// errors are permanent; 429 and 5xx are retryable.
func (f *Fetcher) getDocument(ctx context.Context, url string) (*goquery.Document, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Permanent(domerrors.NewFetchError(url, 0, err))
	}
	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domerrors.NewFetchError(url, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, domerrors.NewFetchError(url, resp.StatusCode, errors.New("rate limited"))
		case resp.StatusCode >= 500:
			return nil, domerrors.NewFetchError(url, resp.StatusCode, errors.New("server error"))
		default:
			return nil, Permanent(domerrors.NewFetchError(url, resp.StatusCode, errors.New("unexpected status (not retrying)")))
		}
	}

	reader := decodeCharset(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, Permanent(domerrors.NewFetchError(url, resp.StatusCode, fmt.Errorf("parse html: %w", err)))
	}
	return doc, nil
}

// decodeCharset wraps r with a decoder for the charset named in
// contentType. Unknown or UTF-8 charsets pass through.
func decodeCharset(r io.Reader, contentType string) io.Reader {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return r
	}
	name := strings.ToLower(strings.TrimSpace(params["charset"]))
	if name == "" || name == "utf-8" || name == "utf8" {
		return r
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return r
	}
	return transform.NewReader(r, enc.NewDecoder())
}

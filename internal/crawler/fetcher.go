package crawler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// FetcherConfig controls the Colly collector behind CollyFetcher.
type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyFetcher implements Fetcher on top of a Colly collector. Each
// Fetch clones the base collector so hooks stay per-request.
type CollyFetcher struct {
	cfg  FetcherConfig
	base *colly.Collector
}

// NewCollyFetcher builds a single-URL fetcher.
func NewCollyFetcher(cfg FetcherConfig) *CollyFetcher {
	// colly v2.1.0's Async option ignores its argument and always enables
	// async mode; rely on the synchronous default instead.
	c := colly.NewCollector()
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &CollyFetcher{cfg: cfg, base: c}
}

// Fetch retrieves one page. A response whose body carries a ban
// signature returns ErrBlocked.
func (f *CollyFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	var (
		result   Page
		fetchErr error
	)
	start := time.Now()

	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = Page{
			URL:        url,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
			result.Body = append([]byte(nil), r.Body...)
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if blocked := banSignature(result.Body); blocked != "" {
			return Page{}, fmt.Errorf("%w: matched %q", ErrBlocked, blocked)
		}
		if err != nil {
			return Page{}, fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return Page{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		return result, nil
	}
}

// banSignature returns the matched block phrase, or "" if none.
func banSignature(body []byte) string {
	s := string(body)
	for _, sig := range []string{ipBlockSignature, autoTrafficSigOne, autoTrafficSigTwo} {
		if strings.Contains(s, sig) {
			return sig
		}
	}
	return ""
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Package crawler fetches raw source pages for providers that publish
// no structured feed. It runs a bounded worker pool over a shared URL
// map, appends every fetched page to an on-disk cache so interrupted
// crawls resume, and aborts the whole crawl when a ban signature shows
// up in a response body.
package crawler

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle of one URL within a crawl.
type State string

// Per-URL states.
const (
	StatePending    State = "pending"
	StateFetching   State = "fetching"
	StateFetched    State = "fetched"
	StateRedirected State = "redirected"
	StateFailed     State = "failed"
)

// ErrBlocked means a response body carried a ban signature. The crawl
// must stop entirely; continuing would deepen the block.
var ErrBlocked = errors.New("crawl blocked by remote site")

// Ban signatures. Matching is on literal body content.
const (
	ipBlockSignature  = "This IP has been automatically blocked"
	autoTrafficSigOne = "to automated requests from a computer virus or spyware"
	autoTrafficSigTwo = "sorry.google.com/sorry/"
)

// Page is one fetched page.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Discoverer extracts further URLs to crawl from a fetched page.
type Discoverer interface {
	Discover(pageURL string, body []byte) []string
}

// Config controls a crawl session.
type Config struct {
	Workers        int
	FetchAttempts  int
	RetryDelay     time.Duration
	QueueDepth     int
	RatePerSecond  float64
	PollInterval   time.Duration
	QuiescentPolls int
	CachePath      string
}

// Defaults mirror the batch tool's historical behavior.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.FetchAttempts <= 0 {
		c.FetchAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 4096
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.QuiescentPolls <= 0 {
		c.QuiescentPolls = 100
	}
	return c
}

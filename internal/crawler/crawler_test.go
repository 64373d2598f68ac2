package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeFetcher serves canned bodies and counts fetches per URL.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     map[string]int
	pages     map[string]string
	redirects map[string]string
	err       error
	delay     time.Duration
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (Page, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return Page{}, f.err
	}
	if target, ok := f.redirects[url]; ok {
		return Page{URL: url, FinalURL: target, StatusCode: 200,
			Body: []byte(f.pages[target])}, nil
	}
	body, ok := f.pages[url]
	if !ok {
		return Page{}, fmt.Errorf("no such page %s", url)
	}
	return Page{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// fakeDiscoverer returns a fixed link set per page URL.
type fakeDiscoverer struct {
	links map[string][]string
}

func (d *fakeDiscoverer) Discover(pageURL string, _ []byte) []string {
	return d.links[pageURL]
}

func testConfig(cachePath string) Config {
	return Config{
		Workers:        2,
		FetchAttempts:  3,
		RetryDelay:     time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		QuiescentPolls: 3,
		CachePath:      cachePath,
	}
}

func TestCrawlDeduplicatesSeeds(t *testing.T) {
	t.Parallel()

	cachePath := filepath.Join(t.TempDir(), "pages.txt")
	const u = "http://boards.example.org/vol/1.html"
	fetcher := &fakeFetcher{pages: map[string]string{u: "<html>posting one</html>"}}
	c := New(testConfig(cachePath), fetcher, nil, zap.NewNop())

	pages, err := c.Run(context.Background(), []string{u, u, u})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, 1, fetcher.count(u), "duplicate seeds must fetch once")
	require.Equal(t, StateFetched, c.StateOf(u))

	raw, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 1, "one fetch, one cache line")
}

func TestCrawlFollowsDiscoveredLinks(t *testing.T) {
	t.Parallel()

	const (
		index = "http://boards.example.org/index.html"
		one   = "http://boards.example.org/vol/1.html"
		two   = "http://boards.example.org/vol/2.html"
	)
	fetcher := &fakeFetcher{pages: map[string]string{
		index: "listing", one: "first", two: "second",
	}}
	disc := &fakeDiscoverer{links: map[string][]string{
		index: {one, two, one},
	}}
	c := New(testConfig(""), fetcher, disc, zap.NewNop())

	pages, err := c.Run(context.Background(), []string{index})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	require.Equal(t, "first", pages[one])
	require.Equal(t, 1, fetcher.count(one), "rediscovered links must not refetch")
	require.Equal(t, 3, fetcher.total())
}

func TestCrawlResumesFromCache(t *testing.T) {
	t.Parallel()

	const (
		cached = "http://boards.example.org/vol/1.html"
		fresh  = "http://boards.example.org/vol/2.html"
	)
	cachePath := filepath.Join(t.TempDir(), "pages.txt")
	require.NoError(t, os.WriteFile(cachePath,
		[]byte(cached+cacheSep+"cached body\n"), 0o600))

	fetcher := &fakeFetcher{pages: map[string]string{fresh: "fresh body"}}
	c := New(testConfig(cachePath), fetcher, nil, zap.NewNop())

	pages, err := c.Run(context.Background(), []string{cached, fresh})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, "cached body", pages[cached])
	require.Equal(t, 0, fetcher.count(cached), "cached pages must not refetch")
	require.Equal(t, 1, fetcher.count(fresh))
}

func TestCrawlEnqueuesRedirectTarget(t *testing.T) {
	t.Parallel()

	const (
		moved  = "http://boards.example.org/vol/old.html"
		target = "http://boards.example.org/vol/new.html"
	)
	fetcher := &fakeFetcher{
		pages:     map[string]string{target: "moved posting"},
		redirects: map[string]string{moved: target},
	}
	c := New(testConfig(""), fetcher, nil, zap.NewNop())

	pages, err := c.Run(context.Background(), []string{moved})
	require.NoError(t, err)
	require.Equal(t, StateRedirected, c.StateOf(moved))
	require.Equal(t, StateFetched, c.StateOf(target))
	require.Equal(t, "moved posting", pages[target])
}

func TestCrawlAbortsWhenBlocked(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: fmt.Errorf("fetch: %w", ErrBlocked)}
	c := New(testConfig(""), fetcher, nil, zap.NewNop())

	_, err := c.Run(context.Background(), []string{"http://boards.example.org/index.html"})
	require.ErrorIs(t, err, ErrBlocked)
}

func TestCrawlMarksFailedAfterRetries(t *testing.T) {
	t.Parallel()

	const u = "http://boards.example.org/vol/9.html"
	fetcher := &fakeFetcher{err: errors.New("connection reset")}
	c := New(testConfig(""), fetcher, nil, zap.NewNop())

	pages, err := c.Run(context.Background(), []string{u})
	require.NoError(t, err)
	require.Empty(t, pages)
	require.Equal(t, StateFailed, c.StateOf(u))
	require.Equal(t, 3, fetcher.count(u))
}

func TestParseCacheLine(t *testing.T) {
	t.Parallel()

	url, page, ok := ParseCacheLine("http://x/vol/1.html-Q-<html>body</html>")
	require.True(t, ok)
	require.Equal(t, "http://x/vol/1.html", url)
	require.Equal(t, "<html>body</html>", page)

	_, _, ok = ParseCacheLine("no separator here")
	require.False(t, ok)
	_, _, ok = ParseCacheLine("-Q-content without url")
	require.False(t, ok)
}

func TestPageCacheRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pages.txt")
	cache, err := OpenPageCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Append("http://x/vol/1.html", []byte("line one\nline two\r\nline three")))
	require.NoError(t, cache.Append("http://x/vol/2.html", []byte("solo")))
	require.NoError(t, cache.Close())

	pages, err := LoadPageCache(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, "line one line two line three", pages["http://x/vol/1.html"])
}

func TestLoadPageCacheSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pages.txt")
	content := "http://x/vol/1.html-Q-good\n" +
		"garbage without separator\n" +
		"http://x/vol/2.html-Q-also good\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	pages, err := LoadPageCache(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
}

func TestLoadPageCacheMissingFile(t *testing.T) {
	t.Parallel()

	pages, err := LoadPageCache(filepath.Join(t.TempDir(), "absent.txt"))
	require.NoError(t, err)
	require.Empty(t, pages)
}

func TestListingDiscoverer(t *testing.T) {
	t.Parallel()

	body := `<html><body>
<a href="/vol/101.html">Beach cleanup</a>
<a href="/vol/102.html">Tutoring</a>
<a href="/vol/101.html">Beach cleanup again</a>
<a href="index2.html">next page</a>
<a href="http://other.example.com/vol/999.html">offsite</a>
<a href="/about.html">about</a>
</body></html>`

	d := &ListingDiscoverer{Logger: zap.NewNop()}
	links := d.Discover("http://boards.example.org/index.html", []byte(body))
	require.Equal(t, []string{
		"http://boards.example.org/vol/101.html",
		"http://boards.example.org/vol/102.html",
		"http://boards.example.org/index2.html",
	}, links)
}

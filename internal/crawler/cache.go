package crawler

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// cacheSep separates the URL from the page body in a cache line.
const cacheSep = "-Q-"

var newlineRe = regexp.MustCompile(`\r?\n|\r`)

// PageCache is the append-only on-disk store of fetched pages. One
// line per page: url-Q-pageContentWithNewlinesCollapsed. A single
// process owns the file at a time.
type PageCache struct {
	mu   sync.Mutex
	path string
	fh   *os.File
}

// OpenPageCache opens (creating if needed) the cache file for appends.
func OpenPageCache(path string) (*PageCache, error) {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open page cache %s: %w", path, err)
	}
	return &PageCache{path: path, fh: fh}, nil
}

// Append records one fetched page. Newlines in the body are collapsed
// to spaces so the page stays on one line.
func (c *PageCache) Append(url string, body []byte) error {
	line := url + cacheSep + newlineRe.ReplaceAllString(string(body), " ") + "\n"
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.fh.WriteString(line); err != nil {
		return fmt.Errorf("append page cache: %w", err)
	}
	return nil
}

// Close releases the cache file.
func (c *PageCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fh.Close()
}

// ParseCacheLine splits one cache line into URL and page content.
func ParseCacheLine(line string) (url, page string, ok bool) {
	idx := strings.Index(line, cacheSep)
	if idx <= 0 {
		return "", "", false
	}
	return line[:idx], line[idx+len(cacheSep):], true
}

// LoadPageCache reads a cache file into a URL-to-content map.
// Unparseable lines are skipped, not fatal. A missing file is an empty
// cache.
func LoadPageCache(path string) (map[string]string, error) {
	pages := make(map[string]string)
	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pages, nil
		}
		return nil, fmt.Errorf("load page cache %s: %w", path, err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		url, page, ok := ParseCacheLine(scanner.Text())
		if !ok {
			continue
		}
		pages[url] = page
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan page cache %s: %w", path, err)
	}
	return pages, nil
}

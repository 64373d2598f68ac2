// Package linkcheck verifies that opportunity detail URLs still
// resolve. Results persist as one small file per URL so repeated runs
// only re-check links whose trust window has lapsed.
package linkcheck

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Outcome classifies one link check.
type Outcome string

const (
	// OutcomeGood: the URL answered with an acceptable status.
	OutcomeGood Outcome = "checked-good"
	// OutcomeMaybe: ambiguous, a 404 from a domain known to return
	// spurious ones. Not marked bad.
	OutcomeMaybe Outcome = "checked-maybe"
	// OutcomeBad: confirmed dead or unreachable.
	OutcomeBad Outcome = "bad"
	// OutcomeUnchecked: the domain rejects HEAD probes, nothing can
	// be verified.
	OutcomeUnchecked Outcome = "unchecked-error"
)

const (
	seenDir = "links"
	badDir  = "bad-links"

	// trustWindow is how long a prior check is trusted before the URL
	// is probed again. Each URL additionally gets a deterministic
	// jitter within ±jitterRange so links first checked in the same
	// run don't all expire at once.
	trustWindow = 6 * 24 * time.Hour
	jitterRange = 2 * 24 * time.Hour

	userAgent = "Mozilla/4.0 (compatible; MSIE 5.5; Windows NT)"
)

// unverifiableDomains reject HEAD requests or sit behind auth walls;
// checking them only produces noise.
var unverifiableDomains = []string{
	"volunteermatch.org",
	"truist.com",
}

// flakyDomains intermittently 404 on URLs that load fine in a browser.
// A 404 from one of these is ambiguous, not proof of a dead link.
var flakyDomains = []string{
	"craigslist.org",
}

// Config controls a Checker.
type Config struct {
	// Dir is the cache root; the seen and bad stores live under it.
	Dir     string
	Timeout time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

// Checker performs cached link validation.
type Checker struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// Open prepares the cache directories and returns a Checker.
func Open(cfg Config, logger *zap.Logger) (*Checker, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	for _, d := range []string{seenDir, badDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, d), 0o700); err != nil {
			return nil, fmt.Errorf("prepare link cache: %w", err)
		}
	}
	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			// Redirect statuses classify the link; never follow.
			return http.ErrUseLastResponse
		},
	}
	return &Checker{cfg: cfg, http: client, logger: logger}, nil
}

// Close is part of the open/close lifecycle; the checker holds no
// persistent handles.
func (c *Checker) Close() error { return nil }

// fileName keys the per-URL cache entries.
func fileName(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:]) + ".url"
}

// jitterFor spreads each URL's expiry deterministically within
// ±jitterRange, derived from the URL hash.
func jitterFor(url string) time.Duration {
	sum := md5.Sum([]byte(url))
	n := binary.BigEndian.Uint64(sum[:8])
	span := int64(2 * jitterRange)
	return time.Duration(int64(n%uint64(span))) - jitterRange
}

func domainMatches(url string, domains []string) bool {
	lower := strings.ToLower(url)
	for _, d := range domains {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// Check validates one URL, trusting a recent prior answer unless force
// is set. The network is only touched on a stale or missing record.
func (c *Checker) Check(ctx context.Context, url string, force bool) Outcome {
	if url == "" {
		return OutcomeBad
	}
	if domainMatches(url, unverifiableDomains) {
		return OutcomeUnchecked
	}

	name := fileName(url)
	seenPath := filepath.Join(c.cfg.Dir, seenDir, name)
	badPath := filepath.Join(c.cfg.Dir, badDir, name)

	window := trustWindow + jitterFor(url)
	if age, ok := c.fileAge(seenPath); ok {
		wasBad := exists(badPath)
		if age <= window && !force {
			if wasBad {
				return OutcomeBad
			}
			return OutcomeGood
		}
		// Stale or forced: drop both records and re-check. A bad link
		// that recovered loses its bad marker here.
		os.Remove(seenPath)
		os.Remove(badPath)
	}

	outcome, detail := c.probe(ctx, url)

	if err := os.WriteFile(seenPath, []byte(url+"\n"), 0o600); err != nil {
		c.logger.Error("link cache write failed", zap.Error(err))
	}
	if outcome == OutcomeBad {
		record := detail + "\t" + url + "\n"
		if err := os.WriteFile(badPath, []byte(record), 0o600); err != nil {
			c.logger.Error("bad-link cache write failed", zap.Error(err))
		}
	}
	return outcome
}

// IsKnownBad reports whether the URL currently has a bad marker,
// without any network activity.
func (c *Checker) IsKnownBad(url string) bool {
	if url == "" {
		return true
	}
	return exists(filepath.Join(c.cfg.Dir, badDir, fileName(url)))
}

// probe performs the actual HEAD request and classifies the response.
func (c *Checker) probe(ctx context.Context, url string) (Outcome, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return OutcomeBad, "bad url"
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("link probe failed", zap.String("url", url), zap.Error(err))
		return OutcomeBad, "connect failure"
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusMovedPermanently, http.StatusFound:
		return OutcomeGood, fmt.Sprint(resp.StatusCode)
	case http.StatusNotFound:
		if domainMatches(url, flakyDomains) {
			return OutcomeMaybe, fmt.Sprint(resp.StatusCode)
		}
	}
	return OutcomeBad, fmt.Sprint(resp.StatusCode)
}

func (c *Checker) fileAge(path string) (time.Duration, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return c.cfg.Now().Sub(info.ModTime()), true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/allforgood/datahub/internal/metrics"
)

// Crawler drives a bounded pool of fetch workers over a shared URL
// set. URLs already present in the page cache are never refetched.
type Crawler struct {
	cfg     Config
	fetcher Fetcher
	disc    Discoverer
	logger  *zap.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	pages  map[string]string
	states map[string]State

	tasks  chan string
	cancel context.CancelFunc

	blockedMu sync.Mutex
	blocked   error

	cache *PageCache
}

// New builds a Crawler. The discoverer may be nil for crawls over a
// fixed seed list.
func New(cfg Config, fetcher Fetcher, disc Discoverer, logger *zap.Logger) *Crawler {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		disc:    disc,
		logger:  logger,
		limiter: limiter,
		pages:   make(map[string]string),
		states:  make(map[string]State),
		tasks:   make(chan string, cfg.QueueDepth),
	}
}

// Run crawls from the seed URLs until the worker pool goes quiescent,
// the context is canceled, or a ban signature aborts the crawl. The
// fetched pages (including pages restored from the cache) are
// returned keyed by URL.
func (c *Crawler) Run(ctx context.Context, seeds []string) (map[string]string, error) {
	if c.cfg.CachePath != "" {
		cached, err := LoadPageCache(c.cfg.CachePath)
		if err != nil {
			return nil, err
		}
		for url, page := range cached {
			c.pages[url] = page
			c.states[url] = StateFetched
		}
		if len(cached) > 0 {
			c.logger.Info("resumed from page cache",
				zap.Int("pages", len(cached)),
				zap.String("path", c.cfg.CachePath))
		}
		cache, err := OpenPageCache(c.cfg.CachePath)
		if err != nil {
			return nil, err
		}
		c.cache = cache
		defer c.cache.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	for _, seed := range seeds {
		c.enqueue(seed)
	}

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(ctx)
		}()
	}

	c.monitor(ctx)
	cancel()
	wg.Wait()

	if err := c.blockedErr(); err != nil {
		return c.snapshot(), err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return c.snapshot(), err
	}
	return c.snapshot(), nil
}

// enqueue adds a URL once. Already-seen URLs and a full queue are both
// silently dropped; a full queue means the page turns up again via
// discovery on a later poll or a rerun.
func (c *Crawler) enqueue(url string) {
	c.mu.Lock()
	if _, seen := c.states[url]; seen {
		c.mu.Unlock()
		return
	}
	c.states[url] = StatePending
	c.mu.Unlock()

	select {
	case c.tasks <- url:
	default:
		c.mu.Lock()
		delete(c.states, url)
		c.mu.Unlock()
		c.logger.Warn("task queue full, dropping url", zap.String("url", url))
	}
}

func (c *Crawler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case url := <-c.tasks:
			c.crawlOne(ctx, url)
		}
	}
}

func (c *Crawler) crawlOne(ctx context.Context, url string) {
	c.setState(url, StateFetching)

	page, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		if errors.Is(err, ErrBlocked) {
			c.abort(err)
			return
		}
		if ctx.Err() != nil {
			c.setState(url, StatePending)
			return
		}
		c.logger.Warn("fetch failed", zap.String("url", url), zap.Error(err))
		c.setState(url, StateFailed)
		return
	}

	state := StateFetched
	if page.FinalURL != "" && page.FinalURL != url {
		state = StateRedirected
	}

	c.mu.Lock()
	c.pages[url] = string(page.Body)
	c.states[url] = state
	c.mu.Unlock()
	metrics.CrawlPages.Inc()

	if state == StateRedirected {
		// The target gets its own entry in the page map.
		c.enqueue(page.FinalURL)
	}

	if c.cache != nil {
		if err := c.cache.Append(url, page.Body); err != nil {
			c.logger.Error("page cache write failed", zap.Error(err))
		}
	}

	if c.disc != nil {
		for _, next := range c.disc.Discover(url, page.Body) {
			c.enqueue(next)
		}
	}
}

func (c *Crawler) fetchWithRetry(ctx context.Context, url string) (Page, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.FetchAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Page{}, err
			}
		}
		page, err := c.fetcher.Fetch(ctx, url)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, ErrBlocked) || ctx.Err() != nil {
			return Page{}, err
		}
		lastErr = err
		metrics.CrawlRetries.Inc()
		if attempt < c.cfg.FetchAttempts {
			select {
			case <-ctx.Done():
				return Page{}, ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}
	}
	return Page{}, fmt.Errorf("giving up after %d attempts: %w", c.cfg.FetchAttempts, lastErr)
}

// monitor polls crawl progress, logging throughput, and returns when
// the page count stops growing for QuiescentPolls consecutive polls.
func (c *Crawler) monitor(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	start := time.Now()
	lastCount := c.pageCount()
	quiet := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		count := c.pageCount()
		elapsed := time.Since(start).Seconds()
		rate := 0.0
		if elapsed > 0 {
			rate = float64(count) / elapsed
		}
		c.logger.Info("crawl progress",
			zap.Int("pages", count),
			zap.Int("pending", len(c.tasks)),
			zap.Float64("pages_per_sec", rate))

		if count == lastCount {
			quiet++
			if quiet >= c.cfg.QuiescentPolls {
				c.logger.Info("crawl quiescent, stopping",
					zap.Int("pages", count),
					zap.Int("polls", quiet))
				return
			}
		} else {
			quiet = 0
			lastCount = count
		}
		if c.blockedErr() != nil {
			return
		}
	}
}

func (c *Crawler) abort(err error) {
	c.blockedMu.Lock()
	if c.blocked == nil {
		c.blocked = err
		c.logger.Error("crawl aborted", zap.Error(err))
	}
	c.blockedMu.Unlock()
	c.cancel()
}

func (c *Crawler) blockedErr() error {
	c.blockedMu.Lock()
	defer c.blockedMu.Unlock()
	return c.blocked
}

func (c *Crawler) setState(url string, s State) {
	c.mu.Lock()
	c.states[url] = s
	c.mu.Unlock()
}

func (c *Crawler) pageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

func (c *Crawler) snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.pages))
	for url, page := range c.pages {
		out[url] = page
	}
	return out
}

// StateOf reports the recorded state of a URL, or StatePending if it
// was never seen.
func (c *Crawler) StateOf(url string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[url]; ok {
		return s
	}
	return StatePending
}

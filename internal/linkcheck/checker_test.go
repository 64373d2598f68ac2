package linkcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestChecker(t *testing.T, now func() time.Time) *Checker {
	t.Helper()
	c, err := Open(Config{Dir: t.TempDir(), Now: now}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func countingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestCheckGoodAndCached(t *testing.T) {
	t.Parallel()

	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		require.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	})
	c := openTestChecker(t, nil)

	require.Equal(t, OutcomeGood, c.Check(context.Background(), srv.URL+"/page", false))
	require.Equal(t, int64(1), hits.Load())

	// Within the trust window: no network.
	require.Equal(t, OutcomeGood, c.Check(context.Background(), srv.URL+"/page", false))
	require.Equal(t, int64(1), hits.Load())
}

func TestCheckRedirectIsGood(t *testing.T) {
	t.Parallel()

	srv, hits := countingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusMovedPermanently)
	})
	c := openTestChecker(t, nil)

	require.Equal(t, OutcomeGood, c.Check(context.Background(), srv.URL+"/moved", false))
	require.Equal(t, int64(1), hits.Load(), "redirects are classified, not followed")
}

func TestCheckBadRecordsDetail(t *testing.T) {
	t.Parallel()

	srv, _ := countingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	dir := t.TempDir()
	c, err := Open(Config{Dir: dir}, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	url := srv.URL + "/gone"
	require.Equal(t, OutcomeBad, c.Check(context.Background(), url, false))
	require.True(t, c.IsKnownBad(url))

	raw, err := os.ReadFile(filepath.Join(dir, badDir, fileName(url)))
	require.NoError(t, err)
	require.Equal(t, "410\t"+url+"\n", string(raw))

	// The cached answer stays bad without another probe.
	require.Equal(t, OutcomeBad, c.Check(context.Background(), url, false))
}

func TestCheckConnectFailureIsBad(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL + "/dead"
	srv.Close()

	c := openTestChecker(t, nil)
	require.Equal(t, OutcomeBad, c.Check(context.Background(), url, false))

	raw, err := os.ReadFile(filepath.Join(c.cfg.Dir, badDir, fileName(url)))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "connect failure\t"))
}

func TestCheckFlakyNotFoundIsMaybe(t *testing.T) {
	t.Parallel()

	srv, _ := countingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := openTestChecker(t, nil)

	flaky := srv.URL + "/craigslist.org/vol/123.html"
	require.Equal(t, OutcomeMaybe, c.Check(context.Background(), flaky, false))
	require.False(t, c.IsKnownBad(flaky))

	plain := srv.URL + "/somewhere/else.html"
	require.Equal(t, OutcomeBad, c.Check(context.Background(), plain, false))
}

func TestCheckUnverifiableDomainSkipsNetwork(t *testing.T) {
	t.Parallel()

	c := openTestChecker(t, nil)
	// No server behind this URL; the allowlist must short-circuit.
	out := c.Check(context.Background(), "http://www.volunteermatch.org/opp/1", false)
	require.Equal(t, OutcomeUnchecked, out)
}

func TestCheckEmptyURLIsBad(t *testing.T) {
	t.Parallel()

	c := openTestChecker(t, nil)
	require.Equal(t, OutcomeBad, c.Check(context.Background(), "", false))
	require.True(t, c.IsKnownBad(""))
}

func TestCheckForceReprobes(t *testing.T) {
	t.Parallel()

	srv, hits := countingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c := openTestChecker(t, nil)

	url := srv.URL + "/page"
	require.Equal(t, OutcomeGood, c.Check(context.Background(), url, false))
	require.Equal(t, OutcomeGood, c.Check(context.Background(), url, true))
	require.Equal(t, int64(2), hits.Load())
}

func TestCheckStaleRecordReprobed(t *testing.T) {
	t.Parallel()

	var status atomic.Int64
	status.Store(http.StatusGone)
	srv, hits := countingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	})

	// Ten days from now is past any jittered trust window.
	future := time.Now().Add(10 * 24 * time.Hour)
	c := openTestChecker(t, func() time.Time { return future })

	url := srv.URL + "/flapping"
	require.Equal(t, OutcomeBad, c.Check(context.Background(), url, false))
	require.True(t, c.IsKnownBad(url))

	// The link recovers; the stale record expires and the bad marker
	// goes away with it.
	status.Store(http.StatusOK)
	require.Equal(t, OutcomeGood, c.Check(context.Background(), url, false))
	require.False(t, c.IsKnownBad(url))
	require.Equal(t, int64(2), hits.Load())
}

func TestJitterDeterministicAndBounded(t *testing.T) {
	t.Parallel()

	urls := []string{
		"http://example.org/a",
		"http://example.org/b",
		"http://example.org/c",
	}
	for _, u := range urls {
		j := jitterFor(u)
		require.Equal(t, j, jitterFor(u))
		require.GreaterOrEqual(t, j, -jitterRange)
		require.Less(t, j, jitterRange)
	}
}

func TestFileNameStable(t *testing.T) {
	t.Parallel()

	name := fileName("http://example.org/vol/1.html")
	require.True(t, strings.HasSuffix(name, ".url"))
	require.Len(t, name, 32+len(".url"))
	require.Equal(t, name, fileName("http://example.org/vol/1.html"))
	require.NotEqual(t, name, fileName("http://example.org/vol/2.html"))
}

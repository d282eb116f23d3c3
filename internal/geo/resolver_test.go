package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"netglobe/internal/logging"
	"netglobe/internal/models"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func successBody(addr string) string {
	return fmt.Sprintf(`{"status":"success","country":"United States","countryCode":"US","city":"Mountain View","lat":"37.4056","lon":-122.0775,"isp":"Google LLC","query":%q}`, addr)
}

type fakeAPI struct {
	srv      *httptest.Server
	requests atomic.Int64
	agents   sync.Map
}

func newFakeAPI(t *testing.T, h func(n int64, addr string, w http.ResponseWriter, r *http.Request)) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := f.requests.Add(1)
		f.agents.Store(r.UserAgent(), true)
		h(n, strings.TrimPrefix(r.URL.Path, "/json/"), w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) baseURL() string { return f.srv.URL + "/json" }

func testResolver(t *testing.T, api *fakeAPI, mod func(*Config)) *Resolver {
	t.Helper()
	cfg := Config{
		BaseURL:        api.baseURL(),
		UserAgent:      UserAgent("test"),
		Timeout:        2 * time.Second,
		MaxConcurrent:  2,
		MaxRetries:     3,
		RetryBaseDelay: 10 * time.Millisecond,
		Logger:         logging.Discard(),
	}
	if mod != nil {
		mod(&cfg)
	}
	r := New(cfg)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestResolveCachesSuccess(t *testing.T) {
	api := newFakeAPI(t, func(_ int64, addr string, w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, successBody(addr))
	})
	r := testResolver(t, api, nil)

	loc, err := r.Resolve(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, loc.Status)
	assert.Equal(t, "Mountain View", loc.City)
	assert.InDelta(t, 37.4056, loc.Lat, 1e-9)
	assert.InDelta(t, -122.0775, loc.Lon, 1e-9)

	again, err := r.Resolve(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, loc, again)
	assert.Equal(t, int64(1), api.requests.Load())

	_, ok := api.agents.Load("netglobe/test (+connection-geolocation)")
	assert.True(t, ok)

	s := r.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, 1, s.CacheSize)
}

func TestResolveCoalescesConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	api := newFakeAPI(t, func(_ int64, addr string, w http.ResponseWriter, _ *http.Request) {
		<-release
		fmt.Fprint(w, successBody(addr))
	})
	r := testResolver(t, api, nil)

	var wg sync.WaitGroup
	results := make([]models.Location, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loc, err := r.Resolve(context.Background(), "1.2.3.4")
			assert.NoError(t, err)
			results[i] = loc
		}(i)
	}

	require.Eventually(t, func() bool { return r.Stats().Misses == 5 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	for _, loc := range results {
		assert.True(t, loc.OK())
	}
	assert.Equal(t, int64(1), api.requests.Load())
	assert.Equal(t, uint64(4), r.Stats().Coalesced)
}

func TestResolveRetriesWithBackoff(t *testing.T) {
	api := newFakeAPI(t, func(n int64, addr string, w http.ResponseWriter, _ *http.Request) {
		if n <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, successBody(addr))
	})
	base := 20 * time.Millisecond
	r := testResolver(t, api, func(c *Config) { c.RetryBaseDelay = base })

	start := time.Now()
	loc, err := r.Resolve(context.Background(), "1.1.1.1")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, loc.OK())
	assert.Equal(t, int64(4), api.requests.Load())
	assert.GreaterOrEqual(t, elapsed, base*(1+2+4))

	_, cached := r.Cached("1.1.1.1")
	assert.True(t, cached)
	assert.Equal(t, uint64(3), r.Stats().Retries)
}

func TestResolveTerminalFailureAfterRetries(t *testing.T) {
	api := newFakeAPI(t, func(_ int64, _ string, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r := testResolver(t, api, nil)

	loc, err := r.Resolve(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFail, loc.Status)
	assert.Contains(t, loc.Error, "503")
	assert.Zero(t, loc.Lat)
	assert.Zero(t, loc.Lon)
	assert.Equal(t, int64(4), api.requests.Load())

	_, cached := r.Cached("8.8.8.8")
	assert.False(t, cached)
	assert.Equal(t, uint64(1), r.Stats().Failures)

	// not cached, so a later call goes upstream again
	_, err = r.Resolve(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, int64(8), api.requests.Load())
}

func TestResolveCachesFailuresWhenEnabled(t *testing.T) {
	api := newFakeAPI(t, func(_ int64, _ string, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	r := testResolver(t, api, func(c *Config) {
		c.MaxRetries = 0
		c.CacheFailures = true
	})

	first, err := r.Resolve(context.Background(), "9.9.9.9")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "9.9.9.9")
	require.NoError(t, err)

	assert.Equal(t, models.StatusFail, second.Status)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), api.requests.Load())
}

func TestUpstreamFailIsTerminal(t *testing.T) {
	api := newFakeAPI(t, func(_ int64, addr string, w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"status":"fail","message":"reserved range","query":%q}`, addr)
	})
	r := testResolver(t, api, nil)

	loc, err := r.Resolve(context.Background(), "198.51.100.1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFail, loc.Status)
	assert.Equal(t, "reserved range", loc.Error)
	assert.Equal(t, int64(1), api.requests.Load())
}

func TestInvalidPayloadIsRetried(t *testing.T) {
	api := newFakeAPI(t, func(n int64, addr string, w http.ResponseWriter, _ *http.Request) {
		if n == 1 {
			fmt.Fprint(w, `{"status":"success","lat":"north","lon":1}`)
			return
		}
		fmt.Fprint(w, successBody(addr))
	})
	r := testResolver(t, api, nil)

	loc, err := r.Resolve(context.Background(), "4.4.4.4")
	require.NoError(t, err)
	assert.True(t, loc.OK())
	assert.Equal(t, int64(2), api.requests.Load())
}

func TestResolveInvalidAddress(t *testing.T) {
	api := newFakeAPI(t, func(_ int64, _ string, w http.ResponseWriter, _ *http.Request) {})
	r := testResolver(t, api, nil)

	_, err := r.Resolve(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Zero(t, api.requests.Load())
}

func TestResolveManyKeepsOrder(t *testing.T) {
	api := newFakeAPI(t, func(_ int64, addr string, w http.ResponseWriter, _ *http.Request) {
		if addr == "1.0.0.1" {
			time.Sleep(50 * time.Millisecond)
		}
		if addr == "5.5.5.5" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"status":"success","city":%q,"lat":1,"lon":2}`, addr)
	})
	r := testResolver(t, api, func(c *Config) {
		c.MaxConcurrent = 4
		c.MaxRetries = 0
	})

	addrs := []string{"1.0.0.1", "5.5.5.5", "", "2.0.0.2"}
	out := r.ResolveMany(context.Background(), addrs)
	require.Len(t, out, 4)
	assert.Equal(t, "1.0.0.1", out[0].City)
	assert.Equal(t, models.StatusFail, out[1].Status)
	assert.Equal(t, models.StatusFail, out[2].Status)
	assert.Equal(t, "2.0.0.2", out[3].City)
}

func TestMaxConcurrentBound(t *testing.T) {
	var cur, peak atomic.Int64
	api := newFakeAPI(t, func(_ int64, addr string, w http.ResponseWriter, _ *http.Request) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		cur.Add(-1)
		fmt.Fprint(w, successBody(addr))
	})
	r := testResolver(t, api, func(c *Config) { c.MaxConcurrent = 2 })

	addrs := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4", "5.5.5.5", "6.6.6.6"}
	for _, loc := range r.ResolveMany(context.Background(), addrs) {
		assert.True(t, loc.OK())
	}
	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Equal(t, int64(6), api.requests.Load())
}

func TestRateLimitSpacing(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	api := newFakeAPI(t, func(_ int64, addr string, w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		fmt.Fprint(w, successBody(addr))
	})
	delay := 40 * time.Millisecond
	r := testResolver(t, api, func(c *Config) {
		c.MaxConcurrent = 3
		c.RateLimitDelay = delay
	})

	r.ResolveMany(context.Background(), []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), delay-5*time.Millisecond)
	}
}

func TestCacheExpiry(t *testing.T) {
	api := newFakeAPI(t, func(_ int64, addr string, w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, successBody(addr))
	})
	clk := clock.NewMock()
	r := testResolver(t, api, func(c *Config) {
		c.Clock = clk
		c.CacheDuration = time.Minute
		c.MaxRetries = 0
	})

	_, err := r.Resolve(context.Background(), "8.8.4.4")
	require.NoError(t, err)

	clk.Add(time.Minute)
	_, ok := r.Cached("8.8.4.4")
	assert.True(t, ok)
	assert.Equal(t, 0, r.EvictExpired())

	clk.Add(time.Second)
	assert.Equal(t, 1, r.EvictExpired())
	assert.Empty(t, r.Entries())

	_, err = r.Resolve(context.Background(), "8.8.4.4")
	require.NoError(t, err)
	assert.Equal(t, int64(2), api.requests.Load())
}

func TestPersistRoundTrip(t *testing.T) {
	api := newFakeAPI(t, func(_ int64, addr string, w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, successBody(addr))
	})
	path := filepath.Join(t.TempDir(), "geo-cache.json")

	first := New(Config{BaseURL: api.baseURL(), Store: NewJSONStore(path), Logger: logging.Discard()})
	loc, err := first.Resolve(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	before := first.Entries()
	require.NoError(t, first.Close())

	second := New(Config{BaseURL: api.baseURL(), Store: NewJSONStore(path), Logger: logging.Discard()})
	defer second.Close()

	assert.Equal(t, before, second.Entries())
	again, err := second.Resolve(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, loc, again)
	assert.Equal(t, int64(1), api.requests.Load())
}

func TestStaleEntriesDroppedOnLoad(t *testing.T) {
	clk := clock.NewMock()
	clk.Add(48 * time.Hour)
	path := filepath.Join(t.TempDir(), "geo-cache.json")
	store := NewJSONStore(path)
	require.NoError(t, store.Replace(map[string]Entry{
		"1.1.1.1": newEntry(models.Location{Status: models.StatusSuccess, City: "fresh"}, clk.Now().Add(-time.Hour)),
		"2.2.2.2": newEntry(models.Location{Status: models.StatusSuccess, City: "stale"}, clk.Now().Add(-25*time.Hour)),
	}))

	r := New(Config{Store: NewJSONStore(path), Clock: clk, Logger: logging.Discard()})
	defer r.Close()

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "1.1.1.1", entries[0].Address)
}

func TestUnreadableCacheStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo-cache.json")
	require.NoError(t, writeFileAtomic(path, []byte("{not json")))

	r := New(Config{Store: NewJSONStore(path), Logger: logging.Discard()})
	defer r.Close()
	assert.Empty(t, r.Entries())
}

func TestClearEmptiesStore(t *testing.T) {
	api := newFakeAPI(t, func(_ int64, addr string, w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, successBody(addr))
	})
	path := filepath.Join(t.TempDir(), "geo-cache.json")
	store := NewJSONStore(path)
	r := testResolver(t, api, func(c *Config) { c.Store = store })

	_, err := r.Resolve(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	require.NoError(t, r.Flush())

	loaded, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	require.NoError(t, r.Clear())
	loaded, err = NewJSONStore(path).Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
	assert.Zero(t, r.Stats().CacheSize)
}

func TestCloseReleasesWaiters(t *testing.T) {
	api := newFakeAPI(t, func(_ int64, _ string, _ http.ResponseWriter, req *http.Request) {
		<-req.Context().Done()
	})
	r := New(Config{BaseURL: api.baseURL(), Timeout: 10 * time.Second, Logger: logging.Discard()})

	done := make(chan models.Location, 1)
	go func() {
		loc, _ := r.Resolve(context.Background(), "8.8.8.8")
		done <- loc
	}()

	require.Eventually(t, func() bool { return r.Stats().InFlight == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Close())

	select {
	case loc := <-done:
		assert.Equal(t, models.StatusFail, loc.Status)
		assert.Equal(t, ErrClosed.Error(), loc.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter not released")
	}

	_, err := r.Resolve(context.Background(), "1.1.1.1")
	assert.ErrorIs(t, err, ErrClosed)
}

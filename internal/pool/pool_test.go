package pool

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterFactory hands out increasing ints and counts calls.
func counterFactory(calls *atomic.Int64) Factory[int] {
	return func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}
}

func testConfig(maxConns int) Config {
	cfg := DefaultConfig()
	cfg.MaxConnections = maxConns
	cfg.MinConnections = 0
	cfg.ConnectionTimeout = time.Second
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero max", func(c *Config) { c.MaxConnections = 0 }},
		{"min above max", func(c *Config) { c.MinConnections = c.MaxConnections + 1 }},
		{"negative timeout", func(c *Config) { c.ConnectionTimeout = -time.Second }},
		{"negative idle", func(c *Config) { c.IdleTimeout = -time.Second }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mut(&cfg)
			_, err := New(cfg, counterFactory(&calls))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}

	_, err := New[int](DefaultConfig(), nil)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestPool_ReusesIdleConnection(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	p, err := New(testConfig(2), counterFactory(&calls))
	require.NoError(t, err)

	c1, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(c1)

	c2, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c1.Value(), c2.Value())
	assert.Equal(t, int64(1), calls.Load())
}

func TestPool_BlocksUntilReturn(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	p, err := New(testConfig(1), counterFactory(&calls))
	require.NoError(t, err)

	first, err := p.Get(context.Background())
	require.NoError(t, err)

	got := make(chan *Conn[int], 1)
	go func() {
		c, err := p.Get(context.Background())
		if err == nil {
			got <- c
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("second Get returned while the only connection was active")
	case <-time.After(50 * time.Millisecond):
	}

	p.Put(first)

	select {
	case c, ok := <-got:
		require.True(t, ok, "second Get failed")
		assert.Equal(t, first.Value(), c.Value())
	case <-time.After(time.Second):
		t.Fatal("second Get did not complete after Put")
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestPool_TimesOutWaitingForPermit(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	cfg := testConfig(1)
	cfg.ConnectionTimeout = 30 * time.Millisecond
	p, err := New(cfg, counterFactory(&calls))
	require.NoError(t, err)

	_, err = p.Get(context.Background())
	require.NoError(t, err)

	_, err = p.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionFailed))

	s := p.Stats()
	assert.Equal(t, uint64(2), s.TotalRequests)
	assert.Equal(t, uint64(1), s.SuccessfulRequests)
	assert.Equal(t, uint64(1), s.FailedRequests)
}

func TestPool_FactoryErrorReleasesPermit(t *testing.T) {
	t.Parallel()
	var fail atomic.Bool
	fail.Store(true)
	factory := func(context.Context) (string, error) {
		if fail.Load() {
			return "", errors.New("dial refused")
		}
		return "conn", nil
	}
	p, err := New(testConfig(1), Factory[string](factory))
	require.NoError(t, err)

	_, err = p.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionFailed))

	fail.Store(false)
	c, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "conn", c.Value())
}

func TestPool_DoublePutIsNoop(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	p, err := New(testConfig(1), counterFactory(&calls))
	require.NoError(t, err)

	c, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(c)
	p.Put(c)

	// With a double release the semaphore would admit two holders.
	_, err = p.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Get(ctx)
	assert.Error(t, err)
}

func TestPool_DiscardRemovesConnection(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	var closed []int
	p, err := New(testConfig(1), counterFactory(&calls), WithCloser(func(v int) error {
		closed = append(closed, v)
		return nil
	}))
	require.NoError(t, err)

	c, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Discard(c)
	assert.Equal(t, []int{1}, closed)
	assert.Equal(t, 0, p.Stats().TotalConnections)

	c, err = p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, c.Value())
}

func TestPool_CleanupExpired(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	cfg := testConfig(3)
	cfg.IdleTimeout = time.Minute
	p, err := New(cfg, counterFactory(&calls), WithClock[int](clock))
	require.NoError(t, err)

	a, err := p.Get(context.Background())
	require.NoError(t, err)
	b, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(a)

	advance(2 * time.Minute)
	removed := p.CleanupExpired()
	assert.Equal(t, 1, removed)

	s := p.Stats()
	assert.Equal(t, 1, s.TotalConnections)
	assert.Equal(t, 1, s.ActiveConnections)
	p.Put(b)
	assert.Equal(t, 1, p.Stats().IdleConnections)
}

func TestPool_Warm(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	cfg := testConfig(4)
	cfg.MinConnections = 2
	p, err := New(cfg, counterFactory(&calls))
	require.NoError(t, err)

	require.NoError(t, p.Warm(context.Background()))
	s := p.Stats()
	assert.Equal(t, 2, s.TotalConnections)
	assert.Equal(t, 2, s.IdleConnections)
	assert.Zero(t, s.TotalRequests)
}

func TestPool_ConcurrentGetRespectsMax(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	const maxConns = 3
	p, err := New(testConfig(maxConns), counterFactory(&calls))
	require.NoError(t, err)

	var inUse, peak atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Get(context.Background())
			if err != nil {
				return
			}
			n := inUse.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inUse.Add(-1)
			p.Put(c)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(maxConns))
	assert.LessOrEqual(t, calls.Load(), int64(maxConns))
	s := p.Stats()
	assert.Equal(t, uint64(20), s.SuccessfulRequests)
	assert.Equal(t, 0, s.ActiveConnections)
}

func TestPool_LogsTotalWhileDiscarding(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	const maxConns = 4
	p, err := New(testConfig(maxConns), counterFactory(&calls), WithLogger[int](log))
	require.NoError(t, err)

	// Discarding forces every Get to create, so creation logs race with
	// removals from the connection list.
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 25 {
				c, err := p.Get(context.Background())
				if err != nil {
					continue
				}
				p.Discard(c)
			}
		})
	}
	wg.Wait()

	totals := regexp.MustCompile(`connection created" total=(\d+)`).FindAllStringSubmatch(buf.String(), -1)
	require.NotEmpty(t, totals)
	for _, m := range totals {
		n, err := strconv.Atoi(m[1])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, maxConns)
	}
}

func TestPool_CloseRejectsGet(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	p, err := New(testConfig(2), counterFactory(&calls), WithReapInterval[int](10*time.Millisecond))
	require.NoError(t, err)

	c, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(c)

	require.NoError(t, p.Close())
	_, err = p.Get(context.Background())
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Equal(t, 0, p.Stats().TotalConnections)
}

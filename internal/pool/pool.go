// Package pool implements a bounded pool of backend connections with
// semaphore-based admission, idle reuse and idle-timeout reaping.
//
// Admission and reuse are separate gates. A permit from the semaphore bounds
// the number of connections handed out at once to MaxConnections; a permit is
// held from Get until the connection is returned with Put or Discard. Holding
// a permit, Get reuses an idle connection when one exists and otherwise asks
// the Factory for a new one.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrConnectionFailed is returned when no connection could be handed
	// out: the admission wait timed out, the pool was exhausted, or the
	// factory failed. Callers may retry.
	ErrConnectionFailed = errors.New("pool: connection failed")

	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("pool: invalid config")

	// ErrClosed is returned by Get after Close.
	ErrClosed = errors.New("pool: closed")
)

// Config holds pool sizing and timing.
type Config struct {
	// MaxConnections bounds connections handed out at once and the total
	// number of connections kept.
	MaxConnections int `yaml:"max_connections"`
	// MinConnections is the number of connections Warm pre-creates.
	MinConnections int `yaml:"min_connections"`
	// ConnectionTimeout bounds the wait for an admission permit. Zero waits
	// until the caller's context is done.
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	// IdleTimeout is how long an idle connection survives CleanupExpired.
	// Zero keeps idle connections forever.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// MaxRetries is advisory for callers; the pool never retries by itself.
	MaxRetries int `yaml:"max_retries"`
}

// DefaultConfig returns the stock pool settings.
func DefaultConfig() Config {
	return Config{
		MaxConnections:    10,
		MinConnections:    2,
		ConnectionTimeout: 30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxRetries:        3,
	}
}

func (c Config) validate() error {
	switch {
	case c.MaxConnections <= 0:
		return fmt.Errorf("%w: max_connections must be positive, got %d", ErrInvalidConfig, c.MaxConnections)
	case c.MinConnections < 0 || c.MinConnections > c.MaxConnections:
		return fmt.Errorf("%w: min_connections must be within [0, %d], got %d", ErrInvalidConfig, c.MaxConnections, c.MinConnections)
	case c.ConnectionTimeout < 0:
		return fmt.Errorf("%w: connection_timeout must not be negative", ErrInvalidConfig)
	case c.IdleTimeout < 0:
		return fmt.Errorf("%w: idle_timeout must not be negative", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Factory creates a new backend connection.
type Factory[T any] func(ctx context.Context) (T, error)

// Closer releases a backend connection removed from the pool.
type Closer[T any] func(T) error

// Stats is a snapshot of pool counters.
type Stats struct {
	TotalConnections   int           `json:"total_connections"`
	ActiveConnections  int           `json:"active_connections"`
	IdleConnections    int           `json:"idle_connections"`
	TotalRequests      uint64        `json:"total_requests"`
	SuccessfulRequests uint64        `json:"successful_requests"`
	FailedRequests     uint64        `json:"failed_requests"`
	AverageWaitTime    time.Duration `json:"average_wait_time"`
}

// Conn is a pooled connection handed out by Get.
type Conn[T any] struct {
	value     T
	createdAt time.Time
	lastUsed  time.Time
	active    bool
}

// Value returns the underlying backend connection.
func (c *Conn[T]) Value() T { return c.value }

// CreatedAt reports when the factory produced the connection.
func (c *Conn[T]) CreatedAt() time.Time { return c.createdAt }

// Pool is a bounded connection pool. It is safe for concurrent use.
type Pool[T any] struct {
	cfg     Config
	factory Factory[T]
	closer  Closer[T]
	sem     *semaphore.Weighted
	log     *slog.Logger
	now     func() time.Time

	// mu guards every field below.
	mu       sync.Mutex
	conns    []*Conn[T]
	pending  int
	closed   bool
	requests uint64
	success  uint64
	failed   uint64
	avgWait  time.Duration

	stopReaper func()
}

// Option customises a Pool at construction.
type Option[T any] func(*Pool[T])

// WithCloser sets the function used to close connections removed from the pool.
func WithCloser[T any](closer Closer[T]) Option[T] {
	return func(p *Pool[T]) { p.closer = closer }
}

// WithLogger sets the pool's logger.
func WithLogger[T any](log *slog.Logger) Option[T] {
	return func(p *Pool[T]) {
		if log != nil {
			p.log = log
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(p *Pool[T]) { p.now = now }
}

// WithReapInterval starts a background goroutine that calls CleanupExpired
// every interval until Close.
func WithReapInterval[T any](interval time.Duration) Option[T] {
	return func(p *Pool[T]) {
		if interval <= 0 {
			return
		}
		stopCh := make(chan struct{})
		var once sync.Once
		p.stopReaper = func() { once.Do(func() { close(stopCh) }) }
		go p.reapLoop(interval, stopCh)
	}
}

// New constructs a Pool. No connections are created until Get or Warm.
func New[T any](cfg Config, factory Factory[T], opts ...Option[T]) (*Pool[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: factory must not be nil", ErrInvalidConfig)
	}

	p := &Pool[T]{
		cfg:        cfg,
		factory:    factory,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConnections)),
		log:        slog.Default(),
		now:        time.Now,
		stopReaper: func() {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the settings the pool was built with.
func (p *Pool[T]) Config() Config { return p.cfg }

// Warm creates idle connections until the pool holds MinConnections.
func (p *Pool[T]) Warm(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrClosed
		}
		if len(p.conns)+p.pending >= p.cfg.MinConnections {
			p.mu.Unlock()
			return nil
		}
		p.pending++
		p.mu.Unlock()

		v, err := p.factory(ctx)

		p.mu.Lock()
		p.pending--
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("%w: warm: %w", ErrConnectionFailed, err)
		}
		now := p.now()
		p.conns = append(p.conns, &Conn[T]{value: v, createdAt: now, lastUsed: now})
		p.mu.Unlock()
	}
}

// Get acquires an admission permit, waiting at most ConnectionTimeout, and
// returns an idle connection or a newly created one. The connection must be
// handed back with Put or Discard.
func (p *Pool[T]) Get(ctx context.Context) (*Conn[T], error) {
	start := p.now()

	p.mu.Lock()
	p.requests++
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.recordFailure()
		return nil, ErrClosed
	}

	waitCtx := ctx
	if p.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("%w: waiting for permit: %w", ErrConnectionFailed, err)
	}
	wait := p.now().Sub(start)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		p.recordFailure()
		return nil, ErrClosed
	}
	for _, c := range p.conns {
		if !c.active {
			c.active = true
			c.lastUsed = p.now()
			p.recordSuccessLocked(wait)
			p.mu.Unlock()
			return c, nil
		}
	}
	if len(p.conns)+p.pending >= p.cfg.MaxConnections {
		p.mu.Unlock()
		p.sem.Release(1)
		p.recordFailure()
		return nil, fmt.Errorf("%w: no available connections", ErrConnectionFailed)
	}
	p.pending++
	p.mu.Unlock()

	v, err := p.factory(ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.failed++
		p.mu.Unlock()
		p.sem.Release(1)
		p.log.Warn("pool: factory failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	now := p.now()
	c := &Conn[T]{value: v, createdAt: now, lastUsed: now, active: true}
	p.conns = append(p.conns, c)
	total := len(p.conns)
	p.recordSuccessLocked(wait)
	p.mu.Unlock()

	p.log.Debug("pool: connection created", slog.Int("total", total))
	return c, nil
}

// Put returns c to the pool as idle and releases its admission permit.
// Returning a connection that is not active is a no-op.
func (p *Pool[T]) Put(c *Conn[T]) {
	if c == nil {
		return
	}
	p.mu.Lock()
	if !c.active {
		p.mu.Unlock()
		return
	}
	c.active = false
	c.lastUsed = p.now()
	closed := p.closed
	if closed {
		p.removeLocked(c)
	}
	p.mu.Unlock()

	p.sem.Release(1)
	if closed {
		p.closeConn(c)
	}
}

// Discard removes c from the pool, closes it and releases its permit. Use it
// for connections that turned out to be broken.
func (p *Pool[T]) Discard(c *Conn[T]) {
	if c == nil {
		return
	}
	p.mu.Lock()
	if !c.active {
		p.mu.Unlock()
		return
	}
	c.active = false
	p.removeLocked(c)
	p.mu.Unlock()

	p.sem.Release(1)
	p.closeConn(c)
}

// CleanupExpired removes idle connections unused for longer than IdleTimeout
// and returns how many were removed. Active connections are never touched.
func (p *Pool[T]) CleanupExpired() int {
	if p.cfg.IdleTimeout == 0 {
		return 0
	}

	p.mu.Lock()
	now := p.now()
	kept := p.conns[:0]
	var expired []*Conn[T]
	for _, c := range p.conns {
		if !c.active && now.Sub(c.lastUsed) > p.cfg.IdleTimeout {
			expired = append(expired, c)
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(p.conns); i++ {
		p.conns[i] = nil
	}
	p.conns = kept
	p.mu.Unlock()

	for _, c := range expired {
		p.closeConn(c)
	}
	if len(expired) > 0 {
		p.log.Debug("pool: reaped idle connections", slog.Int("removed", len(expired)))
	}
	return len(expired)
}

// Stats returns a snapshot of pool counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		TotalConnections:   len(p.conns),
		TotalRequests:      p.requests,
		SuccessfulRequests: p.success,
		FailedRequests:     p.failed,
		AverageWaitTime:    p.avgWait,
	}
	for _, c := range p.conns {
		if c.active {
			s.ActiveConnections++
		} else {
			s.IdleConnections++
		}
	}
	return s
}

// Close stops the reaper and closes idle connections. Active connections are
// closed as they are returned.
func (p *Pool[T]) Close() error {
	p.stopReaper()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var idle []*Conn[T]
	kept := p.conns[:0]
	for _, c := range p.conns {
		if c.active {
			kept = append(kept, c)
			continue
		}
		idle = append(idle, c)
	}
	p.conns = kept
	p.mu.Unlock()

	var errs []error
	for _, c := range idle {
		if err := p.closeConnErr(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool[T]) reapLoop(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.CleanupExpired()
		}
	}
}

func (p *Pool[T]) recordFailure() {
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()
}

// recordSuccessLocked updates the running mean of admission wait times.
func (p *Pool[T]) recordSuccessLocked(wait time.Duration) {
	p.success++
	n := float64(p.success)
	p.avgWait = time.Duration((float64(p.avgWait)*(n-1) + float64(wait)) / n)
}

func (p *Pool[T]) removeLocked(target *Conn[T]) {
	for i, c := range p.conns {
		if c == target {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return
		}
	}
}

func (p *Pool[T]) closeConn(c *Conn[T]) {
	if err := p.closeConnErr(c); err != nil {
		p.log.Warn("pool: close connection failed", slog.Any("error", err))
	}
}

func (p *Pool[T]) closeConnErr(c *Conn[T]) error {
	if p.closer == nil {
		return nil
	}
	return p.closer(c.value)
}

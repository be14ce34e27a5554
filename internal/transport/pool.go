// Package transport delivers outbound email over pooled SMTP connections.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mixelka/emailchannel/internal/metrics"
	"github.com/mixelka/emailchannel/pkg/models"
)

const (
	DefaultIdleTimeout  = 5 * time.Minute
	DefaultReapInterval = time.Minute
)

// ErrPoolClosed is returned by Acquire after Close
var ErrPoolClosed = errors.New("transport pool closed")

// Conn is a live outbound delivery session
type Conn interface {
	Noop() error
	SendMail(from string, to []string, r io.Reader) error
	Close() error
}

// Dialer opens a new delivery session for an endpoint
type Dialer func(ctx context.Context, ep models.Endpoint) (Conn, error)

// Key identifies a pooled transport
type Key struct {
	Host string
	Port int
	User string
}

// KeyOf returns the pool key for ep
func KeyOf(ep models.Endpoint) Key {
	return Key{Host: ep.Host, Port: ep.Port, User: ep.User}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%s", k.Host, k.Port, k.User)
}

// entry is the pool slot for one key. sem is held by the caller that
// acquired the slot until Release.
type entry struct {
	sem      chan struct{}
	conn     Conn
	lastUsed time.Time
	inUse    bool
	removed  bool
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

func WithIdleTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.idleTimeout = d }
}

// WithReapInterval sets the reaper period. Zero disables the reaper.
func WithReapInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.reapInterval = d }
}

func WithPoolClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger.With("component", "smtp_pool") }
}

func WithPoolMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// Pool keeps at most one delivery session per Key and hands it to one
// caller at a time.
type Pool struct {
	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool

	dial         Dialer
	idleTimeout  time.Duration
	reapInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPool creates a pool and starts its reaper
func NewPool(dial Dialer, opts ...PoolOption) *Pool {
	p := &Pool{
		entries:      make(map[Key]*entry),
		dial:         dial,
		idleTimeout:  DefaultIdleTimeout,
		reapInterval: DefaultReapInterval,
		now:          time.Now,
		logger:       slog.Default().With("component", "smtp_pool"),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.reapInterval > 0 {
		go p.reapLoop()
	} else {
		close(p.doneCh)
	}
	return p
}

// Acquire returns the session for ep, creating one if none is pooled or the
// pooled one fails its liveness probe. The caller owns the session until
// Release. A second caller for the same key blocks until then or until ctx
// is done.
func (p *Pool) Acquire(ctx context.Context, ep models.Endpoint) (Conn, error) {
	key := KeyOf(ep)

	e, conn, err := p.claim(ctx, key)
	if err != nil {
		return nil, err
	}

	if conn != nil {
		err := conn.Noop()
		if err == nil {
			p.metrics.Pool(metrics.PoolReuse)
			return conn, nil
		}
		p.logger.Warn("pooled transport failed liveness check", "key", key.String(), "error", err)
		p.metrics.Pool(metrics.PoolStale)
		_ = conn.Close()
		p.mu.Lock()
		e.conn = nil
		p.mu.Unlock()
	}

	conn, err = p.dial(ctx, ep)
	if err != nil {
		p.unclaim(e)
		return nil, fmt.Errorf("failed to open transport %s: %w", key, err)
	}
	p.metrics.Pool(metrics.PoolDial)
	p.logger.Debug("opened transport", "key", key.String())

	p.mu.Lock()
	e.conn = conn
	p.mu.Unlock()
	return conn, nil
}

// Release returns the session for ep to the pool without closing it
func (p *Pool) Release(ep models.Endpoint) {
	key := KeyOf(ep)

	p.mu.Lock()
	e, ok := p.entries[key]
	if !ok || !e.inUse {
		p.mu.Unlock()
		return
	}
	e.lastUsed = p.now()
	p.mu.Unlock()

	p.unclaim(e)
}

// Discard closes the session held for ep. The caller still has to Release.
func (p *Pool) Discard(ep models.Endpoint) {
	p.mu.Lock()
	e, ok := p.entries[KeyOf(ep)]
	var conn Conn
	if ok {
		conn, e.conn = e.conn, nil
	}
	p.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Send delivers data over the pooled session for ep. A failed send drops the
// session so the next caller dials a fresh one.
func (p *Pool) Send(ctx context.Context, ep models.Endpoint, from string, to []string, data []byte) error {
	conn, err := p.Acquire(ctx, ep)
	if err != nil {
		return err
	}
	defer p.Release(ep)

	if err := conn.SendMail(from, to, bytes.NewReader(data)); err != nil {
		p.Discard(ep)
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// Len returns the number of pooled sessions
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.entries {
		if e.conn != nil {
			n++
		}
	}
	return n
}

// Close stops the reaper and closes every pooled session. It is safe to
// call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	var conns []Conn
	for key, e := range p.entries {
		if e.conn != nil {
			conns = append(conns, e.conn)
			e.conn = nil
		}
		e.removed = true
		delete(p.entries, key)
	}
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh

	for _, c := range conns {
		_ = c.Close()
	}
	p.logger.Info("transport pool closed", "closed", len(conns))
}

// claim waits for exclusive use of the slot for key
func (p *Pool) claim(ctx context.Context, key Key) (*entry, Conn, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, nil, ErrPoolClosed
		}
		e, ok := p.entries[key]
		if !ok {
			e = &entry{sem: make(chan struct{}, 1)}
			p.entries[key] = e
		}
		p.mu.Unlock()

		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			<-e.sem
			return nil, nil, ErrPoolClosed
		}
		if e.removed {
			// reaped while we waited; look the key up again
			p.mu.Unlock()
			<-e.sem
			continue
		}
		e.inUse = true
		conn := e.conn
		p.mu.Unlock()
		return e, conn, nil
	}
}

func (p *Pool) unclaim(e *entry) {
	p.mu.Lock()
	e.inUse = false
	p.mu.Unlock()
	<-e.sem
}

func (p *Pool) reapLoop() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reap()
		}
	}
}

// reap closes sessions idle for longer than the idle timeout
func (p *Pool) reap() int {
	now := p.now()
	var stale []Conn

	p.mu.Lock()
	for key, e := range p.entries {
		select {
		case e.sem <- struct{}{}:
		default:
			continue // in use
		}

		if e.conn == nil || now.Sub(e.lastUsed) > p.idleTimeout {
			if e.conn != nil {
				stale = append(stale, e.conn)
				e.conn = nil
			}
			e.removed = true
			delete(p.entries, key)
		}
		<-e.sem
	}
	p.mu.Unlock()

	for _, c := range stale {
		_ = c.Close()
		p.metrics.Pool(metrics.PoolReap)
	}
	if len(stale) > 0 {
		p.logger.Debug("reaped idle transports", "count", len(stale))
	}
	return len(stale)
}

package pool

import (
	"context"
	"sync"
	"time"
)

// Session is one live backend session as produced by a Factory. Engines wrap
// their native connection type (a pgx.Conn, an sqlx.Conn, ...) behind it.
type Session interface {
	// Ping runs a cheap liveness check against the backend.
	Ping(ctx context.Context) error

	// Close releases the backend session.
	Close() error
}

// Factory creates a new backend session on demand.
type Factory func(ctx context.Context) (Session, error)

// Connection wraps one Session with the lifecycle state the pool manages:
// creation time, maximum age, and the closing/closed flags. A checked-out
// Connection is exclusively owned by the goroutine holding it until it is
// returned with Pool.Put; recorders must not retain one across unrelated
// calls.
type Connection struct {
	mu        sync.Mutex
	session   Session
	pool      *Pool
	createdAt time.Time
	maxAge    time.Duration
	ageTimer  *time.Timer
	closing   bool
	closed    bool
	inUse     bool
	isWriter  bool
}

func newConnection(session Session, p *Pool, maxAge time.Duration) *Connection {
	c := &Connection{
		session:   session,
		pool:      p,
		createdAt: time.Now(),
		maxAge:    maxAge,
	}

	if maxAge > 0 {
		// Past max age the connection is only marked as draining; it is not
		// force-closed while a caller still holds it.
		c.ageTimer = time.AfterFunc(maxAge, c.markClosing)
	}

	return c
}

// Session exposes the wrapped backend session for the duration of a checkout.
func (c *Connection) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session
}

// Close marks the connection closed and releases the backend session. It is
// idempotent. A closed connection handed back to the pool is discarded, never
// reused.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Connection) closeLocked() error {
	if c.closed {
		return nil
	}

	c.closed = true

	if c.ageTimer != nil {
		c.ageTimer.Stop()
	}

	return c.session.Close()
}

// IsClosed reports whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// IsClosing reports whether the connection is draining: past its maximum age
// and awaiting closure the next time it becomes idle.
func (c *Connection) IsClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closing
}

func (c *Connection) markClosing() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closing = true
}

// reusable reports whether the connection may be handed out or parked idle
// again.
func (c *Connection) reusable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.closing {
		return false
	}

	if c.maxAge > 0 && time.Since(c.createdAt) >= c.maxAge {
		return false
	}

	return true
}

func (c *Connection) checkOut(isWriter bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inUse = true
	c.isWriter = isWriter
}

// checkIn clears the checkout state and reports whether the connection was
// actually checked out, guarding against double Put.
func (c *Connection) checkIn() (wasInUse bool, wasWriter bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasInUse = c.inUse
	wasWriter = c.isWriter
	c.inUse = false
	c.isWriter = false

	return wasInUse, wasWriter
}

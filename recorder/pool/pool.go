package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

const (
	defaultPoolSize    = 5
	defaultMaxOverflow = 10

	msgWaitingForConnection = "timed out waiting for a pooled connection or permission to create one"
	msgWaitingForWriterSlot = "timed out waiting for the single writer slot"
	msgWaitingAsReader      = "timed out waiting for reader access while a writer holds the pool"
	msgCreatingSession      = "creating a new backend session failed"
)

var (
	// ErrInvalidPoolSize is returned when the pool size is not positive.
	ErrInvalidPoolSize = errors.New("pool size must be positive")

	// ErrNegativeMaxOverflow is returned when the max overflow is negative.
	ErrNegativeMaxOverflow = errors.New("max overflow must not be negative")

	// ErrNegativeMaxAge is returned when the connection max age is negative.
	ErrNegativeMaxAge = errors.New("max age must not be negative")

	// ErrNilSessionFactory is returned when no session factory is supplied.
	ErrNilSessionFactory = errors.New("session factory must not be nil")
)

// Pool bounds the number of concurrently open backend sessions and hands them
// out fairly. It is safe for concurrent use from any number of goroutines.
type Pool struct {
	factory     Factory
	poolSize    int
	maxOverflow int
	maxAge      time.Duration
	prePing     bool

	// sem gates total concurrent checkouts at poolSize+maxOverflow; waiters
	// are served in roughly arrival order.
	sem *semaphore.Weighted

	// writerSem holds the single writer slot when writer exclusivity is on.
	writerSem *semaphore.Weighted

	// rwSem makes readers and the writer mutually exclusive: readers take
	// weight 1, the writer takes the full weight.
	rwSem    *semaphore.Weighted
	rwWeight int64

	mu     sync.Mutex
	idle   []*Connection
	conns  map[*Connection]struct{}
	closed bool
}

// Option defines a functional option for configuring a Pool.
type Option func(*Pool) error

// WithPoolSize sets how many idle connections the pool retains. Together with
// the max overflow it bounds the number of concurrent checkouts.
func WithPoolSize(poolSize int) Option {
	return func(p *Pool) error {
		if poolSize <= 0 {
			return ErrInvalidPoolSize
		}

		p.poolSize = poolSize

		return nil
	}
}

// WithMaxOverflow sets how many connections beyond the pool size may be open
// concurrently; overflow connections are closed instead of parked idle.
func WithMaxOverflow(maxOverflow int) Option {
	return func(p *Pool) error {
		if maxOverflow < 0 {
			return ErrNegativeMaxOverflow
		}

		p.maxOverflow = maxOverflow

		return nil
	}
}

// WithMaxAge sets the lifetime after which a connection is recycled. An aged
// connection still in use is only marked as draining and closed once it comes
// back to the pool. Zero means unlimited.
func WithMaxAge(maxAge time.Duration) Option {
	return func(p *Pool) error {
		if maxAge < 0 {
			return ErrNegativeMaxAge
		}

		p.maxAge = maxAge

		return nil
	}
}

// WithPrePing enables a cheap liveness check on recycled connections before
// they are handed out; a dead connection is discarded and replaced
// transparently.
func WithPrePing() Option {
	return func(p *Pool) error {
		p.prePing = true
		return nil
	}
}

// WithSingleWriter allows at most one writer connection to be checked out at
// a time. Readers are not affected.
func WithSingleWriter() Option {
	return func(p *Pool) error {
		p.writerSem = semaphore.NewWeighted(1)
		return nil
	}
}

// WithMutuallyExclusiveReadWrite makes readers and the writer mutually
// exclusive, which implies the single-writer mode. Useful for single-writer
// embedded engines.
func WithMutuallyExclusiveReadWrite() Option {
	return func(p *Pool) error {
		p.rwWeight = -1 // finalized in New once the pool size is known
		return nil
	}
}

// New creates a Pool that produces backend sessions with the given factory.
func New(factory Factory, options ...Option) (*Pool, error) {
	if factory == nil {
		return nil, ErrNilSessionFactory
	}

	p := &Pool{
		factory:     factory,
		poolSize:    defaultPoolSize,
		maxOverflow: defaultMaxOverflow,
		conns:       make(map[*Connection]struct{}),
	}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	p.sem = semaphore.NewWeighted(int64(p.poolSize + p.maxOverflow))

	if p.rwWeight != 0 {
		p.rwWeight = int64(p.poolSize + p.maxOverflow)
		p.rwSem = semaphore.NewWeighted(p.rwWeight)
	}

	return p, nil
}

// Get checks out a reader connection, blocking until one is available or the
// context expires. On expiry it fails with recorder.ErrConnectionUnavailable.
func (p *Pool) Get(ctx context.Context) (*Connection, error) {
	return p.get(ctx, false)
}

// GetWriter checks out a writer connection. With writer exclusivity enabled it
// additionally waits for the single writer slot.
func (p *Pool) GetWriter(ctx context.Context) (*Connection, error) {
	return p.get(ctx, true)
}

func (p *Pool) get(ctx context.Context, isWriter bool) (*Connection, error) {
	if p.isClosed() {
		return nil, recorder.ErrConnectionPoolClosed
	}

	if err := p.acquire(ctx, p.sem, 1, msgWaitingForConnection); err != nil {
		return nil, err
	}

	if err := p.acquireRWGates(ctx, isWriter); err != nil {
		p.sem.Release(1)
		return nil, err
	}

	conn, err := p.checkOutConnection(ctx, isWriter)
	if err != nil {
		p.releaseRWGates(isWriter)
		p.sem.Release(1)

		return nil, err
	}

	return conn, nil
}

// acquire takes n from the semaphore, preferring a non-blocking fast path so
// an already-expired context still succeeds when capacity is free.
func (p *Pool) acquire(ctx context.Context, sem *semaphore.Weighted, n int64, timeoutDetail string) error {
	if sem.TryAcquire(n) {
		return nil
	}

	if err := sem.Acquire(ctx, n); err != nil {
		return errors.Join(recorder.ErrConnectionUnavailable, fmt.Errorf("%s: %w", timeoutDetail, err))
	}

	return nil
}

func (p *Pool) acquireRWGates(ctx context.Context, isWriter bool) error {
	switch {
	case isWriter && p.rwSem != nil:
		return p.acquire(ctx, p.rwSem, p.rwWeight, msgWaitingForWriterSlot)

	case isWriter && p.writerSem != nil:
		return p.acquire(ctx, p.writerSem, 1, msgWaitingForWriterSlot)

	case !isWriter && p.rwSem != nil:
		return p.acquire(ctx, p.rwSem, 1, msgWaitingAsReader)
	}

	return nil
}

func (p *Pool) releaseRWGates(isWriter bool) {
	switch {
	case isWriter && p.rwSem != nil:
		p.rwSem.Release(p.rwWeight)

	case isWriter && p.writerSem != nil:
		p.writerSem.Release(1)

	case !isWriter && p.rwSem != nil:
		p.rwSem.Release(1)
	}
}

// checkOutConnection serves an idle connection, recycling expired or dead
// ones, and falls back to creating a fresh session.
func (p *Pool) checkOutConnection(ctx context.Context, isWriter bool) (*Connection, error) {
	for {
		conn, poolClosedErr := p.popIdle()
		if poolClosedErr != nil {
			return nil, poolClosedErr
		}

		if conn == nil {
			break
		}

		if !conn.reusable() {
			p.discard(conn)
			continue
		}

		if p.prePing {
			if pingErr := conn.Session().Ping(ctx); pingErr != nil {
				p.discard(conn)
				continue
			}
		}

		conn.checkOut(isWriter)

		return conn, nil
	}

	session, factoryErr := p.factory(ctx)
	if factoryErr != nil {
		return nil, errors.Join(recorder.ErrInterface, fmt.Errorf("%s: %w", msgCreatingSession, factoryErr))
	}

	conn := newConnection(session, p, p.maxAge)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()

		return nil, recorder.ErrConnectionPoolClosed
	}
	p.conns[conn] = struct{}{}
	p.mu.Unlock()

	conn.checkOut(isWriter)

	return conn, nil
}

func (p *Pool) popIdle() (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, recorder.ErrConnectionPoolClosed
	}

	if len(p.idle) == 0 {
		return nil, nil
	}

	conn := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]

	return conn, nil
}

func (p *Pool) discard(conn *Connection) {
	_ = conn.Close()

	p.mu.Lock()
	delete(p.conns, conn)
	p.mu.Unlock()
}

// Put returns a connection to the idle pool, or closes it if it was marked
// closed, exceeded its max age, or the idle pool is full. Returning a foreign
// connection fails with recorder.ErrConnectionNotFromPool.
func (p *Pool) Put(conn *Connection) error {
	if conn == nil || conn.pool != p {
		return recorder.ErrConnectionNotFromPool
	}

	wasInUse, wasWriter := conn.checkIn()
	if !wasInUse {
		return recorder.ErrConnectionNotFromPool
	}

	defer func() {
		p.releaseRWGates(wasWriter)
		p.sem.Release(1)
	}()

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()

		return recorder.ErrConnectionPoolClosed
	}

	if conn.reusable() && len(p.idle) < p.poolSize {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()

		return nil
	}

	delete(p.conns, conn)
	p.mu.Unlock()

	return conn.Close()
}

// Close closes all idle and in-use connections and makes the pool permanently
// unusable; any further Get or Put fails with
// recorder.ErrConnectionPoolClosed. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil
	}

	p.closed = true
	conns := make([]*Connection, 0, len(p.conns))
	for conn := range p.conns {
		conns = append(conns, conn)
	}
	p.idle = nil
	p.conns = make(map[*Connection]struct{})

	p.mu.Unlock()

	var closeErr error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			closeErr = err
		}
	}

	return closeErr
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

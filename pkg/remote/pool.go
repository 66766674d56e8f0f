package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderpilot/orderpilot/pkg/telemetry"
)

// Conn is a Surface whose underlying session can be closed.
type Conn interface {
	Surface
	Close() error
}

// Factory creates a fresh authenticated session for the pool.
type Factory func(ctx context.Context) (Conn, error)

// Session is one pooled remote session, exclusively owned between Acquire
// and Release.
type Session struct {
	// ID is a pool-scoped session identifier.
	ID string

	// Surface is the capability handle the engine drives.
	Surface Conn

	createdAt time.Time
	lastUsed  time.Time
	owner     string
}

// Pool hands out exclusive remote sessions. One run owns one session at a
// time; concurrent runs each get their own. Released healthy sessions are
// kept for reuse until they age out.
type Pool struct {
	factory Factory
	logger  *telemetry.Logger

	maxSize    int
	maxIdleAge time.Duration

	mu     sync.Mutex
	idle   []*Session
	owned  map[string]*Session
	total  int
	closed bool
}

// PoolConfig configures a session pool.
type PoolConfig struct {
	// MaxSize bounds the total number of live sessions. Zero means 4.
	MaxSize int

	// MaxIdleAge evicts idle sessions older than this. Zero means 15m.
	MaxIdleAge time.Duration
}

// NewPool creates a session pool around the given factory.
func NewPool(factory Factory, logger *telemetry.Logger, cfg PoolConfig) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 4
	}
	if cfg.MaxIdleAge <= 0 {
		cfg.MaxIdleAge = 15 * time.Minute
	}
	return &Pool{
		factory:    factory,
		logger:     logger.NewComponentLogger("pool"),
		maxSize:    cfg.MaxSize,
		maxIdleAge: cfg.MaxIdleAge,
		owned:      make(map[string]*Session),
	}
}

// Acquire hands an exclusive session to ownerKey, reusing an idle one
// when available. An owner holding a session cannot acquire a second.
func (p *Pool) Acquire(ctx context.Context, ownerKey string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("pool is closed")
	}
	if _, held := p.owned[ownerKey]; held {
		return nil, fmt.Errorf("owner %q already holds a session", ownerKey)
	}

	p.evictStaleLocked()

	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		s.owner = ownerKey
		s.lastUsed = time.Now()
		p.owned[ownerKey] = s
		p.logger.WithField("session_id", s.ID).Debug("session reused")
		return s, nil
	}

	if p.total >= p.maxSize {
		return nil, fmt.Errorf("pool exhausted: %d sessions live", p.total)
	}

	conn, err := p.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	s := &Session{
		ID:        uuid.New().String(),
		Surface:   conn,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
		owner:     ownerKey,
	}
	p.total++
	p.owned[ownerKey] = s
	p.logger.WithField("session_id", s.ID).Debug("session opened")
	return s, nil
}

// Release returns a session to the pool. Sessions released after a failed
// run are discarded rather than reused: a failed run may have left the
// remote surface in a half-edited state no later run should inherit.
func (p *Pool) Release(ownerKey string, s *Session, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	held, ok := p.owned[ownerKey]
	if !ok || held != s {
		p.logger.Warnf("release of unowned session by %q ignored", ownerKey)
		return
	}
	delete(p.owned, ownerKey)
	s.owner = ""
	s.lastUsed = time.Now()

	if !success || p.closed {
		p.discardLocked(s)
		return
	}
	p.idle = append(p.idle, s)
}

// Close discards every idle session and refuses further acquires.
// Sessions still owned are discarded when released.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, s := range p.idle {
		p.discardLocked(s)
	}
	p.idle = nil
}

// Stats reports current pool occupancy.
func (p *Pool) Stats() (idle, owned, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), len(p.owned), p.total
}

func (p *Pool) evictStaleLocked() {
	cutoff := time.Now().Add(-p.maxIdleAge)
	kept := p.idle[:0]
	for _, s := range p.idle {
		if s.lastUsed.Before(cutoff) {
			p.discardLocked(s)
			continue
		}
		kept = append(kept, s)
	}
	p.idle = kept
}

func (p *Pool) discardLocked(s *Session) {
	p.total--
	if err := s.Surface.Close(); err != nil {
		p.logger.WithError(err).Warnf("failed to close session %s", s.ID)
	}
}

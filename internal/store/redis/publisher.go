package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"regime-seeker/internal/breaker"
	"regime-seeker/internal/model"
)

const defaultLatestTTL = 5 * time.Minute

// Config configures the Redis snapshot publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	LatestTTL time.Duration // expiry of regime:latest:* keys (default 5m)

	MaxFailures  int           // consecutive failures before the breaker opens (default 5)
	ResetTimeout time.Duration // time before a half-open probe (default 30s)
}

// Publisher publishes regime snapshots on PubSub and keeps the most recent
// one per instrument under a volatile latest key. Writes go through a
// circuit breaker. While it is open the newest snapshot per instrument is
// held locally and flushed once the breaker closes.
type Publisher struct {
	client *goredis.Client
	cb     *breaker.CircuitBreaker
	ttl    time.Duration

	mu      sync.Mutex
	pending map[string]model.RegimeSnapshot
	written map[string]time.Time // TS of the newest snapshot stored per key

	// writeMu serializes write+bookkeeping so a flush cannot interleave
	// with a live publish for the same key.
	writeMu sync.Mutex

	// Callbacks
	OnBuffer func()          // called when a snapshot is held back
	OnFlush  func(count int) // called after flushing held snapshots
}

var _ model.SnapshotPublisher = (*Publisher)(nil)

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config) *Publisher {
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = defaultLatestTTL
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	p := &Publisher{
		client:  client,
		cb:      breaker.New(cfg.MaxFailures, cfg.ResetTimeout),
		ttl:     cfg.LatestTTL,
		pending: make(map[string]model.RegimeSnapshot),
		written: make(map[string]time.Time),
	}
	p.cb.OnStateChange = func(from, to breaker.State) {
		log.Printf("[redis] circuit breaker %s → %s", from, to)
		if to == breaker.StateClosed {
			go p.flush()
		}
	}
	return p
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker returns the publisher's circuit breaker state.
func (p *Publisher) Breaker() breaker.State { return p.cb.CurrentState() }

// PublishSnapshot writes SET latest + PUBLISH in one pipeline. When the
// breaker is open the snapshot is held and nil is returned. A successful
// write supersedes any held snapshot for the same key.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap model.RegimeSnapshot) error {
	err := p.cb.Execute(func() error {
		p.writeMu.Lock()
		defer p.writeMu.Unlock()
		if err := p.write(ctx, snap); err != nil {
			return err
		}
		p.markWritten(snap)
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, breaker.ErrOpen):
		p.hold(snap)
		return nil
	default:
		p.hold(snap)
		return fmt.Errorf("redis publish %s: %w", snap.Key(), err)
	}
}

func (p *Publisher) write(ctx context.Context, snap model.RegimeSnapshot) error {
	data := string(snap.JSON())
	pipe := p.client.Pipeline()
	pipe.Set(ctx, snap.LatestKey(), data, p.ttl)
	pipe.Publish(ctx, snap.Channel(), data)
	_, err := pipe.Exec(ctx)
	return err
}

// markWritten records snap as stored and drops held snapshots it supersedes.
func (p *Publisher) markWritten(snap model.RegimeSnapshot) {
	key := snap.Key()
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap.TS.After(p.written[key]) {
		p.written[key] = snap.TS
	}
	if held, ok := p.pending[key]; ok && !held.TS.After(snap.TS) {
		delete(p.pending, key)
	}
}

// superseded reports whether a snapshot at least as new as snap is stored.
func (p *Publisher) superseded(snap model.RegimeSnapshot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.written[snap.Key()]
	return ok && !snap.TS.After(last)
}

// hold keeps only the newest snapshot per instrument; older ones are stale.
func (p *Publisher) hold(snap model.RegimeSnapshot) {
	key := snap.Key()
	p.mu.Lock()
	if cur, ok := p.pending[key]; !ok || !cur.TS.After(snap.TS) {
		p.pending[key] = snap
	}
	p.mu.Unlock()
	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// Pending returns the number of held snapshots.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Publisher) flush() {
	p.mu.Lock()
	held := p.pending
	p.pending = make(map[string]model.RegimeSnapshot)
	p.mu.Unlock()

	if len(held) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	for _, snap := range held {
		ok, err := p.flushOne(ctx, snap)
		if err != nil {
			log.Printf("[redis] flush %s failed: %v", snap.Key(), err)
			p.mu.Lock()
			if cur, newer := p.pending[snap.Key()]; !newer || snap.TS.After(cur.TS) {
				p.pending[snap.Key()] = snap
			}
			p.mu.Unlock()
			continue
		}
		if ok {
			flushed++
		}
	}
	log.Printf("[redis] flushed %d held snapshots", flushed)
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// flushOne writes a held snapshot unless a newer one for its key has
// already been stored. It reports whether anything was written.
func (p *Publisher) flushOne(ctx context.Context, snap model.RegimeSnapshot) (bool, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.superseded(snap) {
		return false, nil
	}
	if err := p.write(ctx, snap); err != nil {
		return false, err
	}
	p.markWritten(snap)
	return true, nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

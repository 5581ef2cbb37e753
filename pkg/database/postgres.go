package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRemoteUnavailable wraps every failure to open the remote document store.
var ErrRemoteUnavailable = errors.New("remote document store unavailable")

const (
	defaultMaxConns        = 10
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 10 * time.Minute
	defaultHealthCheck     = time.Minute
)

// DB wraps the pgxpool connection pool of the remote document store.
type DB struct {
	*pgxpool.Pool
}

// Config holds the remote pool settings. Zero values take the defaults above.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewConnection opens a pool and verifies it with a ping. The pool is closed
// again when the ping fails.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse remote store URL: %w", err)
	}

	poolConfig.MaxConns = orDefault(cfg.MaxConnections, defaultMaxConns)
	poolConfig.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	poolConfig.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)
	poolConfig.HealthCheckPeriod = defaultHealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %w", ErrRemoteUnavailable, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping: %w", ErrRemoteUnavailable, err)
	}

	return &DB{Pool: pool}, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// OpenFunc opens the remote store. It is called until it first succeeds.
type OpenFunc func(ctx context.Context) (*DB, error)

// Remote hands out the remote pool, opening it on first use. A failed open is
// retried by the next caller, so a store that is down at startup can still
// come online later.
type Remote struct {
	open OpenFunc

	mu     sync.Mutex
	db     *DB
	closed bool
}

// NewRemote creates a Remote that opens the pool lazily with open.
func NewRemote(open OpenFunc) *Remote {
	return &Remote{open: open}
}

// ConnectedRemote wraps a pool that is already open.
func ConnectedRemote(db *DB) *Remote {
	return &Remote{db: db}
}

// Get returns the open pool, opening it if needed.
func (r *Remote) Get(ctx context.Context) (*DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%w: closed", ErrRemoteUnavailable)
	}
	if r.db != nil {
		return r.db, nil
	}
	if r.open == nil {
		return nil, fmt.Errorf("%w: not configured", ErrRemoteUnavailable)
	}

	db, err := r.open(ctx)
	if err != nil {
		if !errors.Is(err, ErrRemoteUnavailable) {
			err = fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
		}
		return nil, err
	}
	r.db = db
	return db, nil
}

// Connected reports whether the pool has been opened.
func (r *Remote) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db != nil
}

// Close closes the pool if it was opened. Later calls to Get fail.
func (r *Remote) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.db != nil && r.db.Pool != nil {
		r.db.Close()
	}
	r.db = nil
}

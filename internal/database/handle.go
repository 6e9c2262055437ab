package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/logger"
)

// DefaultDrainPeriod is how long a pool dropped by Reset stays open for the
// queries still running on it.
const DefaultDrainPeriod = 30 * time.Second

// OpenFunc opens a new connection pool.
type OpenFunc func(ctx context.Context) (*sqlx.DB, error)

// Handle owns a lazily opened *sqlx.DB. Reset discards the current pool so
// the next DB call reconnects; callers use it after transient connection
// failures. A discarded pool is closed only after the drain period, so
// callers that still hold it are not cut off.
type Handle struct {
	mu      sync.Mutex
	db      *sqlx.DB
	retired map[*sqlx.DB]*time.Timer
	open    OpenFunc
	drain   time.Duration
	log     logger.Logger
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithDrainPeriod sets how long a reset pool is kept open.
func WithDrainPeriod(d time.Duration) HandleOption {
	return func(h *Handle) {
		h.drain = d
	}
}

// NewHandle returns a Handle that connects with cfg on first use.
func NewHandle(cfg config.DatabaseConfig, log logger.Logger, opts ...HandleOption) *Handle {
	return NewHandleWithOpener(func(ctx context.Context) (*sqlx.DB, error) {
		return NewPostgresConnection(ctx, cfg)
	}, log, opts...)
}

// NewHandleWithOpener returns a Handle backed by a custom opener.
func NewHandleWithOpener(open OpenFunc, log logger.Logger, opts ...HandleOption) *Handle {
	if log == nil {
		log = logger.NewNop()
	}
	h := &Handle{
		open:    open,
		log:     log,
		drain:   DefaultDrainPeriod,
		retired: make(map[*sqlx.DB]*time.Timer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DB returns the current pool, opening it if needed.
func (h *Handle) DB(ctx context.Context) (*sqlx.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		return h.db, nil
	}

	db, err := h.open(ctx)
	if err != nil {
		return nil, err
	}
	h.db = db
	return db, nil
}

// Reset forgets the current pool. The next DB call opens a fresh one; the
// old pool is closed once the drain period has passed.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.db
	if old == nil {
		return
	}
	h.db = nil
	h.retired[old] = time.AfterFunc(h.drain, func() { h.closeRetired(old) })
	h.log.Info("Database pool reset", logger.Duration("drain", h.drain))
}

func (h *Handle) closeRetired(db *sqlx.DB) {
	h.mu.Lock()
	_, ok := h.retired[db]
	delete(h.retired, db)
	h.mu.Unlock()

	if !ok {
		return
	}
	if err := db.Close(); err != nil {
		h.log.Warn("Failed to close retired database pool", logger.Error(err))
	}
}

// Close releases the current pool and any pool still draining.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for db, timer := range h.retired {
		timer.Stop()
		errs = append(errs, db.Close())
	}
	clear(h.retired)

	if h.db != nil {
		errs = append(errs, h.db.Close())
		h.db = nil
	}
	return errors.Join(errs...)
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/logger"
)

// Backend bundles what the Manager needs from a concrete driver package.
// Each of postgres, mysql and sqlite exports one.
type Backend struct {
	// Dialect is the SQL dialect the backend speaks.
	Dialect Dialect

	// Open creates a *sql.DB for cfg. It need not verify connectivity.
	Open func(ctx context.Context, cfg *Config) (*sql.DB, error)

	// MapError translates a native driver error into an *errs.Error.
	MapError func(err error, msg string) error
}

// State is the lifecycle position of the managed connection.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateRolledBack
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRolledBack:
		return "rolled_back"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// Manager owns the one logical connection arcforge talks through. It is
// created explicitly by the composition root and injected into the query
// engine; nothing else opens connections.
//
// The handle is opened lazily on first use and reopened when it stops
// answering. Only handle creation is guarded: issuing statements from
// several goroutines at once is not supported, callers must serialize.
type Manager struct {
	cfg     *Config
	backend Backend
	log     *logger.Logger

	mu    sync.Mutex
	db    *sql.DB
	state State
}

// NewManager returns a Manager for cfg. No connection is made until Get or
// WithCursor is first called.
func NewManager(cfg *Config, backend Backend, log *logger.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		backend: backend,
		log:     logger.OrNop(log).Component("database"),
	}
}

// Dialect returns the SQL dialect of the underlying backend.
func (m *Manager) Dialect() Dialect {
	return m.backend.Dialect
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Get returns the live handle, connecting on first use and reconnecting when
// the existing handle fails a ping.
func (m *Manager) Get(ctx context.Context) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		if err := m.db.PingContext(ctx); err == nil {
			return m.db, nil
		}
		m.log.Warn("connection lost or closed, reconnecting")
		_ = m.db.Close()
		m.db = nil
		m.state = StateDisconnected
	}

	return m.connect(ctx)
}

// connect must be called with mu held.
func (m *Manager) connect(ctx context.Context) (*sql.DB, error) {
	if m.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
	}

	db, err := m.backend.Open(ctx, m.cfg)
	if err != nil {
		m.log.ErrorWith("failed to open connection", err, map[string]any{"driver": string(m.cfg.Driver)})
		return nil, m.mapError(err, "failed to open connection")
	}

	// One logical connection: the pool never grows past a single session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		m.log.ErrorWith("failed to reach database", err, map[string]any{"driver": string(m.cfg.Driver)})
		return nil, m.mapError(err, "ping failed")
	}

	m.db = db
	m.state = StateConnected
	m.log.InfoWith("connection established", map[string]any{"driver": string(m.cfg.Driver)})
	return db, nil
}

// Close releases the handle. A later Get reconnects.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		m.log.Info("no active connection to close")
		m.state = StateClosed
		return nil
	}
	err := m.db.Close()
	m.db = nil
	m.state = StateClosed
	if err != nil {
		return m.mapError(err, "failed to close connection")
	}
	m.log.Info("connection closed")
	return nil
}

// WithCursor runs fn inside a scoped cursor. Each call is its own
// transaction: when fn returns nil the work is committed, otherwise it is
// rolled back, the failure is logged with the last statement, and the error
// is returned translated to *errs.Error. Every result set opened through the
// cursor is closed before WithCursor returns, on every path.
func (m *Manager) WithCursor(ctx context.Context, fn func(c *Cursor) error) (err error) {
	db, err := m.Get(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return m.mapError(err, "failed to begin transaction")
	}

	cur := &Cursor{ctx: ctx, tx: tx, log: m.log}
	done := false
	defer func() {
		cur.release()
		if !done {
			_ = tx.Rollback()
		}
	}()

	if ferr := fn(cur); ferr != nil {
		cur.release()
		done = true
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			m.log.ErrorWith("rollback failed", rerr, nil)
		}
		m.setState(StateRolledBack)
		m.log.ErrorWith("statement failed, transaction rolled back", ferr, map[string]any{"sql": cur.last})
		return m.mapError(ferr, "statement failed")
	}

	cur.release()
	done = true
	if cerr := tx.Commit(); cerr != nil {
		m.setState(StateRolledBack)
		m.log.ErrorWith("commit failed", cerr, map[string]any{"sql": cur.last})
		return m.mapError(cerr, "commit failed")
	}
	m.setState(StateConnected)
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// mapError leaves arcforge errors untouched and hands everything else to the
// backend's translator.
func (m *Manager) mapError(err error, msg string) error {
	var e *errs.Error
	if errors.As(err, &e) || errs.IsValidation(err) {
		return err
	}
	if m.backend.MapError != nil {
		return m.backend.MapError(err, msg)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// Cursor executes statements inside the transaction opened by WithCursor.
// It must not be retained after the WithCursor callback returns.
type Cursor struct {
	ctx  context.Context
	tx   *sql.Tx
	log  *logger.Logger
	rows []*sql.Rows
	last string
}

// Exec runs a statement that returns no rows.
func (c *Cursor) Exec(query string, args ...any) (sql.Result, error) {
	c.last = query
	c.log.Statement(query, args)
	return c.tx.ExecContext(c.ctx, query, args...)
}

// Query runs a statement returning rows. The rows are closed automatically
// when the cursor is released; closing them earlier is allowed.
func (c *Cursor) Query(query string, args ...any) (*sql.Rows, error) {
	c.last = query
	c.log.Statement(query, args)
	rows, err := c.tx.QueryContext(c.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	c.rows = append(c.rows, rows)
	return rows, nil
}

// QueryRow runs a statement expected to return at most one row.
func (c *Cursor) QueryRow(query string, args ...any) *sql.Row {
	c.last = query
	c.log.Statement(query, args)
	return c.tx.QueryRowContext(c.ctx, query, args...)
}

func (c *Cursor) release() {
	for _, r := range c.rows {
		_ = r.Close()
	}
	c.rows = nil
}

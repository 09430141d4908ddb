package dbsession

import (
	"database/sql"
	"time"
)

// LockMode selects how a Handler serializes concurrent access to the same
// session id. It is fixed at construction time, never chosen per call.
type LockMode int

const (
	// LockNone is last-writer-wins: no explicit locking, the write path is
	// the dialect's atomic UPSERT (or UPDATE-then-INSERT fallback).
	LockNone LockMode = iota
	// LockAdvisory acquires an engine-level advisory lock keyed on the
	// session id on Read, releasing it on Close. Not available on SQLite,
	// not implemented for Oracle or SQL Server.
	LockAdvisory
	// LockTransactional is the default: Read begins a transaction and
	// issues a locking SELECT, materializing a placeholder row for
	// not-yet-seen session ids. The row lock is held until Close.
	LockTransactional
)

func (m LockMode) String() string {
	switch m {
	case LockNone:
		return "none"
	case LockAdvisory:
		return "advisory"
	case LockTransactional:
		return "transactional"
	default:
		return "unknown"
	}
}

// Config is the construction-time bundle for a Handler. Fields are
// immutable once NewHandler returns; there is no per-call reconfiguration.
type Config struct {
	// Table, IDColumn, DataColumn, ExpiryColumn, and TimeColumn name the
	// single persisted table and its four columns. Defaults: "sessions",
	// "sess_id", "sess_data", "sess_expiry", "sess_time".
	Table        string
	IDColumn     string
	DataColumn   string
	ExpiryColumn string
	TimeColumn   string

	// DSN is used to lazily open a connection if DB is nil. Open's
	// savePath argument is used instead when DSN is empty.
	DSN string
	// DB is an already-open, already-validated connection. When set, the
	// gateway never opens or closes it; the host owns its lifecycle.
	DB *sql.DB

	Username          string
	Password          string
	ConnectionOptions map[string]string

	// LockMode selects concurrency control. Left nil, applyDefaults sets it
	// to LockTransactional; a pointer is required so that an explicit
	// LockNone (last-writer-wins, no locking at all) is distinguishable
	// from "not set". Use LockModePtr to embed a literal in a Config value.
	LockMode *LockMode

	// MaxLifetime is the ambient configuration hook read at Write time to
	// compute the new expiry (now + MaxLifetime()), and again at Close
	// when a deferred GC sweep runs. It is never cached across calls.
	// Required.
	MaxLifetime func() int

	// Pool tuning, applied only when the gateway opens its own *sql.DB
	// (ignored when DB is injected).
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c *Config) applyDefaults() {
	if c.Table == "" {
		c.Table = "sessions"
	}
	if c.IDColumn == "" {
		c.IDColumn = "sess_id"
	}
	if c.DataColumn == "" {
		c.DataColumn = "sess_data"
	}
	if c.ExpiryColumn == "" {
		c.ExpiryColumn = "sess_expiry"
	}
	if c.TimeColumn == "" {
		c.TimeColumn = "sess_time"
	}
	if c.LockMode == nil {
		c.LockMode = LockModePtr(LockTransactional)
	}
}

// LockModePtr returns a pointer to m, for embedding a LockMode literal
// directly in a Config value (Config.LockMode; nil means "use the
// default").
func LockModePtr(m LockMode) *LockMode { return &m }

package dbsession

import (
	"context"
	"database/sql"
	"fmt"
)

// queryer is the subset of *sql.DB / *sql.Tx / *sql.Conn the state machine
// needs. All three satisfy it, which lets txManager hand back whichever
// one is "the current unit of work" without the caller branching on it.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txManager wraps begin/commit/rollback around an idempotent active flag,
// special-casing SQLite (manual BEGIN IMMEDIATE/COMMIT/ROLLBACK on a
// dedicated connection) and MySQL (READ COMMITTED isolation).
type txManager struct {
	gw *gateway
	dl *dialect

	tx     *sql.Tx
	conn   *sql.Conn // sqlite only
	active bool
}

func newTxManager(gw *gateway, dl *dialect) *txManager {
	return &txManager{gw: gw, dl: dl}
}

func (m *txManager) inTransaction() bool { return m.active }

func (m *txManager) begin(ctx context.Context) error {
	if m.active {
		return nil
	}

	if m.dl.usesManualTransaction {
		conn, err := m.gw.db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("dbsession: acquire connection: %w", err)
		}
		// Without a busy timeout a BEGIN IMMEDIATE that meets another
		// writer fails at once with SQLITE_BUSY; with one it waits for
		// that writer to commit or roll back.
		if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout = 50000"); err != nil {
			conn.Close()
			return fmt.Errorf("dbsession: set busy timeout: %w", err)
		}
		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE TRANSACTION"); err != nil {
			conn.Close()
			return fmt.Errorf("dbsession: begin immediate: %w", err)
		}
		m.conn = conn
		m.active = true
		return nil
	}

	var opts *sql.TxOptions
	if m.dl.isolation != nil {
		opts = m.dl.isolation()
	}
	tx, err := m.gw.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("dbsession: begin transaction: %w", err)
	}
	m.tx = tx
	m.active = true
	return nil
}

// commit finalizes the transaction. On failure it rolls back and
// re-raises rather than leaving the transaction dangling.
func (m *txManager) commit(ctx context.Context) error {
	if !m.active {
		return nil
	}

	if m.dl.usesManualTransaction {
		_, err := m.conn.ExecContext(ctx, "COMMIT")
		if err != nil {
			m.rollback(ctx)
			return fmt.Errorf("dbsession: commit: %w", err)
		}
		m.active = false
		closeErr := m.conn.Close()
		m.conn = nil
		return closeErr
	}

	if err := m.tx.Commit(); err != nil {
		m.active = false
		m.tx = nil
		return fmt.Errorf("dbsession: commit: %w", err)
	}
	m.active = false
	m.tx = nil
	return nil
}

// rollback only runs if a transaction is actually open — this guard is
// what keeps a redundant rollback from masking whatever error caused the
// caller to ask for one in the first place.
func (m *txManager) rollback(ctx context.Context) {
	if !m.active {
		return
	}
	m.active = false
	if m.dl.usesManualTransaction {
		_, _ = m.conn.ExecContext(ctx, "ROLLBACK")
		_ = m.conn.Close()
		m.conn = nil
		return
	}
	_ = m.tx.Rollback()
	m.tx = nil
}

// unit returns the current unit of work: the open transaction/connection
// if one exists, or the shared *sql.DB when no transaction is open (every
// Write and Destroy under LockNone or LockAdvisory operates outside a
// transaction; LockAdvisory's reads use the lock's pinned connection
// instead).
func (m *txManager) unit() queryer {
	if !m.active {
		return m.gw.db
	}
	if m.dl.usesManualTransaction {
		return m.conn
	}
	return m.tx
}

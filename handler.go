package dbsession

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// maxPlaceholderAttempts bounds the duplicate-key retry loop in
// readTransactional. Concurrent first-touch races always converge after
// the loser observes the winner's row, but an unbounded loop would turn a
// persistent driver misbehavior into a hang.
const maxPlaceholderAttempts = 8

// Handler implements the open/read/write/destroy/gc/close save-handler
// contract described in the package doc. A Handler is not safe for
// concurrent use by multiple goroutines: like the request pipeline it
// plugs into, one instance serves one session lifecycle at a time.
// Concurrency across sessions is what LockAdvisory/LockTransactional
// serialize at the database, not anything inside this struct.
type Handler struct {
	driver  Driver
	dl      *dialect
	cfg     Config
	gw      *gateway
	tx      *txManager
	lock    *lockStrategy

	gcCalled       bool
	sessionExpired bool

	serverVersion      int
	serverVersionKnown bool
}

// NewHandler constructs a Handler for the given driver. The connection is
// not opened yet — that happens lazily on the first Open (or immediately
// on CreateTable, which needs a connection to run its DDL against).
func NewHandler(driver Driver, cfg Config) (*Handler, error) {
	dl, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if cfg.MaxLifetime == nil {
		return nil, fmt.Errorf("%w: MaxLifetime hook is required", ErrConfigurationError)
	}
	cfg.applyDefaults()

	gw := newGateway(driver, &cfg)
	return &Handler{
		driver: driver,
		dl:     dl,
		cfg:    cfg,
		gw:     gw,
		tx:     newTxManager(gw, dl),
		lock:   &lockStrategy{mode: *cfg.LockMode},
	}, nil
}

// Open ensures the connection exists, using savePath as the DSN when none
// was configured on Config. name is accepted for interface parity with
// the save-handler contract but otherwise unused.
func (h *Handler) Open(ctx context.Context, savePath, name string) error {
	return h.gw.ensure(ctx, savePath)
}

// IsSessionExpired reports whether the most recent Read observed an
// expired (or placeholder) row, distinguishing that from a genuinely new
// session id.
func (h *Handler) IsSessionExpired() bool { return h.sessionExpired }

// Read returns the session payload for id, or an empty slice if the
// session doesn't exist yet or has expired (check IsSessionExpired to
// tell the two apart).
func (h *Handler) Read(ctx context.Context, id string) ([]byte, error) {
	h.sessionExpired = false

	switch h.lock.mode {
	case LockNone:
		return h.readRow(ctx, h.gw.db, h.dl.selectPlainSQL(&h.cfg), id)

	case LockAdvisory:
		acquireSQL, acquireArgs, releaseSQL, releaseArgs, err := h.dl.advisoryLockPair(&h.cfg, id)
		if err != nil {
			return nil, err
		}
		// GET_LOCK/pg_advisory_lock and their release are scoped to the
		// connection that issued them, so the pair must share a
		// dedicated *sql.Conn rather than the pooled *sql.DB — the same
		// idiom tx.go uses for SQLite's manual BEGIN IMMEDIATE. The
		// connection is held open across Reads until Close drains it.
		if h.lock.conn == nil {
			conn, err := h.gw.db.Conn(ctx)
			if err != nil {
				return nil, fmt.Errorf("dbsession: acquire connection: %w", err)
			}
			h.lock.conn = conn
		}
		if _, err := h.lock.conn.ExecContext(ctx, acquireSQL, acquireArgs...); err != nil {
			return nil, fmt.Errorf("dbsession: acquire advisory lock: %w", err)
		}
		h.lock.enqueueRelease(releaseSQL, releaseArgs)
		return h.readRow(ctx, h.lock.conn, h.dl.selectPlainSQL(&h.cfg), id)

	case LockTransactional:
		return h.readTransactional(ctx, id)

	default:
		return nil, fmt.Errorf("%w: lock mode %v", ErrConfigurationError, h.lock.mode)
	}
}

func (h *Handler) readRow(ctx context.Context, q queryer, query string, id string) ([]byte, error) {
	var data []byte
	var expiry int64
	row := q.QueryRowContext(ctx, query, []byte(id))
	err := row.Scan(&data, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return []byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dbsession: read session %q: %w", id, err)
	}
	return h.finishRead(data, expiry), nil
}

func (h *Handler) finishRead(data []byte, expiry int64) []byte {
	if expiry == 0 || expiry < time.Now().Unix() {
		h.sessionExpired = true
		return []byte{}
	}
	if data == nil {
		return []byte{}
	}
	return data
}

// readTransactional begins a transaction and issues the dialect's locking
// SELECT. A miss triggers a placeholder INSERT to materialize a row other
// transactions can block on; a duplicate-key error on that INSERT means a
// concurrent reader won the race, so the transaction is rolled back and
// retried from a fresh one (mandatory on PostgreSQL, where a failed
// statement poisons the surrounding transaction).
func (h *Handler) readTransactional(ctx context.Context, id string) ([]byte, error) {
	for attempt := 0; attempt < maxPlaceholderAttempts; attempt++ {
		if err := h.tx.begin(ctx); err != nil {
			return nil, err
		}
		q := h.tx.unit()

		var data []byte
		var expiry int64
		row := q.QueryRowContext(ctx, h.dl.selectLockingSQL(&h.cfg), []byte(id))
		err := row.Scan(&data, &expiry)
		if err == nil {
			return h.finishRead(data, expiry), nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			h.tx.rollback(ctx)
			return nil, fmt.Errorf("dbsession: locking read of session %q: %w", id, err)
		}

		// Not found: insert a placeholder to obtain a row lock on a key
		// that didn't exist a moment ago.
		_, err = q.ExecContext(ctx, h.dl.insertPlaceholderSQL(&h.cfg), []byte(id), []byte{})
		if err != nil {
			if h.dl.isDuplicateKey(err) {
				h.tx.rollback(ctx)
				continue
			}
			h.tx.rollback(ctx)
			return nil, fmt.Errorf("dbsession: insert placeholder for session %q: %w", id, err)
		}
		// The row did not exist before this read: a genuinely new session,
		// not an expired one.
		return []byte{}, nil
	}
	return nil, fmt.Errorf("dbsession: exceeded %d attempts acquiring row lock for session %q", maxPlaceholderAttempts, id)
}

// Write persists data for id, computing its expiry from the ambient
// MaxLifetime hook. It prefers the dialect's atomic UPSERT; when one isn't
// available it falls back to UPDATE, then INSERT if no row was updated,
// retrying as UPDATE if that INSERT loses a race to a duplicate key.
func (h *Handler) Write(ctx context.Context, id string, data []byte) error {
	if err := h.ensureServerVersion(ctx); err != nil {
		return err
	}

	now := time.Now()
	expiry := now.Add(time.Duration(h.cfg.MaxLifetime()) * time.Second).Unix()
	q := h.tx.unit()

	if upsert, ok := h.dl.upsertSQL(&h.cfg, h.serverVersion); ok {
		if _, err := q.ExecContext(ctx, upsert, []byte(id), data, expiry, now.Unix()); err != nil {
			h.tx.rollback(ctx)
			return fmt.Errorf("dbsession: upsert session %q: %w", id, err)
		}
		return nil
	}

	res, err := q.ExecContext(ctx, h.dl.updateSQL(&h.cfg), data, expiry, now.Unix(), []byte(id))
	if err != nil {
		h.tx.rollback(ctx)
		return fmt.Errorf("dbsession: update session %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = q.ExecContext(ctx, h.dl.insertSQL(&h.cfg), []byte(id), data, expiry, now.Unix())
	if err == nil {
		return nil
	}
	if h.dl.isDuplicateKey(err) {
		// Another writer inserted first; fall back to UPDATE against
		// whatever it just wrote.
		if _, err := q.ExecContext(ctx, h.dl.updateSQL(&h.cfg), data, expiry, now.Unix(), []byte(id)); err != nil {
			h.tx.rollback(ctx)
			return fmt.Errorf("dbsession: update session %q after insert race: %w", id, err)
		}
		return nil
	}
	h.tx.rollback(ctx)
	return fmt.Errorf("dbsession: insert session %q: %w", id, err)
}

func (h *Handler) ensureServerVersion(ctx context.Context) error {
	if h.serverVersionKnown || !h.dl.needsServerVersion {
		return nil
	}
	v, err := h.gw.serverVersion(ctx)
	if err != nil {
		return err
	}
	h.serverVersion = v
	h.serverVersionKnown = true
	return nil
}

// Destroy deletes the session row for id.
func (h *Handler) Destroy(ctx context.Context, id string) error {
	q := h.tx.unit()
	if _, err := q.ExecContext(ctx, h.dl.deleteSQL(&h.cfg), []byte(id)); err != nil {
		h.tx.rollback(ctx)
		return fmt.Errorf("dbsession: destroy session %q: %w", id, err)
	}
	return nil
}

// Gc marks that a garbage-collection sweep should happen at Close, and
// returns how many rows currently qualify without deleting any of them
// yet — deletion stays deferred to Close so it never blocks the active
// session's critical section. maxLifetime is accepted for interface
// parity with the host framework's gc(maxlifetime) contract; the actual
// sweep uses each row's own absolute expiry column rather than
// recomputing one from maxLifetime.
func (h *Handler) Gc(ctx context.Context, maxLifetime int) (int, error) {
	h.gcCalled = true
	if err := h.gw.ensure(ctx, ""); err != nil {
		return 0, err
	}
	var n int
	row := h.gw.db.QueryRowContext(ctx, h.dl.countExpiredSQL(&h.cfg), time.Now().Unix())
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("dbsession: count expired sessions: %w", err)
	}
	return n, nil
}

// Close commits any open transaction, drains queued advisory releases in
// FIFO order, runs the deferred GC sweep if Gc was called since the last
// Close, and drops the connection if it was opened lazily.
func (h *Handler) Close(ctx context.Context) error {
	var firstErr error

	if err := h.tx.commit(ctx); err != nil {
		firstErr = err
	}

	for _, p := range h.lock.drain() {
		if _, err := h.lock.conn.ExecContext(ctx, p.sql, p.args...); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("dbsession: release advisory lock: %w", err)
		}
	}
	if h.lock.conn != nil {
		if err := h.lock.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		h.lock.conn = nil
	}

	if h.gcCalled {
		// Ambient hook re-read here for parity with Write's use of it;
		// the DELETE itself only needs each row's stored expiry column.
		_ = h.cfg.MaxLifetime()
		if _, err := h.gw.db.ExecContext(ctx, h.dl.deleteExpiredSQL(&h.cfg), time.Now().Unix()); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("dbsession: gc sweep: %w", err)
		}
		h.gcCalled = false
	}

	if err := h.gw.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// CreateTable is a one-shot DDL helper: it ensures a connection, runs the
// dialect's CREATE TABLE, and propagates the driver's error verbatim —
// including "table already exists" — rather than swallowing it.
func (h *Handler) CreateTable(ctx context.Context) error {
	if err := h.gw.ensure(ctx, h.cfg.DSN); err != nil {
		return err
	}
	if _, err := h.gw.db.ExecContext(ctx, h.dl.createTableSQL(&h.cfg)); err != nil {
		h.tx.rollback(ctx)
		return fmt.Errorf("dbsession: create table %s: %w", h.cfg.Table, err)
	}
	return nil
}

package dbsession

import "database/sql"

// pendingRelease is a small value object standing in for one of the
// source's list of prepared release statements: an already-bound SQL
// statement to run at Close to release an advisory lock acquired earlier
// during Read. Modeling it as a value instead of a closure keeps the
// queue trivially FIFO-drainable and needs no captured state.
type pendingRelease struct {
	sql  string
	args []any
}

// lockStrategy holds the mode chosen at construction, the queue of
// advisory releases accumulated since the last Close, and — for
// LockAdvisory only — the single physical connection pinned for the
// GET_LOCK/pg_advisory_lock acquire and its eventual release. Both
// primitives are scoped to the connection/session that acquired them, so
// the acquire, any plain reads made while the lock is held, and the
// release must all run on this same *sql.Conn rather than the pooled
// *sql.DB.
type lockStrategy struct {
	mode    LockMode
	pending []pendingRelease
	conn    *sql.Conn
}

func (l *lockStrategy) enqueueRelease(sql string, args []any) {
	l.pending = append(l.pending, pendingRelease{sql: sql, args: args})
}

// drain returns the queued releases in FIFO order and empties the queue.
func (l *lockStrategy) drain() []pendingRelease {
	out := l.pending
	l.pending = nil
	return out
}

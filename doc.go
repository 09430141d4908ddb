/*
Package dbsession implements a database-backed session save-handler with the
same open/read/write/destroy/gc/close lifecycle a web framework expects from
its session persistence layer, portable across MySQL, PostgreSQL, SQLite,
Oracle, and SQL Server.

The hard part is not talking to any one of these engines; it is making a
single session id behave as a mutually exclusive critical section across a
read-then-write request lifecycle no matter which engine is behind it. Each
engine exposes that guarantee differently — row locks under a locking SELECT,
an application-level advisory lock, or (for SQLite) a database-wide reserved
lock acquired at BEGIN IMMEDIATE — and dbsession picks the right primitive
per driver while keeping the state machine driver-agnostic.

Usage:

	h, err := dbsession.NewHandler(dbsession.DriverSQLite, dbsession.Config{
		DSN:         "sessions.db",
		MaxLifetime: func() int { return 3600 },
	})
	if err != nil {
		log.Fatal(err)
	}
	defer h.Close(ctx)

	if err := h.CreateTable(ctx); err != nil {
		log.Fatal(err)
	}
	if err := h.Open(ctx, "sessions.db", "PHPSESSID"); err != nil {
		log.Fatal(err)
	}

	data, err := h.Read(ctx, sessionID)
	if err != nil {
		log.Fatal(err)
	}
	if h.IsSessionExpired() {
		// treat as a brand new session
	}
	if err := h.Write(ctx, sessionID, newPayload); err != nil {
		log.Fatal(err)
	}

Lock modes:

  - LockNone: last-writer-wins, no explicit locking; fastest, weakest.
  - LockAdvisory: an engine-level advisory lock keyed on the session id;
    unavailable on SQLite, not implemented for Oracle or SQL Server.
  - LockTransactional (default): a row lock obtained via a locking SELECT,
    materializing a placeholder row for session ids that don't exist yet so
    concurrent first-touch requests still serialize on the same row.

The session payload is treated as an opaque byte string end to end — this
package never encodes or interprets it, and never generates session ids;
both are the host application's responsibility.
*/
package dbsession

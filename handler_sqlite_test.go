package dbsession

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newSQLiteHandler(t *testing.T, mode LockMode, maxLifetimeSeconds func() int) (*Handler, string) {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "sessions.db")

	h, err := NewHandler(DriverSQLite, Config{
		DSN:         dsn,
		LockMode:    &mode,
		MaxLifetime: maxLifetimeSeconds,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	ctx := context.Background()
	if err := h.CreateTable(ctx); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := h.Open(ctx, dsn, "PHPSESSID"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return h, dsn
}

func lifetime(seconds int) func() int {
	return func() int { return seconds }
}

// A brand new session id reads back empty and non-expired, and a write
// survives a close/reopen cycle byte for byte.
func TestSQLiteNewSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	h, dsn := newSQLiteHandler(t, LockTransactional, lifetime(3600))

	data, err := h.Read(ctx, "abc")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(data) != 0 || h.IsSessionExpired() {
		t.Fatalf("expected empty, non-expired new session; got %q expired=%v", data, h.IsSessionExpired())
	}

	payload := []byte("\x00\x01data")
	if err := h.Write(ctx, "abc", payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h2, err := NewHandler(DriverSQLite, Config{DSN: dsn, LockMode: LockModePtr(LockTransactional), MaxLifetime: lifetime(3600)})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if err := h2.Open(ctx, dsn, "PHPSESSID"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h2.Close(ctx)

	got, err := h2.Read(ctx, "abc")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected byte-for-byte round trip, got %q want %q", got, payload)
	}
	if h2.IsSessionExpired() {
		t.Fatal("expected a freshly written session to not be expired")
	}
}

// A session written with a one-second lifetime reads back empty and
// expired once that lifetime has elapsed.
func TestSQLiteExpiry(t *testing.T) {
	ctx := context.Background()
	h, dsn := newSQLiteHandler(t, LockTransactional, lifetime(1))

	if err := h.Write(ctx, "x", []byte("v")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	time.Sleep(2 * time.Second)

	h2, err := NewHandler(DriverSQLite, Config{DSN: dsn, LockMode: LockModePtr(LockTransactional), MaxLifetime: lifetime(1)})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if err := h2.Open(ctx, dsn, "PHPSESSID"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h2.Close(ctx)

	got, err := h2.Read(ctx, "x")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload for expired session, got %q", got)
	}
	if !h2.IsSessionExpired() {
		t.Fatal("expected IsSessionExpired to be true after expiry")
	}
}

// Destroying a session twice is not an error, and the session reads
// back as new afterward.
func TestSQLiteDestroyIdempotent(t *testing.T) {
	ctx := context.Background()
	h, _ := newSQLiteHandler(t, LockTransactional, lifetime(3600))
	defer h.Close(ctx)

	if err := h.Write(ctx, "d1", []byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.Destroy(ctx, "d1"); err != nil {
		t.Fatalf("first Destroy: %v", err)
	}
	if err := h.Destroy(ctx, "d1"); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}

	got, err := h.Read(ctx, "d1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 0 || h.IsSessionExpired() {
		t.Fatalf("expected a destroyed session to read back as new (empty, not expired), got %q expired=%v", got, h.IsSessionExpired())
	}
}

// Gc reports the expired-row count without deleting; the sweep itself
// runs at Close and leaves only unexpired rows behind.
func TestSQLiteDeferredGC(t *testing.T) {
	ctx := context.Background()
	h, dsn := newSQLiteHandler(t, LockNone, lifetime(3600))

	now := time.Now().Unix()
	insertRaw := func(id string, expiry int64) {
		if _, err := h.gw.db.ExecContext(ctx,
			"INSERT INTO sessions (sess_id, sess_data, sess_expiry, sess_time) VALUES (?, ?, ?, ?)",
			[]byte(id), []byte("x"), expiry, now); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}
	insertRaw("past1", now-10)
	insertRaw("past2", now-5)
	insertRaw("future", now+10)

	n, err := h.Gc(ctx, 3600)
	if err != nil {
		t.Fatalf("Gc: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected Gc to report 2 expired rows before deletion, got %d", n)
	}

	// Gc must not have deleted anything yet.
	var count int
	if err := h.gw.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected Gc to defer deletion, found %d rows", count)
	}

	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h2, err := NewHandler(DriverSQLite, Config{DSN: dsn, LockMode: LockModePtr(LockNone), MaxLifetime: lifetime(3600)})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if err := h2.Open(ctx, dsn, "PHPSESSID"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h2.Close(ctx)

	if err := h2.gw.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		t.Fatalf("count after close: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one surviving row after the deferred sweep, got %d", count)
	}
}

// Under LockNone, two sequential writes to the same id leave the last
// one's payload in place.
func TestSQLiteLastWriterWinsUnderLockNone(t *testing.T) {
	ctx := context.Background()
	h, _ := newSQLiteHandler(t, LockNone, lifetime(3600))
	defer h.Close(ctx)

	if err := h.Write(ctx, "lww", []byte("first")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := h.Write(ctx, "lww", []byte("second")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := h.Read(ctx, "lww")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("second")) {
		t.Fatalf("expected the last write to win, got %q", got)
	}
}

// Advisory locking is unavailable on SQLite, and the failure surfaces on
// the first Read, not at construction.
func TestSQLiteAdvisoryLockUnsupported(t *testing.T) {
	ctx := context.Background()
	h, _ := newSQLiteHandler(t, LockAdvisory, lifetime(3600))
	defer h.Close(ctx)

	_, err := h.Read(ctx, "whatever")
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

// Mutual exclusion exercised at the scale a single test process can
// drive: two handlers against the same file, transactional lock mode. The
// second Read must block until the first Close releases the database-wide
// write lock taken by BEGIN IMMEDIATE.
func TestSQLiteTransactionalMutualExclusion(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "sessions.db")

	seed, err := NewHandler(DriverSQLite, Config{DSN: dsn, LockMode: LockModePtr(LockTransactional), MaxLifetime: lifetime(3600)})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if err := seed.CreateTable(ctx); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := seed.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	first, err := NewHandler(DriverSQLite, Config{DSN: dsn, LockMode: LockModePtr(LockTransactional), MaxLifetime: lifetime(3600)})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if err := first.Open(ctx, dsn, "s"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := first.Read(ctx, "shared"); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := first.Write(ctx, "shared", []byte("from-first")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		second, err := NewHandler(DriverSQLite, Config{DSN: dsn, LockMode: LockModePtr(LockTransactional), MaxLifetime: lifetime(3600)})
		if err != nil {
			t.Errorf("NewHandler: %v", err)
			return
		}
		if err := second.Open(ctx, dsn, "s"); err != nil {
			t.Errorf("Open: %v", err)
			return
		}
		defer second.Close(ctx)
		if _, err := second.Read(ctx, "shared"); err != nil {
			t.Errorf("Read: %v", err)
			return
		}
		if err := second.Write(ctx, "shared", []byte("from-second")); err != nil {
			t.Errorf("Write: %v", err)
			return
		}
	}()

	select {
	case <-done:
		t.Fatal("second handler's Read should have blocked until first Close")
	case <-time.After(200 * time.Millisecond):
	}

	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second handler never completed after first Close released the lock")
	}

	verify, err := NewHandler(DriverSQLite, Config{DSN: dsn, LockMode: LockModePtr(LockNone), MaxLifetime: lifetime(3600)})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if err := verify.Open(ctx, dsn, "s"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer verify.Close(ctx)
	got, err := verify.Read(ctx, "shared")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("from-second")) {
		t.Fatalf("expected the second (later) writer's payload to survive, got %q", got)
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

package dbsession

import (
	"database/sql"
	"fmt"
)

// Driver identifies one of the five relational engines dbsession supports.
// It intentionally mirrors PDO-style driver tags rather than Go driver
// names, since a caller thinks in terms of "which database", not "which
// database/sql driver string".
type Driver string

const (
	DriverMySQL     Driver = "mysql"
	DriverPostgres  Driver = "pgsql"
	DriverSQLite    Driver = "sqlite"
	DriverOracle    Driver = "oci"
	DriverSQLServer Driver = "sqlsrv"
)

// dialect collects the SQL fragments and quirks that differ across engines
// so the session state machine (handler.go) never branches on Driver
// itself. Each supported Driver registers exactly one dialect via init().
type dialect struct {
	// driverName is the string passed to sql.Open.
	driverName string

	createTableSQL       func(cfg *Config) string
	selectLockingSQL     func(cfg *Config) string
	selectPlainSQL       func(cfg *Config) string
	updateSQL            func(cfg *Config) string
	insertSQL            func(cfg *Config) string
	insertPlaceholderSQL func(cfg *Config) string
	deleteSQL            func(cfg *Config) string
	deleteExpiredSQL     func(cfg *Config) string
	countExpiredSQL      func(cfg *Config) string

	// upsertSQL returns a single-statement atomic merge and true when one
	// is available for the given server version (0 means "unknown/not
	// applicable"); it returns ("", false) when the caller must fall back
	// to UPDATE-then-INSERT.
	upsertSQL func(cfg *Config, serverVersion int) (string, bool)

	// advisoryLockPair returns the acquire/release statement and bound
	// arguments for LockAdvisory, or an error when the driver can't do it.
	advisoryLockPair func(cfg *Config, id string) (acquireSQL string, acquireArgs []any, releaseSQL string, releaseArgs []any, err error)

	// isDuplicateKey classifies a driver error as a unique/primary-key
	// violation (SQLSTATE class "23" and engine equivalents).
	isDuplicateKey func(err error) bool

	// needsServerVersion tells the handler to probe the server version
	// once before the first Write, since upsertSQL's availability depends
	// on it (PostgreSQL >= 9.5, SQL Server >= 2008).
	needsServerVersion bool

	// usesManualTransaction is set for SQLite: transactions are started
	// and ended with literal BEGIN IMMEDIATE / COMMIT / ROLLBACK
	// statements on a dedicated *sql.Conn rather than sql.DB.BeginTx.
	usesManualTransaction bool

	// isolation, when set, supplies the *sql.TxOptions used to start a
	// native transaction (MySQL sets READ COMMITTED to avoid gap-lock
	// deadlocks under the default REPEATABLE READ).
	isolation func() *sql.TxOptions
}

var registry = map[Driver]*dialect{}

func registerDialect(d Driver, dl *dialect) {
	registry[d] = dl
}

func dialectFor(d Driver) (*dialect, error) {
	dl, ok := registry[d]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, d)
	}
	return dl, nil
}

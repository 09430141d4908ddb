package dbsession

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// gateway owns the *sql.DB a Handler talks to. It either wraps a
// host-injected connection (which outlives the handler) or lazily opens
// one from a DSN on first use and drops it again on Close.
type gateway struct {
	driver Driver
	dsn    string
	db     *sql.DB
	lazy   bool

	pool poolTuning
}

type poolTuning struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
}

func newGateway(driver Driver, cfg *Config) *gateway {
	g := &gateway{
		driver: driver,
		dsn:    cfg.DSN,
		pool: poolTuning{
			maxOpenConns:    cfg.MaxOpenConns,
			maxIdleConns:    cfg.MaxIdleConns,
			connMaxLifetime: cfg.ConnMaxLifetime,
			connMaxIdleTime: cfg.ConnMaxIdleTime,
		},
	}
	if cfg.DB != nil {
		g.db = cfg.DB
		g.lazy = false
	} else {
		g.lazy = true
	}
	return g
}

// ensure materializes the connection if it doesn't exist yet. savePathDSN
// is Open's savePath argument, used only when Config.DSN was left empty.
func (g *gateway) ensure(ctx context.Context, savePathDSN string) error {
	if g.db != nil {
		return nil
	}
	dsn := g.dsn
	if dsn == "" {
		dsn = savePathDSN
	}
	if dsn == "" {
		return fmt.Errorf("%w: no DSN configured and none supplied to Open", ErrConfigurationError)
	}

	dl, err := dialectFor(g.driver)
	if err != nil {
		return err
	}

	db, err := sql.Open(dl.driverName, dsn)
	if err != nil {
		return fmt.Errorf("dbsession: open %s: %w", g.driver, err)
	}
	if g.pool.maxOpenConns > 0 {
		db.SetMaxOpenConns(g.pool.maxOpenConns)
	}
	if g.pool.maxIdleConns > 0 {
		db.SetMaxIdleConns(g.pool.maxIdleConns)
	}
	if g.pool.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(g.pool.connMaxLifetime)
	}
	if g.pool.connMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(g.pool.connMaxIdleTime)
	}

	// database/sql always reports failures through returned errors, never
	// through a silent status code, so there is no PDO-style "exception
	// mode" attribute to set here — Ping is enough to fail fast.
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("dbsession: ping %s: %w", g.driver, err)
	}

	g.db = db
	g.dsn = dsn
	return nil
}

// close drops the connection only if the gateway opened it itself; an
// injected connection outlives the handler.
func (g *gateway) close() error {
	if !g.lazy || g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}

// serverVersion probes the server version number relevant to upsertSQL's
// availability decision. It returns 0 ("unknown/not applicable") for
// drivers whose upsert doesn't depend on version.
func (g *gateway) serverVersion(ctx context.Context) (int, error) {
	switch g.driver {
	case DriverPostgres:
		var raw string
		if err := g.db.QueryRowContext(ctx, "SHOW server_version_num").Scan(&raw); err != nil {
			return 0, fmt.Errorf("dbsession: read postgres server_version_num: %w", err)
		}
		return atoiOrZero(raw), nil
	case DriverSQLServer:
		var major int
		row := g.db.QueryRowContext(ctx, "SELECT CAST(SERVERPROPERTY('ProductMajorVersion') AS INT)")
		if err := row.Scan(&major); err != nil {
			return 0, fmt.Errorf("dbsession: read sqlserver ProductMajorVersion: %w", err)
		}
		return major, nil
	default:
		return 0, nil
	}
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

package dbsession

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

func init() {
	registerDialect(DriverPostgres, &dialect{
		driverName: "postgres",

		createTableSQL: func(cfg *Config) string {
			return fmt.Sprintf(`CREATE TABLE %s (
	%s BYTEA PRIMARY KEY,
	%s BYTEA NOT NULL,
	%s BIGINT NOT NULL,
	%s BIGINT NOT NULL
)`, cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},

		selectLockingSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = $1 FOR UPDATE",
				cfg.DataColumn, cfg.ExpiryColumn, cfg.Table, cfg.IDColumn)
		},
		selectPlainSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = $1",
				cfg.DataColumn, cfg.ExpiryColumn, cfg.Table, cfg.IDColumn)
		},
		updateSQL: func(cfg *Config) string {
			return fmt.Sprintf("UPDATE %s SET %s = $1, %s = $2, %s = $3 WHERE %s = $4",
				cfg.Table, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn, cfg.IDColumn)
		},
		insertSQL: func(cfg *Config) string {
			return fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES ($1, $2, $3, $4)",
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},
		insertPlaceholderSQL: func(cfg *Config) string {
			return fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES ($1, $2, 0, 0)",
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},
		deleteSQL: func(cfg *Config) string {
			return fmt.Sprintf("DELETE FROM %s WHERE %s = $1", cfg.Table, cfg.IDColumn)
		},
		deleteExpiredSQL: func(cfg *Config) string {
			return fmt.Sprintf("DELETE FROM %s WHERE %s < $1", cfg.Table, cfg.ExpiryColumn)
		},
		countExpiredSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < $1", cfg.Table, cfg.ExpiryColumn)
		},

		// server_version_num reads e.g. 150003 for 15.3, 90500 for 9.5.0.
		// 90500 is the PostgreSQL 9.5 threshold at which ON CONFLICT exists,
		// and every version >= 10 numbers itself well above that already.
		upsertSQL: func(cfg *Config, serverVersionNum int) (string, bool) {
			if serverVersionNum != 0 && serverVersionNum < 90500 {
				return "", false
			}
			return fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s) VALUES ($1, $2, $3, $4)
	ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s, %s = EXCLUDED.%s, %s = EXCLUDED.%s`,
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn,
				cfg.IDColumn,
				cfg.DataColumn, cfg.DataColumn,
				cfg.ExpiryColumn, cfg.ExpiryColumn,
				cfg.TimeColumn, cfg.TimeColumn), true
		},

		advisoryLockPair: func(cfg *Config, id string) (string, []any, string, []any, error) {
			wide, a, b := pgAdvisoryLockArgs(id)
			if wide {
				return "SELECT pg_advisory_lock($1)", []any{a},
					"SELECT pg_advisory_unlock($1)", []any{a}, nil
			}
			return "SELECT pg_advisory_lock($1, $2)", []any{a, b},
				"SELECT pg_advisory_unlock($1, $2)", []any{a, b}, nil
		},

		isDuplicateKey: func(err error) bool {
			var pe *pq.Error
			if errors.As(err, &pe) {
				return pe.Code.Class() == "23"
			}
			return strings.Contains(err.Error(), "duplicate key value")
		},

		needsServerVersion: true,
	})
}

// pgAdvisoryLockArgs derives pg_advisory_lock keys from id: on a
// 64-bit host a single 60-bit integer from the first 15 hex chars of id's
// hex encoding; on 32-bit, two 28-bit integers from 7 hex chars each. One
// fewer hex char than would fill the native int is used in both cases so
// the value is representable as a signed integer without the driver
// rejecting it. id is hex-encoded first (rather than assumed to already be
// hex) so any opaque session id, not just PHP-style hex ids, works.
func pgAdvisoryLockArgs(id string) (wide bool, keyA, keyB int64) {
	hexID := hex.EncodeToString([]byte(id))
	if strconv.IntSize == 64 {
		const n = 15
		hexID = padHex(hexID, n)
		v, _ := strconv.ParseInt(hexID[:n], 16, 64)
		return true, v, 0
	}
	const n = 7
	hexID = padHex(hexID, 2*n)
	a, _ := strconv.ParseInt(hexID[:n], 16, 64)
	b, _ := strconv.ParseInt(hexID[n:2*n], 16, 64)
	return false, a, b
}

func padHex(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat("0", n-len(s))
}

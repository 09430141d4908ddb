package dbsession

import (
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

func init() {
	registerDialect(DriverSQLite, &dialect{
		driverName: "sqlite",

		createTableSQL: func(cfg *Config) string {
			return fmt.Sprintf(`CREATE TABLE %s (
	%s BLOB PRIMARY KEY,
	%s BLOB NOT NULL,
	%s INTEGER NOT NULL,
	%s INTEGER NOT NULL
)`, cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},

		// SQLite has no row-level locking; BEGIN IMMEDIATE already reserves
		// the whole database for writing, so the locking and plain SELECTs
		// are identical here.
		selectLockingSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ?",
				cfg.DataColumn, cfg.ExpiryColumn, cfg.Table, cfg.IDColumn)
		},
		selectPlainSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ?",
				cfg.DataColumn, cfg.ExpiryColumn, cfg.Table, cfg.IDColumn)
		},
		updateSQL: func(cfg *Config) string {
			return fmt.Sprintf("UPDATE %s SET %s = ?, %s = ?, %s = ? WHERE %s = ?",
				cfg.Table, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn, cfg.IDColumn)
		},
		insertSQL: func(cfg *Config) string {
			return fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (?, ?, ?, ?)",
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},
		insertPlaceholderSQL: func(cfg *Config) string {
			return fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (?, ?, 0, 0)",
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},
		deleteSQL: func(cfg *Config) string {
			return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", cfg.Table, cfg.IDColumn)
		},
		deleteExpiredSQL: func(cfg *Config) string {
			return fmt.Sprintf("DELETE FROM %s WHERE %s < ?", cfg.Table, cfg.ExpiryColumn)
		},
		countExpiredSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < ?", cfg.Table, cfg.ExpiryColumn)
		},

		upsertSQL: func(cfg *Config, _ int) (string, bool) {
			return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s, %s, %s, %s) VALUES (?, ?, ?, ?)",
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn), true
		},

		advisoryLockPair: func(cfg *Config, id string) (string, []any, string, []any, error) {
			return "", nil, "", nil, fmt.Errorf("%w: advisory locking is not available on sqlite", ErrUnsupportedOperation)
		},

		isDuplicateKey: func(err error) bool {
			return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
				strings.Contains(err.Error(), "constraint failed")
		},

		usesManualTransaction: true,
	})
}

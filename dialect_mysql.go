package dbsession

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

func init() {
	registerDialect(DriverMySQL, &dialect{
		driverName: "mysql",

		createTableSQL: func(cfg *Config) string {
			return fmt.Sprintf(`CREATE TABLE %s (
	%s VARBINARY(128) NOT NULL PRIMARY KEY,
	%s BLOB NOT NULL,
	%s BIGINT UNSIGNED NOT NULL,
	%s BIGINT UNSIGNED NOT NULL
)`, cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},

		// MySQL locks the row with FOR UPDATE inside an explicit transaction.
		selectLockingSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ? FOR UPDATE",
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
			return fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s) VALUES (?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE %s = VALUES(%s), %s = VALUES(%s), %s = VALUES(%s)`,
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn,
				cfg.DataColumn, cfg.DataColumn,
				cfg.ExpiryColumn, cfg.ExpiryColumn,
				cfg.TimeColumn, cfg.TimeColumn), true
		},

		// 50-second timeout matches the default innodb_lock_wait_timeout.
		advisoryLockPair: func(cfg *Config, id string) (string, []any, string, []any, error) {
			return "SELECT GET_LOCK(?, 50)", []any{id}, "SELECT RELEASE_LOCK(?)", []any{id}, nil
		},

		isDuplicateKey: func(err error) bool {
			var me *mysql.MySQLError
			if errors.As(err, &me) {
				return me.Number == 1062
			}
			return strings.Contains(err.Error(), "Duplicate entry")
		},

		// The default REPEATABLE READ triggers gap-lock deadlocks between
		// concurrent sessions touching the same id; READ COMMITTED avoids it.
		isolation: func() *sql.TxOptions {
			return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
		},
	})
}

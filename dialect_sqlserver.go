package dbsession

import (
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

func init() {
	registerDialect(DriverSQLServer, &dialect{
		driverName: "sqlserver",

		createTableSQL: func(cfg *Config) string {
			return fmt.Sprintf(`CREATE TABLE %s (
	%s VARBINARY(128) PRIMARY KEY,
	%s VARBINARY(MAX) NOT NULL,
	%s BIGINT NOT NULL,
	%s BIGINT NOT NULL
)`, cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},

		selectLockingSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT %s, %s FROM %s WITH (UPDLOCK, ROWLOCK) WHERE %s = @p1",
				cfg.DataColumn, cfg.ExpiryColumn, cfg.Table, cfg.IDColumn)
		},
		selectPlainSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = @p1",
				cfg.DataColumn, cfg.ExpiryColumn, cfg.Table, cfg.IDColumn)
		},
		updateSQL: func(cfg *Config) string {
			return fmt.Sprintf("UPDATE %s SET %s = @p1, %s = @p2, %s = @p3 WHERE %s = @p4",
				cfg.Table, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn, cfg.IDColumn)
		},
		insertSQL: func(cfg *Config) string {
			return fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (@p1, @p2, @p3, @p4)",
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},
		insertPlaceholderSQL: func(cfg *Config) string {
			return fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (@p1, @p2, 0, 0)",
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},
		deleteSQL: func(cfg *Config) string {
			return fmt.Sprintf("DELETE FROM %s WHERE %s = @p1", cfg.Table, cfg.IDColumn)
		},
		deleteExpiredSQL: func(cfg *Config) string {
			return fmt.Sprintf("DELETE FROM %s WHERE %s < @p1", cfg.Table, cfg.ExpiryColumn)
		},
		countExpiredSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < @p1", cfg.Table, cfg.ExpiryColumn)
		},

		// SQL Server's plain MERGE has a well-known race under concurrent
		// callers; WITH (HOLDLOCK) forces a serializable-strength lock on
		// the target range for the duration of the statement to close it.
		upsertSQL: func(cfg *Config, productMajorVersion int) (string, bool) {
			if productMajorVersion != 0 && productMajorVersion < 10 {
				return "", false
			}
			return fmt.Sprintf(`MERGE INTO %s WITH (HOLDLOCK) AS dst
	USING (SELECT @p1 AS %s, @p2 AS %s, @p3 AS %s, @p4 AS %s) AS src
	ON (dst.%s = src.%s)
	WHEN MATCHED THEN UPDATE SET dst.%s = src.%s, dst.%s = src.%s
	WHEN NOT MATCHED THEN INSERT (%s, %s, %s, %s) VALUES (src.%s, src.%s, src.%s, src.%s);`,
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn,
				cfg.IDColumn, cfg.IDColumn,
				cfg.DataColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.ExpiryColumn,
				cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn,
				cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn), true
		},

		advisoryLockPair: func(cfg *Config, id string) (string, []any, string, []any, error) {
			return "", nil, "", nil, fmt.Errorf("%w: advisory locking is not implemented for sqlsrv", ErrUnsupportedOperation)
		},

		isDuplicateKey: func(err error) bool {
			return strings.Contains(err.Error(), "Violation of PRIMARY KEY constraint") ||
				strings.Contains(err.Error(), "Cannot insert duplicate key")
		},

		needsServerVersion: true,
	})
}

package dbsession

import (
	"fmt"
	"strings"

	_ "github.com/sijms/go-ora/v2"
)

func init() {
	registerDialect(DriverOracle, &dialect{
		driverName: "oracle",

		createTableSQL: func(cfg *Config) string {
			return fmt.Sprintf(`CREATE TABLE %s (
	%s RAW(128) PRIMARY KEY,
	%s BLOB,
	%s NUMBER(20) NOT NULL,
	%s NUMBER(20) NOT NULL
)`, cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},

		selectLockingSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = :1 FOR UPDATE",
				cfg.DataColumn, cfg.ExpiryColumn, cfg.Table, cfg.IDColumn)
		},
		selectPlainSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = :1",
				cfg.DataColumn, cfg.ExpiryColumn, cfg.Table, cfg.IDColumn)
		},
		updateSQL: func(cfg *Config) string {
			return fmt.Sprintf("UPDATE %s SET %s = :1, %s = :2, %s = :3 WHERE %s = :4",
				cfg.Table, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn, cfg.IDColumn)
		},
		insertSQL: func(cfg *Config) string {
			return fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (:1, :2, :3, :4)",
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},
		insertPlaceholderSQL: func(cfg *Config) string {
			return fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (:1, :2, 0, 0)",
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn)
		},
		deleteSQL: func(cfg *Config) string {
			return fmt.Sprintf("DELETE FROM %s WHERE %s = :1", cfg.Table, cfg.IDColumn)
		},
		deleteExpiredSQL: func(cfg *Config) string {
			return fmt.Sprintf("DELETE FROM %s WHERE %s < :1", cfg.Table, cfg.ExpiryColumn)
		},
		countExpiredSQL: func(cfg *Config) string {
			return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < :1", cfg.Table, cfg.ExpiryColumn)
		},

		upsertSQL: func(cfg *Config, _ int) (string, bool) {
			return fmt.Sprintf(`MERGE INTO %s dst
	USING (SELECT :1 AS %s, :2 AS %s, :3 AS %s, :4 AS %s FROM DUAL) src
	ON (dst.%s = src.%s)
	WHEN MATCHED THEN UPDATE SET dst.%s = src.%s, dst.%s = src.%s
	WHEN NOT MATCHED THEN INSERT (%s, %s, %s, %s) VALUES (src.%s, src.%s, src.%s, src.%s)`,
				cfg.Table, cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn,
				cfg.IDColumn, cfg.IDColumn,
				cfg.DataColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.ExpiryColumn,
				cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn,
				cfg.IDColumn, cfg.DataColumn, cfg.ExpiryColumn, cfg.TimeColumn), true
		},

		advisoryLockPair: func(cfg *Config, id string) (string, []any, string, []any, error) {
			return "", nil, "", nil, fmt.Errorf("%w: advisory locking is not implemented for oracle", ErrUnsupportedOperation)
		},

		isDuplicateKey: func(err error) bool {
			return strings.Contains(err.Error(), "ORA-00001")
		},
	})
}

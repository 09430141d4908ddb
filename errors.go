package dbsession

import "errors"

var (
	// ErrUnsupportedDriver is returned when a driver tag outside the closed
	// set {mysql, pgsql, sqlite, oci, sqlsrv} is requested for DDL, a
	// locking SELECT, or advisory lock support.
	ErrUnsupportedDriver = errors.New("dbsession: unsupported driver")

	// ErrUnsupportedOperation is returned when an operation is not
	// implemented for a given driver even though the driver itself is
	// supported — advisory locking on Oracle or SQL Server, for instance.
	ErrUnsupportedOperation = errors.New("dbsession: operation not implemented for driver")

	// ErrConfigurationError is returned for a handler misconfiguration:
	// an unknown lock mode value, no DSN to connect with, or a missing
	// mandatory collaborator such as the max-lifetime hook. A lock mode
	// the driver cannot honor (LockAdvisory on SQLite, Oracle or SQL
	// Server) is reported as ErrUnsupportedOperation instead.
	ErrConfigurationError = errors.New("dbsession: configuration error")
)

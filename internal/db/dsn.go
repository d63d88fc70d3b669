package db

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// IsDSN reports whether source names a database rather than a file or URL.
func IsDSN(source string) bool {
	_, _, err := Driver(source)
	return err == nil
}

// Driver picks the database/sql driver for a DSN and returns the data source
// string that driver expects. postgres:// and postgresql:// go to pgx;
// sqlite://<path> goes to the pure-Go SQLite driver with the path unwrapped.
func Driver(dsn string) (driver, source string, err error) {
	if dsn == "" {
		return "", "", fmt.Errorf("empty DSN")
	}
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "", "", fmt.Errorf("DSN %q has no scheme", dsn)
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return DriverPostgres, dsn, nil
	case "sqlite", "sqlite3":
		if rest == "" {
			return "", "", fmt.Errorf("sqlite DSN %q has no path", dsn)
		}
		return DriverSQLite, rest, nil
	default:
		return "", "", fmt.Errorf("unsupported DSN scheme %q", scheme)
	}
}

// Redact hides the password of a DSN for logging.
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

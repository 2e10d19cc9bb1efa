// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to the configured database. databaseType selects the
// driver: "postgres" (lib/pq) or "sqlite" (modernc, cgo-free).
//
// SQLite needs foreign_keys switched on per connection for the cascade
// deletes the schema relies on, so the pragma is appended to the DSN
// unless the caller already set one.
func Open(databaseType, url string) (*sql.DB, error) {
	switch databaseType {
	case "postgres":
		return sql.Open("postgres", url)
	case "sqlite":
		if !strings.Contains(url, "_pragma=foreign_keys") {
			sep := "?"
			if strings.Contains(url, "?") {
				sep = "&"
			}
			url += sep + "_pragma=foreign_keys(1)"
		}
		conn, err := sql.Open("sqlite", url)
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; without this, concurrent writes
		// surface as SQLITE_BUSY instead of queueing.
		conn.SetMaxOpenConns(1)
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", databaseType)
	}
}

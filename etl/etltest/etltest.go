// Copyright 2024-2025 The appsink Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package etltest provides sqlite-backed fixtures for tests that need a
// real database: an isolated in-memory store, the staging and processing
// log tables, and small query helpers.
package etltest

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// Open returns an isolated in-memory database. The pool is capped at one
// connection; a second connection would see a separate empty database.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite: %s", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// OpenFile returns a file-backed database that can serve several
// connections at once, for tests that pin one connection per worker.
// Transactions begin IMMEDIATE: a deferred write transaction upgrading
// its lock mid-flight fails with SQLITE_BUSY without consulting the
// busy handler, so the timeout below only protects writers that take
// the lock up front.
func OpenFile(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "etl.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		t.Fatalf("open sqlite file: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Exec runs each statement and fails the test on the first error.
func Exec(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %s", s, err)
		}
	}
}

// Count returns SELECT COUNT(*) for a table.
func Count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %s", table, err)
	}
	return n
}

// CreateStaging creates the app_xml staging table.
func CreateStaging(t *testing.T, db *sql.DB) {
	t.Helper()
	Exec(t, db, `CREATE TABLE app_xml (
		app_id INTEGER PRIMARY KEY,
		xml TEXT
	)`)
}

// InsertApp stages one application blob.
func InsertApp(t *testing.T, db *sql.DB, appID int64, xml string) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO app_xml (app_id, xml) VALUES (?, ?)`, appID, xml); err != nil {
		t.Fatalf("stage app %d: %s", appID, err)
	}
}

// CreateLog creates the processing log table.
func CreateLog(t *testing.T, db *sql.DB) {
	t.Helper()
	Exec(t, db, `CREATE TABLE processing_log (
		app_id INTEGER PRIMARY KEY,
		status TEXT NOT NULL,
		failure_reason TEXT,
		session_id TEXT,
		app_id_start INTEGER,
		app_id_end INTEGER,
		processed_at TIMESTAMP NOT NULL
	)`)
}

// LogStatus returns the processing log status recorded for an
// application, or "" when no row exists.
func LogStatus(t *testing.T, db *sql.DB, appID int64) string {
	t.Helper()
	var status string
	err := db.QueryRow(`SELECT status FROM processing_log WHERE app_id = ?`, appID).Scan(&status)
	if err == sql.ErrNoRows {
		return ""
	}
	if err != nil {
		t.Fatalf("log status for %d: %s", appID, err)
	}
	return status
}

// Package db opens the SQLite file that stores sync run history and applies
// its schema migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// poolRole selects how a connection pool to the history file is tuned.
type poolRole string

const (
	// roleRecorder is the single connection that inserts finished runs.
	roleRecorder poolRole = "recorder"
	// roleReader serves history listings from the trigger server and CLI.
	roleReader poolRole = "reader"
)

const (
	historyBusyTimeout = "5000" // ms; a listing can overlap a run being recorded
	historyJournalMode = "WAL"
	historySynchronous = "NORMAL"
	historyReaders     = 2
	historyPingTimeout = 5 * time.Second
)

// OpenHistory opens the run history database at path, creating the file if
// needed, and migrates it to the latest schema. The first handle is the
// single-connection recorder; the second serves reads.
func OpenHistory(ctx context.Context, path string) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = openPool(ctx, path, roleRecorder)
	if err != nil {
		return nil, nil, err
	}
	readDB, err = openPool(ctx, path, roleReader)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, err
	}
	if err := RunMigrations(ctx, writeDB); err != nil {
		_ = readDB.Close()
		_ = writeDB.Close()
		return nil, nil, err
	}
	return writeDB, readDB, nil
}

func openPool(ctx context.Context, path string, role poolRole) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", historyDSN(path, role))
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", role, err)
	}

	conns := historyReaders
	if role == roleRecorder {
		conns = 1
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, historyPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history %s: %w", role, err)
	}
	return db, nil
}

// historyDSN builds the go-sqlite3 DSN. The recorder takes the write lock
// when its transaction begins, so inserts never fail mid-transaction with
// SQLITE_BUSY.
func historyDSN(path string, role poolRole) string {
	params := url.Values{}
	params.Set("_journal_mode", historyJournalMode)
	params.Set("_busy_timeout", historyBusyTimeout)
	params.Set("_synchronous", historySynchronous)
	if role == roleRecorder {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}

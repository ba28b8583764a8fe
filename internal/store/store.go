// Package store provides Postgres-backed persistence for flows,
// collaborators, invites, interactions, form responses and SMTP
// configurations.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Open connects to PostgreSQL and verifies the connection with a ping.
// It retries up to maxRetries times with a quadratic back-off so the service
// survives a database that is still starting up.
func Open(dsn string) (*sql.DB, error) {
	const maxRetries = 5
	var (
		db  *sql.DB
		err error
	)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			log.Printf("store: connected to PostgreSQL (attempt %d)", attempt)
			return db, nil
		}
		wait := time.Duration(attempt*attempt) * time.Second
		log.Printf("store: postgres not ready (attempt %d/%d): %v — retrying in %s",
			attempt, maxRetries, err, wait)
		time.Sleep(wait)
	}
	return nil, fmt.Errorf("store: could not connect to PostgreSQL after %d attempts: %w", maxRetries, err)
}

// ErrNotFound is returned by lookups for rows that do not exist.
var ErrNotFound = fmt.Errorf("store: not found")

package store

import (
	"log/slog"

	"modguard/internal/db"
)

// Store is the tenant data store. Every method takes the tenant ID resolved
// by the auth gate; no query runs unscoped.
type Store struct {
	db  *db.DB
	log *slog.Logger
}

func New(log *slog.Logger, dbConn *db.DB) *Store {
	return &Store{
		db:  dbConn,
		log: log,
	}
}

// Package store opens the local submission database, applies migrations and
// bundles the repositories that read and write it.
//
// All components share the one *sql.DB so that item mutations made by
// background transfer callbacks are immediately visible to concurrent
// foreground fetches.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndrozd/lmsubmit/internal/migrations"
	"github.com/ndrozd/lmsubmit/internal/repositories/fileitems"
	"github.com/ndrozd/lmsubmit/internal/repositories/submissions"
	"github.com/pressly/goose/v3"
)

type Store struct {
	DB          *sql.DB
	Submissions submissions.Repository
	FileItems   fileitems.Repository
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open initializes the database at dsn and returns the repository bundle.
// Foreign keys are switched on so deleting a submission cascades to its
// file item rows.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One connection serializes all mutations through the store, and keeps
	// the foreign_keys pragma pinned to the connection actually in use.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	return &Store{
		DB:          db,
		Submissions: submissions.NewSQLiteRepository(db),
		FileItems:   fileitems.NewSQLiteRepository(db),
	}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

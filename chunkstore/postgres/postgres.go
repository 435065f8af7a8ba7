// Package postgres is a chunkstore.Store backed by a Postgres table, using
// database/sql over the pgx stdlib driver.
package postgres

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/bhiemenz/georocket/chunkstore"
	"github.com/bhiemenz/georocket/chunkstore/postgres/migrations"
)

// Store persists chunks as rows in a single table, named by the hex SHA-256
// digest of the chunk's content.
type Store struct {
	db *sql.DB

	databaseName   string
	databaseSchema string
	databasePrefix string

	table string
}

// New returns a Store bound to db. Call Install once before using it.
func New(db *sql.DB, options ...Option) *Store {
	s := &Store{
		db:             db,
		databaseName:   "postgres",
		databaseSchema: "public",
		databasePrefix: "georocket_",
	}
	for _, option := range options {
		option(s)
	}
	s.table = fmt.Sprintf("%s.%schunks", s.databaseSchema, s.databasePrefix)
	return s
}

// Install runs every pending migration. It is safe to call repeatedly.
func (s *Store) Install(ctx context.Context) error {
	migrationFiles, err := migrations.PrepareMigrations(s.databaseSchema, s.databasePrefix)
	if err != nil {
		return errors.Join(errors.New("failed to prepare migration files"), err)
	}

	driver, err := migratepostgres.WithInstance(s.db, &migratepostgres.Config{
		SchemaName:      s.databaseSchema,
		MigrationsTable: fmt.Sprintf("%smigrations", s.databasePrefix),
	})
	if err != nil {
		return errors.Join(errors.New("failed to create postgres migration driver"), err)
	}

	migrationsSource, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return errors.Join(errors.New("failed to open postgres migrations source"), err)
	}

	migrator, err := migrate.NewWithInstance("migrations", migrationsSource, s.databaseName, driver)
	if err != nil {
		return errors.Join(errors.New("failed to create migrator"), err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(errors.New("error while performing migration on the database"), err)
	}

	return nil
}

// UnInstall reverses every migration this Store applied.
func (s *Store) UnInstall(ctx context.Context) error {
	migrationFiles, err := migrations.PrepareMigrations(s.databaseSchema, s.databasePrefix)
	if err != nil {
		return errors.Join(errors.New("failed to prepare migration files"), err)
	}

	driver, err := migratepostgres.WithInstance(s.db, &migratepostgres.Config{
		SchemaName:      s.databaseSchema,
		MigrationsTable: fmt.Sprintf("%smigrations", s.databasePrefix),
	})
	if err != nil {
		return errors.Join(errors.New("failed to create postgres migration driver"), err)
	}

	migrationsSource, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return errors.Join(errors.New("failed to open postgres migrations source"), err)
	}

	migrator, err := migrate.NewWithInstance("migrations", migrationsSource, s.databaseName, driver)
	if err != nil {
		return errors.Join(errors.New("failed to create migrator"), err)
	}

	if err := migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(errors.New("error while performing migration on the database"), err)
	}

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+fmt.Sprintf("%s.%smigrations", s.databaseSchema, s.databasePrefix)); err != nil {
		return errors.Join(errors.New("failed to drop migrations table"), err)
	}

	return nil
}

// Add inserts chunk under its content hash. Re-adding identical content is a
// no-op beyond the digest computation.
func (s *Store) Add(ctx context.Context, chunk string) (chunkstore.Ack, error) {
	sum := sha256.Sum256([]byte(chunk))
	name := hex.EncodeToString(sum[:])

	query := fmt.Sprintf(`
		INSERT INTO %s (name, body, size)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query, name, []byte(chunk), int64(len(chunk))); err != nil {
		if ctx.Err() != nil {
			return chunkstore.Ack{}, ctx.Err()
		}
		return chunkstore.Ack{}, fmt.Errorf("%w: postgres chunkstore insert: %v", chunkstore.ErrTransient, err)
	}

	return chunkstore.Ack{Name: name}, nil
}

// Get reads back the chunk named name.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	query := fmt.Sprintf(`SELECT body, size FROM %s WHERE name = $1`, s.table)

	var body []byte
	var size int64
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&body, &size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, chunkstore.ErrNotFound
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: postgres chunkstore select: %v", chunkstore.ErrTransient, err)
	}

	return io.NopCloser(bytes.NewReader(body)), size, nil
}

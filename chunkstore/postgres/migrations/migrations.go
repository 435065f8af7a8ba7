// Package migrations prepares the postgres chunkstore's embedded SQL
// migrations for golang-migrate, substituting the caller's schema and table
// prefix into an in-memory filesystem so migrate/source/iofs can read them.
package migrations

import (
	"embed"
	"errors"
	"io"
	"io/fs"
	"strings"

	"github.com/psanford/memfs"
)

//go:embed *.sql
var migrations embed.FS

// PrepareMigrations returns an fs.FS containing every migration file with
// SCHEMA_NAME and DATABASE_PREFIX_ replaced by schema and prefix.
func PrepareMigrations(schema string, prefix string) (fs.FS, error) {
	rootFS := memfs.New()

	entries, err := migrations.ReadDir(".")
	if err != nil {
		return nil, errors.Join(errors.New("failed to read migrations directory"), err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		file, err := migrations.Open(entry.Name())
		if err != nil {
			return nil, err
		}
		fileData, err := io.ReadAll(file)
		if err != nil {
			file.Close()
			return nil, err
		}
		file.Close()

		newData := strings.ReplaceAll(string(fileData), "SCHEMA_NAME", schema)
		newData = strings.ReplaceAll(newData, "DATABASE_PREFIX_", prefix)

		if err := rootFS.WriteFile(entry.Name(), []byte(newData), 0o755); err != nil {
			return nil, err
		}
	}

	return rootFS, nil
}

package postgres

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bhiemenz/georocket/chunkstore"
)

func randSchemaName(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz"

	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

func getTestingStore(t *testing.T, options ...Option) *Store {
	dbURL := os.Getenv("TEST_CHUNKSTORE_POSTGRES_URL")
	if dbURL == "" {
		t.Skip("TEST_CHUNKSTORE_POSTGRES_URL is not configured")
	}

	cfg, err := pgx.ParseConfig(dbURL)
	if err != nil {
		t.Fatal(err)
	}

	db := stdlib.OpenDB(*cfg)
	t.Cleanup(func() { db.Close() })

	schemaName := randSchemaName(32)
	if _, err := db.ExecContext(context.Background(), "CREATE SCHEMA "+schemaName); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		db.ExecContext(context.Background(), "DROP SCHEMA "+schemaName+" CASCADE")
	})

	options = append([]Option{WithDatabaseSchema(schemaName)}, options...)
	store := New(db, options...)
	t.Cleanup(func() { store.UnInstall(context.Background()) })

	if err := store.Install(context.Background()); err != nil {
		t.Fatal(err)
	}

	return store
}

func TestAddThenGetRoundTrips(t *testing.T) {
	store := getTestingStore(t)
	ctx := context.Background()

	ack, err := store.Add(ctx, "hello from postgres")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	r, size, err := store.Get(ctx, ack.Name)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()

	if size != int64(len("hello from postgres")) {
		t.Fatalf("got size %d, want %d", size, len("hello from postgres"))
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello from postgres" {
		t.Fatalf("got %q", got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := getTestingStore(t)

	_, _, err := store.Get(context.Background(), "does-not-exist")
	if !errors.Is(err, chunkstore.ErrNotFound) {
		t.Fatalf("got %v, want chunkstore.ErrNotFound", err)
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	store := getTestingStore(t)

	if err := store.Install(context.Background()); err != nil {
		t.Fatalf("second Install: %v", err)
	}
}

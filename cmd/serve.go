package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bhiemenz/georocket/chunkstore"
	"github.com/bhiemenz/georocket/chunkstore/memory"
	"github.com/bhiemenz/georocket/chunkstore/postgres"
	"github.com/bhiemenz/georocket/httpapi"
)

var serveCMD = &cobra.Command{
	Use:   "serve",
	Short: "Start REST API server",
	Long:  "Start the REST API server that accepts XML documents for splitting and serves their chunks back.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Caller().Logger()

		storeKind, _ := cmd.Flags().GetString("store")

		var store chunkstore.Store
		switch storeKind {
		case "memory":
			store = memory.New()
		case "postgres":
			postgresURL, _ := cmd.Flags().GetString("postgres-url")
			if postgresURL == "" {
				return errors.New("--postgres-url is required when --store=postgres")
			}

			cfg, err := pgx.ParseConfig(postgresURL)
			if err != nil {
				return errors.Join(errors.New("failed to parse postgres url"), err)
			}

			db := stdlib.OpenDB(*cfg)
			pgStore := newPostgresStore(db, cmd)
			if err := pgStore.Install(cmd.Context()); err != nil {
				return errors.Join(errors.New("failed to install postgres chunkstore schema"), err)
			}
			store = pgStore
		default:
			return fmt.Errorf("unsupported store backend %q", storeKind)
		}

		maxConcurrentIngest, _ := cmd.Flags().GetInt64("max-concurrent-ingests")

		server := httpapi.New(httpapi.Config{
			Store:               store,
			Logger:              logger,
			MaxConcurrentIngest: maxConcurrentIngest,
		})

		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetUint("port")
		addr := fmt.Sprintf("%s:%d", host, port)

		logger.Info().Str("addr", addr).Str("store", storeKind).Msg("starting georocket server")
		if err := server.Engine.Run(addr); err != nil {
			return errors.Join(errors.New("failed to run HTTP server engine"), err)
		}

		return nil
	},
}

func newPostgresStore(db *sql.DB, cmd *cobra.Command) *postgres.Store {
	schema, _ := cmd.Flags().GetString("postgres-schema")
	prefix, _ := cmd.Flags().GetString("postgres-prefix")
	return postgres.New(db, postgres.WithDatabaseSchema(schema), postgres.WithDatabasePrefix(prefix))
}

func init() {
	serveCMD.Flags().String("host", "0.0.0.0", "Host server will be listening on")
	serveCMD.Flags().Uint("port", 8884, "Port server will be listening on")

	serveCMD.Flags().String("store", "memory", "Chunk store backend to use. Possible values are memory, postgres")
	serveCMD.Flags().String("postgres-url", "", "Postgres connection URL, required when --store=postgres")
	serveCMD.Flags().String("postgres-schema", "public", "Postgres schema the chunk table lives under")
	serveCMD.Flags().String("postgres-prefix", "georocket_", "Table name prefix used by the postgres chunk store")
	serveCMD.Flags().Int64("max-concurrent-ingests", 8, "Maximum number of ingest requests processed at the same time")
}

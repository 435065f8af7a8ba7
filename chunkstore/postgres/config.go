package postgres

// Option configures a Store at construction time.
type Option func(s *Store)

// WithDatabaseName sets the database name golang-migrate reports itself
// against. It has no effect on connection routing.
func WithDatabaseName(name string) Option {
	return func(s *Store) {
		s.databaseName = name
	}
}

// WithDatabaseSchema sets the schema chunk data lives under. Defaults to
// "public".
func WithDatabaseSchema(schema string) Option {
	return func(s *Store) {
		s.databaseSchema = schema
	}
}

// WithDatabasePrefix sets the prefix applied to every table and migrations
// bookkeeping table the Store creates. Defaults to "georocket_".
func WithDatabasePrefix(prefix string) Option {
	return func(s *Store) {
		s.databasePrefix = prefix
	}
}

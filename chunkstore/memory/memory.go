// Package memory is a reference chunkstore.Store backed by an in-process
// memfs.FS. It is meant for tests and small deployments, not production
// durability: nothing survives a process restart.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/psanford/memfs"

	"github.com/bhiemenz/georocket/chunkstore"
)

// Store keeps every chunk as a file in an in-memory filesystem, named by the
// hex SHA-256 digest of its content. Re-adding identical content is a no-op
// beyond recomputing the digest: the store deduplicates automatically.
type Store struct {
	mu   sync.RWMutex
	fs   *memfs.FS
	size map[string]int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		fs:   memfs.New(),
		size: make(map[string]int64),
	}
}

// Add writes chunk under its content hash and returns the resulting name.
func (s *Store) Add(ctx context.Context, chunk string) (chunkstore.Ack, error) {
	if err := ctx.Err(); err != nil {
		return chunkstore.Ack{}, err
	}

	sum := sha256.Sum256([]byte(chunk))
	name := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.size[name]; !ok {
		if err := s.fs.WriteFile(name, []byte(chunk), 0o644); err != nil {
			return chunkstore.Ack{}, fmt.Errorf("%w: memory store write: %v", chunkstore.ErrTransient, err)
		}
		s.size[name] = int64(len(chunk))
	}

	return chunkstore.Ack{Name: name}, nil
}

// Get opens the chunk named name. It fails with chunkstore.ErrNotFound if no
// such chunk was ever added.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	sz, ok := s.size[name]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, chunkstore.ErrNotFound
	}

	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, chunkstore.ErrNotFound
		}
		return nil, 0, fmt.Errorf("%w: memory store open: %v", chunkstore.ErrTransient, err)
	}

	return f, sz, nil
}

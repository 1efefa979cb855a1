package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	s.Put("/tm-1/notes.md", []byte("# notes"))

	url, err := s.ResolveURL(context.Background(), "tm-1/notes.md", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "memory://tm-1/notes.md", url)

	raw, err := s.ReadBytes(context.Background(), "tm-1/notes.md")
	require.NoError(t, err)
	require.Equal(t, "# notes", string(raw))
}

func TestMemoryStoreMissingKey(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.ResolveURL(context.Background(), "nope", time.Hour)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.ReadBytes(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreFailKeys(t *testing.T) {
	s := NewMemoryStore()
	s.Put("tm-1/broken.txt", []byte("x"))
	s.FailKeys["tm-1/broken.txt"] = true

	_, err := s.ReadBytes(context.Background(), "tm-1/broken.txt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCopiesOnRead(t *testing.T) {
	s := NewMemoryStore()
	s.Put("k", []byte("abc"))

	raw, err := s.ReadBytes(context.Background(), "k")
	require.NoError(t, err)
	raw[0] = 'z'

	again, err := s.ReadBytes(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(again))
}

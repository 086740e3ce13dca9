// Package storage provides scratch file handling for pipeline runs and
// optional publishing of finished clips to object storage.
package storage

import (
	"context"
	"io"
	"path"
)

// Storage defines scratch file handling plus clip publishing.
type Storage interface {
	// SaveTemp spools data into a new scratch file and returns its path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp opens a file for reading.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified scratch files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish uploads data under key and returns its public URL.
	// Returns ErrPublishNotConfigured when no object store is configured.
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)

	// CanPublish reports whether Publish is backed by an object store.
	CanPublish() bool
}

// ClipKey returns the object key of a clip file: <prefix>/audio_<id>/<file>.
func ClipKey(prefix, audioID, fileName string) string {
	return path.Join(prefix, "audio_"+audioID, fileName)
}

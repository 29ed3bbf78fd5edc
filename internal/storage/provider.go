// Package storage defines the data-directory file abstraction.
package storage

import (
	"context"
	"time"
)

// FileInfo is a lightweight description of a stored file.
type FileInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for file operations under a single root directory.
// All paths are relative to that root.
type Provider interface {
	// List returns metadata for every regular file directly under dir.
	List(dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Lock takes exclusive ownership of path until the returned release func
	// is called. It gives up when ctx is done.
	Lock(ctx context.Context, path string) (release func(), err error)
}

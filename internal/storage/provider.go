// Package storage defines the vault file-system abstraction.
package storage

import (
	"io/fs"
	"time"
)

// NoteMetadata describes one note returned by List. Path is relative to the
// vault root with forward slashes.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for vault file operations. All paths are
// relative to the vault root and use forward slashes.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Stat describes the file or folder at path.
	Stat(path string) (fs.FileInfo, error)
	// Delete removes the file or folder at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}

// Package storage defines the document file-system abstraction.
package storage

import "github.com/starford/orgcal/internal/models"

// OrgExt is the extension of documents managed by orgcal.
const OrgExt = ".org"

// Provider is the interface for document file operations. Paths are
// relative to the provider root.
type Provider interface {
	// List returns metadata for every .org file under dir.
	List(dir string) ([]models.FileMetadata, error)
	// Stat returns metadata for a single file.
	Stat(path string) (models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Root is the absolute directory the provider is confined to.
	Root() string
}

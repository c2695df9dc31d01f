package pipeline

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MediaStore places binary attachments and returns an opaque reference.
type MediaStore interface {
	Put(name string, data []byte) (string, error)
}

// InlineRef encodes media directly into a reference. Used as the degraded
// path when the media store is unavailable: the send still succeeds.
func InlineRef(data []byte) string {
	return "inline:" + base64.StdEncoding.EncodeToString(data)
}

// DiskMediaStore writes attachments to a local directory.
type DiskMediaStore struct {
	dir string
}

// NewDiskMediaStore creates the directory if needed.
func NewDiskMediaStore(dir string) (*DiskMediaStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskMediaStore{dir: dir}, nil
}

// Put stores data under a generated name, keeping the original extension.
func (s *DiskMediaStore) Put(name string, data []byte) (string, error) {
	ref := uuid.NewString() + filepath.Ext(name)
	if err := os.WriteFile(filepath.Join(s.dir, ref), data, 0o600); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	return "media/" + ref, nil
}

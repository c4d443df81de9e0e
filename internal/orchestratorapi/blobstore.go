package orchestratorapi

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// extensionByContentType inverts the orchestrator's allow-list so a stored
// file keeps a recognizable suffix for the worker's content-type inference.
var extensionByContentType = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

func extensionFor(contentType string) string {
	if ext, ok := extensionByContentType[contentType]; ok {
		return ext
	}
	return ".bin"
}

// BlobStore persists uploaded images to a local directory. Grounded on the
// original's pathlib-based image_path handling in analysis_service.py;
// no object-storage SDK appears anywhere in the retrieval pack, so a local
// filesystem root (Config.Upload.StorageRoot) is the closest fit.
type BlobStore struct {
	root string
}

// NewBlobStore ensures root exists and returns a BlobStore rooted there.
func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// Save writes data under a fresh random filename with an extension derived
// from contentType, returning the full path to store on the Analysis row.
func (b *BlobStore) Save(data []byte, contentType string) (string, error) {
	name := uuid.New().String() + extensionFor(contentType)
	path := filepath.Join(b.root, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image blob: %w", err)
	}
	return path, nil
}

package staging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/lightning-etl/internal/domain"
)

// filePerm matches what ogr2ogr and other readers of the staging directory
// expect from a plain writeFile.
const filePerm = 0o644

// Writer stages enriched documents on the local filesystem.
// It implements pipeline.StagingWriter.
type Writer struct{}

// NewWriter creates a Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write serializes doc to path, replacing any previous contents. The data is
// written to a temp file in the same directory and renamed into place, so
// path never holds a partial document. Errors wrap domain.ErrWrite.
func (w *Writer) Write(doc *domain.Document, path string) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: serialize document: %w", domain.ErrWrite, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWrite, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err = os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

package exmacro

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// StagedFile is an upload written to a temporary path for readers that
// require a file rather than a byte stream.
type StagedFile struct {
	// Path is the randomized temporary path. Its extension matches the upload.
	Path string

	once sync.Once
	err  error
}

// StageUpload writes data to a new temporary file in dir whose name ends with the
// lower-cased extension of fileName.
func StageUpload(data []byte, fileName, dir string) (*StagedFile, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	f, err := os.CreateTemp(dir, "exmacro-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	return &StagedFile{Path: f.Name()}, nil
}

// Remove deletes the staged file. It is safe to call more than once, and a
// file that is already gone is not an error.
func (s *StagedFile) Remove() error {
	s.once.Do(func() {
		err := os.Remove(s.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.err = err
		}
	})
	return s.err
}

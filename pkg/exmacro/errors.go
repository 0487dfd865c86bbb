package exmacro

import (
	"errors"
	"fmt"
)

// ErrFileNotFound indicates the input file does not exist.
var ErrFileNotFound = errors.New("file not found")

// ErrEmptyUpload indicates the uploaded buffer has no content.
var ErrEmptyUpload = errors.New("uploaded file is empty")

// ErrUnsupportedFormat indicates an extension no extraction step can read.
var ErrUnsupportedFormat = errors.New("unsupported file type")

// ErrNoModulesDecoded indicates a package carrying xl/vbaProject.bin from
// which no VBA module could be decoded.
var ErrNoModulesDecoded = errors.New("vbaProject.bin present but no VBA modules decoded")

// ExtractionError represents a failure in one extraction step.
type ExtractionError struct {
	FileName  string
	Component string // "container", "vba", "miner", "sheets"
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error in %q (%s): %v", e.FileName, e.Component, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError creates a new ExtractionError.
func NewExtractionError(fileName, component string, err error) *ExtractionError {
	return &ExtractionError{
		FileName:  fileName,
		Component: component,
		Err:       err,
	}
}

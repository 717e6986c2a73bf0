// Package pdf wraps the PDF libraries used to read page text, rasterize pages
// and write page subsets.
package pdf

import (
	"errors"
	"fmt"
)

// ErrUnreadable is matched by every error returned for a PDF that cannot be opened or parsed.
var ErrUnreadable = errors.New("unreadable pdf")

// ErrNoRaster is returned when a page carries no image to rasterize.
var ErrNoRaster = errors.New("page has no raster image")

// ReadError reports a PDF that could not be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() []error {
	return []error{ErrUnreadable, e.Err}
}

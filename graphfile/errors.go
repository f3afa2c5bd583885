// ABOUTME: Error types for graph file parsing: FormatError for malformed content, FileAccessError for I/O.
// ABOUTME: Every FormatError matches ErrFormat so callers can classify failures with errors.Is.
package graphfile

import (
	"errors"
	"fmt"
)

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("malformed graph file")

// Section names used in FormatError.
const (
	SectionNodeCount = "node count"
	SectionDemand    = "demand"
	SectionEdgeCount = "edge count"
	SectionEdge      = "edge"
	SectionTrailing  = "trailing"
)

// FormatError reports a missing line, a wrong token count, a non-integer token
// or an out-of-range value.
type FormatError struct {
	Line    int
	Section string
	Msg     string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d (%s): %s", e.Line, e.Section, e.Msg)
}

// Is makes errors.Is(err, ErrFormat) true for format errors.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// FileAccessError reports a graph file that cannot be opened or read.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("read graph file %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}

package vectorstore

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every backend. Backends wrap them with context;
// callers match with errors.Is.
var (
	// ErrIndexNotFound is returned when an operation names an index that
	// does not exist.
	ErrIndexNotFound = errors.New("vectorstore: index not found")

	// ErrIndexAlreadyExists is returned by CreateIndex for a taken name.
	ErrIndexAlreadyExists = errors.New("vectorstore: index already exists")

	// ErrInvalidDimension is returned by CreateIndex for a non-positive dimension.
	ErrInvalidDimension = errors.New("vectorstore: invalid dimension")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the index dimension. See DimensionMismatchError for the details.
	ErrDimensionMismatch = errors.New("vectorstore: dimension mismatch")

	// ErrInvalidInput is returned for malformed requests: mismatched column
	// lengths, bad filters, non-positive top_k, non-finite vectors.
	ErrInvalidInput = errors.New("vectorstore: invalid input")

	// ErrNotFound is returned when a document id does not exist in the index.
	ErrNotFound = errors.New("vectorstore: document not found")

	// ErrConnectionFailed is returned when a backend connection could not be
	// obtained or the backend is unreachable. It is retryable.
	ErrConnectionFailed = errors.New("vectorstore: connection failed")

	// ErrInvalidConfig is returned by backend constructors for unusable settings.
	ErrInvalidConfig = errors.New("vectorstore: invalid config")
)

// DimensionMismatchError reports the expected and actual vector lengths.
// It matches ErrDimensionMismatch under errors.Is.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vectorstore: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

func indexNotFound(name string) error {
	return fmt.Errorf("%w: %q", ErrIndexNotFound, name)
}

func indexExists(name string) error {
	return fmt.Errorf("%w: %q", ErrIndexAlreadyExists, name)
}

func docNotFound(index, id string) error {
	return fmt.Errorf("%w: %q in index %q", ErrNotFound, id, index)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

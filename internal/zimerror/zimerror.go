// Package zimerror defines the distinct error kinds raised by the zim
// reader and writer, so callers can distinguish them with errors.Is.
package zimerror

import "errors"

// Reader-side error kinds (spec §7).
var (
	// ErrFileFormat means the header, pointer tables, or a dirent are
	// malformed or mutually inconsistent.
	ErrFileFormat = errors.New("zim: invalid file format")
	// ErrEntryNotFound means a lookup by path/title/metadata-key found
	// no match.
	ErrEntryNotFound = errors.New("zim: entry not found")
	// ErrInvalidType means an operation was attempted on the wrong
	// dirent variant (e.g. get_item() on a redirect without follow).
	ErrInvalidType = errors.New("zim: invalid entry type for operation")
	// ErrOutOfRange means a numeric index exceeds its table's size.
	ErrOutOfRange = errors.New("zim: index out of range")
	// ErrIO wraps an underlying read/write/rename/stat failure.
	ErrIO = errors.New("zim: io error")
)

// Writer-side error kinds (spec §7 Creator sub-kinds).
var (
	// ErrInvalidEntry means a duplicate path, an oversize string, or
	// some other invalid item/redirect was supplied to the Creator.
	ErrInvalidEntry = errors.New("zim: invalid entry")
	// ErrIncoherentImplementation means a user-supplied content
	// provider disagreed with its declared size.
	ErrIncoherentImplementation = errors.New("zim: content provider size mismatch")
	// ErrResource means a resource needed by the Creator (e.g. the
	// temp file) could not be obtained.
	ErrResource = errors.New("zim: resource error")
)

// Wrap annotates err with msg while keeping it matchable via errors.Is(err, kind).
func Wrap(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Wrapf is Wrap with an underlying cause appended.
func Wrapf(kind error, msg string, cause error) error {
	return &kindError{kind: kind, msg: msg, cause: cause}
}

type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap exposes both the error kind and the underlying cause (if any) so
// errors.Is/errors.As can traverse either chain.
func (e *kindError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

package zim

import (
	"fmt"
	"io"
	"os"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// FilePart is a logical window (offset, size) inside one open, read-only,
// seekable file handle. Most of the time a FilePart spans an entire file,
// but it may also describe a ZIM embedded at some offset inside a larger
// container file.
type FilePart struct {
	handle *os.File
	owned  bool
	offset Offset
	size   Size
}

// openFilePart opens filename and wraps the whole file as one part.
func openFilePart(filename string) (*FilePart, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, zimerror.Wrapf(zimerror.ErrIO, "open "+filename, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, zimerror.Wrapf(zimerror.ErrIO, "stat "+filename, err)
	}
	return &FilePart{handle: f, owned: true, offset: 0, size: Size(info.Size())}, nil
}

// newFilePartFromHandle wraps an already-open handle (possibly shared
// across several FileParts) at a given logical window, without taking
// ownership of closing it.
func newFilePartFromHandle(handle *os.File, offset Offset, size Size) *FilePart {
	return &FilePart{handle: handle, owned: false, offset: offset, size: size}
}

// Size returns the part's logical byte length.
func (p *FilePart) Size() Size { return p.size }

// Offset returns the part's offset inside its underlying handle.
func (p *FilePart) Offset() Offset { return p.offset }

func (p *FilePart) close() error {
	if p.owned {
		return p.handle.Close()
	}
	return nil
}

// readAt fully reads len(dst) bytes starting at logicalOffset (relative to
// this part, not the handle), looping over short reads the way POSIX
// pread is documented to behave.
func (p *FilePart) readAt(dst []byte, logicalOffset Offset) error {
	if Size(logicalOffset)+Size(len(dst)) > p.size {
		return zimerror.Wrap(zimerror.ErrOutOfRange, "read past end of file part")
	}
	fileOffset := int64(p.offset) + int64(logicalOffset)
	n, err := io.ReadFull(io.NewSectionReader(p.handle, fileOffset, int64(len(dst))), dst)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return zimerror.Wrapf(zimerror.ErrIO, "read_at", err)
	}
	if n != len(dst) {
		return zimerror.Wrap(zimerror.ErrIO, fmt.Sprintf("short read: got %d want %d", n, len(dst)))
	}
	return nil
}

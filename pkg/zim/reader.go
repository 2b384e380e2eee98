package zim

import (
	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// Reader is the common read surface shared by a single-part file reader, a
// multi-part (split-archive) reader, and an in-memory buffer reader. All
// three sit behind this interface so the rest of the package never needs to
// know which kind of archive it is looking at.
type Reader interface {
	// Size returns the number of bytes accessible through this reader.
	Size() Size
	// Offset returns this reader's base offset in its underlying source.
	Offset() Offset
	// Read fully reads size bytes starting at offset into a freshly
	// allocated slice.
	Read(offset Offset, size Size) ([]byte, error)
	// ReadByte reads the single byte at offset.
	ReadByte(offset Offset) (byte, error)
	// ReadUint16/32/64 read a little-endian integer at offset.
	ReadUint16(offset Offset) (uint16, error)
	ReadUint32(offset Offset) (uint32, error)
	ReadUint64(offset Offset) (uint64, error)
	// SubReader returns a new Reader over [offset, offset+size) of this
	// reader's address space.
	SubReader(offset Offset, size Size) (Reader, error)
}

func canRead(total Size, offset Offset, size Size) bool {
	if Size(offset) > total {
		return false
	}
	return Size(offset)+size <= total
}

// fileReader backs a Reader with a single FilePart (the common case: a
// whole, unsplit ZIM file, or a ZIM embedded at some offset in a larger
// container).
type fileReader struct {
	part   *FilePart
	offset Offset
	size   Size
}

func newFileReader(part *FilePart, offset Offset, size Size) *fileReader {
	return &fileReader{part: part, offset: offset, size: size}
}

func (r *fileReader) Size() Size     { return r.size }
func (r *fileReader) Offset() Offset { return r.offset }

func (r *fileReader) Read(offset Offset, size Size) ([]byte, error) {
	if !canRead(r.size, offset, size) {
		return nil, zimerror.Wrap(zimerror.ErrOutOfRange, "read past end of reader")
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	if err := r.part.readAt(buf, r.offset+offset); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *fileReader) ReadByte(offset Offset) (byte, error) {
	b, err := r.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *fileReader) ReadUint16(offset Offset) (uint16, error) {
	b, err := r.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return getUint16(b), nil
}

func (r *fileReader) ReadUint32(offset Offset) (uint32, error) {
	b, err := r.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return getUint32(b), nil
}

func (r *fileReader) ReadUint64(offset Offset) (uint64, error) {
	b, err := r.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return getUint64(b), nil
}

func (r *fileReader) SubReader(offset Offset, size Size) (Reader, error) {
	if !canRead(r.size, offset, size) {
		return nil, zimerror.Wrap(zimerror.ErrOutOfRange, "sub_reader past end of reader")
	}
	return newFileReader(r.part, r.offset+offset, size), nil
}

// multiPartReader backs a Reader with an entire FileCompound, transparently
// crossing split-file part boundaries on each read.
type multiPartReader struct {
	compound *FileCompound
	offset   Offset
	size     Size
}

func newMultiPartReader(compound *FileCompound, offset Offset, size Size) *multiPartReader {
	return &multiPartReader{compound: compound, offset: offset, size: size}
}

func (r *multiPartReader) Size() Size     { return r.size }
func (r *multiPartReader) Offset() Offset { return r.offset }

func (r *multiPartReader) Read(offset Offset, size Size) ([]byte, error) {
	if !canRead(r.size, offset, size) {
		return nil, zimerror.Wrap(zimerror.ErrOutOfRange, "read past end of reader")
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	if err := r.compound.readAt(buf, r.offset+offset); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *multiPartReader) ReadByte(offset Offset) (byte, error) {
	b, err := r.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *multiPartReader) ReadUint16(offset Offset) (uint16, error) {
	b, err := r.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return getUint16(b), nil
}

func (r *multiPartReader) ReadUint32(offset Offset) (uint32, error) {
	b, err := r.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return getUint32(b), nil
}

func (r *multiPartReader) ReadUint64(offset Offset) (uint64, error) {
	b, err := r.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return getUint64(b), nil
}

func (r *multiPartReader) SubReader(offset Offset, size Size) (Reader, error) {
	if !canRead(r.size, offset, size) {
		return nil, zimerror.Wrap(zimerror.ErrOutOfRange, "sub_reader past end of reader")
	}
	return newMultiPartReader(r.compound, r.offset+offset, size), nil
}

// memReader backs a Reader with an in-memory byte slice, used for embedded
// or already-loaded data (e.g. a decompressed cluster body).
type memReader struct {
	data []byte
}

func newMemReader(data []byte) *memReader { return &memReader{data: data} }

func (r *memReader) Size() Size     { return Size(len(r.data)) }
func (r *memReader) Offset() Offset { return 0 }

func (r *memReader) Read(offset Offset, size Size) ([]byte, error) {
	if !canRead(r.Size(), offset, size) {
		return nil, zimerror.Wrap(zimerror.ErrOutOfRange, "read past end of reader")
	}
	out := make([]byte, size)
	copy(out, r.data[offset:Offset(size)+offset])
	return out, nil
}

func (r *memReader) ReadByte(offset Offset) (byte, error) {
	if !canRead(r.Size(), offset, 1) {
		return 0, zimerror.Wrap(zimerror.ErrOutOfRange, "read past end of reader")
	}
	return r.data[offset], nil
}

func (r *memReader) ReadUint16(offset Offset) (uint16, error) {
	b, err := r.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return getUint16(b), nil
}

func (r *memReader) ReadUint32(offset Offset) (uint32, error) {
	b, err := r.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return getUint32(b), nil
}

func (r *memReader) ReadUint64(offset Offset) (uint64, error) {
	b, err := r.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return getUint64(b), nil
}

func (r *memReader) SubReader(offset Offset, size Size) (Reader, error) {
	if !canRead(r.Size(), offset, size) {
		return nil, zimerror.Wrap(zimerror.ErrOutOfRange, "sub_reader past end of reader")
	}
	return newMemReader(r.data[offset : Offset(size)+offset]), nil
}

package zim

import (
	"fmt"
	"sort"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// compoundRange is the half-open logical byte range [min, max) a FilePart
// occupies inside the FileCompound's concatenated address space.
type compoundRange struct {
	min, max Offset
}

func (r compoundRange) contains(off Offset) bool {
	return off >= r.min && off < r.max
}

// FileCompound presents one or more on-disk files as a single logical
// address space, the way a split ".zimaa"/".zimab"/... archive presents
// itself as one ZIM to the rest of the reader.
type FileCompound struct {
	filename string
	ranges   []compoundRange
	parts    []*FilePart
	fsize    Size
}

// openFileCompound opens filename as a single-piece ZIM, falling back to
// split-file discovery ("aa".."zz" suffixes on the base name) the way
// libzim's openSinglePieceOrSplitZimFile does, including the special case
// of being handed the first split-part name directly.
func openFileCompound(filename string) (*FileCompound, error) {
	if len(filename) > 6 && filename[len(filename)-6:] == ".zimaa" {
		return openSplitFileCompound(filename[:len(filename)-2])
	}

	fc, err := openSinglePartFileCompound(filename)
	if err == nil {
		return fc, nil
	}
	return openSplitFileCompound(filename)
}

func openSinglePartFileCompound(filename string) (*FileCompound, error) {
	part, err := openFilePart(filename)
	if err != nil {
		return nil, err
	}
	fc := &FileCompound{filename: filename}
	fc.addPart(part)
	return fc, nil
}

func openSplitFileCompound(baseFilename string) (*FileCompound, error) {
	fc := &FileCompound{filename: baseFilename}
	for ch0 := byte('a'); ch0 <= 'z'; ch0++ {
		fname0 := fmt.Sprintf("%s%c", baseFilename, ch0)
		foundAny := false
		for ch1 := byte('a'); ch1 <= 'z'; ch1++ {
			part, err := openFilePart(fmt.Sprintf("%s%c", fname0, ch1))
			if err != nil {
				break
			}
			fc.addPart(part)
			foundAny = true
		}
		if !foundAny {
			break
		}
	}
	if len(fc.parts) == 0 {
		return nil, zimerror.Wrap(zimerror.ErrIO, "error opening as a split file: "+baseFilename)
	}
	return fc, nil
}

func (fc *FileCompound) addPart(part *FilePart) {
	r := compoundRange{min: Offset(fc.fsize), max: Offset(fc.fsize) + Offset(part.Size())}
	fc.ranges = append(fc.ranges, r)
	fc.parts = append(fc.parts, part)
	fc.fsize += part.Size()
}

// Filename returns the name (or base name, for split archives) the
// compound was opened with.
func (fc *FileCompound) Filename() string { return fc.filename }

// Size returns the sum of all parts' sizes.
func (fc *FileCompound) Size() Size { return fc.fsize }

// IsMultiPart reports whether the archive is split across more than one
// physical file.
func (fc *FileCompound) IsMultiPart() bool { return len(fc.parts) > 1 }

func (fc *FileCompound) close() error {
	var firstErr error
	for _, p := range fc.parts {
		if err := p.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// locate returns the index of the part containing offset.
func (fc *FileCompound) locate(offset Offset) (int, error) {
	i := sort.Search(len(fc.ranges), func(i int) bool { return fc.ranges[i].max > offset })
	if i >= len(fc.ranges) || !fc.ranges[i].contains(offset) {
		return 0, zimerror.Wrap(zimerror.ErrOutOfRange, "offset outside file compound")
	}
	return i, nil
}

// locateRange returns the [first, last) part indexes overlapping
// [offset, offset+size).
func (fc *FileCompound) locateRange(offset Offset, size Size) (first, last int, err error) {
	if size == 0 {
		idx, err := fc.locate(offset)
		if err != nil {
			return 0, 0, err
		}
		return idx, idx + 1, nil
	}
	end := offset + Offset(size)
	first = sort.Search(len(fc.ranges), func(i int) bool { return fc.ranges[i].max > offset })
	last = sort.Search(len(fc.ranges), func(i int) bool { return fc.ranges[i].min >= end })
	if first >= len(fc.ranges) || last < first {
		return 0, 0, zimerror.Wrap(zimerror.ErrOutOfRange, "range outside file compound")
	}
	return first, last, nil
}

// readAt fully reads len(dst) bytes starting at logical offset off,
// transparently crossing part boundaries for split archives.
func (fc *FileCompound) readAt(dst []byte, off Offset) error {
	if Size(off)+Size(len(dst)) > fc.fsize {
		return zimerror.Wrap(zimerror.ErrOutOfRange, "read past end of file compound")
	}
	remaining := dst
	cur := off
	first, last, err := fc.locateRange(off, Size(len(dst)))
	if err != nil {
		return err
	}
	for i := first; i < last && len(remaining) > 0; i++ {
		part := fc.parts[i]
		r := fc.ranges[i]
		localOff := cur - r.min
		n := Size(r.max - cur)
		if n > Size(len(remaining)) {
			n = Size(len(remaining))
		}
		if err := part.readAt(remaining[:n], localOff); err != nil {
			return err
		}
		remaining = remaining[n:]
		cur += Offset(n)
	}
	if len(remaining) != 0 {
		return zimerror.Wrap(zimerror.ErrIO, "short read across file compound parts")
	}
	return nil
}

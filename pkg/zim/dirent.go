package zim

import (
	"bytes"
	"sync"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// Reserved mimetype codes stored in a dirent's mimetype field rather than
// indexing the mimetype list.
const (
	redirectMimeType   = uint16(0xFFFF)
	linktargetMimeType = uint16(0xFFFE)
	deletedMimeType    = uint16(0xFFFD)
)

// Dirent is the in-memory form of one archive member: a namespace byte, a
// path, a title (defaulting to path when absent), a MIME-type index, and
// either an item's (cluster, blob) location or a redirect's target entry.
type Dirent struct {
	Namespace byte
	Path      string
	title     string
	Parameter string
	MimeType  uint16
	Version   uint32

	ClusterNumber ClusterIndex
	BlobNumber    BlobIndex
	RedirectIndex EntryIndex
}

// Title returns the dirent's title, substituting Path when no distinct
// title was stored.
func (d *Dirent) Title() string {
	if d.title == "" {
		return d.Path
	}
	return d.title
}

// IsRedirect reports whether this dirent points at another entry instead of
// owning content.
func (d *Dirent) IsRedirect() bool { return d.MimeType == redirectMimeType }

// IsLinktarget reports the legacy "link target" placeholder kind, tolerated
// on read but never produced by this writer.
func (d *Dirent) IsLinktarget() bool { return d.MimeType == linktargetMimeType }

// IsDeleted reports the legacy "deleted entry" placeholder kind.
func (d *Dirent) IsDeleted() bool { return d.MimeType == deletedMimeType }

// IsItem reports whether the dirent owns cluster/blob content, i.e. is
// neither a redirect nor one of the legacy placeholder kinds.
func (d *Dirent) IsItem() bool {
	return !d.IsRedirect() && !d.IsLinktarget() && !d.IsDeleted()
}

// direntReader decodes dirents at arbitrary file offsets using a reusable,
// growable scratch buffer, the way a single DirentReader instance is shared
// across many reads in the original implementation.
type direntReader struct {
	reader Reader
	mu     sync.Mutex
	scratch []byte
}

func newDirentReader(reader Reader) *direntReader {
	return &direntReader{reader: reader}
}

const direntReadChunk = 256

// readDirent decodes the dirent whose encoding begins at offset, growing
// the scratch window by direntReadChunk bytes at a time until decoding
// succeeds or the archive runs out of bytes to offer.
func (dr *direntReader) readDirent(offset Offset) (*Dirent, error) {
	dr.mu.Lock()
	defer dr.mu.Unlock()

	total := dr.reader.Size()
	window := Size(direntReadChunk)
	for {
		avail := total - Size(offset)
		if window > avail {
			window = avail
		}
		buf, err := dr.reader.Read(offset, window)
		if err != nil {
			return nil, err
		}
		d, ok, err := decodeDirent(buf)
		if err != nil {
			return nil, err
		}
		if ok {
			return d, nil
		}
		if window >= avail {
			return nil, zimerror.Wrap(zimerror.ErrFileFormat, "dirent extends past end of file")
		}
		window += direntReadChunk
	}
}

// decodeDirent attempts to decode one dirent from the front of buf. The
// second return is false when buf does not yet contain enough bytes
// (specifically, a NUL terminator for path or title is missing) and the
// caller should retry with a larger window.
func decodeDirent(buf []byte) (*Dirent, bool, error) {
	const fixedHeaderLen = 8
	if len(buf) < fixedHeaderLen {
		return nil, false, nil
	}

	mimeType := getUint16(buf[0:2])
	paramLen := int(buf[2])
	ns := buf[3]
	version := getUint32(buf[4:8])

	d := &Dirent{Namespace: ns, MimeType: mimeType, Version: version}

	cur := fixedHeaderLen
	switch mimeType {
	case redirectMimeType:
		if len(buf) < cur+4 {
			return nil, false, nil
		}
		d.RedirectIndex = EntryIndex(getUint32(buf[cur:]))
		cur += 4
	case linktargetMimeType, deletedMimeType:
		// no cluster/blob/redirect payload follows the fixed header
	default:
		if len(buf) < cur+8 {
			return nil, false, nil
		}
		d.ClusterNumber = ClusterIndex(getUint32(buf[cur:]))
		d.BlobNumber = BlobIndex(getUint32(buf[cur+4:]))
		cur += 8
	}

	pathEnd := bytes.IndexByte(buf[cur:], 0)
	if pathEnd < 0 {
		return nil, false, nil
	}
	d.Path = string(buf[cur : cur+pathEnd])
	cur += pathEnd + 1

	titleEnd := bytes.IndexByte(buf[cur:], 0)
	if titleEnd < 0 {
		return nil, false, nil
	}
	d.title = string(buf[cur : cur+titleEnd])
	cur += titleEnd + 1

	if len(buf) < cur+paramLen {
		return nil, false, nil
	}
	d.Parameter = string(buf[cur : cur+paramLen])

	return d, true, nil
}

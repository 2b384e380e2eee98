package zim

import (
	"math"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// HeaderSize is the fixed on-disk size of the ZIM header, and also the
// default mimeListPos for archives without the legacy 72-byte layout.
const HeaderSize = 80

const (
	zimMagic          uint32 = 0x044D495A
	zimOldMajorVersion uint16 = 5
	zimMajorVersion    uint16 = 6
	zimMinorVersion    uint16 = 3
)

const noIndexU32 = uint32(math.MaxUint32)

// UUID is the archive's opaque 16-byte identifier, preserved bit-exact.
type UUID [16]byte

// Header is the decoded fixed-size ZIM file header.
type Header struct {
	MajorVersion uint16
	MinorVersion uint16
	UUID         UUID

	ArticleCount uint32
	ClusterCount uint32

	PathPtrPos    Offset
	TitleIdxPos   Offset
	ClusterPtrPos Offset
	MimeListPos   Offset

	MainPage   uint32
	LayoutPage uint32

	ChecksumPos Offset
}

// HasTitleListingV0 reports whether the legacy titleIdxPos table is present.
func (h *Header) HasTitleListingV0() bool { return h.TitleIdxPos != 0 }

// HasMainPage reports whether MainPage names a real entry rather than the
// reserved all-ones "absent" sentinel.
func (h *Header) HasMainPage() bool { return h.MainPage != noIndexU32 }

// HasLayoutPage reports the same for LayoutPage.
func (h *Header) HasLayoutPage() bool { return h.LayoutPage != noIndexU32 }

// HasChecksum reports whether the archive declares an MD5 checksum footer.
func (h *Header) HasChecksum() bool { return h.ChecksumPos != 0 }

// UseNewNamespaceScheme reports whether content lives in namespace 'C'
// (major 6, minor >= 1) rather than the legacy per-type namespaces.
func (h *Header) UseNewNamespaceScheme() bool { return h.MinorVersion >= 1 }

// readHeader parses and sanity-checks the 80-byte header at the start of r.
func readHeader(r Reader) (*Header, error) {
	if r.Size() < HeaderSize {
		return nil, zimerror.Wrap(zimerror.ErrFileFormat, "file too small to contain a ZIM header")
	}
	buf, err := r.Read(0, HeaderSize)
	if err != nil {
		return nil, err
	}

	h := &Header{}
	if getUint32(buf[0:4]) != zimMagic {
		return nil, zimerror.Wrap(zimerror.ErrFileFormat, "invalid magic number")
	}
	h.MajorVersion = getUint16(buf[4:6])
	if h.MajorVersion != zimOldMajorVersion && h.MajorVersion != zimMajorVersion {
		return nil, zimerror.Wrap(zimerror.ErrFileFormat, "invalid zim major version")
	}
	h.MinorVersion = getUint16(buf[6:8])
	copy(h.UUID[:], buf[8:24])
	h.ArticleCount = getUint32(buf[24:28])
	h.ClusterCount = getUint32(buf[28:32])
	h.PathPtrPos = Offset(getUint64(buf[32:40]))
	h.TitleIdxPos = Offset(getUint64(buf[40:48]))
	h.ClusterPtrPos = Offset(getUint64(buf[48:56]))
	h.MimeListPos = Offset(getUint64(buf[56:64]))
	h.MainPage = getUint32(buf[64:68])
	h.LayoutPage = getUint32(buf[68:72])
	h.ChecksumPos = Offset(getUint64(buf[72:80]))

	if err := h.sanityCheck(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) sanityCheck() error {
	if (h.ArticleCount != 0) != (h.ClusterCount != 0) {
		return zimerror.Wrap(zimerror.ErrFileFormat, "no article <=> no cluster")
	}
	if h.MimeListPos != HeaderSize && h.MimeListPos != 72 {
		return zimerror.Wrap(zimerror.ErrFileFormat, "mimeListPos must be 72 or 80")
	}
	if h.PathPtrPos < h.MimeListPos {
		return zimerror.Wrap(zimerror.ErrFileFormat, "pathPtrPos must be >= mimeListPos")
	}
	if h.HasTitleListingV0() && h.TitleIdxPos < h.MimeListPos {
		return zimerror.Wrap(zimerror.ErrFileFormat, "titleIdxPos must be >= mimeListPos")
	}
	if h.ClusterPtrPos < h.MimeListPos {
		return zimerror.Wrap(zimerror.ErrFileFormat, "clusterPtrPos must be >= mimeListPos")
	}
	if h.ClusterCount > h.ArticleCount {
		return zimerror.Wrap(zimerror.ErrFileFormat, "cluster count cannot exceed entry count")
	}
	if h.ChecksumPos != 0 && h.ChecksumPos < h.MimeListPos {
		return zimerror.Wrap(zimerror.ErrFileFormat, "checksumPos must be >= mimeListPos")
	}
	return nil
}

// WriteHeader encodes h into the fixed 80-byte on-disk layout, for use by
// the writer package when emitting the final archive.
func WriteHeader(h *Header) []byte {
	return writeHeader(h)
}

// writeHeader encodes h into the fixed 80-byte on-disk layout.
func writeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	putUint32(buf[0:4], zimMagic)
	putUint16(buf[4:6], h.MajorVersion)
	putUint16(buf[6:8], h.MinorVersion)
	copy(buf[8:24], h.UUID[:])
	putUint32(buf[24:28], h.ArticleCount)
	putUint32(buf[28:32], h.ClusterCount)
	putUint64(buf[32:40], uint64(h.PathPtrPos))
	putUint64(buf[40:48], uint64(h.TitleIdxPos))
	putUint64(buf[48:56], uint64(h.ClusterPtrPos))
	putUint64(buf[56:64], uint64(h.MimeListPos))
	putUint32(buf[64:68], h.MainPage)
	putUint32(buf[68:72], h.LayoutPage)
	checksumPos := uint64(0)
	if h.HasChecksum() {
		checksumPos = uint64(h.ChecksumPos)
	}
	putUint64(buf[72:80], checksumPos)
	return buf
}

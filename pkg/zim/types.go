// Package zim implements a reader and writer for the ZIM archive format.
package zim

import "encoding/binary"

// EntryIndex addresses a dirent via the path-pointer table.
type EntryIndex uint32

// TitleIndex addresses a dirent via the title-ordered index.
type TitleIndex uint32

// ClusterIndex addresses a cluster via the cluster-pointer table.
type ClusterIndex uint32

// BlobIndex addresses a blob within a single cluster.
type BlobIndex uint32

// Offset is an absolute byte position inside a Reader.
type Offset uint64

// Size is a byte count. Offset and Size can be combined; mixing either
// with an index type is a compile error since they are distinct types.
type Size uint64

// Add returns off+n.
func (off Offset) Add(n Size) Offset { return off + Offset(n) }

// Sub returns the Size spanning [other, off). Callers must ensure off >= other.
func (off Offset) Sub(other Offset) Size { return Size(off - other) }

// Less reports whether off precedes other.
func (off Offset) Less(other Offset) bool { return off < other }

const (
	noEntryIndex   = EntryIndex(0xFFFFFFFF)
	noTitleIndex   = TitleIndex(0xFFFFFFFF)
	noClusterIndex = ClusterIndex(0xFFFFFFFF)
)

// IsNone reports whether idx is the reserved all-ones sentinel used by the
// header for "main page absent" / "layout page absent".
func (idx EntryIndex) IsNone() bool { return idx == noEntryIndex }

func getUint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func getUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func getUint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func putUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

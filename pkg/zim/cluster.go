package zim

import (
	"bytes"
	"compress/bzip2"
	"compress/flate"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// Compression identifies the method a cluster's payload was compressed
// with. Zip and Bzip2 are read-only: libzim stopped writing them years ago,
// but archives in the wild still carry them.
type Compression byte

const (
	CompressionNone  Compression = 1
	CompressionZip   Compression = 2
	CompressionBzip2 Compression = 3
	CompressionLzma  Compression = 4
	CompressionZstd  Compression = 5
)

var zstdDecoderPool = sync.Pool{
	New: func() interface{} {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			return nil
		}
		return dec
	},
}

func decompressZstd(compressed []byte) ([]byte, error) {
	v := zstdDecoderPool.Get()
	dec, ok := v.(*zstd.Decoder)
	if !ok || dec == nil {
		var err error
		dec, err = zstd.NewReader(bytes.NewReader(compressed), zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			return nil, zimerror.Wrapf(zimerror.ErrFileFormat, "zstd reader", err)
		}
		defer dec.Close()
		return dec.DecodeAll(compressed, nil)
	}
	defer zstdDecoderPool.Put(dec)
	if err := dec.Reset(bytes.NewReader(compressed)); err != nil {
		return nil, zimerror.Wrapf(zimerror.ErrFileFormat, "reset zstd decoder", err)
	}
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, zimerror.Wrapf(zimerror.ErrFileFormat, "decompress zstd cluster", err)
	}
	return out, nil
}

func decompressAll(compression Compression, compressed []byte) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return compressed, nil
	case CompressionZip:
		r := flate.NewReader(bytes.NewReader(compressed))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, zimerror.Wrapf(zimerror.ErrFileFormat, "decompress legacy deflate cluster", err)
		}
		return out, nil
	case CompressionBzip2:
		out, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(compressed)))
		if err != nil {
			return nil, zimerror.Wrapf(zimerror.ErrFileFormat, "decompress legacy bzip2 cluster", err)
		}
		return out, nil
	case CompressionLzma:
		r, err := lzma.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, zimerror.Wrapf(zimerror.ErrFileFormat, "lzma reader", err)
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, zimerror.Wrapf(zimerror.ErrFileFormat, "decompress lzma cluster", err)
		}
		return out, nil
	case CompressionZstd:
		return decompressZstd(compressed)
	default:
		return nil, zimerror.Wrap(zimerror.ErrFileFormat, "unknown cluster compression method")
	}
}

// Cluster is a reader-side decoded cluster: the decompressed blob-offset
// table plus a reader positioned right after the cluster-info byte, from
// which individual blobs are sliced on demand.
type Cluster struct {
	Compression Compression
	IsExtended  bool

	inner   Reader
	offsets []Offset // N+1 entries for N blobs, relative to inner (post-info-byte)
}

// readCluster decodes the cluster starting at clusterOffset in zimReader:
// one cluster-info byte, then (optionally compressed) blob data prefixed by
// an offset table.
func readCluster(zimReader Reader, clusterOffset Offset) (*Cluster, error) {
	infoByte, err := zimReader.ReadByte(clusterOffset)
	if err != nil {
		return nil, err
	}
	compression := Compression(infoByte & 0x0F)
	isExtended := infoByte&0x10 != 0

	rawSub, err := zimReader.SubReader(clusterOffset+1, zimReader.Size()-Size(clusterOffset)-1)
	if err != nil {
		return nil, err
	}

	var inner Reader
	if compression == CompressionNone {
		inner = rawSub
	} else {
		raw, err := rawSub.Read(0, rawSub.Size())
		if err != nil {
			return nil, err
		}
		decompressed, err := decompressAll(compression, raw)
		if err != nil {
			return nil, err
		}
		inner = newMemReader(decompressed)
	}

	elemSize := Size(4)
	if isExtended {
		elemSize = 8
	}

	var firstOffset uint64
	if isExtended {
		firstOffset, err = inner.ReadUint64(0)
	} else {
		var v uint32
		v, err = inner.ReadUint32(0)
		firstOffset = uint64(v)
	}
	if err != nil {
		return nil, err
	}

	tableBytes := Size(firstOffset)
	if tableBytes < elemSize || tableBytes%elemSize != 0 {
		return nil, zimerror.Wrap(zimerror.ErrFileFormat, "invalid cluster offset table size")
	}
	n := int(tableBytes/elemSize) - 1
	if n < 0 {
		return nil, zimerror.Wrap(zimerror.ErrFileFormat, "cluster offset table too short")
	}

	offsets := make([]Offset, n+1)
	offsets[0] = Offset(firstOffset)
	for i := 1; i <= n; i++ {
		var v uint64
		if isExtended {
			v, err = inner.ReadUint64(Offset(elemSize) * Offset(i))
		} else {
			var v32 uint32
			v32, err = inner.ReadUint32(Offset(elemSize) * Offset(i))
			v = uint64(v32)
		}
		if err != nil {
			return nil, err
		}
		if Offset(v) < offsets[i-1] {
			return nil, zimerror.Wrap(zimerror.ErrFileFormat, "cluster offset table is not monotonic")
		}
		offsets[i] = Offset(v)
	}
	if offsets[n] > Offset(inner.Size()) {
		return nil, zimerror.Wrap(zimerror.ErrFileFormat, "cluster offset table exceeds cluster data")
	}

	return &Cluster{Compression: compression, IsExtended: isExtended, inner: inner, offsets: offsets}, nil
}

// Count returns the number of blobs in the cluster.
func (c *Cluster) Count() BlobIndex { return BlobIndex(len(c.offsets) - 1) }

// BlobSize returns the byte length of blob n.
func (c *Cluster) BlobSize(n BlobIndex) (Size, error) {
	if int(n) >= len(c.offsets)-1 {
		return 0, zimerror.Wrap(zimerror.ErrOutOfRange, "blob index out of range")
	}
	return c.offsets[n+1].Sub(c.offsets[n]), nil
}

// Blob returns the full content of blob n.
func (c *Cluster) Blob(n BlobIndex) ([]byte, error) {
	size, err := c.BlobSize(n)
	if err != nil {
		return nil, err
	}
	return c.inner.Read(c.offsets[n], size)
}

// BlobRange returns size bytes of blob n starting at offset within it.
func (c *Cluster) BlobRange(n BlobIndex, offset Offset, size Size) ([]byte, error) {
	full, err := c.BlobSize(n)
	if err != nil {
		return nil, err
	}
	if Size(offset)+size > full {
		return nil, zimerror.Wrap(zimerror.ErrOutOfRange, "blob sub-range out of bounds")
	}
	return c.inner.Read(c.offsets[n]+offset, size)
}

package writer

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"

	"github.com/bevelgacom/zimgo/internal/zimerror"
	"github.com/bevelgacom/zimgo/pkg/zim"
)

// ContentProvider supplies one blob's bytes to a ClusterBuilder. Matches
// the writer's ContentProvider abstraction, simplified to always hand back
// the full payload rather than streaming it in feed()-sized chunks: a
// single archive build comfortably holds one cluster's worth of content in
// memory at a time.
type ContentProvider interface {
	Size() uint64
	Data() ([]byte, error)
}

// bytesProvider is the common case: content already resident in memory.
type bytesProvider struct{ b []byte }

func (p bytesProvider) Size() uint64         { return uint64(len(p.b)) }
func (p bytesProvider) Data() ([]byte, error) { return p.b, nil }

// NewBytesProvider wraps a byte slice as a ContentProvider.
func NewBytesProvider(b []byte) ContentProvider { return bytesProvider{b} }

// ClusterBuilder accumulates blobs destined for one on-disk cluster: an
// offset table plus the not-yet-serialized content providers. Exactly two
// builders are open at any time during a creation session, one compressed
// and one not (the "always-two" invariant), so that every incoming item
// can go straight to the builder matching its COMPRESS hint without
// blocking on the other's background compression.
type ClusterBuilder struct {
	Compression zim.Compression
	Index       uint32 // assigned by the Creator, in hand-off order, when closed and submitted

	mu        sync.Mutex
	offsets   []uint64 // len == count()+1, offsets[0] == 0
	providers []ContentProvider
	size      uint64

	closed bool
	final  []byte // serialized (compressed if applicable) bytes, set by serialize
	Offset uint64 // final file offset, set once flushed to the temp file

	serializeErr error
	done         chan struct{} // closed once serialize() has run
}

func newClusterBuilder(compression zim.Compression) *ClusterBuilder {
	return &ClusterBuilder{Compression: compression, offsets: []uint64{0}, done: make(chan struct{})}
}

// Count returns the number of blobs added so far.
func (c *ClusterBuilder) Count() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(len(c.offsets) - 1)
}

// Size returns the total uncompressed payload size added so far.
func (c *ClusterBuilder) Size() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// AddContent appends provider's content as the next blob, returning the
// blob index it was assigned.
func (c *ClusterBuilder) AddContent(provider ContentProvider) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := uint32(len(c.offsets) - 1)
	c.size += provider.Size()
	c.offsets = append(c.offsets, c.size)
	c.providers = append(c.providers, provider)
	return idx
}

// blobDataOffset returns blobNumber's byte offset into this cluster's
// decompressed data, table bias included and the leading info byte
// excluded -- spec §4.11.1's data_offset. Only valid once every blob
// destined for this builder has been added, since later additions can grow
// the offset table and shift every blob after it.
func (c *ClusterBuilder) blobDataOffset(blobNumber uint32) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	isExtended := c.size > uint64(^uint32(0))
	elemSize := uint64(4)
	if isExtended {
		elemSize = 8
	}
	tableBytes := elemSize * uint64(len(c.offsets))
	return c.offsets[blobNumber] + tableBytes
}

// IsClosed reports whether Close has been called (serialization may still
// be pending asynchronously, tracked separately via the done channel that
// serialize closes).
func (c *ClusterBuilder) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close marks the builder closed, making it eligible for background
// compression. No more content may be added afterward.
func (c *ClusterBuilder) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// serialize compresses (if applicable) and encodes the cluster's
// info-byte + offset table + blob data, producing the final on-disk bytes.
// Called by a compression worker, never concurrently for the same builder.
// It always closes done, recording any error for the writer goroutine to
// observe and propagate.
func (c *ClusterBuilder) serialize() {
	err := c.doSerialize()
	c.serializeErr = err
	close(c.done)
}

func (c *ClusterBuilder) doSerialize() error {
	isExtended := c.size > uint64(^uint32(0))

	var body bytes.Buffer
	elemSize := 4
	if isExtended {
		elemSize = 8
	}
	// Blob i spans [offsets[i], offsets[i+1]) measured from the start of the
	// decompressed cluster data, which begins with this very table. c.offsets
	// accumulates sizes relative to the start of the blob data instead, so the
	// table's own byte size is added to every entry before it is written.
	tableBytes := uint64(elemSize) * uint64(len(c.offsets))
	for _, off := range c.offsets {
		biased := off + tableBytes
		if isExtended {
			putUint64(&body, biased)
		} else {
			putUint32(&body, uint32(biased))
		}
	}
	for _, p := range c.providers {
		data, err := p.Data()
		if err != nil {
			return zimerror.Wrapf(zimerror.ErrIncoherentImplementation, "read content provider", err)
		}
		body.Write(data)
	}

	payload := body.Bytes()
	if c.Compression != zim.CompressionNone {
		compressed, err := compress(c.Compression, payload)
		if err != nil {
			return err
		}
		payload = compressed
	}

	info := byte(c.Compression)
	if isExtended {
		info |= 0x10
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, info)
	out = append(out, payload...)
	c.final = out
	return nil
}

func putUint32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func putUint64(buf *bytes.Buffer, v uint64) {
	for i := 0; i < 8; i++ {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}

func compress(method zim.Compression, data []byte) ([]byte, error) {
	switch method {
	case zim.CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, zimerror.Wrapf(zimerror.ErrResource, "zstd writer", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case zim.CompressionLzma:
		var buf bytes.Buffer
		w, err := lzma.NewWriter(&buf)
		if err != nil {
			return nil, zimerror.Wrapf(zimerror.ErrResource, "lzma writer", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, zimerror.Wrapf(zimerror.ErrResource, "lzma compress", err)
		}
		if err := w.Close(); err != nil {
			return nil, zimerror.Wrapf(zimerror.ErrResource, "lzma flush", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, zimerror.Wrap(zimerror.ErrResource, "unsupported writer compression method")
	}
}

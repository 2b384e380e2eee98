package zim

import (
	"container/list"
	"sync"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// DefaultDirentCacheSize is the default number of dirents kept in the LRU
// cache behind a DirectDirentAccessor, overridable per archive.
const DefaultDirentCacheSize = 512

type direntCacheEntry struct {
	idx    EntryIndex
	dirent *Dirent
}

// direntLRU is a simple fixed-capacity LRU keyed by entry index. It exists
// because container/list plus a map is the idiomatic Go shape for the
// lru_cache<K,V> the reader uses to bound dirent memory.
type direntLRU struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[EntryIndex]*list.Element
}

func newDirentLRU(capacity int) *direntLRU {
	return &direntLRU{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[EntryIndex]*list.Element),
	}
}

func (c *direntLRU) get(idx EntryIndex) (*Dirent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[idx]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*direntCacheEntry).dirent, true
	}
	return nil, false
}

func (c *direntLRU) put(idx EntryIndex, d *Dirent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[idx]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*direntCacheEntry).dirent = d
		return
	}
	el := c.ll.PushFront(&direntCacheEntry{idx: idx, dirent: d})
	c.items[idx] = el
	for c.capacity > 0 && c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*direntCacheEntry).idx)
	}
}

func (c *direntLRU) setCapacity(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = n
	for c.capacity > 0 && c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*direntCacheEntry).idx)
	}
}

// DirectDirentAccessor fetches dirents by entry index via the path-pointer
// table, LRU-caching decoded dirents to avoid re-parsing hot entries.
type DirectDirentAccessor struct {
	direntReader *direntReader
	pathPtrReader Reader
	direntCount  EntryIndex
	cache        *direntLRU
}

// NewDirectDirentAccessor constructs an accessor over a path-pointer table
// reader spanning exactly 8*direntCount bytes.
func NewDirectDirentAccessor(dr *direntReader, pathPtrReader Reader, direntCount EntryIndex) *DirectDirentAccessor {
	return &DirectDirentAccessor{
		direntReader:  dr,
		pathPtrReader: pathPtrReader,
		direntCount:   direntCount,
		cache:         newDirentLRU(DefaultDirentCacheSize),
	}
}

// DirentCount returns the number of entries addressable through this
// accessor.
func (a *DirectDirentAccessor) DirentCount() EntryIndex { return a.direntCount }

// SetCacheSize changes the maximum number of cached dirents.
func (a *DirectDirentAccessor) SetCacheSize(n int) { a.cache.setCapacity(n) }

// Offset returns the absolute file offset of dirent idx, read from the
// path-pointer table.
func (a *DirectDirentAccessor) Offset(idx EntryIndex) (Offset, error) {
	if idx >= a.direntCount {
		return 0, zimerror.Wrap(zimerror.ErrOutOfRange, "entry index out of range")
	}
	v, err := a.pathPtrReader.ReadUint64(Offset(8 * uint64(idx)))
	if err != nil {
		return 0, err
	}
	return Offset(v), nil
}

// Dirent fetches and decodes the dirent at entry index idx, consulting (and
// populating) the LRU cache.
func (a *DirectDirentAccessor) Dirent(idx EntryIndex) (*Dirent, error) {
	if d, ok := a.cache.get(idx); ok {
		return d, nil
	}
	off, err := a.Offset(idx)
	if err != nil {
		return nil, err
	}
	d, err := a.direntReader.readDirent(off)
	if err != nil {
		return nil, err
	}
	a.cache.put(idx, d)
	return d, nil
}

// IndirectDirentAccessor resolves dirents by title index, via an index of
// entry indexes sorted by (namespace, title), delegating the actual decode
// to the wrapped DirectDirentAccessor.
type IndirectDirentAccessor struct {
	direct      *DirectDirentAccessor
	indexReader Reader
	direntCount TitleIndex
}

// NewIndirectDirentAccessor constructs an accessor over a title-index table
// reader spanning exactly 4*direntCount bytes.
func NewIndirectDirentAccessor(direct *DirectDirentAccessor, indexReader Reader, direntCount TitleIndex) *IndirectDirentAccessor {
	return &IndirectDirentAccessor{direct: direct, indexReader: indexReader, direntCount: direntCount}
}

// DirentCount returns the number of title-ordered entries.
func (a *IndirectDirentAccessor) DirentCount() TitleIndex { return a.direntCount }

// DirectIndex resolves a title index to the entry index it names.
func (a *IndirectDirentAccessor) DirectIndex(idx TitleIndex) (EntryIndex, error) {
	if idx >= a.direntCount {
		return 0, zimerror.Wrap(zimerror.ErrOutOfRange, "title index out of range")
	}
	v, err := a.indexReader.ReadUint32(Offset(4 * uint32(idx)))
	if err != nil {
		return 0, err
	}
	return EntryIndex(v), nil
}

// Dirent fetches the dirent named (indirectly) by title index idx.
func (a *IndirectDirentAccessor) Dirent(idx TitleIndex) (*Dirent, error) {
	entryIdx, err := a.DirectIndex(idx)
	if err != nil {
		return nil, err
	}
	return a.direct.Dirent(entryIdx)
}

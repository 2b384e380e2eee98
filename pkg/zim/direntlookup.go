package zim

import (
	"sync"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// direntAccessorByIndex is the minimal surface direntLookup needs: fetch a
// dirent by raw entry index and report the total count. Both path lookup
// (over DirectDirentAccessor) and title lookup (over IndirectDirentAccessor,
// adapted in archive.go) implement it.
type direntAccessorByIndex interface {
	direntAt(i EntryIndex) (*Dirent, error)
	count() EntryIndex
}

// LookupResult is the outcome of a key lookup: Found reports an exact
// (namespace, key) match at Index; otherwise Index is the lower-bound
// insertion point.
type LookupResult struct {
	Found bool
	Index EntryIndex
}

// direntLookup binary-searches a namespace-then-key sorted dirent sequence,
// with per-namespace boundary caching. keyFunc extracts the comparison key
// (path or title) from a dirent.
type direntLookup struct {
	accessor direntAccessorByIndex
	keyFunc  func(*Dirent) string

	nsCacheMu sync.Mutex
	nsCache   map[byte]EntryIndex

	grid *narrowDown // nil unless fast lookup was built
}

func newDirentLookup(accessor direntAccessorByIndex, keyFunc func(*Dirent) string) *direntLookup {
	return &direntLookup{
		accessor: accessor,
		keyFunc:  keyFunc,
		nsCache:  make(map[byte]EntryIndex),
	}
}

// buildFastLookup populates the narrow-down grid over the whole sequence,
// sampling one entry every count/cacheEntryCount entries (rounded down, at
// least 1), so the grid holds fewer than 2*cacheEntryCount samples. Call
// once, after construction.
func (dl *direntLookup) buildFastLookup(cacheEntryCount int) error {
	count := dl.accessor.count()
	if count == 0 {
		return nil
	}
	if cacheEntryCount < 1 {
		cacheEntryCount = 1
	}
	step := int(count) / cacheEntryCount
	if step < 1 {
		step = 1
	}
	grid := &narrowDown{}
	gridKey := func(i EntryIndex) (string, error) {
		d, err := dl.accessor.direntAt(i)
		if err != nil {
			return "", err
		}
		return string(d.Namespace) + dl.keyFunc(d), nil
	}
	for i := 0; i < int(count)-1; i += step {
		k, err := gridKey(EntryIndex(i))
		if err != nil {
			return err
		}
		nk, err := gridKey(EntryIndex(i + 1))
		if err != nil {
			return err
		}
		if err := grid.add(k, EntryIndex(i), nk); err != nil {
			return err
		}
	}
	lastKey, err := gridKey(count - 1)
	if err != nil {
		return err
	}
	grid.close(lastKey, count-1)
	dl.grid = grid
	return nil
}

func (dl *direntLookup) compareWithDirentAt(ns byte, key string, i EntryIndex) (int, error) {
	d, err := dl.accessor.direntAt(i)
	if err != nil {
		return 0, err
	}
	if ns < d.Namespace {
		return -1, nil
	}
	if ns > d.Namespace {
		return 1, nil
	}
	dk := dl.keyFunc(d)
	switch {
	case key < dk:
		return -1, nil
	case key > dk:
		return 1, nil
	default:
		return 0, nil
	}
}

// find looks up (ns, key), using the narrow-down grid to restrict the
// binary-search range when one has been built.
func (dl *direntLookup) find(ns byte, key string) (LookupResult, error) {
	count := dl.accessor.count()
	if dl.grid != nil {
		r := dl.grid.getRange(string(ns) + key)
		end := r.end
		if end > count {
			end = count
		}
		return dl.findInRange(r.begin, end, ns, key)
	}
	return dl.findInRange(0, count, ns, key)
}

func (dl *direntLookup) findInRange(l, u EntryIndex, ns byte, key string) (LookupResult, error) {
	if l == u {
		return LookupResult{false, l}, nil
	}
	c, err := dl.compareWithDirentAt(ns, key, l)
	if err != nil {
		return LookupResult{}, err
	}
	if c < 0 {
		return LookupResult{false, l}, nil
	}
	if c == 0 {
		return LookupResult{true, l}, nil
	}
	cu, err := dl.compareWithDirentAt(ns, key, u-1)
	if err != nil {
		return LookupResult{}, err
	}
	if cu > 0 {
		return LookupResult{false, u}, nil
	}
	return dl.binarySearchInRange(l, u-1, ns, key)
}

func (dl *direntLookup) binarySearchInRange(l, u EntryIndex, ns byte, key string) (LookupResult, error) {
	for {
		p := l + (u-l+1)/2
		c, err := dl.compareWithDirentAt(ns, key, p)
		if err != nil {
			return LookupResult{}, err
		}
		if c <= 0 {
			if u == p {
				return LookupResult{c == 0, u}, nil
			}
			u = p
		} else {
			l = p
		}
	}
}

// namespaceRangeBegin returns the smallest entry index whose dirent
// namespace is >= ns, caching the result per namespace byte.
func (dl *direntLookup) namespaceRangeBegin(ns byte) (EntryIndex, error) {
	if ns < 32 || ns > 127 {
		return 0, zimerror.Wrap(zimerror.ErrOutOfRange, "namespace byte out of range")
	}

	dl.nsCacheMu.Lock()
	if v, ok := dl.nsCache[ns]; ok {
		dl.nsCacheMu.Unlock()
		return v, nil
	}
	dl.nsCacheMu.Unlock()

	count := dl.accessor.count()
	lower, upper := EntryIndex(0), count
	var lastNS byte
	for upper-lower > 1 {
		m := lower + (upper-lower)/2
		d, err := dl.accessor.direntAt(m)
		if err != nil {
			return 0, err
		}
		lastNS = d.Namespace
		if d.Namespace >= ns {
			upper = m
		} else {
			lower = m
		}
	}
	if count > 0 {
		d, err := dl.accessor.direntAt(lower)
		if err != nil {
			return 0, err
		}
		lastNS = d.Namespace
	}

	var ret EntryIndex
	if lastNS < ns {
		ret = upper
	} else {
		ret = lower
	}

	dl.nsCacheMu.Lock()
	dl.nsCache[ns] = ret
	dl.nsCacheMu.Unlock()
	return ret, nil
}

// namespaceRangeEnd returns namespaceRangeBegin(ns+1).
func (dl *direntLookup) namespaceRangeEnd(ns byte) (EntryIndex, error) {
	return dl.namespaceRangeBegin(ns + 1)
}

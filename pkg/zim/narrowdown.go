package zim

import (
	"sort"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// narrowDownEntry pairs a pseudo-key (densely packed in keyContent) with the
// sequence index right after which it may be inserted without breaking
// order: sequence[lindex] <= pseudoKey <= sequence[lindex+1].
type narrowDownEntry struct {
	keyOffset int
	keyLen    int
	lindex    EntryIndex
}

// narrowDown is a small in-memory index over a sorted, expensive-to-access
// external sequence. A lookup first narrows the query to a dense [lo, hi]
// sub-range here, then the caller binary-searches the real sequence inside
// that range.
type narrowDown struct {
	keyContent []byte
	entries    []narrowDownEntry
}

func (nd *narrowDown) keyAt(i int) string {
	e := nd.entries[i]
	return string(nd.keyContent[e.keyOffset : e.keyOffset+e.keyLen])
}

func (nd *narrowDown) addEntry(key string, i EntryIndex) {
	nd.entries = append(nd.entries, narrowDownEntry{
		keyOffset: len(nd.keyContent),
		keyLen:    len(key),
		lindex:    i,
	})
	nd.keyContent = append(nd.keyContent, key...)
}

// add registers key -> i, deriving a pseudo-key shorter than or equal to key
// from key and the next sequence key so the in-memory index stays compact.
func (nd *narrowDown) add(key string, i EntryIndex, nextKey string) error {
	if key >= nextKey {
		return zimerror.Wrap(zimerror.ErrFileFormat, "dirent table is not properly sorted")
	}
	if len(nd.entries) == 0 {
		nd.addEntry(key, i)
		return nil
	}
	pseudoKey := shortestStringInBetween(key, nextKey)
	if !(pseudoKey > nd.keyAt(len(nd.entries)-1)) {
		return zimerror.Wrap(zimerror.ErrFileFormat, "dirent table is not properly sorted")
	}
	nd.addEntry(pseudoKey, i)
	return nil
}

// close adds the final, full key for the last sequence entry.
func (nd *narrowDown) close(key string, i EntryIndex) {
	nd.addEntry(key, i)
}

// narrowRange is the [begin, end) sub-range a lookup key should be searched
// within on the real sequence.
type narrowRange struct {
	begin, end EntryIndex
}

// getRange narrows key down to a dense sub-range of the external sequence.
func (nd *narrowDown) getRange(key string) narrowRange {
	idx := sort.Search(len(nd.entries), func(i int) bool { return key < nd.keyAt(i) })
	if idx == 0 {
		return narrowRange{0, 0}
	}
	prevLindex := nd.entries[idx-1].lindex
	if idx == len(nd.entries) {
		return narrowRange{prevLindex, prevLindex + 1}
	}
	return narrowRange{prevLindex, nd.entries[idx].lindex + 1}
}

// shortestStringInBetween returns the shortest string s with a < s <= b,
// by taking b's prefix up to and including the first byte that differs
// from a (given a <= b).
func shortestStringInBetween(a, b string) string {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	i := 0
	for i < minLen && a[i] == b[i] {
		i++
	}
	cut := i + 1
	if cut > len(b) {
		cut = len(b)
	}
	return b[:cut]
}

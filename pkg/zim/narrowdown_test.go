package zim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntry struct {
	ns   byte
	path string
}

type fakeAccessor struct{ entries []fakeEntry }

func (f *fakeAccessor) direntAt(i EntryIndex) (*Dirent, error) {
	e := f.entries[i]
	return &Dirent{Namespace: e.ns, Path: e.path}, nil
}

func (f *fakeAccessor) count() EntryIndex { return EntryIndex(len(f.entries)) }

// Scenario 6: a 13-item sample spanning four namespaces, narrowed through
// the fast grid built over every entry.
func TestNarrowDownSample(t *testing.T) {
	acc := &fakeAccessor{entries: []fakeEntry{
		{'A', "aa"}, {'A', "aaaa"}, {'A', "aaaaaa"}, {'A', "aaaabb"}, {'A', "aaaacc"},
		{'A', "aabbaa"}, {'A', "aabbbb"}, {'A', "aabbcc"}, {'A', "cccccc"},
		{'M', "foo"},
		{'a', "aa"}, {'a', "bb"},
		{'b', "aa"},
	}}
	dl := newDirentLookup(acc, func(d *Dirent) string { return d.Path })
	require.NoError(t, dl.buildFastLookup(int(acc.count())))

	cases := []struct {
		ns       byte
		key      string
		found    bool
		index    EntryIndex
	}{
		{'A', "aabb", false, 5},
		{'A', "aabbbb", true, 6},
		{'U', "aa", false, 10},
		{'A', "dd", false, 9},
	}
	for _, c := range cases {
		res, err := dl.find(c.ns, c.key)
		require.NoError(t, err)
		assert.Equal(t, c.found, res.Found, "find(%q,%q).Found", string(c.ns), c.key)
		assert.Equal(t, c.index, res.Index, "find(%q,%q).Index", string(c.ns), c.key)
	}
}

// P6: the fast (grid-narrowed) lookup and the plain exhaustive binary
// search must agree on every key actually present in the sequence.
func TestNarrowDownMatchesExhaustiveSearch(t *testing.T) {
	acc := &fakeAccessor{entries: []fakeEntry{
		{'A', "aa"}, {'A', "aaaa"}, {'A', "aaaaaa"}, {'A', "aaaabb"}, {'A', "aaaacc"},
		{'A', "aabbaa"}, {'A', "aabbbb"}, {'A', "aabbcc"}, {'A', "cccccc"},
		{'M', "foo"},
		{'a', "aa"}, {'a', "bb"},
		{'b', "aa"},
	}}
	fast := newDirentLookup(acc, func(d *Dirent) string { return d.Path })
	require.NoError(t, fast.buildFastLookup(int(acc.count())))
	exhaustive := newDirentLookup(acc, func(d *Dirent) string { return d.Path })

	for _, e := range acc.entries {
		fastRes, err := fast.find(e.ns, e.path)
		require.NoError(t, err)
		exhaustiveRes, err := exhaustive.find(e.ns, e.path)
		require.NoError(t, err)
		assert.Equal(t, exhaustiveRes, fastRes)
	}
}

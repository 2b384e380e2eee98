package writer_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bevelgacom/zimgo/internal/zimerror"
	"github.com/bevelgacom/zimgo/pkg/zim"
	"github.com/bevelgacom/zimgo/pkg/zim/writer"
)

func tempZimPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "out.zim")
}

// Scenario 1: an archive with no items still opens, reports the two
// synthesized metadata/listing entries, and has no random entry.
func TestEmptyArchive(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New()
	require.NoError(t, c.StartZimCreation(path))
	require.NoError(t, c.FinishZimCreation())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.Size(), int64(zim.HeaderSize))

	ar, err := zim.Open(path)
	require.NoError(t, err)
	assert.Equal(t, zim.EntryIndex(2), ar.EntryCountAll())

	ok, err := ar.Check()
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = ar.GetRandomEntry()
	assert.ErrorIs(t, err, zimerror.ErrEntryNotFound)
}

// Scenario 2 / P1: a single item round-trips its title, mimetype, and body.
func TestSingleItemRoundTrip(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New()
	require.NoError(t, c.StartZimCreation(path))
	require.NoError(t, c.AddItem(writer.Item{
		Path:     "foo",
		Title:    "Foo",
		MimeType: "text/html",
		Content:  writer.NewBytesProvider([]byte("FooContent")),
	}))
	require.NoError(t, c.FinishZimCreation())

	ar, err := zim.Open(path)
	require.NoError(t, err)

	d, err := ar.GetEntryByPath("foo")
	require.NoError(t, err)
	assert.Equal(t, "Foo", d.Title())
	mt, err := ar.MimeType(d.MimeType)
	require.NoError(t, err)
	assert.Equal(t, "text/html", mt)

	content, err := ar.BlobOf(d)
	require.NoError(t, err)
	assert.Equal(t, "FooContent", string(content))

	counter, err := ar.Metadata("Counter")
	require.NoError(t, err)
	assert.Equal(t, "text/html=1", string(counter))
}

// Scenario 3 / P2: a redirect resolves to its target's entry index.
func TestRedirectResolves(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New()
	require.NoError(t, c.StartZimCreation(path))
	require.NoError(t, c.AddItem(writer.Item{
		Path:     "foo",
		Title:    "Foo",
		MimeType: "text/html",
		Content:  writer.NewBytesProvider([]byte("FooContent")),
	}))
	require.NoError(t, c.AddRedirection("foo3", "FooRedirection", "foo", nil))
	require.NoError(t, c.FinishZimCreation())

	ar, err := zim.Open(path)
	require.NoError(t, err)

	target, err := ar.GetEntryByPath("foo")
	require.NoError(t, err)

	redirect, err := ar.GetEntryByPath("foo3")
	require.NoError(t, err)
	assert.True(t, redirect.IsRedirect())

	resolved, err := ar.Resolve(redirect)
	require.NoError(t, err)
	assert.Equal(t, target.Path, resolved.Path)
}

// A redirect whose target never existed must not survive finalize (P2).
func TestRedirectToMissingTargetIsDropped(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New()
	require.NoError(t, c.StartZimCreation(path))
	require.NoError(t, c.AddRedirection("ghost", "Ghost", "nowhere", nil))
	require.NoError(t, c.FinishZimCreation())

	ar, err := zim.Open(path)
	require.NoError(t, err)

	_, err = ar.GetEntryByPath("ghost")
	assert.ErrorIs(t, err, zimerror.ErrEntryNotFound)
}

// Scenario 4: an alias shares its target's cluster and blob.
func TestAliasSharesContent(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New()
	require.NoError(t, c.StartZimCreation(path))
	require.NoError(t, c.AddItem(writer.Item{
		Path:     "foo2",
		Title:    "AFoo",
		MimeType: "text/html",
		Content:  writer.NewBytesProvider([]byte("Foo2Content")),
	}))
	require.NoError(t, c.AddAlias("foo_bis", "The same Foo", "foo2", nil))
	require.NoError(t, c.FinishZimCreation())

	ar, err := zim.Open(path)
	require.NoError(t, err)

	original, err := ar.GetEntryByPath("foo2")
	require.NoError(t, err)
	alias, err := ar.GetEntryByPath("foo_bis")
	require.NoError(t, err)

	assert.Equal(t, original.ClusterNumber, alias.ClusterNumber)
	assert.Equal(t, original.BlobNumber, alias.BlobNumber)

	content, err := ar.BlobOf(alias)
	require.NoError(t, err)
	assert.Equal(t, "Foo2Content", string(content))
}

// P5: flipping any single non-checksum byte must make Check fail.
func TestChecksumDetectsCorruption(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New()
	require.NoError(t, c.StartZimCreation(path))
	require.NoError(t, c.AddItem(writer.Item{
		Path:     "foo",
		Title:    "Foo",
		MimeType: "text/html",
		Content:  writer.NewBytesProvider([]byte("FooContent")),
	}))
	require.NoError(t, c.FinishZimCreation())

	ar, err := zim.Open(path)
	require.NoError(t, err)
	ok, err := ar.Check()
	require.NoError(t, err)
	require.True(t, ok)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// The checksum footer is the trailing 16 bytes; corrupt a header byte
	// well clear of it instead.
	mutated := append([]byte(nil), raw...)
	mutated[10] ^= 0xFF
	mutPath := tempZimPath(t)
	require.NoError(t, os.WriteFile(mutPath, mutated, 0o644))

	ar2, err := zim.Open(mutPath)
	require.NoError(t, err)
	ok, err = ar2.Check()
	require.NoError(t, err)
	assert.False(t, ok)
}

// P7 / boundary: prefix search returns exactly the matching contiguous range.
func TestFindByPathPrefix(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New()
	require.NoError(t, c.StartZimCreation(path))
	for _, p := range []string{"aa", "ab", "abc", "abd", "b"} {
		require.NoError(t, c.AddItem(writer.Item{
			Path:     p,
			Title:    p,
			MimeType: "text/plain",
			Content:  writer.NewBytesProvider([]byte(p)),
		}))
	}
	require.NoError(t, c.FinishZimCreation())

	ar, err := zim.Open(path)
	require.NoError(t, err)

	begin, end, err := ar.FindByPathPrefix("ab")
	require.NoError(t, err)
	var got []string
	for i := begin; i < end; i++ {
		d, err := ar.GetEntryByPathIdx(i)
		require.NoError(t, err)
		got = append(got, d.Path)
	}
	assert.Equal(t, []string{"ab", "abc", "abd"}, got)

	allBegin, allEnd, err := ar.FindByPathPrefix("")
	require.NoError(t, err)
	assert.Equal(t, ar.EntryCountUser(), allEnd-allBegin)
}

// P3: path-order iteration over user entries is strictly ascending by
// (namespace, path).
func TestPathOrderIsStrictlyAscending(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New()
	require.NoError(t, c.StartZimCreation(path))
	for _, p := range []string{"zzz", "aaa", "mmm", "bbb"} {
		require.NoError(t, c.AddItem(writer.Item{
			Path:     p,
			Title:    p,
			MimeType: "text/plain",
			Content:  writer.NewBytesProvider([]byte(p)),
		}))
	}
	require.NoError(t, c.FinishZimCreation())

	ar, err := zim.Open(path)
	require.NoError(t, err)

	begin, end, err := ar.FindByPathPrefix("")
	require.NoError(t, err)
	var prev *zim.Dirent
	for i := begin; i < end; i++ {
		d, err := ar.GetEntryByPathIdx(i)
		require.NoError(t, err)
		if prev != nil {
			assert.True(t, prev.Namespace < d.Namespace ||
				(prev.Namespace == d.Namespace && prev.Path < d.Path))
		}
		prev = d
	}
}

// Forcing several small clusters still leaves every cluster pointer inside
// the file (CheckClusterPtrs), and content remains readable across the
// cluster boundary.
func TestMultiClusterContentSurvives(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New(writer.WithClusterSize(64))
	require.NoError(t, c.StartZimCreation(path))
	for i := 0; i < 20; i++ {
		p := string(rune('a' + i))
		require.NoError(t, c.AddItem(writer.Item{
			Path:     p,
			Title:    p,
			MimeType: "text/plain",
			Content:  writer.NewBytesProvider([]byte(strings.Repeat(p, 128))),
		}))
	}
	require.NoError(t, c.FinishZimCreation())

	ar, err := zim.Open(path)
	require.NoError(t, err)

	ok, err := ar.CheckIntegrity(zim.CheckClusterPtrs)
	require.NoError(t, err)
	assert.True(t, ok)

	for i := 0; i < 20; i++ {
		p := string(rune('a' + i))
		d, err := ar.GetEntryByPath(p)
		require.NoError(t, err)
		content, err := ar.BlobOf(d)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat(p, 128), string(content))
	}
}

// P4: once a FRONT_ARTICLE item makes the v1 listing non-empty, it is the
// archive's title index: title lookup, title-prefix search and
// GetRandomEntry all go through it, and "foo" (no hint) is not listed.
func TestTitleIndexRoundTrip(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New()
	require.NoError(t, c.StartZimCreation(path))
	require.NoError(t, c.AddItem(writer.Item{
		Path:     "foo",
		Title:    "Zulu",
		MimeType: "text/html",
		Content:  writer.NewBytesProvider([]byte("FooContent")),
	}))
	require.NoError(t, c.AddItem(writer.Item{
		Path:     "bar",
		Title:    "Alpha",
		MimeType: "text/html",
		Content:  writer.NewBytesProvider([]byte("BarContent")),
		Hints:    writer.Hints{writer.HintFrontArticle: 1},
	}))
	require.NoError(t, c.FinishZimCreation())

	ar, err := zim.Open(path)
	require.NoError(t, err)

	d, err := ar.GetEntryByTitle("Alpha")
	require.NoError(t, err)
	assert.Equal(t, "bar", d.Path)

	begin, end, err := ar.FindByTitlePrefix("A")
	require.NoError(t, err)
	var got []string
	for i := begin; i < end; i++ {
		d, err := ar.GetEntryByTitleIdx(i)
		require.NoError(t, err)
		got = append(got, d.Title())
	}
	assert.Equal(t, []string{"Alpha"}, got)

	_, err = ar.GetRandomEntry()
	require.NoError(t, err)
}

// Boundary: reading past the last entry index must raise OutOfRange.
func TestGetEntryByPathIdxOutOfRange(t *testing.T) {
	path := tempZimPath(t)
	c := writer.New()
	require.NoError(t, c.StartZimCreation(path))
	require.NoError(t, c.FinishZimCreation())

	ar, err := zim.Open(path)
	require.NoError(t, err)

	_, err = ar.GetEntryByPathIdx(ar.EntryCountAll())
	assert.ErrorIs(t, err, zimerror.ErrOutOfRange)
}

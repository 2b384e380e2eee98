package zim

import (
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

const (
	nsOldArticle  = 'A'
	nsOldImage    = 'I'
	nsOldMeta1    = 'J'
	nsMetadata    = 'M'
	nsOldWelcome  = 'W'
	nsIndex       = 'X'
	nsOldLayout   = '-'
	nsNewContent  = 'C'
)

// directAdapter and indirectAdapter adapt DirectDirentAccessor and
// IndirectDirentAccessor to the common direntAccessorByIndex surface used by direntLookup.
type directAdapter struct{ a *DirectDirentAccessor }

func (d directAdapter) direntAt(i EntryIndex) (*Dirent, error) { return d.a.Dirent(i) }
func (d directAdapter) count() EntryIndex                      { return d.a.DirentCount() }

type indirectAdapter struct{ a *IndirectDirentAccessor }

func (d indirectAdapter) direntAt(i EntryIndex) (*Dirent, error) {
	return d.a.Dirent(TitleIndex(i))
}
func (d indirectAdapter) count() EntryIndex { return EntryIndex(d.a.DirentCount()) }

// Archive is the reader facade over one opened ZIM file: header, pointer
// tables, dirent accessors, cluster cache, and the derived lookup
// structures built on top of them.
type Archive struct {
	compound *FileCompound
	reader   Reader
	header   *Header

	pathAccessor  *DirectDirentAccessor
	titleAccessor *IndirectDirentAccessor // may be nil if only the legacy table exists
	legacyTitleReader Reader              // set when falling back to header.TitleIdxPos
	legacyTitleCount  TitleIndex

	clusterOffsets Reader
	clusterCache   *ClusterCache

	pathLookup  *direntLookup
	titleLookup *direntLookup

	mimetypes []string

	newScheme          bool
	startUser, endUser EntryIndex

	clusterOrderOnce sync.Once
	clusterOrder     []EntryIndex

	quirkMajor5Minor0 bool
}

// OpenOptions controls how Open constructs an Archive.
type OpenOptions struct {
	// ClusterCacheSize overrides DefaultClusterCacheSize (also overridable
	// via the ZIM_CLUSTERCACHE environment variable).
	ClusterCacheSize int
	// DirentCacheSize overrides DefaultDirentCacheSize (ZIM_DIRENTCACHE).
	DirentCacheSize int
	// NarrowDownSamples overrides the default narrow-down grid sample
	// count (ZIM_DIRENTLOOKUPCACHE).
	NarrowDownSamples int
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

const defaultNarrowDownSamples = 256

// Open opens filename (a single-piece or split ZIM archive) and constructs
// an Archive facade over it.
func Open(filename string) (*Archive, error) {
	return OpenWithOptions(filename, OpenOptions{})
}

// OpenWithOptions is Open with explicit cache-size overrides.
func OpenWithOptions(filename string, opts OpenOptions) (*Archive, error) {
	compound, err := openFileCompound(filename)
	if err != nil {
		return nil, err
	}
	reader := newMultiPartReader(compound, 0, compound.Size())
	return newArchive(compound, reader, opts)
}

func newArchive(compound *FileCompound, reader Reader, opts OpenOptions) (*Archive, error) {
	header, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	pathPtrReader, err := reader.SubReader(header.PathPtrPos, Size(8)*Size(header.ArticleCount))
	if err != nil {
		return nil, err
	}
	dr := newDirentReader(reader)
	pathAccessor := NewDirectDirentAccessor(dr, pathPtrReader, EntryIndex(header.ArticleCount))
	if n := opts.DirentCacheSize; n > 0 {
		pathAccessor.SetCacheSize(n)
	} else {
		pathAccessor.SetCacheSize(envInt("ZIM_DIRENTCACHE", DefaultDirentCacheSize))
	}

	clusterOffsets, err := reader.SubReader(header.ClusterPtrPos, Size(8)*Size(header.ClusterCount))
	if err != nil {
		return nil, err
	}

	if header.ClusterCount > 0 {
		lastOff, err := clusterOffsets.ReadUint64(Offset(8) * Offset(header.ClusterCount-1))
		if err != nil {
			return nil, err
		}
		if Offset(lastOff) >= Offset(reader.Size()) {
			return nil, zimerror.Wrap(zimerror.ErrFileFormat, "last cluster offset exceeds file size")
		}
	}
	if header.HasChecksum() {
		if uint64(header.ChecksumPos) != uint64(reader.Size())-16 {
			return nil, zimerror.Wrap(zimerror.ErrFileFormat, "checksumPos does not point at file_size-16")
		}
	}

	ar := &Archive{
		compound:       compound,
		reader:         reader,
		header:         header,
		pathAccessor:   pathAccessor,
		clusterOffsets: clusterOffsets,
	}
	ar.quirkMajor5Minor0 = header.MajorVersion == 5 && header.MinorVersion == 0

	clusterCacheSize := opts.ClusterCacheSize
	if clusterCacheSize <= 0 {
		clusterCacheSize = envInt("ZIM_CLUSTERCACHE", DefaultClusterCacheSize)
	}
	ar.clusterCache = NewClusterCache(clusterCacheSize, ar.loadCluster)
	ar.clusterCache.SetQuirkEviction(ar.quirkMajor5Minor0)

	ar.newScheme = header.UseNewNamespaceScheme()

	ar.pathLookup = newDirentLookup(directAdapter{pathAccessor}, func(d *Dirent) string { return d.Path })
	samples := opts.NarrowDownSamples
	if samples <= 0 {
		samples = envInt("ZIM_DIRENTLOOKUPCACHE", defaultNarrowDownSamples)
	}
	if err := ar.pathLookup.buildFastLookup(samples); err != nil {
		return nil, err
	}

	if err := ar.setupTitleIndex(samples); err != nil {
		return nil, err
	}

	if err := ar.loadMimetypes(); err != nil {
		return nil, err
	}

	if ar.newScheme {
		begin, err := ar.pathLookup.namespaceRangeBegin(nsNewContent)
		if err != nil {
			return nil, err
		}
		end, err := ar.pathLookup.namespaceRangeEnd(nsNewContent)
		if err != nil {
			return nil, err
		}
		ar.startUser, ar.endUser = begin, end
	} else {
		ar.startUser, ar.endUser = 0, EntryIndex(header.ArticleCount)
	}

	return ar, nil
}

func (ar *Archive) setupTitleIndex(samples int) error {
	if res, err := ar.pathLookup.find(nsIndex, "listing/titleOrdered/v1"); err == nil && res.Found {
		d, err := ar.pathAccessor.Dirent(res.Index)
		if err != nil {
			return err
		}
		if d.IsItem() {
			cluster, err := ar.clusterCache.Get(ClusterIndex(d.ClusterNumber))
			if err != nil {
				return err
			}
			blob, err := cluster.Blob(d.BlobNumber)
			if err != nil {
				return err
			}
			idxReader := newMemReader(blob)
			count := TitleIndex(len(blob) / 4)
			ar.titleAccessor = NewIndirectDirentAccessor(ar.pathAccessor, idxReader, count)
		}
	}

	if ar.titleAccessor == nil && ar.header.HasTitleListingV0() {
		r, err := ar.reader.SubReader(ar.header.TitleIdxPos, Size(4)*Size(ar.header.ArticleCount))
		if err != nil {
			return err
		}
		ar.legacyTitleReader = r
		ar.legacyTitleCount = TitleIndex(ar.header.ArticleCount)
		ar.titleAccessor = NewIndirectDirentAccessor(ar.pathAccessor, r, ar.legacyTitleCount)
	}

	if ar.titleAccessor != nil {
		ar.titleLookup = newDirentLookup(indirectAdapter{ar.titleAccessor}, func(d *Dirent) string { return d.Title() })
		if err := ar.titleLookup.buildFastLookup(samples); err != nil {
			return err
		}
	}
	return nil
}

// loadMimetypes reads the NUL-terminated mimetype list starting at
// header.MimeListPos, bounded above by the nearest pointer-table/dirent/
// cluster position.
func (ar *Archive) loadMimetypes() error {
	upper := ar.header.PathPtrPos
	if ar.header.HasTitleListingV0() && ar.header.TitleIdxPos < upper {
		upper = ar.header.TitleIdxPos
	}
	if ar.header.ClusterPtrPos < upper {
		upper = ar.header.ClusterPtrPos
	}
	if ar.header.ArticleCount > 0 {
		if off, err := ar.pathAccessor.Offset(0); err == nil && off < upper {
			upper = off
		}
	}
	if ar.header.ClusterCount > 0 {
		if off, err := ar.clusterOffsets.ReadUint64(0); err == nil && Offset(off) < upper {
			upper = Offset(off)
		}
	}

	maxLen := Size(upper - ar.header.MimeListPos)
	buf, err := ar.reader.Read(ar.header.MimeListPos, maxLen)
	if err != nil {
		return err
	}
	var mimetypes []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i == start {
				break
			}
			mimetypes = append(mimetypes, string(buf[start:i]))
			start = i + 1
		}
	}
	ar.mimetypes = mimetypes
	return nil
}

func (ar *Archive) loadCluster(idx ClusterIndex) (*Cluster, error) {
	if uint32(idx) >= ar.header.ClusterCount {
		return nil, zimerror.Wrap(zimerror.ErrOutOfRange, "cluster index out of range")
	}
	off, err := ar.clusterOffsets.ReadUint64(Offset(8) * Offset(idx))
	if err != nil {
		return nil, err
	}
	return readCluster(ar.reader, Offset(off))
}

// MimeType returns the mimetype string at index i in the archive's
// mimetype list.
func (ar *Archive) MimeType(i uint16) (string, error) {
	if int(i) >= len(ar.mimetypes) {
		return "", zimerror.Wrap(zimerror.ErrOutOfRange, "mimetype index out of range")
	}
	return ar.mimetypes[i], nil
}

// EntryCountAll returns the total number of dirents in the archive.
func (ar *Archive) EntryCountAll() EntryIndex { return EntryIndex(ar.header.ArticleCount) }

// EntryCountUser returns the number of user-visible entries.
func (ar *Archive) EntryCountUser() EntryIndex { return ar.endUser - ar.startUser }

// HasNewNamespaceScheme reports whether this archive uses the single-'C'
// content namespace (major 6, minor >= 1).
func (ar *Archive) HasNewNamespaceScheme() bool { return ar.newScheme }

// Cluster returns the decoded cluster at idx, via the cluster cache.
func (ar *Archive) Cluster(idx ClusterIndex) (*Cluster, error) { return ar.clusterCache.Get(idx) }

// GetEntryByPathIdx returns the dirent at raw entry index i.
func (ar *Archive) GetEntryByPathIdx(i EntryIndex) (*Dirent, error) { return ar.pathAccessor.Dirent(i) }

// GetEntryByTitleIdx returns the dirent named by title index i.
func (ar *Archive) GetEntryByTitleIdx(i TitleIndex) (*Dirent, error) {
	if ar.titleAccessor == nil {
		return nil, zimerror.Wrap(zimerror.ErrEntryNotFound, "archive has no title index")
	}
	return ar.titleAccessor.Dirent(i)
}

// GetEntryByClusterOrder returns the i-th user item entry when items are
// ordered by (clusterIndex, entryIndex), computing that order once on
// first use. Redirects and other non-item entries are not part of the
// order.
func (ar *Archive) GetEntryByClusterOrder(i EntryIndex) (*Dirent, error) {
	var buildErr error
	ar.clusterOrderOnce.Do(func() {
		type kv struct {
			cluster ClusterIndex
			entry   EntryIndex
		}
		order := make([]kv, 0, int(ar.endUser-ar.startUser))
		for e := ar.startUser; e < ar.endUser; e++ {
			d, err := ar.pathAccessor.Dirent(e)
			if err != nil {
				buildErr = err
				return
			}
			if !d.IsItem() {
				continue
			}
			order = append(order, kv{d.ClusterNumber, e})
		}
		sort.Slice(order, func(i, j int) bool {
			if order[i].cluster != order[j].cluster {
				return order[i].cluster < order[j].cluster
			}
			return order[i].entry < order[j].entry
		})
		ar.clusterOrder = make([]EntryIndex, len(order))
		for i, kv := range order {
			ar.clusterOrder[i] = kv.entry
		}
	})
	if buildErr != nil {
		return nil, buildErr
	}
	if int(i) >= len(ar.clusterOrder) {
		return nil, zimerror.Wrap(zimerror.ErrOutOfRange, "cluster-order index out of range")
	}
	return ar.pathAccessor.Dirent(ar.clusterOrder[i])
}

func splitNamespacedPath(p string) (ns byte, rest string, ok bool) {
	if len(p) >= 2 && p[1] == '/' {
		return p[0], p[2:], true
	}
	return 0, "", false
}

// GetEntryByPath resolves a user-facing path to its dirent.
func (ar *Archive) GetEntryByPath(p string) (*Dirent, error) {
	if ar.newScheme {
		if res, err := ar.pathLookup.find(nsNewContent, p); err == nil && res.Found {
			return ar.pathAccessor.Dirent(res.Index)
		}
		if ns, rest, ok := splitNamespacedPath(p); ok {
			if res, err := ar.pathLookup.find(ns, rest); err == nil && res.Found {
				if res2, err := ar.pathLookup.find(nsNewContent, rest); err == nil && res2.Found {
					return ar.pathAccessor.Dirent(res2.Index)
				}
			}
		}
		return nil, zimerror.Wrap(zimerror.ErrEntryNotFound, "no entry at path "+p)
	}

	if ns, rest, ok := splitNamespacedPath(p); ok {
		if res, err := ar.pathLookup.find(ns, rest); err == nil && res.Found {
			return ar.pathAccessor.Dirent(res.Index)
		}
	}
	for _, ns := range []byte{nsOldArticle, nsOldImage, nsOldMeta1, nsOldLayout} {
		if res, err := ar.pathLookup.find(ns, p); err == nil && res.Found {
			return ar.pathAccessor.Dirent(res.Index)
		}
	}
	return nil, zimerror.Wrap(zimerror.ErrEntryNotFound, "no entry at path "+p)
}

// GetEntryByTitle resolves a title to its dirent, trying the namespaces
// relevant to the archive's scheme in order.
func (ar *Archive) GetEntryByTitle(t string) (*Dirent, error) {
	if ar.titleLookup == nil {
		return nil, zimerror.Wrap(zimerror.ErrEntryNotFound, "archive has no title index")
	}
	namespaces := []byte{nsNewContent, nsOldArticle, nsOldImage, nsOldMeta1, nsOldLayout}
	for _, ns := range namespaces {
		if res, err := ar.titleLookup.find(ns, t); err == nil && res.Found {
			return ar.titleAccessor.Dirent(TitleIndex(res.Index))
		}
	}
	return nil, zimerror.Wrap(zimerror.ErrEntryNotFound, "no entry with title "+t)
}

// GetMainEntry resolves the archive's main/welcome entry.
func (ar *Archive) GetMainEntry() (*Dirent, error) {
	if res, err := ar.pathLookup.find(nsOldWelcome, "mainPage"); err == nil && res.Found {
		return ar.pathAccessor.Dirent(res.Index)
	}
	if ar.header.HasMainPage() {
		return ar.pathAccessor.Dirent(EntryIndex(ar.header.MainPage))
	}
	return nil, zimerror.Wrap(zimerror.ErrEntryNotFound, "archive has no main entry")
}

// GetRandomEntry picks a uniformly random user-visible entry: in the new
// namespace scheme from the front-article (v1) title listing, failing with
// ErrEntryNotFound when the archive has none; in the old scheme from
// namespace 'A'.
func (ar *Archive) GetRandomEntry() (*Dirent, error) {
	if ar.newScheme {
		if ar.titleAccessor == nil || ar.legacyTitleReader != nil || ar.titleAccessor.DirentCount() == 0 {
			return nil, zimerror.Wrap(zimerror.ErrEntryNotFound, "archive has no front-article index")
		}
		n := ar.titleAccessor.DirentCount()
		i := TitleIndex(rand.Intn(int(n)))
		return ar.titleAccessor.Dirent(i)
	}
	begin, err := ar.pathLookup.namespaceRangeBegin(nsOldArticle)
	if err != nil {
		return nil, err
	}
	end, err := ar.pathLookup.namespaceRangeEnd(nsOldArticle)
	if err != nil {
		return nil, err
	}
	if end <= begin {
		return nil, zimerror.Wrap(zimerror.ErrEntryNotFound, "archive has no 'A' namespace entries")
	}
	i := begin + EntryIndex(rand.Intn(int(end-begin)))
	return ar.pathAccessor.Dirent(i)
}

func incrementLastByte(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	b[len(b)-1]++
	return string(b)
}

// FindByPathPrefix returns the [begin, end) entry-index range of dirents
// whose path starts with prefix.
func (ar *Archive) FindByPathPrefix(prefix string) (begin, end EntryIndex, err error) {
	ns := byte(nsNewContent)
	if !ar.newScheme {
		ns = nsOldArticle
		if len(prefix) >= 2 && prefix[1] == '/' {
			ns, prefix = prefix[0], prefix[2:]
		}
	}
	if ar.newScheme && (prefix == "" || prefix == "/") {
		return ar.startUser, ar.endUser, nil
	}

	lo, err := ar.pathLookup.find(ns, prefix)
	if err != nil {
		return 0, 0, err
	}
	successor := incrementLastByte(prefix)
	successorNS := ns
	if prefix == "" {
		successorNS = ns + 1
		successor = ""
	}
	hi, err := ar.pathLookup.find(successorNS, successor)
	if err != nil {
		return 0, 0, err
	}
	return lo.Index, hi.Index, nil
}

// FindByTitlePrefix is FindByPathPrefix over the title index.
func (ar *Archive) FindByTitlePrefix(prefix string) (begin, end TitleIndex, err error) {
	if ar.titleLookup == nil {
		return 0, 0, zimerror.Wrap(zimerror.ErrEntryNotFound, "archive has no title index")
	}
	ns := byte(nsOldArticle)
	if ar.newScheme {
		ns = nsNewContent
	}
	lo, err := ar.titleLookup.find(ns, prefix)
	if err != nil {
		return 0, 0, err
	}
	hiNS, hiKey := ns, incrementLastByte(prefix)
	if prefix == "" {
		hiNS = ns + 1
	}
	hi, err := ar.titleLookup.find(hiNS, hiKey)
	if err != nil {
		return 0, 0, err
	}
	return TitleIndex(lo.Index), TitleIndex(hi.Index), nil
}

// Illustration resolves the M/Illustration_{size}x{size}@1 metadata entry,
// falling back to a favicon for size 48.
func (ar *Archive) Illustration(size int) (*Dirent, error) {
	key := "Illustration_" + strconv.Itoa(size) + "x" + strconv.Itoa(size) + "@1"
	if res, err := ar.pathLookup.find(nsMetadata, key); err == nil && res.Found {
		return ar.pathAccessor.Dirent(res.Index)
	}
	if size == 48 {
		for _, cand := range []struct {
			ns   byte
			path string
		}{{nsOldLayout, "favicon"}, {nsOldImage, "favicon.png"}} {
			if res, err := ar.pathLookup.find(cand.ns, cand.path); err == nil && res.Found {
				return ar.pathAccessor.Dirent(res.Index)
			}
		}
	}
	return nil, zimerror.Wrap(zimerror.ErrEntryNotFound, "no illustration for size "+strconv.Itoa(size))
}

// Metadata returns the raw blob content of the M-namespace entry named key.
func (ar *Archive) Metadata(key string) ([]byte, error) {
	res, err := ar.pathLookup.find(nsMetadata, key)
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, zimerror.Wrap(zimerror.ErrEntryNotFound, "no metadata key "+key)
	}
	d, err := ar.pathAccessor.Dirent(res.Index)
	if err != nil {
		return nil, err
	}
	return ar.BlobOf(d)
}

// BlobOf returns the content of an item dirent. It does not follow
// redirects: a redirect dirent yields ErrInvalidType (see Resolve).
func (ar *Archive) BlobOf(d *Dirent) ([]byte, error) {
	if d.IsRedirect() {
		return nil, zimerror.Wrap(zimerror.ErrInvalidType, "cannot read blob of a redirect dirent")
	}
	cluster, err := ar.Cluster(d.ClusterNumber)
	if err != nil {
		return nil, err
	}
	return cluster.Blob(d.BlobNumber)
}

// maxRedirectHops bounds redirect-chain following to guard against cycles
// in a malformed archive.
const maxRedirectHops = 50

// Resolve follows a redirect chain (if any) starting at d, returning the
// first non-redirect dirent.
func (ar *Archive) Resolve(d *Dirent) (*Dirent, error) {
	cur := d
	for i := 0; i <= maxRedirectHops; i++ {
		if !cur.IsRedirect() {
			return cur, nil
		}
		next, err := ar.pathAccessor.Dirent(cur.RedirectIndex)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return nil, zimerror.Wrap(zimerror.ErrFileFormat, "redirect chain exceeds "+strconv.Itoa(maxRedirectHops)+" hops")
}

// ArticleCount derives the number of front articles from the front-article
// (v1) title listing, else the Counter metadata, else the namespace size.
func (ar *Archive) ArticleCount() (int, error) {
	if ar.titleAccessor != nil && ar.legacyTitleReader == nil {
		return int(ar.titleAccessor.DirentCount()), nil
	}
	if counts, err := ar.counterCounts(); err == nil {
		total := 0
		for mime, n := range counts {
			if strings.HasPrefix(mime, "text/html") {
				total += n
			}
		}
		return total, nil
	}
	ns := byte(nsNewContent)
	if !ar.newScheme {
		ns = nsOldArticle
	}
	begin, err := ar.pathLookup.namespaceRangeBegin(ns)
	if err != nil {
		return 0, err
	}
	end, err := ar.pathLookup.namespaceRangeEnd(ns)
	if err != nil {
		return 0, err
	}
	return int(end - begin), nil
}

// MediaCount derives the number of media entries the same way ArticleCount
// derives articles.
func (ar *Archive) MediaCount() (int, error) {
	if counts, err := ar.counterCounts(); err == nil {
		total := 0
		for mime, n := range counts {
			if strings.HasPrefix(mime, "image/") || strings.HasPrefix(mime, "video/") || strings.HasPrefix(mime, "audio/") {
				total += n
			}
		}
		return total, nil
	}
	total := 0
	for _, ns := range []byte{nsOldImage, nsOldMeta1} {
		begin, err := ar.pathLookup.namespaceRangeBegin(ns)
		if err != nil {
			return 0, err
		}
		end, err := ar.pathLookup.namespaceRangeEnd(ns)
		if err != nil {
			return 0, err
		}
		total += int(end - begin)
	}
	return total, nil
}

func (ar *Archive) counterCounts() (map[string]int, error) {
	raw, err := ar.Metadata("Counter")
	if err != nil {
		return nil, err
	}
	return parseCounter(string(raw))
}

// Check verifies the archive's MD5 checksum footer.
func (ar *Archive) Check() (bool, error) {
	return checkChecksum(ar)
}

// IntegrityCheckKind names one of the six standalone integrity validators.
type IntegrityCheckKind int

const (
	CheckChecksum IntegrityCheckKind = iota
	CheckDirentPtrs
	CheckDirentOrder
	CheckTitleIndex
	CheckClusterPtrs
	CheckDirentMimetypes
)

// CheckIntegrity dispatches to one of the six integrity validators.
func (ar *Archive) CheckIntegrity(kind IntegrityCheckKind) (bool, error) {
	switch kind {
	case CheckChecksum:
		return checkChecksum(ar)
	case CheckDirentPtrs:
		return checkDirentPtrs(ar)
	case CheckDirentOrder:
		return checkDirentOrder(ar)
	case CheckTitleIndex:
		return checkTitleIndex(ar)
	case CheckClusterPtrs:
		return checkClusterPtrs(ar)
	case CheckDirentMimetypes:
		return checkDirentMimetypes(ar)
	default:
		return false, zimerror.Wrap(zimerror.ErrInvalidType, "unknown integrity check kind")
	}
}

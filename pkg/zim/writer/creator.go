package writer

import (
	"context"
	"crypto/md5"
	"io"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bevelgacom/zimgo/internal/zimerror"
	"github.com/bevelgacom/zimgo/internal/zimlog"
	"github.com/bevelgacom/zimgo/pkg/zim"
)

// clusterBaseReserve is the worker pool's starting write position in the
// cluster scratch file. Clusters land there at offset 0 during a creation
// session; their true archive-relative offsets (after header, mimetype
// list, path-pointer table and dirents) are only known at finish time, once
// the metadata region's size is final, and are added in at assemble time.
const clusterBaseReserve = 0

// HintKey names a recognized Hints entry (spec §4.11.4).
type HintKey int

const (
	// HintCompress forces (1) or forbids (0) compression for one item,
	// overriding the mimetype-derived default.
	HintCompress HintKey = iota
	// HintFrontArticle marks an item for inclusion in the v1 front-article
	// title listing.
	HintFrontArticle
)

// Hints is a sparse key->value map of per-item directives.
type Hints map[HintKey]uint64

func (h Hints) compress(byDefault bool) bool {
	if v, ok := h[HintCompress]; ok {
		return v != 0
	}
	return byDefault
}

func (h Hints) frontArticle() bool {
	v, ok := h[HintFrontArticle]
	return ok && v != 0
}

// Item is one user-supplied archive member.
type Item struct {
	Path     string
	Title    string
	MimeType string
	Content  ContentProvider
	Hints    Hints
}

type creatorState int

const (
	stateNotStarted creatorState = iota
	stateStarted
	stateFinished
)

// Config bundles the Creator's tunables; see the With* options.
type Config struct {
	Compression       zim.Compression
	ClusterSize       uint64
	Workers           int
	UUID              [16]byte
	MainPath          string
	DirentHandlers    []DirentHandler
}

// Option configures a Creator at construction time.
type Option func(*Config)

// WithCompression selects the compression method for the compressed
// cluster builder. Zstd is the default; Lzma is accepted but logs a
// deprecation warning (spec §4.11 Creator configuration).
func WithCompression(c zim.Compression) Option {
	return func(cfg *Config) { cfg.Compression = c }
}

// WithClusterSize overrides the target cluster byte size (default 2 MiB).
func WithClusterSize(n uint64) Option {
	return func(cfg *Config) { cfg.ClusterSize = n }
}

// WithWorkers overrides the compression worker-pool size (default
// runtime.NumCPU()).
func WithWorkers(n int) Option {
	return func(cfg *Config) { cfg.Workers = n }
}

// WithUUID sets the archive's UUID explicitly; otherwise one is randomized.
func WithUUID(u [16]byte) Option {
	return func(cfg *Config) { cfg.UUID = u }
}

// WithMainPath designates the namespace-C path that W/mainPage redirects to.
func WithMainPath(p string) Option {
	return func(cfg *Config) { cfg.MainPath = p }
}

// WithDirentHandler registers an additional pluggable subsystem (e.g. a
// fulltext/title indexer) that observes every dirent and, at finalize
// time, contributes its own entries. Handlers run in registration order,
// all before the built-in title-listing and counter handlers, matching
// spec §4.11 Creator's fixed handler-start order.
func WithDirentHandler(h DirentHandler) Option {
	return func(cfg *Config) { cfg.DirentHandlers = append(cfg.DirentHandlers, h) }
}

const defaultClusterSize = 2 << 20 // 2 MiB

// Creator is the top-level writer: it accepts items, redirects, and
// metadata on the calling goroutine, and orchestrates a worker pool that
// compresses and writes clusters in the background, producing a
// byte-exact ZIM file at FinishZimCreation.
type Creator struct {
	cfg Config
	log interface {
		Warnf(string, ...interface{})
	}

	mu    sync.Mutex
	state creatorState

	pool  DirentPool
	paths *direntSet

	compressed *ClusterBuilder
	plain      *ClusterBuilder
	closed     []*ClusterBuilder
	nextClusterIndex uint32

	unresolved   []*Dirent
	mainDirent   *Dirent

	extraHandlers []DirentHandler
	counter       *counterHandler
	titleListing  *titleListingHandler

	wp          *workerPool
	clusterFile *os.File
	clusterPath string
	finalTmpPath string
	finalPath   string

	cancel context.CancelFunc
}

// New constructs a Creator in the NotStarted state.
func New(opts ...Option) *Creator {
	cfg := Config{
		Compression: zim.CompressionZstd,
		ClusterSize: defaultClusterSize,
		Workers:     runtime.NumCPU(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.UUID == ([16]byte{}) {
		cfg.UUID = uuid.New()
	}
	return &Creator{
		cfg:           cfg,
		log:           zimlog.New(),
		paths:         newDirentSet(),
		extraHandlers: cfg.DirentHandlers,
		counter:       newCounterHandler(),
		titleListing:  newTitleListingHandler(),
	}
}

// StartZimCreation opens the cluster scratch file (path+".clusters.tmp"),
// then starts the worker pool and every dirent handler; the final output's
// path+".tmp" file is created later, by FinishZimCreation. Only legal from
// NotStarted.
func (c *Creator) StartZimCreation(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateNotStarted {
		return zimerror.Wrap(zimerror.ErrResource, "creator already started")
	}
	if c.cfg.Compression == zim.CompressionLzma {
		c.log.Warnf("zim: Lzma cluster compression is deprecated, prefer Zstd")
	}

	c.finalPath = path
	c.finalTmpPath = path + ".tmp"
	c.clusterPath = path + ".clusters.tmp"

	cf, err := os.Create(c.clusterPath)
	if err != nil {
		return zimerror.Wrapf(zimerror.ErrResource, "open cluster scratch file", err)
	}
	c.clusterFile = cf

	c.compressed = newClusterBuilder(c.cfg.Compression)
	c.plain = newClusterBuilder(zim.CompressionNone)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wp = newWorkerPool(ctx, c.cfg.Workers, cf, clusterBaseReserve)

	for _, h := range c.extraHandlers {
		h.Start()
	}
	c.counter.Start()
	c.titleListing.Start()

	c.state = stateStarted
	return nil
}

func (c *Creator) requireStarted() error {
	if c.state != stateStarted {
		return zimerror.Wrap(zimerror.ErrResource, "creator is not in the Started state")
	}
	return nil
}

// AddItem adds one user-supplied item in namespace C.
func (c *Creator) AddItem(item Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStarted(); err != nil {
		return err
	}
	mt := item.MimeType
	if mt == "" {
		c.log.Warnf("zim: item %q has empty mimetype, substituting application/octet-stream", item.Path)
		mt = "application/octet-stream"
	}
	if _, exists := c.paths.lookup(NSContent, item.Path); exists {
		return zimerror.Wrap(zimerror.ErrInvalidEntry, "duplicate path: "+item.Path)
	}

	d := c.pool.NewItemDirent(NSContent, item.Path, item.Title, mt)
	d.FrontArticle = item.Hints.frontArticle()
	c.paths.add(d)

	if err := c.stageContent(d, item.Content, item.Hints.compress(isCompressibleMimetype(mt))); err != nil {
		return err
	}

	c.notifyItem(d)
	return nil
}

// AddRedirection adds a redirect in namespace C from path to targetPath.
// The target need not exist yet; unresolved redirects whose target is
// still missing at finalize time are dropped.
func (c *Creator) AddRedirection(path, title, targetPath string, hints Hints) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStarted(); err != nil {
		return err
	}
	if _, exists := c.paths.lookup(NSContent, path); exists {
		return zimerror.Wrap(zimerror.ErrInvalidEntry, "duplicate path: "+path)
	}
	d := c.pool.NewRedirectDirent(NSContent, path, title, NSContent, targetPath)
	c.paths.add(d)
	c.unresolved = append(c.unresolved, d)
	c.notifyRedirect(d)
	return nil
}

// AddMetadata adds a namespace-M entry; mimetype defaults to
// "text/plain;charset=utf-8" when empty.
func (c *Creator) AddMetadata(name string, content ContentProvider, mimetype string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStarted(); err != nil {
		return err
	}
	if mimetype == "" {
		mimetype = "text/plain;charset=utf-8"
	}
	if _, exists := c.paths.lookup(NSMetadata, name); exists {
		return zimerror.Wrap(zimerror.ErrInvalidEntry, "duplicate metadata key: "+name)
	}
	d := c.pool.NewItemDirent(NSMetadata, name, name, mimetype)
	c.paths.add(d)
	if err := c.stageContent(d, content, false); err != nil {
		return err
	}
	c.notifyItem(d)
	return nil
}

// AddIllustration adds the M/Illustration_{size}x{size}@1 metadata entry.
func (c *Creator) AddIllustration(size int, content ContentProvider) error {
	name := "Illustration_" + itoa(size) + "x" + itoa(size) + "@1"
	return c.AddMetadata(name, content, "image/png")
}

// AddAlias adds a namespace-C entry at path that shares its target's
// cluster/blob assignment, deduplicating content on disk.
func (c *Creator) AddAlias(path, title, targetPath string, hints Hints) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStarted(); err != nil {
		return err
	}
	target, ok := c.paths.lookup(NSContent, targetPath)
	if !ok || !target.IsItem() {
		return zimerror.Wrap(zimerror.ErrInvalidEntry, "alias target not found: "+targetPath)
	}
	if _, exists := c.paths.lookup(NSContent, path); exists {
		return zimerror.Wrap(zimerror.ErrInvalidEntry, "duplicate path: "+path)
	}
	d := c.pool.NewItemDirent(NSContent, path, title, target.MimeTypeStr)
	d.FrontArticle = hints.frontArticle()
	d.SetCluster(target.info.cluster, target.info.blobNumber)
	c.paths.add(d)
	c.notifyItem(d)
	return nil
}

// SetMainPath designates the namespace-C path the welcome redirect points
// at; a W/mainPage redirect is synthesized at finalize time.
func (c *Creator) SetMainPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.MainPath = path
}

func (c *Creator) notifyItem(d *Dirent) {
	for _, h := range c.extraHandlers {
		h.HandleItem(d)
	}
	c.counter.HandleItem(d)
	c.titleListing.HandleItem(d)
}

func (c *Creator) notifyRedirect(d *Dirent) {
	for _, h := range c.extraHandlers {
		h.HandleRedirect(d)
	}
	c.counter.HandleRedirect(d)
	c.titleListing.HandleRedirect(d)
}

// builderFor returns the live cluster builder matching compress.
func (c *Creator) builderFor(compress bool) *ClusterBuilder {
	if compress {
		return c.compressed
	}
	return c.plain
}

// closeAndSubmit assigns b its final cluster index (in hand-off order) and
// hands it to the worker pool for background compression and writing.
func (c *Creator) closeAndSubmit(b *ClusterBuilder) {
	b.Index = c.nextClusterIndex
	c.nextClusterIndex++
	c.closed = append(c.closed, b)
	b.Close()
	c.wp.Submit(b)
}

// stageContent appends content to the builder matching compress, closing
// and rotating that builder first if it would overflow the target cluster
// size, then binds d to the blob it was just given.
func (c *Creator) stageContent(d *Dirent, content ContentProvider, compress bool) error {
	b := c.builderFor(compress)
	n := content.Size()
	if b.Size() > 0 && b.Size()+n > c.cfg.ClusterSize {
		c.closeAndSubmit(b)
		b = newClusterBuilder(b.Compression)
		if compress {
			c.compressed = b
		} else {
			c.plain = b
		}
	}
	idx := b.AddContent(content)
	d.SetCluster(b, idx)
	return nil
}

// uncompressibleMimePrefixes lists content types that gain nothing from
// cluster compression (already-compressed media, fonts, archives).
var uncompressibleMimePrefixes = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp",
	"video/", "audio/",
	"application/zip", "application/gzip", "application/x-7z-compressed",
	"font/woff2", "application/font-woff2",
}

func isCompressibleMimetype(mime string) bool {
	for _, p := range uncompressibleMimePrefixes {
		if hasPrefix(mime, p) {
			return false
		}
	}
	return true
}

func hasPrefix(s, p string) bool {
	return len(s) >= len(p) && s[:len(p)] == p
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// FinishZimCreation resolves redirects, assigns entry indexes, remaps
// mimetypes, drains the worker pool, and writes the final byte-exact ZIM
// file, renaming it atomically into place.
func (c *Creator) FinishZimCreation() (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStarted(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(c.finalTmpPath)
		}
		os.Remove(c.clusterPath)
		c.state = stateFinished
	}()

	if c.cfg.MainPath != "" {
		d := c.pool.NewRedirectDirent(NSWelcome, "mainPage", "mainPage", NSContent, c.cfg.MainPath)
		c.paths.add(d)
		c.unresolved = append(c.unresolved, d)
		c.mainDirent = d
		c.notifyRedirect(d)
	}

	// Handlers other than titleListing produce their entries now; their
	// content can be staged immediately since it doesn't depend on final
	// entry indexes. titleListing observes every one of them.
	for _, h := range append(append([]DirentHandler{}, c.extraHandlers...), c.counter) {
		for _, e := range h.Stop() {
			if _, exists := c.paths.lookup(e.Namespace, e.Path); exists {
				return zimerror.Wrap(zimerror.ErrInvalidEntry, "handler produced duplicate path: "+e.Path)
			}
			d := c.pool.NewItemDirent(e.Namespace, e.Path, e.Title, e.MimeType)
			d.FrontArticle = e.FrontArticle
			c.paths.add(d)
			if err := c.stageContent(d, e.Provider, isCompressibleMimetype(e.MimeType)); err != nil {
				return err
			}
			c.titleListing.HandleItem(d)
		}
	}

	// titleListing's own v0/v1 entries: the dirent shells are allocated now
	// (so they receive entry indexes below), but their content -- which
	// lists every survivor's *final* entry index -- can only be built
	// after indexes are assigned, so staging is deferred.
	type pendingListing struct {
		dirent *Dirent
		which  string
	}
	var pending []pendingListing
	for _, spec := range c.titleListing.reserve() {
		d := c.pool.NewItemDirent(spec.Namespace, spec.Path, spec.Title, spec.MimeType)
		c.paths.add(d)
		c.titleListing.HandleItem(d)
		which := "v0"
		if spec.Path == "listing/titleOrdered/v1" {
			which = "v1"
		}
		pending = append(pending, pendingListing{d, which})
	}

	// Resolve redirects: unreachable targets are dropped rather than
	// rejected, per spec §4.11 finishZimCreation step 3.
	for _, d := range c.unresolved {
		targetNS, targetPath := d.RedirectTarget()
		target, ok := c.paths.lookup(targetNS, targetPath)
		if !ok {
			d.Removed = true
			if d == c.mainDirent {
				c.mainDirent = nil
			}
			continue
		}
		d.ResolveRedirect(target)
	}

	// Assign entry indexes in path order over survivors only.
	survivors := make([]*Dirent, 0, len(c.paths.sortByPath()))
	for _, d := range c.paths.sortByPath() {
		if !d.Removed {
			survivors = append(survivors, d)
		}
	}
	for i, d := range survivors {
		d.EntryIndex = uint32(i)
	}

	// Remap mimetypes: collect every item's raw string, sort, assign index.
	mimeSet := make(map[string]bool)
	for _, d := range survivors {
		if d.IsItem() {
			mimeSet[d.MimeTypeStr] = true
		}
	}
	mimetypes := make([]string, 0, len(mimeSet))
	for m := range mimeSet {
		mimetypes = append(mimetypes, m)
	}
	sort.Strings(mimetypes)
	mimeIndex := make(map[string]uint16, len(mimetypes))
	for i, m := range mimetypes {
		mimeIndex[m] = uint16(i)
	}
	for _, d := range survivors {
		if d.IsItem() {
			d.MimeType = mimeIndex[d.MimeTypeStr]
		}
	}

	// Now that entry indexes are final, build and stage the title listings.
	// v0's blob location must be captured here, before its containing
	// builder is closed and submitted below -- spec §4.11.1 / §9.
	var titleIdxBuilder *ClusterBuilder
	var titleIdxBlobOffset uint64
	var titleIdxDirent *Dirent
	for _, p := range pending {
		content := c.titleListing.buildContent(p.which)
		if err := c.stageContent(p.dirent, NewBytesProvider(content), false); err != nil {
			return err
		}
		if p.which == "v0" {
			titleIdxDirent = p.dirent
		}
	}
	// v1 may share v0's builder, so the offset is read after both are added.
	if titleIdxDirent != nil {
		titleIdxBuilder = titleIdxDirent.info.cluster
		titleIdxBlobOffset = titleIdxBuilder.blobDataOffset(titleIdxDirent.info.blobNumber)
	}

	// Close both still-open builders and drain the worker pool.
	c.closeAndSubmit(c.compressed)
	c.closeAndSubmit(c.plain)
	totalClusterBytes, err := c.wp.Close()
	if err != nil {
		return err
	}
	c.cancel()
	if err := c.clusterFile.Close(); err != nil {
		return zimerror.Wrapf(zimerror.ErrIO, "close cluster scratch file", err)
	}

	return c.assemble(survivors, mimetypes, totalClusterBytes, titleIdxBuilder, titleIdxBlobOffset)
}

// assemble writes the final byte-exact archive: header, mimetype list,
// path-pointer table, dirent records, cluster-pointer table, then the
// already-serialized cluster bytes copied from the scratch file, and
// finally the MD5 checksum over everything preceding it. titleIdxBuilder is
// the cluster holding the v0 title listing's blob (always c.plain, since
// that content is always staged uncompressed); its final Offset is only
// valid once c.wp.Close has returned, which FinishZimCreation guarantees
// before calling here.
func (c *Creator) assemble(survivors []*Dirent, mimetypes []string, totalClusterBytes uint64, titleIdxBuilder *ClusterBuilder, titleIdxBlobOffset uint64) error {
	out, err := os.Create(c.finalTmpPath)
	if err != nil {
		return zimerror.Wrapf(zimerror.ErrResource, "create output file", err)
	}
	defer out.Close()

	hasher := md5.New()
	w := io.MultiWriter(out, hasher)

	mimeListBytes := 1
	for _, m := range mimetypes {
		mimeListBytes += len(m) + 1
	}

	pathPtrPos := zim.Offset(zim.HeaderSize + mimeListBytes)
	pathPtrBytes := 8 * len(survivors)

	direntTableStart := uint64(pathPtrPos) + uint64(pathPtrBytes)
	direntOffsets := make([]uint64, len(survivors))
	running := direntTableStart
	for i, d := range survivors {
		direntOffsets[i] = running
		running += uint64(d.direntSize())
	}
	clusterPtrPos := zim.Offset(running)
	clusterPtrBytes := 8 * len(c.closed)
	clusterDataBase := running + uint64(clusterPtrBytes)
	checksumPos := clusterDataBase + totalClusterBytes

	mainPage := uint32(0xFFFFFFFF)
	if c.mainDirent != nil {
		mainPage = c.mainDirent.EntryIndex
	}

	// titleIdxPos = cluster_data_base + cluster_of(v0_listing).data_offset +
	// v0_blob_offset, the info byte accounted for separately (spec §4.11.1).
	var titleIdxPos uint64
	if titleIdxBuilder != nil {
		titleIdxPos = clusterDataBase + titleIdxBuilder.Offset + 1 + titleIdxBlobOffset
	}

	hdr := &zim.Header{
		MajorVersion: 6,
		// minor version >= 1 selects the new single-namespace scheme (spec §3).
		MinorVersion:  1,
		UUID:          zim.UUID(c.cfg.UUID),
		ArticleCount:  uint32(len(survivors)),
		ClusterCount:  uint32(len(c.closed)),
		PathPtrPos:    pathPtrPos,
		TitleIdxPos:   zim.Offset(titleIdxPos),
		ClusterPtrPos: clusterPtrPos,
		MimeListPos:   zim.HeaderSize,
		MainPage:      mainPage,
		LayoutPage:    0xFFFFFFFF,
		ChecksumPos:   zim.Offset(checksumPos),
	}

	if _, err := w.Write(zim.WriteHeader(hdr)); err != nil {
		return zimerror.Wrapf(zimerror.ErrIO, "write header", err)
	}

	for _, m := range mimetypes {
		if _, err := w.Write(append([]byte(m), 0)); err != nil {
			return zimerror.Wrapf(zimerror.ErrIO, "write mimetype list", err)
		}
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return zimerror.Wrapf(zimerror.ErrIO, "write mimetype list terminator", err)
	}

	for _, off := range direntOffsets {
		if err := writeUint64(w, off); err != nil {
			return err
		}
	}

	for _, d := range survivors {
		if _, err := w.Write(encodeDirent(d)); err != nil {
			return zimerror.Wrapf(zimerror.ErrIO, "write dirent", err)
		}
	}

	sort.Slice(c.closed, func(i, j int) bool { return c.closed[i].Index < c.closed[j].Index })
	for _, b := range c.closed {
		if err := writeUint64(w, clusterDataBase+b.Offset); err != nil {
			return err
		}
	}

	cf, err := os.Open(c.clusterPath)
	if err != nil {
		return zimerror.Wrapf(zimerror.ErrResource, "reopen cluster scratch file", err)
	}
	defer cf.Close()
	if _, err := io.Copy(w, cf); err != nil {
		return zimerror.Wrapf(zimerror.ErrIO, "copy cluster data", err)
	}

	if _, err := out.Write(hasher.Sum(nil)); err != nil {
		return zimerror.Wrapf(zimerror.ErrIO, "write checksum", err)
	}
	if err := out.Close(); err != nil {
		return zimerror.Wrapf(zimerror.ErrIO, "close output file", err)
	}
	if err := os.Rename(c.finalTmpPath, c.finalPath); err != nil {
		return zimerror.Wrapf(zimerror.ErrIO, "rename into place", err)
	}
	return nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	_, err := w.Write(buf[:])
	return err
}

// encodeDirent renders d's on-disk bytes, matching the layout
// decodeDirent (pkg/zim) expects.
func encodeDirent(d *Dirent) []byte {
	buf := make([]byte, 0, d.direntSize())
	mt := d.MimeType
	if d.IsRedirect() {
		mt = redirectMimeType
	}
	buf = append(buf, byte(mt), byte(mt>>8))
	buf = append(buf, 0) // parameter_len, always 0
	buf = append(buf, d.Namespace.Char())
	buf = append(buf, 0, 0, 0, 0) // version, always 0

	if d.IsRedirect() {
		idx := d.RedirectIndex()
		buf = append(buf, byte(idx), byte(idx>>8), byte(idx>>16), byte(idx>>24))
	} else {
		ci, bi := d.ClusterIndex(), d.BlobIndex()
		buf = append(buf, byte(ci), byte(ci>>8), byte(ci>>16), byte(ci>>24))
		buf = append(buf, byte(bi), byte(bi>>8), byte(bi>>16), byte(bi>>24))
	}

	buf = append(buf, d.Path...)
	buf = append(buf, 0)
	// The title field is always present and NUL-terminated, empty when the
	// title equals the path, matching decodeDirent's unconditional read.
	if d.title != d.Path {
		buf = append(buf, d.title...)
	}
	buf = append(buf, 0)
	return buf
}

// Package writer implements the ZIM archive Creator: it accepts a stream of
// items and redirects, groups their content into compressed clusters using
// a worker pool, and emits a byte-exact ZIM file.
package writer

const (
	redirectMimeType = uint16(0xFFFF)
	noEntryIndex     = uint32(0xFFFFFFFF)
)

// NS is a writer-side namespace. Only four namespaces exist on the write
// path; values are ordered so sorting by NS matches sorting by namespace
// character.
type NS uint8

const (
	NSContent  NS = 0
	NSMetadata NS = 1
	NSWelcome  NS = 2
	NSIndex    NS = 3
)

// Char returns the on-disk namespace byte for ns.
func (ns NS) Char() byte {
	switch ns {
	case NSContent:
		return 'C'
	case NSMetadata:
		return 'M'
	case NSWelcome:
		return 'W'
	case NSIndex:
		return 'X'
	default:
		panic("writer: invalid namespace")
	}
}

type direntKind int

const (
	direntDirect direntKind = iota
	direntRedirect
	direntResolved
)

// direntInfo is the tagged union of a dirent's content-location variant,
// matching DirentInfo's Direct/Redirect/Resolved cases.
type direntInfo struct {
	kind direntKind

	// direntDirect
	cluster    *ClusterBuilder
	blobNumber uint32

	// direntRedirect (not yet resolved)
	targetNS   NS
	targetPath string

	// direntResolved
	target *Dirent
}

// Dirent is the writer-side in-memory representation of one archive
// member, allocated and owned by a DirentPool.
type Dirent struct {
	Namespace NS
	Path      string
	title     string

	MimeType    uint16 // final remapped index; meaningless for redirects
	MimeTypeStr string // raw mimetype string, valid until mimetypes are remapped
	EntryIndex  uint32

	info direntInfo

	Offset uint64

	Removed      bool
	FrontArticle bool
}

// Title returns the dirent's title, defaulting to Path.
func (d *Dirent) Title() string {
	if d.title == "" {
		return d.Path
	}
	return d.title
}

// IsRedirect reports whether this dirent is a redirect to another entry.
func (d *Dirent) IsRedirect() bool { return d.info.kind != direntDirect }

// IsItem is the complement of IsRedirect.
func (d *Dirent) IsItem() bool { return d.info.kind == direntDirect }

// SetCluster binds a direct dirent to the blob it was just appended to in
// builder, recording the blob index the builder had before the append.
func (d *Dirent) SetCluster(builder *ClusterBuilder, blobNumber uint32) {
	d.info = direntInfo{kind: direntDirect, cluster: builder, blobNumber: blobNumber}
}

// ClusterIndex returns the resolved cluster index of a direct dirent. Only
// valid once the owning builder has been assigned a final cluster index.
func (d *Dirent) ClusterIndex() uint32 {
	if d.info.cluster == nil {
		return 0
	}
	return d.info.cluster.Index
}

// BlobIndex returns the resolved blob index of a direct dirent.
func (d *Dirent) BlobIndex() uint32 { return d.info.blobNumber }

// SetRedirectTarget marks this dirent as an unresolved redirect to
// (targetNS, targetPath); resolved to a concrete target dirent later via
// ResolveRedirect.
func (d *Dirent) SetRedirectTarget(targetNS NS, targetPath string) {
	d.MimeType = redirectMimeType
	d.info = direntInfo{kind: direntRedirect, targetNS: targetNS, targetPath: targetPath}
}

// RedirectTarget returns the unresolved (namespace, path) a redirect
// dirent points at.
func (d *Dirent) RedirectTarget() (NS, string) {
	return d.info.targetNS, d.info.targetPath
}

// ResolveRedirect rebinds a redirect dirent onto its concrete target.
func (d *Dirent) ResolveRedirect(target *Dirent) {
	d.info = direntInfo{kind: direntResolved, target: target}
}

// RedirectIndex returns the entry index a resolved redirect points at.
func (d *Dirent) RedirectIndex() uint32 {
	return d.info.target.EntryIndex
}

// direntSize returns the on-disk byte size of the dirent's fixed header
// plus path/title, excluding the (always empty) parameter bytes. The title
// field is always present and NUL-terminated, even when empty (meaning
// "same as path"), matching decodeDirent.
func (d *Dirent) direntSize() int {
	fixed := 16
	if d.IsRedirect() {
		fixed = 12
	}
	titleField := ""
	if d.title != d.Path {
		titleField = d.title
	}
	return fixed + len(d.Path) + 1 + len(titleField) + 1
}

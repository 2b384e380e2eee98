package writer

import (
	"encoding/binary"
	"sort"

	"github.com/bevelgacom/zimgo/pkg/zim"
)

// ProducedEntry is one synthesized dirent a DirentHandler wants added to
// the archive at finalize time: a path/title/mimetype plus the content
// that should back it.
type ProducedEntry struct {
	Namespace    NS
	Path         string
	Title        string
	MimeType     string
	Provider     ContentProvider
	FrontArticle bool
}

// DirentHandler is the pluggable-subsystem contract spec §4.11/§4.13
// describes: it observes every user dirent as it is added, and at
// finalize time produces its own dirents plus the content backing them.
// The fulltext/title indexers (an external collaborator, §1) implement
// this same interface; only TitleListing and Counter are implemented
// in this package (internal/fulltext provides a bluge-backed one).
type DirentHandler interface {
	Start()
	HandleItem(d *Dirent)
	HandleRedirect(d *Dirent)
	Stop() []ProducedEntry
}

// titleListingHandler produces X/listing/titleOrdered/v0 (every surviving
// dirent, ordered by namespace+title) and, when at least one front article
// was observed, X/listing/titleOrdered/v1 (front articles only). It is the
// only handler required to observe dirents produced by every other
// handler, since its listings must be exhaustive.
type titleListingHandler struct {
	dirents      []*Dirent
	anyFront     bool
}

func newTitleListingHandler() *titleListingHandler { return &titleListingHandler{} }

func (h *titleListingHandler) Start() {}

func (h *titleListingHandler) HandleItem(d *Dirent) {
	h.dirents = append(h.dirents, d)
	if d.FrontArticle {
		h.anyFront = true
	}
}

func (h *titleListingHandler) HandleRedirect(d *Dirent) { h.dirents = append(h.dirents, d) }

// reserve returns the dirent shells this handler needs added to the
// archive -- always v0, plus v1 when a front article was observed -- before
// entry indexes are assigned, so they take part in index assignment like
// any other survivor. Their content isn't known yet: it lists every
// survivor's *final* index, which only exists after resolution, so it is
// built separately by buildContent once indexes are final.
func (h *titleListingHandler) reserve() []ProducedEntry {
	entries := []ProducedEntry{{
		Namespace: NSIndex,
		Path:      "listing/titleOrdered/v0",
		Title:     "listing/titleOrdered/v0",
		MimeType:  "application/octet-stream",
	}}
	if h.anyFront {
		entries = append(entries, ProducedEntry{
			Namespace: NSIndex,
			Path:      "listing/titleOrdered/v1",
			Title:     "listing/titleOrdered/v1",
			MimeType:  "application/octet-stream",
		})
	}
	return entries
}

// buildContent encodes the v0 (every surviving dirent) or v1 (front
// articles only) listing body, both ordered by title. Called once entry
// indexes are final; redirects dropped during resolution are excluded
// here rather than at reserve time, since that resolution hasn't happened
// yet when reserve runs.
func (h *titleListingHandler) buildContent(which string) []byte {
	survivors := make([]*Dirent, 0, len(h.dirents))
	for _, d := range h.dirents {
		if !d.Removed {
			survivors = append(survivors, d)
		}
	}
	sorted := sortByTitle(survivors)
	if which == "v1" {
		front := make([]*Dirent, 0, len(sorted))
		for _, d := range sorted {
			if d.FrontArticle {
				front = append(front, d)
			}
		}
		return encodeEntryIndexes(front)
	}
	return encodeEntryIndexes(sorted)
}

func encodeEntryIndexes(dirents []*Dirent) []byte {
	out := make([]byte, 4*len(dirents))
	for i, d := range dirents {
		binary.LittleEndian.PutUint32(out[4*i:], d.EntryIndex)
	}
	return out
}

// counterHandler observes every namespace-C item and tallies a
// mimetype -> count map, emitted at finalize as M/Counter.
type counterHandler struct {
	order  []string
	counts map[string]int
}

func newCounterHandler() *counterHandler {
	return &counterHandler{counts: make(map[string]int)}
}

func (h *counterHandler) Start() {}

func (h *counterHandler) HandleItem(d *Dirent) {
	if d.Namespace != NSContent {
		return
	}
	mt := d.MimeTypeStr
	if _, ok := h.counts[mt]; !ok {
		h.order = append(h.order, mt)
	}
	h.counts[mt]++
}

func (h *counterHandler) HandleRedirect(d *Dirent) {}

func (h *counterHandler) Stop() []ProducedEntry {
	sortedMimes := make([]string, len(h.order))
	copy(sortedMimes, h.order)
	sort.Strings(sortedMimes)
	body := zim.FormatCounter(sortedMimes, h.counts)
	return []ProducedEntry{{
		Namespace: NSMetadata,
		Path:      "Counter",
		Title:     "Counter",
		MimeType:  "text/plain",
		Provider:  NewBytesProvider([]byte(body)),
	}}
}

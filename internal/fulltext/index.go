// Package fulltext builds and queries a Bluge full-text index of an
// archive's articles, kept as a sibling .bluge directory rather than
// embedded in the ZIM file: search is an external collaborator, not a
// member of the archive format itself.
package fulltext

import (
	"runtime"
	"strings"
	"sync"

	"github.com/blugelabs/bluge"

	"github.com/bevelgacom/zimgo/internal/zimerror"
	"github.com/bevelgacom/zimgo/internal/zimlog"
	"github.com/bevelgacom/zimgo/pkg/zim/writer"
)

// DefaultIndexPath returns the conventional sibling index path for a ZIM
// file: its name with the extension replaced by ".bluge".
func DefaultIndexPath(zimPath string) string {
	if i := strings.LastIndexByte(zimPath, '.'); i >= 0 {
		return zimPath[:i] + ".bluge"
	}
	return zimPath + ".bluge"
}

// resourceExtensions lists file suffixes worth skipping during indexing:
// static assets that never show up in search results.
var resourceExtensions = []string{
	".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".woff", ".woff2", ".ttf", ".eot",
}

func isResourcePath(path string) bool {
	lower := strings.ToLower(path)
	if strings.Contains(lower, "/-/") {
		return true
	}
	for _, ext := range resourceExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

type indexEntry struct {
	path  string
	title string
}

// Indexer is a writer.DirentHandler that builds a Bluge index of every
// namespace-C item as the archive is created, using the same
// reader-goroutines -> worker-goroutines -> batching-writer pipeline shape
// the teacher's BuildBlugeIndex hand-rolls, just fed from HandleItem calls
// instead of a post-hoc directory scan. Documents are keyed by path rather
// than the teacher's numeric ZIM index, since a dirent's final entry index
// isn't known until long after handlers are asked to observe it.
type Indexer struct {
	log interface {
		Warnf(string, ...interface{})
	}
	idxWriter *bluge.Writer

	entryCh chan indexEntry
	docCh   chan *bluge.Document
	workers sync.WaitGroup
	writing sync.WaitGroup

	batchSize int
	errOnce   sync.Once
	err       error
}

// NewIndexer creates (overwriting any existing contents at) a Bluge index
// rooted at indexPath.
func NewIndexer(indexPath string) (*Indexer, error) {
	w, err := bluge.OpenWriter(bluge.DefaultConfig(indexPath))
	if err != nil {
		return nil, zimerror.Wrapf(zimerror.ErrResource, "open bluge index", err)
	}
	return &Indexer{log: zimlog.New(), idxWriter: w, batchSize: 10000}, nil
}

func (ix *Indexer) Start() {
	numWorkers := runtime.NumCPU()
	ix.entryCh = make(chan indexEntry, numWorkers*1000)
	ix.docCh = make(chan *bluge.Document, numWorkers*1000)

	for i := 0; i < numWorkers; i++ {
		ix.workers.Add(1)
		go func() {
			defer ix.workers.Done()
			for e := range ix.entryCh {
				doc := bluge.NewDocument(e.path)
				doc.AddField(bluge.NewTextField("title", e.title).StoreValue().SearchTermPositions())
				doc.AddField(bluge.NewKeywordField("title_exact", strings.ToLower(e.title)).StoreValue())
				doc.AddField(bluge.NewKeywordField("path", e.path).StoreValue())
				ix.docCh <- doc
			}
		}()
	}
	go func() {
		ix.workers.Wait()
		close(ix.docCh)
	}()

	ix.writing.Add(1)
	go func() {
		defer ix.writing.Done()
		batch := bluge.NewBatch()
		n := 0
		flush := func() {
			if n == 0 {
				return
			}
			if err := ix.idxWriter.Batch(batch); err != nil {
				ix.errOnce.Do(func() { ix.err = zimerror.Wrapf(zimerror.ErrIO, "write bluge batch", err) })
			}
			batch = bluge.NewBatch()
			n = 0
		}
		for doc := range ix.docCh {
			batch.Insert(doc)
			n++
			if n >= ix.batchSize {
				flush()
			}
		}
		flush()
	}()
}

func (ix *Indexer) HandleItem(d *writer.Dirent) {
	if d.Namespace != writer.NSContent || isResourcePath(d.Path) {
		return
	}
	ix.entryCh <- indexEntry{path: d.Path, title: d.Title()}
}

func (ix *Indexer) HandleRedirect(d *writer.Dirent) {}

// Stop drains the indexing pipeline and commits the index. It never
// contributes entries to the archive itself, since the index lives
// alongside the ZIM file rather than inside it.
func (ix *Indexer) Stop() []writer.ProducedEntry {
	close(ix.entryCh)
	ix.writing.Wait()
	if err := ix.idxWriter.Close(); err != nil {
		ix.errOnce.Do(func() { ix.err = zimerror.Wrapf(zimerror.ErrIO, "close bluge index", err) })
	}
	if ix.err != nil {
		ix.log.Warnf("fulltext: %v", ix.err)
	}
	return nil
}

// Err returns the first error encountered while indexing, valid after Stop
// has returned.
func (ix *Indexer) Err() error { return ix.err }

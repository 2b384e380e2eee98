package fulltext

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"strings"
	"sync"

	"github.com/blugelabs/bluge"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// Result is one match against the index, identified by the archive path
// its document was built from.
type Result struct {
	Path  string
	Title string
	Score float64
}

// Searcher queries an index built by Indexer. It's safe for concurrent use.
type Searcher struct {
	reader *bluge.Reader

	cacheMu   sync.RWMutex
	docCount  uint64
	docCached bool
}

// OpenSearcher opens an existing index at indexPath.
func OpenSearcher(indexPath string) (*Searcher, error) {
	reader, err := bluge.OpenReader(bluge.DefaultConfig(indexPath))
	if err != nil {
		return nil, zimerror.Wrapf(zimerror.ErrResource, "open bluge index", err)
	}
	return &Searcher{reader: reader}, nil
}

// Close releases the underlying index reader.
func (s *Searcher) Close() error {
	if s.reader == nil {
		return nil
	}
	return s.reader.Close()
}

// Search ranks titles against query: exact/prefix/fuzzy/wildcard matches on
// the stored lowercase title plus a full-text match on the analyzed title,
// combined with boolean OR and boost weights favoring the more literal
// matches, the same blend the teacher's BlugeIndex.Search uses.
func (s *Searcher) Search(query string, maxResults int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	ctx := context.Background()
	lower := strings.ToLower(query)

	capHint := 5
	if len(query) <= 3 {
		capHint = 4
	}
	queries := make([]bluge.Query, 0, capHint)
	queries = append(queries, bluge.NewTermQuery(lower).SetField("title_exact").SetBoost(100.0))
	queries = append(queries, bluge.NewPrefixQuery(lower).SetField("title_exact").SetBoost(50.0))
	queries = append(queries, bluge.NewMatchQuery(query).SetField("title").SetBoost(10.0))
	if len(query) > 3 {
		queries = append(queries, bluge.NewFuzzyQuery(lower).SetField("title_exact").SetFuzziness(1).SetBoost(5.0))
	}
	queries = append(queries, bluge.NewWildcardQuery("*"+lower+"*").SetField("title_exact").SetBoost(3.0))

	boolQuery := bluge.NewBooleanQuery()
	for _, q := range queries {
		boolQuery.AddShould(q)
	}
	boolQuery.SetMinShould(1)

	searchReq := bluge.NewTopNSearch(maxResults, boolQuery).WithStandardAggregations()
	matches, err := s.reader.Search(ctx, searchReq)
	if err != nil {
		return nil, zimerror.Wrapf(zimerror.ErrResource, "bluge search", err)
	}

	results := make([]Result, 0, maxResults)
	match, err := matches.Next()
	for err == nil && match != nil {
		r := Result{Score: match.Score}
		verr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "title":
				r.Title = string(value)
			case "path", "_id":
				r.Path = string(value)
			}
			return true
		})
		if verr != nil {
			return nil, zimerror.Wrapf(zimerror.ErrIO, "read search result fields", verr)
		}
		results = append(results, r)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, zimerror.Wrapf(zimerror.ErrIO, "iterate search results", err)
	}
	return results, nil
}

// DocumentCount returns the number of indexed documents, cached after the
// first call.
func (s *Searcher) DocumentCount() (uint64, error) {
	s.cacheMu.RLock()
	if s.docCached {
		n := s.docCount
		s.cacheMu.RUnlock()
		return n, nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.docCached {
		return s.docCount, nil
	}

	searchReq := bluge.NewTopNSearch(0, bluge.NewMatchAllQuery()).WithStandardAggregations()
	matches, err := s.reader.Search(context.Background(), searchReq)
	if err != nil {
		return 0, zimerror.Wrapf(zimerror.ErrResource, "bluge count", err)
	}
	s.docCount = matches.Aggregations().Count()
	s.docCached = true
	return s.docCount, nil
}

// RandomPath returns the archive path of a uniformly random indexed
// document.
func (s *Searcher) RandomPath() (string, error) {
	count, err := s.DocumentCount()
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", zimerror.Wrap(zimerror.ErrEntryNotFound, "index is empty")
	}

	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return "", zimerror.Wrapf(zimerror.ErrResource, "generate random offset", err)
	}
	offset := int(binary.LittleEndian.Uint64(buf[:]) % count)

	searchReq := bluge.NewTopNSearch(offset+1, bluge.NewMatchAllQuery())
	matches, err := s.reader.Search(context.Background(), searchReq)
	if err != nil {
		return "", zimerror.Wrapf(zimerror.ErrResource, "bluge search", err)
	}

	match, err := matches.Next()
	for i := 0; i < offset && err == nil && match != nil; i++ {
		match, err = matches.Next()
	}
	if err != nil {
		return "", zimerror.Wrapf(zimerror.ErrIO, "iterate to random offset", err)
	}
	if match == nil {
		return "", zimerror.Wrap(zimerror.ErrEntryNotFound, "random offset past end of index")
	}

	var path string
	verr := match.VisitStoredFields(func(field string, value []byte) bool {
		if field == "path" || field == "_id" {
			path = string(value)
			return field != "path"
		}
		return true
	})
	if verr != nil {
		return "", zimerror.Wrapf(zimerror.ErrIO, "read random document fields", verr)
	}
	if path == "" {
		return "", zimerror.Wrap(zimerror.ErrEntryNotFound, "random document has no path field")
	}
	return path, nil
}

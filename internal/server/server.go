// Package server is a thin reference HTTP facade over an opened zim.Archive:
// it serves entries by path, offers full-text search when a sibling index
// is available, and hands out a random entry. It exists to demonstrate the
// reader API end-to-end, not as a production content-serving layer --
// serving archives over a network is explicitly out of this module's core
// scope.
package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/bevelgacom/zimgo/internal/fulltext"
	"github.com/bevelgacom/zimgo/internal/zimlog"
	"github.com/bevelgacom/zimgo/pkg/zim"
)

// Server wraps one opened Archive plus an optional full-text Searcher.
type Server struct {
	archive  *zim.Archive
	searcher *fulltext.Searcher
	log      interface {
		Warnf(string, ...interface{})
	}
}

// Open opens zimPath and, if a sibling index built by "zimtool create
// --index" exists, its full-text searcher too.
func Open(zimPath string) (*Server, error) {
	ar, err := zim.Open(zimPath)
	if err != nil {
		return nil, err
	}
	s := &Server{archive: ar, log: zimlog.New()}
	if searcher, err := fulltext.OpenSearcher(fulltext.DefaultIndexPath(zimPath)); err == nil {
		s.searcher = searcher
	}
	return s, nil
}

// Close closes the searcher, if one is open. The archive's file handles
// are not closed.
func (s *Server) Close() error {
	if s.searcher != nil {
		s.searcher.Close()
	}
	return nil
}

// entryResponse is the JSON shape returned by GET /api/entry/*.
type entryResponse struct {
	Path      string `json:"path"`
	Title     string `json:"title"`
	MimeType  string `json:"mimeType,omitempty"`
	IsItem    bool   `json:"isItem"`
	Redirects bool   `json:"redirects"`
}

func (s *Server) direntToResponse(d *zim.Dirent) (entryResponse, error) {
	resp := entryResponse{Path: d.Path, Title: d.Title(), Redirects: d.IsRedirect()}
	resolved, err := s.archive.Resolve(d)
	if err != nil {
		return resp, err
	}
	resp.IsItem = resolved.IsItem()
	if resolved.IsItem() {
		mt, err := s.archive.MimeType(resolved.MimeType)
		if err == nil {
			resp.MimeType = mt
		}
	}
	return resp, nil
}

// handleHome reports archive-level counters.
func (s *Server) handleHome(c echo.Context) error {
	articles, _ := s.archive.ArticleCount()
	media, _ := s.archive.MediaCount()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"entryCount":   s.archive.EntryCountAll(),
		"userEntries":  s.archive.EntryCountUser(),
		"articleCount": articles,
		"mediaCount":   media,
	})
}

// handleEntry serves an entry's raw content, resolving redirects.
func (s *Server) handleEntry(c echo.Context) error {
	path := c.Param("*")
	d, err := s.archive.GetEntryByPath(path)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	resolved, err := s.archive.Resolve(d)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if !resolved.IsItem() {
		return c.JSON(http.StatusNoContent, nil)
	}
	content, err := s.archive.BlobOf(resolved)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	mt, err := s.archive.MimeType(resolved.MimeType)
	if err != nil {
		mt = "application/octet-stream"
	}
	return c.Blob(http.StatusOK, mt, content)
}

// handleMeta describes an entry without fetching its content.
func (s *Server) handleMeta(c echo.Context) error {
	path := c.Param("*")
	d, err := s.archive.GetEntryByPath(path)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	resp, err := s.direntToResponse(d)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

// handleRandom returns metadata for a uniformly random front-article entry.
func (s *Server) handleRandom(c echo.Context) error {
	d, err := s.archive.GetRandomEntry()
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	resp, err := s.direntToResponse(d)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

// handleSearch queries the sibling full-text index, when present.
func (s *Server) handleSearch(c echo.Context) error {
	if s.searcher == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no full-text index for this archive"})
	}
	query := c.QueryParam("q")
	maxResults := 20
	if raw := c.QueryParam("n"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxResults = n
		}
	}
	results, err := s.searcher.Search(query, maxResults)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, results)
}

// RegisterRoutes wires s's handlers onto e under /api.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	api := e.Group("/api")
	api.GET("/home", s.handleHome)
	api.GET("/random", s.handleRandom)
	api.GET("/search", s.handleSearch)
	api.GET("/meta/*", s.handleMeta)
	api.GET("/entry/*", s.handleEntry)
}

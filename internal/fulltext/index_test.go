package fulltext_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bevelgacom/zimgo/internal/fulltext"
	"github.com/bevelgacom/zimgo/pkg/zim/writer"
)

func TestIndexerBuildsSearchableIndex(t *testing.T) {
	zimPath := filepath.Join(t.TempDir(), "out.zim")
	indexPath := fulltext.DefaultIndexPath(zimPath)

	indexer, err := fulltext.NewIndexer(indexPath)
	require.NoError(t, err)

	c := writer.New(writer.WithDirentHandler(indexer))
	require.NoError(t, c.StartZimCreation(zimPath))
	require.NoError(t, c.AddItem(writer.Item{
		Path:     "albert_einstein",
		Title:    "Albert Einstein",
		MimeType: "text/html",
		Content:  writer.NewBytesProvider([]byte("<html>physicist</html>")),
	}))
	require.NoError(t, c.AddItem(writer.Item{
		Path:     "isaac_newton",
		Title:    "Isaac Newton",
		MimeType: "text/html",
		Content:  writer.NewBytesProvider([]byte("<html>physicist</html>")),
	}))
	require.NoError(t, c.FinishZimCreation())
	require.NoError(t, indexer.Err())

	searcher, err := fulltext.OpenSearcher(indexPath)
	require.NoError(t, err)
	defer searcher.Close()

	results, err := searcher.Search("Einstein", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "albert_einstein", results[0].Path)

	count, err := searcher.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

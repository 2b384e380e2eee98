package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bevelgacom/zimgo/internal/fulltext"
	"github.com/bevelgacom/zimgo/pkg/zim/writer"
)

var (
	createSrcDir  string
	createMain    string
	createWorkers int
	createIndex   bool
)

var createCmd = &cobra.Command{
	Use:   "create <out.zim>",
	Short: "Build a ZIM archive from a directory of files",
	Long: `create walks --source recursively and adds every regular file as a
namespace-C item, using its path relative to --source as the archive path
and a guessed MIME type from its extension.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(args[0])
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVarP(&createSrcDir, "source", "s", "", "directory of files to package (required)")
	createCmd.Flags().StringVarP(&createMain, "main", "m", "", "archive-relative path of the main/welcome page")
	createCmd.Flags().IntVarP(&createWorkers, "workers", "w", 0, "compression worker count (default: NumCPU)")
	createCmd.Flags().BoolVar(&createIndex, "index", false, "also build a sibling full-text search index")
	createCmd.MarkFlagRequired("source")
}

func guessMimeType(path string) string {
	ext := filepath.Ext(path)
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func runCreate(outPath string) error {
	opts := []writer.Option{}
	if createWorkers > 0 {
		opts = append(opts, writer.WithWorkers(createWorkers))
	}
	if createMain != "" {
		opts = append(opts, writer.WithMainPath(createMain))
	}

	var indexer *fulltext.Indexer
	if createIndex {
		var err error
		indexer, err = fulltext.NewIndexer(fulltext.DefaultIndexPath(outPath))
		if err != nil {
			return fmt.Errorf("open full-text index: %w", err)
		}
		opts = append(opts, writer.WithDirentHandler(indexer))
	}

	c := writer.New(opts...)
	if err := c.StartZimCreation(outPath); err != nil {
		return fmt.Errorf("start zim creation: %w", err)
	}

	count := 0
	err := filepath.Walk(createSrcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(createSrcDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}

		item := writer.Item{
			Path:     rel,
			Title:    strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel)),
			MimeType: guessMimeType(rel),
			Content:  writer.NewBytesProvider(data),
		}
		if item.MimeType == "text/html" || strings.HasPrefix(item.MimeType, "text/html;") {
			item.Hints = writer.Hints{writer.HintFrontArticle: 1}
		}
		if err := c.AddItem(item); err != nil {
			return fmt.Errorf("add %s: %w", rel, err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	if err := c.FinishZimCreation(); err != nil {
		return fmt.Errorf("finish zim creation: %w", err)
	}

	fmt.Printf("wrote %s (%d entries)\n", outPath, count)

	if indexer != nil {
		if err := indexer.Err(); err != nil {
			return fmt.Errorf("full-text index: %w", err)
		}
		fmt.Printf("wrote %s\n", fulltext.DefaultIndexPath(outPath))
	}
	return nil
}

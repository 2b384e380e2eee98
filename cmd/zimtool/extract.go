package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bevelgacom/zimgo/pkg/zim"
)

var extractOut string

var extractCmd = &cobra.Command{
	Use:   "extract <file.zim> <path>",
	Short: "Write one entry's content to stdout (or --out), following redirects",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(args[0], args[1], extractOut)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "output file (default: stdout)")
}

func runExtract(zimPath, entryPath, outPath string) error {
	ar, err := zim.Open(zimPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", zimPath, err)
	}

	d, err := ar.GetEntryByPath(entryPath)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", entryPath, err)
	}
	d, err = ar.Resolve(d)
	if err != nil {
		return fmt.Errorf("resolve redirect for %s: %w", entryPath, err)
	}

	content, err := ar.BlobOf(d)
	if err != nil {
		return fmt.Errorf("read content of %s: %w", entryPath, err)
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer f.Close()
		w = f
	}
	_, err = w.Write(content)
	return err
}

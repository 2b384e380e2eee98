package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bevelgacom/zimgo/pkg/zim"
)

var infoCmd = &cobra.Command{
	Use:   "info <file.zim>",
	Short: "Print an archive's header, namespace scheme, and counters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(args[0])
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(path string) error {
	ar, err := zim.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	fmt.Printf("entries (all):   %d\n", ar.EntryCountAll())
	fmt.Printf("entries (user):  %d\n", ar.EntryCountUser())
	fmt.Printf("new namespace scheme: %v\n", ar.HasNewNamespaceScheme())

	if articles, err := ar.ArticleCount(); err == nil {
		fmt.Printf("articles:        %d\n", articles)
	}
	if media, err := ar.MediaCount(); err == nil {
		fmt.Printf("media:           %d\n", media)
	}

	if main, err := ar.GetMainEntry(); err == nil {
		fmt.Printf("main page:       %s (%s)\n", main.Path, main.Title())
	} else {
		fmt.Println("main page:       (none)")
	}

	ok, err := ar.Check()
	if err != nil {
		fmt.Printf("checksum:        error: %v\n", err)
	} else {
		fmt.Printf("checksum:        %v\n", ok)
	}
	return nil
}

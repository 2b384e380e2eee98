package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bevelgacom/zimgo/pkg/zim"
)

var listPrefix string

var listCmd = &cobra.Command{
	Use:   "list <file.zim>",
	Short: "List entries, optionally filtered to a path prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(args[0], listPrefix)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listPrefix, "prefix", "p", "", "only list entries whose path starts with this prefix")
}

func runList(path, prefix string) error {
	ar, err := zim.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	begin, end, err := ar.FindByPathPrefix(prefix)
	if err != nil {
		return fmt.Errorf("find by prefix %q: %w", prefix, err)
	}

	for i := begin; i < end; i++ {
		d, err := ar.GetEntryByPathIdx(i)
		if err != nil {
			return err
		}
		kind := "item"
		if d.IsRedirect() {
			kind = "redirect"
		}
		fmt.Printf("%-8s %c %-40s %s\n", kind, d.Namespace, d.Path, d.Title())
	}
	return nil
}

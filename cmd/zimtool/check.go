package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bevelgacom/zimgo/pkg/zim"
)

var checkCmd = &cobra.Command{
	Use:   "check <file.zim>",
	Short: "Verify checksum and run the internal consistency checks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args[0])
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

var integrityChecks = []struct {
	name string
	kind zim.IntegrityCheckKind
}{
	{"checksum", zim.CheckChecksum},
	{"dirent-ptrs", zim.CheckDirentPtrs},
	{"dirent-order", zim.CheckDirentOrder},
	{"title-index", zim.CheckTitleIndex},
	{"cluster-ptrs", zim.CheckClusterPtrs},
	{"dirent-mimetypes", zim.CheckDirentMimetypes},
}

func runCheck(path string) error {
	ar, err := zim.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	failed := false
	for _, c := range integrityChecks {
		ok, err := ar.CheckIntegrity(c.kind)
		switch {
		case err != nil:
			fmt.Printf("%-18s ERROR: %v\n", c.name, err)
			failed = true
		case !ok:
			fmt.Printf("%-18s FAIL\n", c.name)
			failed = true
		default:
			fmt.Printf("%-18s ok\n", c.name)
		}
	}
	if failed {
		return fmt.Errorf("one or more integrity checks failed")
	}
	return nil
}

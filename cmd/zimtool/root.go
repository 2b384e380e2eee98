package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zimtool",
	Short: "Inspect, extract, verify, and build ZIM archives",
	Long: `zimtool is a command-line interface over the zimgo reader and writer.
It opens ZIM archives to list or extract entries, verifies their checksum
and internal consistency, and builds new archives from a directory of
files.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

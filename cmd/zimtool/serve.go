package main

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/bevelgacom/zimgo/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve <file.zim>",
	Short: "Serve an archive's entries and search over HTTP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(args[0], serveAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":8080", "address to listen on")
}

func runServe(zimPath, addr string) error {
	s, err := server.Open(zimPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", zimPath, err)
	}
	defer s.Close()

	e := echo.New()
	e.HideBanner = true
	s.RegisterRoutes(e)

	fmt.Printf("serving %s on %s\n", zimPath, addr)
	return e.Start(addr)
}

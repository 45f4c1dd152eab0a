package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build info, injected via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tinyhttpd",
	Short: "A small static file HTTP server",
	Long: `tinyhttpd serves the files of a document root over HTTP/1.0 and HTTP/1.1
with a fixed pool of workers. Only GET and HEAD are supported.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to the config file (default $XDG_CONFIG_HOME/tinyhttpd/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mediadrop",
		Short: "Drop files, get hosted media URLs back",
		Long: `mediadrop serves a file drop page and an upload endpoint that forwards
each file to a media host (Cloudinary, MinIO or S3).

Configuration is read from MDROP_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(),
		uploadCmd(),
		versionCmd(),
	)
	return root
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "qbinvoice",
		Short:   "QuickBooks invoicing API with OAuth token management",
		Version: Version,
		// Running the binary with no subcommand starts the server
		RunE: runServe,
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokensCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

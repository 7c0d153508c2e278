// Package main is the entry point for the backlink intelligence service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backlinks",
	Short: "Backlink intelligence pipeline",
	Long:  "Ingests backlink data for audited domains from third-party providers, scores every link for toxicity and quality, and tracks changes between runs.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

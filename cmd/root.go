package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Document ingestion and conversational QA service",
	Long: `docchat ingests uploaded documents into a vector store in the
background and answers questions about them with retrieval-augmented
generation. The serve command runs the HTTP API, the worker command runs the
ingestion pipeline, and the ingest command uploads documents in bulk.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	settingDefaultConfig()
}

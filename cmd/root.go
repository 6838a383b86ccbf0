package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facein",
	Short: "Face recognition attendance service",
	Long: `FaceIn matches faces against enrolled identities and keeps an
append-only attendance ledger, at most one check-in per person per day.
Face detection and embedding extraction run in an external service;
this binary owns enrollment quality control, matching and the ledger.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facein/facein/internal/annindex"
	"github.com/facein/facein/internal/config"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the approximate face index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the face index from the identity store",
	RunE:  runIndexRebuild,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted face index metadata",
	RunE:  runIndexStatus,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexStatusCmd)
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Data.IndexPath == "" {
		return errors.New("FACEIN_INDEX_PATH is not set, nothing to rebuild")
	}

	s, _, err := loadState(cfg)
	if err != nil {
		return err
	}

	idx := annindex.New()
	idx.RebuildFrom(s)
	if err := idx.Save(cfg.Data.IndexPath); err != nil {
		return fmt.Errorf("saving face index: %w", err)
	}
	fmt.Printf("Face index rebuilt: %d embeddings across %d identities\n", idx.Count(), s.Count())
	return nil
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Data.IndexPath == "" {
		return errors.New("FACEIN_INDEX_PATH is not set")
	}

	meta, err := annindex.LoadMetadata(cfg.Data.IndexPath)
	if err != nil {
		return err
	}
	fmt.Printf("Path:     %s\n", cfg.Data.IndexPath)
	fmt.Printf("Entries:  %d (dim %d)\n", meta.Count, meta.Dim)
	if !meta.BuiltAt.IsZero() {
		fmt.Printf("Built at: %s\n", meta.BuiltAt.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/facein/facein/internal/config"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities",
	RunE:  runIdentitiesList,
}

var identitiesDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete an enrolled identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentitiesDelete,
}

var identitiesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all enrolled identities (attendance records are kept)",
	RunE:  runIdentitiesClear,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesDeleteCmd)
	identitiesCmd.AddCommand(identitiesClearCmd)
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	s, r, err := loadState(cfg)
	if err != nil {
		return err
	}

	names := s.Names()
	if len(names) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMBEDDINGS\tMEAN QUALITY\tCLASS\tSECTION\tHOUSE")
	for _, name := range names {
		st, err := s.Stats(name)
		if err != nil {
			continue
		}
		info, _ := r.Get(name)
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%s\t%s\t%s\n",
			st.Name, st.EmbeddingCount, st.MeanQuality, info.Class, info.Section, info.House)
	}
	return w.Flush()
}

func runIdentitiesDelete(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	s, r, err := loadState(cfg)
	if err != nil {
		return err
	}

	name := args[0]
	if !s.Remove(name) {
		return fmt.Errorf("identity %q not found", name)
	}
	r.Remove(name)

	if err := s.SaveFile(cfg.Data.SnapshotPath); err != nil {
		return fmt.Errorf("saving identity snapshot: %w", err)
	}
	if err := r.SaveFile(cfg.Data.RosterPath); err != nil {
		return fmt.Errorf("saving roster: %w", err)
	}

	// The persisted face index is now stale; the next serve start
	// detects the count mismatch and rebuilds.
	fmt.Printf("Deleted %q (%d identities remain)\n", name, s.Count())
	return nil
}

func runIdentitiesClear(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	s, r, err := loadState(cfg)
	if err != nil {
		return err
	}

	removed := s.Clear()
	r.Clear()

	if err := s.SaveFile(cfg.Data.SnapshotPath); err != nil {
		return fmt.Errorf("saving identity snapshot: %w", err)
	}
	if err := r.SaveFile(cfg.Data.RosterPath); err != nil {
		return fmt.Errorf("saving roster: %w", err)
	}
	fmt.Printf("Cleared %d identities\n", removed)
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/facein/facein/internal/annindex"
	"github.com/facein/facein/internal/config"
	"github.com/facein/facein/internal/extractor"
	"github.com/facein/facein/internal/ledger"
	"github.com/facein/facein/internal/matcher"
	"github.com/facein/facein/internal/quality"
	"github.com/facein/facein/internal/web"
	"github.com/facein/facein/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the FaceIn web server. It serves enrollment, recognition
and attendance reporting over HTTP and records check-ins in the
attendance ledger.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("no-index", false, "Disable the approximate face index and scan the full store")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	s, r, err := loadState(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d identities (%d embeddings)\n", s.Count(), s.EntryCount())

	l, err := ledger.Open(cfg.Data.LedgerPath)
	if err != nil {
		return fmt.Errorf("opening attendance ledger: %w", err)
	}

	var idx *annindex.Index
	if !mustGetBool(cmd, "no-index") {
		idx = initIndex(cfg, s)
	}

	client := extractor.NewClient(cfg.Extractor.URL)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := client.Healthy(pingCtx); err != nil {
		fmt.Printf("Warning: extractor service not reachable: %v\n", err)
		fmt.Println("Enrollment and recognition will fail until it is up")
	}
	pingCancel()

	app := &handlers.App{
		Config:   cfg,
		Store:    s,
		Roster:   r,
		Ledger:   l,
		Index:    idx,
		Matcher:  matcher.New(cfg.Matcher),
		Assessor: quality.NewAssessor(cfg.Quality),
		Detector: client,
	}
	server := web.NewServer(cfg, app)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveState(cfg, app, idx)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting FaceIn on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// saveState flushes the durable state during shutdown. The attendance
// ledger needs no flush: every record is synced at write time.
func saveState(cfg *config.Config, app *handlers.App, idx *annindex.Index) {
	if err := app.Persist(); err != nil {
		fmt.Printf("Warning: %v\n", err)
	} else {
		fmt.Println("Identity snapshot and roster saved")
	}
	if idx != nil && cfg.Data.IndexPath != "" {
		if err := idx.Save(cfg.Data.IndexPath); err != nil {
			fmt.Printf("Warning: failed to save face index: %v\n", err)
		} else {
			fmt.Println("Face index saved to disk")
		}
	}
}

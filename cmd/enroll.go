package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/facein/facein/internal/config"
	"github.com/facein/facein/internal/extractor"
	"github.com/facein/facein/internal/face"
	"github.com/facein/facein/internal/quality"
	"github.com/facein/facein/internal/roster"
	"github.com/facein/facein/internal/store"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [name] [image files...]",
	Short: "Enroll an identity from face photos",
	Long: `Enroll an identity from one or more photos. Every photo is sent to
the extractor service; detected faces that pass the quality gates are
added to the identity's embedding pool, best quality first.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("class", "", "Class attribute for the roster")
	enrollCmd.Flags().String("section", "", "Section attribute for the roster")
	enrollCmd.Flags().String("house", "", "House attribute for the roster")
	enrollCmd.Flags().Int("concurrency", 4, "Number of photos processed in parallel")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	s, r, err := loadState(cfg)
	if err != nil {
		return err
	}

	name := args[0]
	files := args[1:]
	client := extractor.NewClient(cfg.Extractor.URL)
	assessor := quality.NewAssessor(cfg.Quality)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Extracting faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	candidates, errs := extractCandidates(client, assessor, files, mustGetInt(cmd, "concurrency"), bar)
	fmt.Println()
	for _, e := range errs {
		fmt.Printf("Warning: %v\n", e)
	}
	if len(candidates) == 0 {
		return errors.New("no faces extracted from the given photos")
	}

	summary := s.EnrollMany(name, candidates)
	fmt.Printf("Enrolled %q: %d accepted, %d rejected (%s), pool size %d, mean quality %.2f\n",
		name, summary.Accepted, summary.Rejected, summary.Outcome, summary.PoolSize, summary.MeanQuality)
	if summary.Accepted == 0 {
		return nil
	}

	info := roster.Info{
		Class:   mustGetString(cmd, "class"),
		Section: mustGetString(cmd, "section"),
		House:   mustGetString(cmd, "house"),
	}
	if _, exists := r.Get(name); !exists || info != (roster.Info{}) {
		r.Set(name, info)
	}

	if err := s.SaveFile(cfg.Data.SnapshotPath); err != nil {
		return fmt.Errorf("saving identity snapshot: %w", err)
	}
	if err := r.SaveFile(cfg.Data.RosterPath); err != nil {
		return fmt.Errorf("saving roster: %w", err)
	}
	return nil
}

// extractCandidates runs detection over the photos with bounded
// concurrency and collects enrollment candidates.
func extractCandidates(
	client *extractor.Client, assessor *quality.Assessor,
	files []string, concurrency int, bar *progressbar.ProgressBar,
) ([]store.Candidate, []error) {
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	var candidates []store.Candidate
	var errs []error
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, file := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(file string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer bar.Add(1)

			found, err := extractFromFile(client, assessor, file)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", file, err))
				return
			}
			candidates = append(candidates, found...)
		}(file)
	}
	wg.Wait()
	return candidates, errs
}

func extractFromFile(client *extractor.Client, assessor *quality.Assessor, file string) ([]store.Candidate, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	result, err := client.DetectFaces(context.Background(), data)
	if errors.Is(err, extractor.ErrNoFaces) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]store.Candidate, 0, len(result.Faces))
	for _, det := range result.Faces {
		out = append(out, store.Candidate{
			Embedding: face.Embedding(det.Embedding),
			Quality: assessor.Assess(quality.Signals{
				BBox:        det.BBox,
				Landmarks:   det.Landmarks,
				DetScore:    det.DetScore,
				Brightness:  det.Brightness,
				BlurVar:     det.BlurVar,
				Crop:        quality.GrayFromBytes(det.Crop, det.CropWidth, det.CropHeight),
				ImageWidth:  result.ImageWidth,
				ImageHeight: result.ImageHeight,
			}),
		})
	}
	return out, nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/facein/facein/internal/config"
	"github.com/facein/facein/internal/extractor"
	"github.com/facein/facein/internal/face"
	"github.com/facein/facein/internal/ledger"
	"github.com/facein/facein/internal/matcher"
	"github.com/facein/facein/internal/quality"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize [image]",
	Short: "Recognize the face in a photo",
	Long: `Recognize the most prominent face in a photo against the enrolled
identities. With --record a successful match is written to the
attendance ledger (at most once per person per day).`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Bool("record", false, "Record attendance on a match")
	recognizeCmd.Flags().Float64("threshold", 0, "Override the base similarity threshold")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	s, _, err := loadState(cfg)
	if err != nil {
		return err
	}
	if s.Count() == 0 {
		return errors.New("no identities enrolled")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	client := extractor.NewClient(cfg.Extractor.URL)
	result, err := client.DetectFaces(context.Background(), data)
	if errors.Is(err, extractor.ErrNoFaces) {
		fmt.Println("No face detected")
		return nil
	}
	if err != nil {
		return fmt.Errorf("face extraction failed: %w", err)
	}

	det := result.Faces[0]
	for _, f := range result.Faces[1:] {
		if area(f.BBox) > area(det.BBox) {
			det = f
		}
	}

	assessor := quality.NewAssessor(cfg.Quality)
	rec := assessor.Assess(quality.Signals{
		BBox:        det.BBox,
		Landmarks:   det.Landmarks,
		DetScore:    det.DetScore,
		Brightness:  det.Brightness,
		BlurVar:     det.BlurVar,
		Crop:        quality.GrayFromBytes(det.Crop, det.CropWidth, det.CropHeight),
		ImageWidth:  result.ImageWidth,
		ImageHeight: result.ImageHeight,
	})
	if !rec.Usable() {
		fmt.Printf("No usable face: size_ok=%v brightness_ok=%v pose_ok=%v blur=%.2f\n",
			rec.SizeOK, rec.BrightnessOK, rec.PoseOK, rec.BlurScore)
		return nil
	}

	m := matcher.New(cfg.Matcher)
	query := face.Embedding(det.Embedding)
	var match matcher.Result
	if threshold := mustGetFloat64(cmd, "threshold"); threshold > 0 {
		match = m.MatchThreshold(s, query, rec, threshold)
	} else {
		match = m.Match(s, query, rec)
	}

	if !match.Matched {
		fmt.Printf("No match (best %.3f, threshold %.3f)\n", match.Confidence, match.Threshold)
		return nil
	}
	fmt.Printf("Matched %q with confidence %.3f (threshold %.3f, quality %.2f)\n",
		match.Name, match.Confidence, match.Threshold, rec.Score)

	if mustGetBool(cmd, "record") {
		l, err := ledger.Open(cfg.Data.LedgerPath)
		if err != nil {
			return fmt.Errorf("opening attendance ledger: %w", err)
		}
		recorded, err := l.RecordIfNew(match.Name, match.Confidence, time.Now())
		if err != nil {
			return err
		}
		if recorded {
			fmt.Println("Attendance recorded")
		} else {
			fmt.Println("Already recorded today")
		}
	}
	return nil
}

func area(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	return (bbox[2] - bbox[0]) * (bbox[3] - bbox[1])
}

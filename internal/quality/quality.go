// Package quality scores a detected face's suitability for enrollment and
// matching from geometric and photometric signals. All functions are pure;
// the assessor holds configuration only.
package quality

import (
	"image"

	"github.com/facein/facein/internal/config"
	"github.com/facein/facein/internal/face"
)

// Record is the composite assessment of a single face capture.
type Record struct {
	SizeOK       bool    `json:"size_ok"`
	BlurScore    float64 `json:"blur_score"` // higher = sharper, normalized to [0,1]
	BrightnessOK bool    `json:"brightness_ok"`
	PoseOK       bool    `json:"pose_ok"`
	DetScore     float64 `json:"det_score"` // detection confidence [0,1]
	Score        float64 `json:"quality_score"`
}

// Usable reports whether the capture passed all hard gates.
func (r Record) Usable() bool {
	return r.Score > 0
}

// Signals carries everything the assessor needs about one detected face.
// Crop is optional; when present blur and brightness are measured from it,
// otherwise the extractor-provided BlurVar/Brightness values are used.
type Signals struct {
	BBox        []float64 // [x1, y1, x2, y2] in pixels
	Landmarks   []face.Landmark
	DetScore    float64
	Brightness  float64 // mean gray intensity 0-255
	BlurVar     float64 // Laplacian variance of the gray crop
	Crop        *image.Gray
	ImageWidth  int
	ImageHeight int
}

// Assessor computes quality records using configured gates and weights.
type Assessor struct {
	cfg config.QualityConfig
}

// NewAssessor creates an assessor with the given configuration.
func NewAssessor(cfg config.QualityConfig) *Assessor {
	return &Assessor{cfg: cfg}
}

// Assess derives a quality record from the face signals.
//
// The score is a weighted blend of size ratio, detection confidence, pose
// penalty and normalized sharpness, clamped to exactly 0 when any hard
// gate fails. With non-negative weights the score is monotonic
// non-decreasing in both DetScore and the blur measure.
func (a *Assessor) Assess(sig Signals) Record {
	rec := Record{DetScore: clamp01(sig.DetScore)}

	blurVar := sig.BlurVar
	brightness := sig.Brightness
	if sig.Crop != nil {
		crop := normalizeCrop(sig.Crop)
		blurVar = LaplacianVariance(crop)
		brightness = MeanIntensity(crop)
	}

	rec.SizeOK = a.sizeOK(sig.BBox)
	rec.BlurScore = clamp01(blurVar / a.cfg.BlurNormVariance)
	rec.BrightnessOK = brightness >= a.cfg.BrightnessMin && brightness <= a.cfg.BrightnessMax

	yaw, pitch, poseScore := EstimatePose(sig.Landmarks)
	rec.PoseOK = yaw <= a.cfg.MaxYawDeg && pitch <= a.cfg.MaxPitchDeg

	if !rec.SizeOK || !rec.BrightnessOK || !rec.PoseOK || blurVar < a.cfg.BlurMinVariance {
		return rec // Score stays 0: unusable for enrollment or matching
	}

	w := a.cfg.Weights
	rec.Score = clamp01(w.Size*a.sizeScore(sig) +
		w.Detection*rec.DetScore +
		w.Pose*poseScore +
		w.Blur*rec.BlurScore)
	return rec
}

// sizeOK checks the minimum bbox dimension gate.
func (a *Assessor) sizeOK(bbox []float64) bool {
	if len(bbox) != 4 {
		return false
	}
	width := bbox[2] - bbox[0]
	height := bbox[3] - bbox[1]
	minSize := float64(a.cfg.MinFaceSizePx)
	return width >= minSize && height >= minSize
}

// sizeScore rates the face area relative to the source image. Larger faces
// carry more identity signal. Without image dimensions the bbox is rated
// against a reference frame width instead.
func (a *Assessor) sizeScore(sig Signals) float64 {
	if len(sig.BBox) != 4 {
		return 0
	}
	faceArea := (sig.BBox[2] - sig.BBox[0]) * (sig.BBox[3] - sig.BBox[1])
	if faceArea <= 0 {
		return 0
	}
	if sig.ImageWidth > 0 && sig.ImageHeight > 0 {
		ratio := faceArea / float64(sig.ImageWidth*sig.ImageHeight)
		return clamp01(ratio * 20)
	}
	const referenceFrame = 640.0 * 480.0
	return clamp01(faceArea / referenceFrame * 20)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

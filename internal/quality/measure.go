package quality

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/facein/facein/internal/face"
)

// cropEdge is the side length crops are resized to before photometric
// measurement, so blur variance is comparable across capture resolutions.
const cropEdge = 128

// normalizeCrop resizes a gray crop to cropEdge x cropEdge. Crops already
// at the reference size pass through untouched.
func normalizeCrop(src *image.Gray) *image.Gray {
	b := src.Bounds()
	if b.Dx() == cropEdge && b.Dy() == cropEdge {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, cropEdge, cropEdge))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// GrayFromBytes wraps row-major 8-bit pixels as an image.Gray.
// Returns nil if the pixel count does not match the dimensions.
func GrayFromBytes(pix []uint8, width, height int) *image.Gray {
	if width <= 0 || height <= 0 || len(pix) != width*height {
		return nil
	}
	return &image.Gray{Pix: pix, Stride: width, Rect: image.Rect(0, 0, width, height)}
}

// LaplacianVariance computes the variance of the 4-neighbor Laplacian over
// the gray image. It is the standard edge-energy sharpness measure: blurry
// crops produce low variance.
func LaplacianVariance(img *image.Gray) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := float64(img.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			lap := float64(img.GrayAt(b.Min.X+x-1, b.Min.Y+y).Y) +
				float64(img.GrayAt(b.Min.X+x+1, b.Min.Y+y).Y) +
				float64(img.GrayAt(b.Min.X+x, b.Min.Y+y-1).Y) +
				float64(img.GrayAt(b.Min.X+x, b.Min.Y+y+1).Y) -
				4*center
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// MeanIntensity computes the mean gray level of the image.
func MeanIntensity(img *image.Gray) float64 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += float64(img.GrayAt(x, y).Y)
		}
	}
	return sum / float64(total)
}

// EstimatePose estimates absolute yaw and pitch in degrees from 5-point
// landmarks (left eye, right eye, nose, mouth left, mouth right), plus a
// frontalness score in [0,1].
//
// Yaw comes from the nose's horizontal offset against the eye midpoint,
// pitch from the nose's vertical position between the eye and mouth lines.
// With fewer than 5 landmarks the pose cannot be estimated; the face is
// treated as moderately frontal rather than gated out.
func EstimatePose(landmarks []face.Landmark) (yaw, pitch, score float64) {
	if len(landmarks) < 5 {
		return 0, 0, 0.7
	}

	leftEye, rightEye, nose := landmarks[0], landmarks[1], landmarks[2]
	mouthLeft, mouthRight := landmarks[3], landmarks[4]

	eyeDist := math.Abs(rightEye.X - leftEye.X)
	if eyeDist <= 0 {
		return 90, 90, 0
	}

	// Horizontal nose offset from the eye midpoint, normalized by eye
	// distance. 0 is frontal, ~0.5 is close to profile.
	eyeMidX := (leftEye.X + rightEye.X) / 2
	yawRatio := (nose.X - eyeMidX) / eyeDist
	yaw = math.Abs(yawRatio) * 90

	// Vertical nose position between eye line and mouth line. Centered
	// (~0.5) is frontal; extremes indicate a tilted head.
	eyeMidY := (leftEye.Y + rightEye.Y) / 2
	mouthMidY := (mouthLeft.Y + mouthRight.Y) / 2
	span := mouthMidY - eyeMidY
	if span <= 0 {
		return yaw, 90, 0
	}
	pitchRatio := (nose.Y-eyeMidY)/span - 0.5
	pitch = math.Abs(pitchRatio) * 90

	score = 1 - (yaw/90+pitch/90)/2
	if score < 0 {
		score = 0
	}
	return yaw, pitch, score
}

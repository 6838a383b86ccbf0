package face

import "math"

// EmbeddingDim is the fixed dimension for face embeddings (512 for ArcFace/buffalo_l).
const EmbeddingDim = 512

// Embedding is a fixed-length face descriptor produced by the external
// feature extractor. Embeddings are unit-normalized at production time
// and treated as immutable afterwards.
type Embedding []float32

// Landmark is a single facial keypoint in pixel coordinates.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is the input contract from the external detector/extractor:
// one detected face with its bounding box, quality-relevant signals and
// a fixed-dimension embedding.
type Detection struct {
	BBox       []float64  `json:"bbox"` // [x1, y1, x2, y2] in pixels
	Landmarks  []Landmark `json:"landmarks,omitempty"`
	DetScore   float64    `json:"det_score"`
	Embedding  Embedding  `json:"embedding"`
	Brightness float64    `json:"brightness"`      // mean gray intensity 0-255
	BlurVar    float64    `json:"blur_var"`        // Laplacian variance of the gray crop
	Crop       []uint8    `json:"crop,omitempty"`  // optional gray crop, row-major
	CropWidth  int        `json:"crop_width,omitempty"`
	CropHeight int        `json:"crop_height,omitempty"`
}

// Normalize scales the embedding to unit length in place and returns it.
// Zero vectors are returned unchanged.
func (e Embedding) Normalize() Embedding {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return e
	}
	norm := math.Sqrt(sum)
	for i := range e {
		e[i] = float32(float64(e[i]) / norm)
	}
	return e
}

// Clone returns an independent copy of the embedding.
func (e Embedding) Clone() Embedding {
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

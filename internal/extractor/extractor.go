// Package extractor talks to the external face detection and embedding
// service. The service owns the models; this side only ships image bytes
// out and detection records back.
package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/facein/facein/internal/face"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 30 * time.Second
)

// ErrNoFaces means the service processed the image but found nothing.
var ErrNoFaces = errors.New("no faces detected")

// Client calls the detector/extractor service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// wireFace is one detection as the service reports it. Landmarks arrive
// as [x, y] pairs; the crop is a base64 grayscale byte plane.
type wireFace struct {
	FaceIndex  int         `json:"face_index"`
	BBox       []float64   `json:"bbox"` // [x1, y1, x2, y2]
	Landmarks  [][]float64 `json:"landmarks"`
	DetScore   float64     `json:"det_score"`
	Embedding  []float32   `json:"embedding"`
	Brightness float64     `json:"brightness"`
	BlurVar    float64     `json:"blur_variance"`
	Crop       string      `json:"crop,omitempty"`
	CropWidth  int         `json:"crop_width,omitempty"`
	CropHeight int         `json:"crop_height,omitempty"`
}

type detectResponse struct {
	FacesCount  int        `json:"faces_count"`
	Faces       []wireFace `json:"faces"`
	ImageWidth  int        `json:"image_width"`
	ImageHeight int        `json:"image_height"`
	Model       string     `json:"model"`
}

// DetectResult carries the detections plus the source frame dimensions.
type DetectResult struct {
	Faces       []face.Detection
	ImageWidth  int
	ImageHeight int
	Model       string
}

// DetectFaces sends an image to the service and returns every detected
// face with its embedding. Returns ErrNoFaces when the image holds none.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) (*DetectResult, error) {
	body, err := c.postMultipartImage(ctx, "/detect/face", imageData)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Faces) == 0 {
		return nil, ErrNoFaces
	}

	result := &DetectResult{
		ImageWidth:  resp.ImageWidth,
		ImageHeight: resp.ImageHeight,
		Model:       resp.Model,
	}
	for i, wf := range resp.Faces {
		det, err := wf.detection()
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		result.Faces = append(result.Faces, det)
	}
	return result, nil
}

func (wf wireFace) detection() (face.Detection, error) {
	if len(wf.Embedding) == 0 {
		return face.Detection{}, errors.New("empty embedding")
	}

	det := face.Detection{
		BBox:       wf.BBox,
		DetScore:   wf.DetScore,
		Embedding:  wf.Embedding,
		Brightness: wf.Brightness,
		BlurVar:    wf.BlurVar,
		CropWidth:  wf.CropWidth,
		CropHeight: wf.CropHeight,
	}
	for _, lm := range wf.Landmarks {
		if len(lm) != 2 {
			return face.Detection{}, fmt.Errorf("landmark with %d coordinates", len(lm))
		}
		det.Landmarks = append(det.Landmarks, face.Landmark{X: lm[0], Y: lm[1]})
	}
	if wf.Crop != "" {
		crop, err := base64.StdEncoding.DecodeString(wf.Crop)
		if err != nil {
			return face.Detection{}, fmt.Errorf("decoding crop: %w", err)
		}
		det.Crop = crop
	}
	return det, nil
}

// Healthy checks whether the service is reachable and ready.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extractor unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint. The part carries an explicit
// Content-Type from magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}

// Package embedder talks to the face detection and embedding server.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/metrics"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 5 * time.Second
	maxErrorBody   = 512
)

// ErrServer is returned when the server answers with a non-200 status.
var ErrServer = errors.New("embedder server error")

// Client calls the embedding server over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.client.Timeout = d
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type detectResponse struct {
	FacesCount int `json:"faces_count"`
	Faces      []struct {
		BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
		DetScore float64   `json:"det_score"`
	} `json:"faces"`
}

type embedResponse struct {
	Dim        int         `json:"dim"`
	Embeddings [][]float64 `json:"embeddings"`
}

// Detect returns the face boxes found in an encoded image.
func (c *Client) Detect(ctx context.Context, image []byte) ([]model.BoundingBox, error) {
	body, err := c.postImage(ctx, "/detect", image, nil)
	if err != nil {
		metrics.RecordEmbedderError("detect")
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.RecordEmbedderError("detect")
		return nil, fmt.Errorf("failed to parse detect response: %w", err)
	}

	boxes := make([]model.BoundingBox, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		x1, y1, x2, y2 := f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3]
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		boxes = append(boxes, model.BoundingBox{
			X: int(x1), Y: int(y1), Width: int(x2 - x1), Height: int(y2 - y1), Confidence: f.DetScore,
		})
	}
	return boxes, nil
}

// Embed returns one embedding per box, in box order. Faces the server could
// not encode come back empty and are left for the caller to skip.
func (c *Client) Embed(ctx context.Context, image []byte, boxes []model.BoundingBox) ([]model.Embedding, error) {
	if len(boxes) == 0 {
		return nil, nil
	}
	rects := make([][4]int, len(boxes))
	for i, b := range boxes {
		rects[i] = [4]int{b.X, b.Y, b.X + b.Width, b.Y + b.Height}
	}
	rawBoxes, err := json.Marshal(rects)
	if err != nil {
		return nil, fmt.Errorf("failed to encode boxes: %w", err)
	}

	body, err := c.postImage(ctx, "/embed", image, map[string]string{"boxes": string(rawBoxes)})
	if err != nil {
		metrics.RecordEmbedderError("embed")
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.RecordEmbedderError("embed")
		return nil, fmt.Errorf("failed to parse embed response: %w", err)
	}
	if len(resp.Embeddings) != len(boxes) {
		metrics.RecordEmbedderError("embed")
		return nil, fmt.Errorf("%w: %d embeddings for %d boxes", ErrServer, len(resp.Embeddings), len(boxes))
	}

	out := make([]model.Embedding, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = model.Embedding(e)
	}
	return out, nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	}
	return nil
}

// postImage posts image as the "file" part of a multipart form plus any
// extra form fields.
func (c *Client) postImage(ctx context.Context, endpoint string, image []byte, fields map[string]string) ([]byte, error) {
	start := time.Now()
	defer func() { metrics.RecordEmbedderLatency(float64(time.Since(start).Milliseconds())) }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", http.DetectContentType(image))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
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
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, fmt.Errorf("%w (status %d): %s", ErrServer, resp.StatusCode, string(body))
	}
	return body, nil
}

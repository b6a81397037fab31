// Package gamma is a client for the Gamma deck-rendering API. Gamma is
// asynchronous: a submission returns a generation id that is polled
// until the rendered artifact can be downloaded.
package gamma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Status is the lifecycle state Gamma reports for a generation.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Format selects Gamma's output mode. Presentations export as PPTX,
// documents as PDF.
type Format string

const (
	FormatPresentation Format = "presentation"
	FormatDocument     Format = "document"
)

// Ext is the file extension of the exported artifact.
func (f Format) Ext() string {
	if f == FormatDocument {
		return ".pdf"
	}
	return ".pptx"
}

func (f Format) exportAs() string {
	if f == FormatDocument {
		return "pdf"
	}
	return "pptx"
}

// Generation is the state of one rendering job.
type Generation struct {
	ID          string
	Status      Status
	ArtifactURL string
}

// Client calls the Gamma HTTP API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	logger     *zap.Logger
}

// NewClient creates a Gamma client. baseURL is overridable for tests.
func NewClient(apiKey, baseURL string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

type submitRequest struct {
	InputText string `json:"inputText"`
	TextMode  string `json:"textMode"`
	Format    string `json:"format"`
	NumCards  int    `json:"numCards,omitempty"`
	ExportAs  string `json:"exportAs"`
}

type submitResponse struct {
	GenerationID string `json:"generationId"`
}

// Submit sends formatted deck text for rendering and returns the
// generation id to poll.
func (c *Client) Submit(ctx context.Context, text, title string, numCards int, format Format) (string, error) {
	if format == "" {
		format = FormatPresentation
	}
	payload := submitRequest{
		InputText: text,
		TextMode:  "generate",
		Format:    string(format),
		NumCards:  numCards,
		ExportAs:  format.exportAs(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit generation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("submit generation: unexpected status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if parsed.GenerationID == "" {
		return "", fmt.Errorf("submit generation: response carried no generation id")
	}

	c.logger.Info("Render submitted",
		zap.String("generation_id", parsed.GenerationID),
		zap.String("title", title),
		zap.Int("num_cards", numCards),
	)
	return parsed.GenerationID, nil
}

type pollResponse struct {
	GenerationID string `json:"generationId"`
	Status       string `json:"status"`
	PptxURL      string `json:"pptxUrl"`
	PdfURL       string `json:"pdfUrl"`
	ExportURL    string `json:"exportUrl"`
}

// Poll reports the current state of a generation.
func (c *Client) Poll(ctx context.Context, generationID string) (Generation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/generations/"+generationID, nil)
	if err != nil {
		return Generation{}, fmt.Errorf("build poll request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Generation{}, fmt.Errorf("poll generation %s: %w", generationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Generation{}, fmt.Errorf("poll generation %s: unexpected status %d: %s", generationID, resp.StatusCode, readErrorBody(resp.Body))
	}

	var parsed pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Generation{}, fmt.Errorf("decode poll response: %w", err)
	}

	gen := Generation{ID: generationID, Status: mapStatus(parsed.Status)}
	switch {
	case parsed.PptxURL != "":
		gen.ArtifactURL = parsed.PptxURL
	case parsed.PdfURL != "":
		gen.ArtifactURL = parsed.PdfURL
	default:
		gen.ArtifactURL = parsed.ExportURL
	}
	// Gamma sometimes reports completed before the export file exists;
	// the artifact URL is the real readiness signal.
	if gen.Status == StatusCompleted && gen.ArtifactURL == "" {
		gen.Status = StatusProcessing
	}
	return gen, nil
}

// Download fetches the rendered artifact to a local path.
func (c *Client) Download(ctx context.Context, artifactURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download artifact: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create artifact file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("write artifact file: %w", err)
	}

	c.logger.Info("Artifact downloaded",
		zap.String("dest", dest),
		zap.Int64("bytes", written),
	)
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func mapStatus(s string) Status {
	switch strings.ToLower(s) {
	case "completed", "done":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"plantguard.io/leaf-doctor/internal/logger"
)

const (
	maxResponseBytes = 8 << 20
	bodyExcerptBytes = 256
)

type ClientConfig struct {
	APIKey         string
	LeafTypeURL    string
	LeafDiseaseURL string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// Client calls the two inference workflows. Each call is bounded by Timeout
// and is never retried.
type Client struct {
	httpClient     *http.Client
	apiKey         string
	leafTypeURL    string
	leafDiseaseURL string
	timeout        time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient:     httpClient,
		apiKey:         cfg.APIKey,
		leafTypeURL:    cfg.LeafTypeURL,
		leafDiseaseURL: cfg.LeafDiseaseURL,
		timeout:        cfg.Timeout,
	}
}

type imageInput struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type leafTypeInputs struct {
	Image imageInput `json:"image"`
}

type diseaseInputs struct {
	Image imageInput `json:"image"`
	Type  string     `json:"type"`
}

type workflowRequest struct {
	APIKey string `json:"api_key"`
	Inputs any    `json:"inputs"`
}

// ClassifyLeaf sends a base64 image to the leaf-type workflow and returns the raw payload.
func (c *Client) ClassifyLeaf(ctx context.Context, encodedImage string) ([]byte, error) {
	return c.post(ctx, StageLeafType, c.leafTypeURL, workflowRequest{
		APIKey: c.apiKey,
		Inputs: leafTypeInputs{Image: imageInput{Type: "base64", Value: encodedImage}},
	})
}

// DetectDisease sends a base64 image plus the detected plant type to the disease workflow.
func (c *Client) DetectDisease(ctx context.Context, encodedImage, plantType string) ([]byte, error) {
	return c.post(ctx, StageDisease, c.leafDiseaseURL, workflowRequest{
		APIKey: c.apiKey,
		Inputs: diseaseInputs{Image: imageInput{Type: "base64", Value: encodedImage}, Type: plantType},
	})
}

func (c *Client) post(ctx context.Context, stage Stage, url string, body workflowRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", stage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s request: %v", ErrTransport, stage, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request failed: %v", ErrTransport, stage, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s response: %v", ErrTransport, stage, err)
	}

	logger.Debug("Inference response received",
		zap.String("stage", string(stage)),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(respBody)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s service returned status %d: %s", ErrTransport, stage, resp.StatusCode, excerpt(respBody))
	}
	return respBody, nil
}

func excerpt(b []byte) string {
	if len(b) > bodyExcerptBytes {
		return string(b[:bodyExcerptBytes]) + "..."
	}
	return string(b)
}

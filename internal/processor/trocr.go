/**
 * TrOCR Client - primary text-recognition backend
 *
 * Talks to the TrOCR inference service over HTTP JSON: base64 image in,
 * recognized text out. The transformer model does not emit a usable
 * confidence signal, so the engine assigns the fixed nominal value for
 * the primary slot.
 */

package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TrOCRClient is the HTTP client for the primary recognition backend.
type TrOCRClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type trocrRequest struct {
	Model     string `json:"model"`
	ImageB64  string `json:"image_b64"`
	Language  string `json:"language,omitempty"`
	MaxLength int    `json:"max_length"`
}

type trocrResponse struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewTrOCRClient creates a client for the given inference endpoint and
// model identifier (e.g. microsoft/trocr-small-printed).
func NewTrOCRClient(baseURL, model string) *TrOCRClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &TrOCRClient{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Transport: transport,
		},
	}
}

// ModelID returns the model identifier reported in results.
func (c *TrOCRClient) ModelID() string {
	return c.model
}

// Load verifies the inference service is up and the model is resident.
func (c *TrOCRClient) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("trocr health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("trocr health check failed: status %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

// Recognize submits a PNG-encoded image for recognition and returns the
// generated text.
func (c *TrOCRClient) Recognize(ctx context.Context, imagePNG []byte, language string) (string, error) {
	payload := trocrRequest{
		Model:     c.model,
		ImageB64:  base64.StdEncoding.EncodeToString(imagePNG),
		Language:  language,
		MaxLength: 128,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recognize", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("trocr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("trocr inference failed: status %d: %s", resp.StatusCode, string(data))
	}

	var parsed trocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("trocr response decode failed: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("trocr inference error: %s", parsed.Error)
	}

	return parsed.Text, nil
}

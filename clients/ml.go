// Package clients holds the HTTP clients for the services CitizenVoice calls
// out to. Every client has its own timeout and reports failures as
// apierrors.UpstreamUnavailableError so callers can fall back.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/config"
)

// MLPrediction is the classifier's /predict response
type MLPrediction struct {
	Success        bool           `json:"success"`
	Category       string         `json:"category"`
	CategoryName   string         `json:"category_name"`
	Confidence     float64        `json:"confidence"`
	Department     string         `json:"department"`
	Priority       string         `json:"priority"`
	AllPredictions []MLClassScore `json:"all_predictions"`
	Error          string         `json:"error,omitempty"`
}

// MLClassScore is one entry of all_predictions
type MLClassScore struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// MLClient calls the image classification service
type MLClient struct {
	baseURL string
	http    *http.Client
}

// NewMLClient builds a client bounded by cfg.Timeout
func NewMLClient(cfg config.MLConfig) *MLClient {
	return &MLClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func unavailable(service string, err error) error {
	return &apierrors.UpstreamUnavailableError{Service: service, Err: err}
}

// Predict uploads one image as the multipart field "file"
func (c *MLClient) Predict(ctx context.Context, filename string, image []byte) (*MLPrediction, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailable("ml", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, unavailable("ml", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	var p MLPrediction
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, unavailable("ml", fmt.Errorf("decode prediction: %w", err))
	}
	if !p.Success {
		return nil, unavailable("ml", fmt.Errorf("classification failed: %s", p.Error))
	}
	return &p, nil
}

// Health checks the classifier's /health endpoint
func (c *MLClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable("ml", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return unavailable("ml", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

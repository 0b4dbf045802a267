// Copyright Peton Labs, 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/petonlabs/systematic-review-data-extraction/internal/httputil"
	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// Extractor turns article text into structured field values. An empty
// result is a valid outcome: the collaborator found nothing to extract.
type Extractor interface {
	Extract(ctx context.Context, text string, metadata map[string]string) (types.ExtractionResult, error)
}

// HTTPExtractor posts content to an extraction service endpoint.
type HTTPExtractor struct {
	endpoint   string
	apiKey     string
	userAgent  string
	client     *http.Client
	maxRetries int
}

// NewHTTPExtractor builds the adapter from configuration.
func NewHTTPExtractor(cfg types.ExtractorConfig) *HTTPExtractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPExtractor{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

type extractRequest struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Extract sends the text and receives category-to-field mappings.
func (e *HTTPExtractor) Extract(ctx context.Context, text string, metadata map[string]string) (types.ExtractionResult, error) {
	payload, err := json.Marshal(extractRequest{Text: text, Metadata: metadata})
	if err != nil {
		return nil, fmt.Errorf("marshaling extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := httputil.DoWithRetry(ctx, e.client, req, e.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("extraction service returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result types.ExtractionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}
	return result, nil
}

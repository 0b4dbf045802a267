// Copyright Peton Labs, 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/petonlabs/systematic-review-data-extraction/internal/httputil"
	"github.com/petonlabs/systematic-review-data-extraction/internal/ratelimit"
	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// maxBodySize caps response reads so a misbehaving server cannot
// exhaust memory.
const maxBodySize = 50 << 20

// client wraps an HTTP client with two layers of pacing: a per-second
// smoother and the shared per-minute window limiter for external APIs.
type client struct {
	http       *http.Client
	smoother   *rate.Limiter
	window     *ratelimit.Limiter
	userAgent  string
	maxRetries int
}

func newClient(cfg types.FetchConfig, window *ratelimit.Limiter) *client {
	perSec := cfg.RequestsPerSecond
	if perSec <= 0 {
		perSec = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		http:       &http.Client{Timeout: timeout},
		smoother:   rate.NewLimiter(rate.Limit(perSec), 1),
		window:     window,
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
	}
}

// get fetches url and returns the body, classified for retry purposes.
// accept is sent as the Accept header when non-empty.
func (c *client) get(ctx context.Context, source, url, accept string) ([]byte, string, error) {
	if err := c.smoother.Wait(ctx); err != nil {
		return nil, "", err
	}
	if c.window != nil {
		if err := c.window.Admit(ctx, ratelimit.ServiceAPI); err != nil {
			return nil, "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", permanentErr(source, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.maxRetries)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", transientErr(source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", permanentErr(source, fmt.Errorf("HTTP 404 from %s", url))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, "", transientErr(source, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url))
	default:
		return nil, "", permanentErr(source, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", transientErr(source, fmt.Errorf("reading body: %w", err))
	}
	return body, resp.Header.Get("Content-Type"), nil
}

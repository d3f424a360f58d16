package work

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Probe checks that an HTTP endpoint answers with a 2xx status. Transient
// failures (connection errors, 5xx) are retried by retryablehttp before Do
// reports an error.
type Probe struct {
	URL    string
	client *retryablehttp.Client
}

// NewProbe returns a Probe for url. retryMax bounds the retries per Do and
// timeout bounds each attempt.
func NewProbe(url string, retryMax int, timeout time.Duration) *Probe {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.HTTPClient.Timeout = timeout
	// *slog.Logger satisfies retryablehttp.LeveledLogger.
	c.Logger = slog.Default()
	return &Probe{URL: url, client: c}
}

// Do issues one GET (plus retries) and discards the body.
func (p *Probe) Do(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", p.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: status %d", p.URL, resp.StatusCode)
	}
	return nil
}

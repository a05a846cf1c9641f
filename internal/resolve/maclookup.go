package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMacLookupURL is the public vendor lookup endpoint.
const DefaultMacLookupURL = "https://api.maclookup.app/v2/macs/"

// MacLookup is a thin HTTP client for a vendor-by-MAC lookup service.
type MacLookup struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

type macLookupResponse struct {
	Success bool   `json:"success"`
	Found   bool   `json:"found"`
	Company string `json:"company"`
}

// NewMacLookup creates a client for baseURL. ratePerSec caps outgoing
// requests independently of how often the queue drains; zero disables it.
func NewMacLookup(baseURL string, ratePerSec float64) *MacLookup {
	if baseURL == "" {
		baseURL = DefaultMacLookupURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &MacLookup{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Resolve returns the registered company for hardwareID.
func (c *MacLookup) Resolve(ctx context.Context, hardwareID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var resp macLookupResponse
	if err := c.getJSON(ctx, url.PathEscape(hardwareID), &resp); err != nil {
		return "", err
	}
	name := strings.TrimSpace(resp.Company)
	if name == "" {
		return "", ErrUnresolved
	}
	return name, nil
}

func (c *MacLookup) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("lookup failed: %s: %s", res.Status, msg)
		}
		return fmt.Errorf("lookup failed: %s", res.Status)
	}

	return json.NewDecoder(res.Body).Decode(out)
}

package aurforge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// PackageMetadata is the upstream view of one package, fetched fresh per run.
type PackageMetadata struct {
	Name        string
	Version     string
	Description string
	URL         string
	License     []string
	OutOfDate   bool
}

// AURClient queries the AUR RPC service and the official-repo search endpoint.
type AURClient struct {
	RPCBase      string // e.g. https://aur.archlinux.org
	OfficialBase string // e.g. https://archlinux.org
	HTTP         *http.Client
	Retry        RetryPolicy
}

// NewAURClient builds a client from the resolved configuration.
func NewAURClient(cfg *Config) *AURClient {
	return &AURClient{
		RPCBase:      aurBaseURL,
		OfficialBase: officialBaseURL,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
		Retry: RetryPolicyFromConfig(cfg),
	}
}

type rpcInfoResponse struct {
	ResultCount int `json:"resultcount"`
	Results     []struct {
		Name        string   `json:"Name"`
		Version     string   `json:"Version"`
		Description string   `json:"Description"`
		URL         string   `json:"URL"`
		License     []string `json:"License"`
		OutOfDate   *int64   `json:"OutOfDate"`
	} `json:"results"`
}

type officialSearchResponse struct {
	Results []struct {
		Repo string `json:"repo"`
	} `json:"results"`
}

// getJSON performs one GET with retries per the client's policy and decodes
// the body into out. Transport failures and 5xx responses are retried;
// any other non-200 status is returned immediately.
func (c *AURClient) getJSON(ctx context.Context, rawURL string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.Retry.Count; attempt++ {
		if attempt > 0 {
			delay := c.Retry.backoff(attempt)
			debugf("Retrying %s in %v (attempt %d/%d)\n", rawURL, delay, attempt, c.Retry.Count)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("server returned %s", resp.Status)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("%w: unexpected status %s for %s", ErrNetwork, resp.Status, rawURL)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: decoding response from %s: %v", ErrNetwork, rawURL, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrNetwork, lastErr)
}

// QueryPackage fetches AUR metadata for one package.
// Returns ErrNotFound when the RPC reports zero results and ErrNetwork on
// transport failure after retries are exhausted.
func (c *AURClient) QueryPackage(ctx context.Context, name string) (*PackageMetadata, error) {
	u := fmt.Sprintf("%s/rpc/v5/info?arg[]=%s", c.RPCBase, url.QueryEscape(name))
	var resp rpcInfoResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.ResultCount == 0 || len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r := resp.Results[0]
	return &PackageMetadata{
		Name:        r.Name,
		Version:     r.Version,
		Description: r.Description,
		URL:         r.URL,
		License:     r.License,
		OutOfDate:   r.OutOfDate != nil,
	}, nil
}

// QueryOfficial reports whether a package exists in the official repositories
// and if so which repo carries it. A network failure means "unknown", never
// "not found"; callers must not collapse the two.
func (c *AURClient) QueryOfficial(ctx context.Context, name string) (bool, string, error) {
	u := fmt.Sprintf("%s/packages/search/json/?name=%s", c.OfficialBase, url.QueryEscape(name))
	var resp officialSearchResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return false, "", err
	}
	if len(resp.Results) == 0 {
		return false, "", nil
	}
	return true, resp.Results[0].Repo, nil
}

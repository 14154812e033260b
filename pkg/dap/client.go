package dap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Options configures a Client.
type Options struct {
	// AuthHost is the login host trusted with Basic credentials.
	// Defaults to DefaultAuthHost.
	AuthHost string

	// Timeout bounds each request including the login redirects.
	// Defaults to DefaultTimeout.
	Timeout time.Duration

	// UserAgent is sent with every request when set.
	UserAgent string

	// HTTPClient replaces the built-in session client. Meant for tests;
	// credentials are ignored when it is set.
	HTTPClient *http.Client
}

// Client issues DAP2 requests over one authenticated session.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient builds a Client. Unless Options.HTTPClient is set, the
// credentials must be valid so the Earthdata redirect flow can complete.
func NewClient(creds Credentials, opts Options) (*Client, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = NewSession(creds, opts.AuthHost, opts.Timeout)
		if err != nil {
			return nil, err
		}
	}
	return &Client{http: httpClient, userAgent: opts.UserAgent}, nil
}

// FetchDDS retrieves and parses the dataset descriptor at {datasetURL}.dds.
func (c *Client) FetchDDS(ctx context.Context, datasetURL string) (*DDS, error) {
	body, err := c.get(ctx, datasetURL+".dds")
	if err != nil {
		return nil, err
	}
	return ParseDDS(string(body))
}

// FetchDAS retrieves and parses the attribute listing at {datasetURL}.das.
func (c *Client) FetchDAS(ctx context.Context, datasetURL string) (DAS, error) {
	body, err := c.get(ctx, datasetURL+".das")
	if err != nil {
		return nil, err
	}
	return ParseDAS(string(body))
}

// FetchData retrieves {datasetURL}.dods restricted to the given constraint
// expression, for example "T2M.T2M[0:23][180][288],time", and returns the
// decoded values keyed by variable name.
func (c *Client) FetchData(ctx context.Context, datasetURL, constraint string) (*DDS, map[string][]float64, error) {
	u := datasetURL + ".dods"
	if constraint != "" {
		u += "?" + constraint
	}
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return DecodeDods(body)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dap: build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrRequestFailed, url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}
	return body, nil
}

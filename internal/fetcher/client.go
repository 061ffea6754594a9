package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/contest"
	json "github.com/goccy/go-json"
)

const (
	defaultTimeout = 10 * time.Second

	// snapshots of large contests run into tens of megabytes
	maxSnapshotBytes = 256 << 20
)

var (
	ErrUnauthorized     = errors.New("contest proxy rejected credentials")
	ErrUnexpectedStatus = errors.New("unexpected status from contest proxy")
)

type Config struct {
	URL      string
	User     string
	Password string
	Token    string
	Timeout  time.Duration
}

// Client fetches aggregated snapshots from the contest proxy.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Fetch retrieves one snapshot. Collections missing from the response stay
// nil on the returned snapshot.
func (c *Client) Fetch(ctx context.Context) (*contest.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case c.cfg.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	case c.cfg.User != "":
		req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, body)
	}

	var snapshot contest.Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSnapshotBytes)).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

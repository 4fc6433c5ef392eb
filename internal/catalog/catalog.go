// Package catalog looks up recommended servers for a scenario from the
// product's public server API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dantte-lp/vpnqa/internal/scenario"
)

// Lookup errors.
var (
	// ErrNoServers indicates the API returned no server for the filter.
	ErrNoServers = errors.New("no recommended servers")

	// ErrStatus indicates a non-200 API response.
	ErrStatus = errors.New("unexpected API status")
)

// Server is one recommended server.
type Server struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
	Load     int    `json:"load"`
}

// ShortName returns the hostname label accepted by "connect", e.g.
// "de123" for "de123.nordvpn.com".
func (s Server) ShortName() string {
	name, _, _ := strings.Cut(s.Hostname, ".")
	return name
}

// Client queries the recommendations endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the recommendations endpoint URL.
func New(endpoint string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With(slog.String("component", "catalog")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TechnologyFilter maps a combination to the API technology identifier.
func TechnologyFilter(c scenario.Combination) string {
	if c.Technology == scenario.NordLynx {
		return "wireguard_udp"
	}
	if c.Obfuscated {
		return "openvpn_xor_" + string(c.Protocol)
	}
	return "openvpn_" + string(c.Protocol)
}

// Recommend returns up to limit servers supporting the combination.
func (c *Client) Recommend(ctx context.Context, combo scenario.Combination, limit int) ([]Server, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	q := u.Query()
	q.Set("filters[servers_technologies][identifier]", TechnologyFilter(combo))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	var servers []Server
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoServers, TechnologyFilter(combo))
	}

	c.logger.Debug("servers recommended",
		slog.String("technology", TechnologyFilter(combo)),
		slog.Int("count", len(servers)),
		slog.String("first", servers[0].Hostname),
	)
	return servers, nil
}

// Pick returns the least loaded recommended server.
func (c *Client) Pick(ctx context.Context, combo scenario.Combination) (Server, error) {
	servers, err := c.Recommend(ctx, combo, 5)
	if err != nil {
		return Server{}, err
	}
	best := servers[0]
	for _, s := range servers[1:] {
		if s.Load < best.Load {
			best = s
		}
	}
	return best, nil
}

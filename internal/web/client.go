package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"netglobe/internal/models"
)

// Client queries a running admin endpoint.
type Client struct {
	BaseURL  string
	Password string
	HTTP     *http.Client
}

// NewClient targets the endpoint bound at listen. Wildcard binds are reached
// through loopback.
func NewClient(listen, password string) *Client {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		host, port = "127.0.0.1", "6060"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &Client{
		BaseURL:  "http://" + net.JoinHostPort(host, port),
		Password: password,
		HTTP:     &http.Client{Timeout: 3 * time.Second},
	}
}

// DestGroups fetches recent events grouped by destination.
func (c *Client) DestGroups(ctx context.Context) ([]models.DestGroup, error) {
	var groups []models.DestGroup
	if err := c.get(ctx, "/connections/by-dest", &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// Stats decodes the /stats document into v.
func (c *Client) Stats(ctx context.Context, v any) error {
	return c.get(ctx, "/stats", v)
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.Password != "" {
		req.SetBasicAuth("admin", c.Password)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to admin endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin endpoint returned status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

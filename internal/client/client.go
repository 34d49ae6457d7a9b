// Package client provides a Go SDK for talking to a meshkv cluster.
//
// Unlike a client bound to one node, this one remembers every node address
// it has learned about (starting from a single seed) and retries a failed
// call against the next known node before giving up.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Client talks to one or more meshkv nodes on behalf of an application.
// It holds no server-side state of its own; every call is a plain HTTP
// request, retried across known nodes on a connection failure.
type Client struct {
	mu         sync.RWMutex
	nodes      []string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client seeded with a single node's base URL, e.g.
// "http://localhost:8080". timeout protects every call from hanging
// forever; zero selects a 10 second default.
func New(seedNode string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		nodes:      []string{seedNode},
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetAPIKey installs a previously minted token, skipping the Auth call.
func (c *Client) SetAPIKey(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = token
}

// APIKey returns the token currently in use.
func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Nodes returns a snapshot of every node address this client currently
// knows about.
func (c *Client) Nodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Entry mirrors the server's wire shape for one stored key/value pair.
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// GetResult is the decoded response of Get.
type GetResult struct {
	Entries      map[string]Entry `json:"entries"`
	NotFoundKeys []string         `json:"not_found_keys"`
}

// Auth mints a new token from the cluster and stores it for subsequent
// calls. It corresponds to POST /auth.
func (c *Client) Auth(ctx context.Context) (string, error) {
	resp, err := c.sendToAnyNode(ctx, http.MethodPost, "/auth", nil, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var out struct {
		APIKey string `json:"api-key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	c.SetAPIKey(out.APIKey)
	return out.APIKey, nil
}

// Set writes entries into db on the cluster. It corresponds to POST /set.
func (c *Client) Set(ctx context.Context, db string, entries []Entry) error {
	body := struct {
		DBName string  `json:"db_name"`
		Keys   []Entry `json:"keys"`
	}{DBName: db, Keys: entries}

	resp, err := c.sendToAnyNode(ctx, http.MethodPost, "/set", body, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Get reads keys from db. A quorum-miss (some keys absent cluster-wide)
// surfaces as a nil error with those keys listed in NotFoundKeys, not as
// an error — a 404 here still carries a full, decodable body.
func (c *Client) Get(ctx context.Context, db string, keys []string) (*GetResult, error) {
	body := struct {
		DBName string   `json:"db_name"`
		Keys   []string `json:"keys"`
	}{DBName: db, Keys: keys}

	resp, err := c.sendToAnyNode(ctx, http.MethodPost, "/get", body, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return nil, checkStatus(resp)
	}

	var out GetResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	return &out, nil
}

// ClusterInfo asks any known node for its view of the cluster and merges
// the returned addresses into this client's node list.
func (c *Client) ClusterInfo(ctx context.Context) ([]string, error) {
	resp, err := c.sendToAnyNode(ctx, http.MethodGet, "/clusterinfo", nil, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out struct {
		Addresses []string `json:"addresses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode clusterinfo response: %w", err)
	}

	c.mu.Lock()
	seen := make(map[string]struct{}, len(c.nodes))
	for _, n := range c.nodes {
		seen[n] = struct{}{}
	}
	for _, n := range out.Addresses {
		if _, ok := seen[n]; !ok {
			c.nodes = append(c.nodes, n)
			seen[n] = struct{}{}
		}
	}
	c.mu.Unlock()

	return out.Addresses, nil
}

// WatchClusterInfo periodically refreshes the node list by polling
// ClusterInfo every interval until ctx is cancelled. Errors are
// swallowed since a missed refresh just means the node list goes stale
// for one tick.
func (c *Client) WatchClusterInfo(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.ClusterInfo(ctx)
		}
	}
}

// ─── Errors ───────────────────────────────────────────────────────────────

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts a non-2xx HTTP response into an *APIError,
// preferring a decoded {"message"} or {"error"} body field.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

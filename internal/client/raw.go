package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// sendToAnyNode tries path against every known node in order, returning
// the first response it gets back. A connection error moves on to the
// next node instead of failing outright. It only returns an error once
// every known node has failed to connect.
func (c *Client) sendToAnyNode(ctx context.Context, method, path string, body any, withAuth bool) (*http.Response, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var lastErr error
	for _, node := range c.Nodes() {
		var reader *bytes.Reader
		if data != nil {
			reader = bytes.NewReader(data)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, node+path, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if withAuth {
			req.Header.Set("Authorization", c.APIKey())
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no known nodes")
	}
	return nil, fmt.Errorf("no reachable node for %s: %w", path, lastErr)
}

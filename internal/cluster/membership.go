// Package cluster implements gossip-style membership and the
// write-broadcast/read-quorum distribution protocol that sits on top of it.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Membership owns the PeerSet (the set of other nodes' base URLs) and this
// node's own self_url. self_url is never a member of the PeerSet.
//
// A node starts Solo (empty PeerSet) and becomes Clustered the first time
// a peer is added, either by a successful Join or by an incoming
// /registernode — there is no formal transition back to Solo even if
// every peer is later pruned.
type Membership struct {
	mu      sync.RWMutex
	selfURL string
	peers   map[string]struct{}

	httpClient *http.Client
}

// NewMembership creates an empty Membership for selfURL.
func NewMembership(selfURL string) *Membership {
	return &Membership{
		selfURL:    selfURL,
		peers:      make(map[string]struct{}),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Add unions urls into the PeerSet. self_url is never added, matching the
// invariant that self_url ∉ PeerSet.
func (m *Membership) Add(urls []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range urls {
		if u == m.selfURL {
			continue
		}
		m.peers[u] = struct{}{}
	}
}

// Remove drops urls from the PeerSet. Used by the Distributor to prune
// peers that failed to connect during a fan-out.
func (m *Membership) Remove(urls []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range urls {
		delete(m.peers, u)
	}
}

// Get returns a snapshot copy of the PeerSet, safe to range over without
// holding the lock.
func (m *Membership) Get() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.peers))
	for p := range m.peers {
		out = append(out, p)
	}
	return out
}

// SelfURL returns this node's own base URL.
func (m *Membership) SelfURL() string {
	return m.selfURL
}

// mkClusterResponse mirrors the wire shape of POST /mkcluster's response.
type mkClusterResponse struct {
	Addresses []string `json:"addresses"`
	APIKeys   []string `json:"api-keys"`
}

// Join is the one-shot startup action: contact seedURL's /mkcluster,
// merge the returned peer addresses into the PeerSet and the returned
// tokens into tokenRegistry. On a connection failure this reports the
// failure; the caller treats that as expected, not fatal, and simply
// continues as a single-member cluster.
func (m *Membership) Join(ctx context.Context, seedURL string, tokenRegistry interface{ Add(string) error }) error {
	body, err := json.Marshal(map[string]string{"sender_address": m.selfURL})
	if err != nil {
		return fmt.Errorf("marshal join request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		seedURL+"/mkcluster", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build join request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("seed node unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("seed node returned HTTP %d", resp.StatusCode)
	}

	var out mkClusterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode join response: %w", err)
	}

	m.Add(out.Addresses)
	m.Add([]string{seedURL})
	for _, t := range out.APIKeys {
		if err := tokenRegistry.Add(t); err != nil {
			return fmt.Errorf("adopt token from seed: %w", err)
		}
	}
	return nil
}

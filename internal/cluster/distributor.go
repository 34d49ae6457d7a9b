package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// Distributor propagates state-changing operations to peers (Broadcast)
// and assembles first-hit read quorums (QuorumRead). Both modes are
// best-effort: peer-unreachable errors never surface to the caller, they
// only shrink the PeerSet.
type Distributor struct {
	membership *Membership
	httpClient *http.Client

	// OnPeerCall, if set, is invoked before every outbound peer request —
	// the HTTP surface uses it to emit a structured log line and bump
	// metrics without the Distributor importing a logger itself.
	OnPeerCall func(peer, path string)
}

// NewDistributor creates a Distributor that fans requests out across m.
func NewDistributor(m *Membership) *Distributor {
	return &Distributor{
		membership: m,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Broadcast sends body to path on every peer in the PeerSet concurrently.
// Responses are discarded — the caller's own request already succeeded
// locally and does not wait on peer outcomes. Peers that fail with a
// connection error are pruned from the PeerSet: the unreachable set is
// computed and then actually assigned back via Membership.Remove, rather
// than being discarded after being computed.
func (d *Distributor) Broadcast(ctx context.Context, path string, body any, headers map[string]string) {
	peers := d.membership.Get()
	if len(peers) == 0 {
		return
	}

	data, err := json.Marshal(body)
	if err != nil {
		return
	}

	unreachable := make(chan string, len(peers))
	done := make(chan struct{}, len(peers))

	for _, peer := range peers {
		go func(peer string) {
			defer func() { done <- struct{}{} }()
			if d.OnPeerCall != nil {
				d.OnPeerCall(peer, path)
			}
			if !d.post(ctx, peer, path, data, headers) {
				unreachable <- peer
			}
		}(peer)
	}

	for range peers {
		<-done
	}
	close(unreachable)

	var pruned []string
	for p := range unreachable {
		pruned = append(pruned, p)
	}
	if len(pruned) > 0 {
		d.membership.Remove(pruned)
	}
}

// post performs a single best-effort POST, returning false on any
// transport-level failure (the peer-unreachable case). A non-2xx HTTP
// response is not a connection error and does not count as unreachable —
// broadcast responses are otherwise discarded regardless of status.
func (d *Distributor) post(ctx context.Context, peer, path string, data []byte, headers map[string]string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer+path, bytes.NewReader(data))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return true
}

// QuorumResult is the outcome of a first-hit quorum read.
type QuorumResult struct {
	Body   []byte
	Status int
}

// QuorumRead iterates the PeerSet in arbitrary order, skipping any peer
// already present in without — the witness list of nodes that have
// already declared themselves non-holders — and forwards body to path on
// each candidate until one responds with a 2xx status. The first such
// response wins. Connection errors during this fan-out are pruned from
// the PeerSet before QuorumRead returns, the same as Broadcast; a
// non-2xx response is not a connection error and leaves the peer in
// place.
func (d *Distributor) QuorumRead(ctx context.Context, path string, body any, without []string, headers map[string]string) (*QuorumResult, bool) {
	skip := make(map[string]struct{}, len(without))
	for _, w := range without {
		skip[w] = struct{}{}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, false
	}

	var unreachable []string
	result, ok := d.quorumReadLoop(ctx, path, data, skip, headers, &unreachable)
	if len(unreachable) > 0 {
		d.membership.Remove(unreachable)
	}
	return result, ok
}

func (d *Distributor) quorumReadLoop(ctx context.Context, path string, data []byte, skip map[string]struct{}, headers map[string]string, unreachable *[]string) (*QuorumResult, bool) {
	for _, peer := range d.membership.Get() {
		if _, ok := skip[peer]; ok {
			continue
		}
		if d.OnPeerCall != nil {
			d.OnPeerCall(peer, path)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer+path, bytes.NewReader(data))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := d.httpClient.Do(req)
		if err != nil {
			*unreachable = append(*unreachable, peer)
			continue
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &QuorumResult{Body: respBody, Status: resp.StatusCode}, true
		}
	}
	return nil, false
}

// RegisterNodeBody is the wire shape POSTed to /registernode.
type RegisterNodeBody struct {
	Address []string `json:"address"`
}

// RegisterKeyBody is the wire shape POSTed to /registerkey.
type RegisterKeyBody struct {
	Token string `json:"token"`
}

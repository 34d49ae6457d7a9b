// Package api wires up the Gin HTTP router with all handler functions.
package api

import (
	"encoding/json"
	"net/http"

	"meshkv/internal/auth"
	"meshkv/internal/cluster"
	"meshkv/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func bindQuorumBody(data []byte, out *getResponse) error {
	return json.Unmarshal(data, out)
}

// relayedHeader marks a request that arrived via Distributor.Broadcast
// from a peer rather than directly from a client, the equivalent of the
// original's ?is_endpoint=True query flag. A relayed /set is applied
// locally but never re-broadcast, which is what keeps propagation from
// looping forever around the PeerSet.
const relayedHeader = "X-Relayed-Request"

// Handler holds every collaborator a route needs: the local store, the
// token registry, membership, and the distributor that talks to peers.
type Handler struct {
	store       *store.Store
	registry    *auth.Registry
	membership  *cluster.Membership
	distributor *cluster.Distributor
	selfURL     string
	log         zerolog.Logger
	metrics     *Metrics
	accessLog   bool
}

// SetAccessLog toggles whether Register attaches the per-request Logger
// middleware. Enabled by default.
func (h *Handler) SetAccessLog(enabled bool) {
	h.accessLog = enabled
}

// NewHandler creates a Handler.
func NewHandler(s *store.Store, reg *auth.Registry, m *cluster.Membership, d *cluster.Distributor, selfURL string, log zerolog.Logger, metrics *Metrics) *Handler {
	h := &Handler{
		store:       s,
		registry:    reg,
		membership:  m,
		distributor: d,
		selfURL:     selfURL,
		log:         log,
		metrics:     metrics,
		accessLog:   true,
	}
	d.OnPeerCall = func(peer, path string) {
		metrics.observePeerCall(path)
		log.Debug().Str("peer", peer).Str("path", path).Msg("calling peer")
	}
	return h
}

// Register mounts every route this node serves on r.
func (h *Handler) Register(r *gin.Engine) {
	r.Use(Recovery(h.log), Metrics(h.metrics))
	if h.accessLog {
		r.Use(Logger(h.log))
	}

	r.POST("/auth", h.Auth)
	r.GET("/clusterinfo", h.ClusterInfo)
	r.POST("/mkcluster", h.MkCluster)
	r.POST("/registernode", h.RegisterNode)
	r.POST("/registerkey", h.RegisterKey)

	authed := r.Group("")
	authed.Use(RequireAuth(h.registry))
	authed.POST("/set", h.Set)
	authed.POST("/get", h.Get)

	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
}

// Auth mints a fresh token, registers it locally, fans it out to every
// peer so a client can authenticate against any node in the cluster, and
// returns it to the caller.
func (h *Handler) Auth(c *gin.Context) {
	token, err := h.registry.Mint()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "minting token failed: " + err.Error()})
		return
	}

	h.distributor.Broadcast(c.Request.Context(), "/registerkey",
		cluster.RegisterKeyBody{Token: token}, nil)

	c.JSON(http.StatusOK, authResponse{APIKey: token})
}

// ClusterInfo reports every node this one knows about, including itself.
func (h *Handler) ClusterInfo(c *gin.Context) {
	addrs := h.membership.Get()
	addrs = append(addrs, h.selfURL)
	c.JSON(http.StatusOK, clusterInfoResponse{Addresses: addrs})
}

// Set applies keys to (db_name) locally under the authenticated token and,
// unless this request is itself a peer relay, re-broadcasts it to every
// peer so the write lands everywhere.
func (h *Handler) Set(c *gin.Context) {
	var req setRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "setting value failed: " + err.Error()})
		return
	}
	req.Token = tokenFromContext(c)

	entries := make([]store.Entry, len(req.Keys))
	for i, kv := range req.Keys {
		entries[i] = kv.toEntry()
	}
	if err := h.store.AddKeys(req.Token, req.DBName, entries); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "setting value failed: " + err.Error()})
		return
	}
	h.metrics.observeKeysStored(len(entries))

	if c.GetHeader(relayedHeader) == "" {
		h.distributor.Broadcast(c.Request.Context(), "/set", req,
			map[string]string{"Authorization": req.Token, relayedHeader: "true"})
	}

	c.JSON(http.StatusOK, req)
}

// Get resolves keys locally first; any still missing are chased across
// the PeerSet with a first-hit quorum read. Peer hits are folded back
// into the local store before the combined result is returned.
func (h *Handler) Get(c *gin.Context) {
	var req getRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "getting value failed: " + err.Error()})
		return
	}
	req.Token = tokenFromContext(c)

	entries, notFound, err := h.store.Get(req.Token, req.DBName, req.Keys)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "getting value failed: " + err.Error()})
		return
	}

	if len(notFound) == 0 {
		c.JSON(http.StatusOK, toGetResponse(entries, nil))
		return
	}

	without := append(append([]string{}, req.WithoutKey...), h.selfURL)
	forward := getRequest{
		Token:      req.Token,
		DBName:     req.DBName,
		Keys:       notFound,
		WithoutKey: without,
	}

	result, ok := h.distributor.QuorumRead(c.Request.Context(), "/get", forward, without,
		map[string]string{"Authorization": req.Token})

	finalNotFound := notFound
	if ok {
		var peerResp getResponse
		if jsonErr := bindQuorumBody(result.Body, &peerResp); jsonErr == nil {
			peerEntries := make([]store.Entry, 0, len(peerResp.Entries))
			for k, kv := range peerResp.Entries {
				entries[k] = kv
				peerEntries = append(peerEntries, kv.toEntry())
			}
			if len(peerEntries) > 0 {
				_ = h.store.AddKeys(req.Token, req.DBName, peerEntries)
			}
			finalNotFound = peerResp.NotFoundKeys
		}
	}

	status := http.StatusOK
	if len(finalNotFound) > 0 {
		status = http.StatusNotFound
	}
	c.JSON(status, toGetResponse(entries, finalNotFound))
}

func toGetResponse(entries map[string]store.Entry, notFound []string) getResponse {
	out := make(map[string]keyValue, len(entries))
	for k, e := range entries {
		out[k] = entryToKeyValue(e)
	}
	if notFound == nil {
		notFound = []string{}
	}
	return getResponse{Entries: out, NotFoundKeys: notFound}
}

// MkCluster admits sender into this node's PeerSet, tells every
// existing peer about the newcomer, and reports back the cluster's
// addresses (excluding sender itself) and every known token.
func (h *Handler) MkCluster(c *gin.Context) {
	var req mkClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "making cluster failed: " + err.Error()})
		return
	}

	h.distributor.Broadcast(c.Request.Context(), "/registernode",
		cluster.RegisterNodeBody{Address: []string{req.SenderAddress}}, nil)

	addrs := h.membership.Get()
	addrs = append(addrs, h.selfURL)
	filtered := addrs[:0]
	for _, a := range addrs {
		if a != req.SenderAddress {
			filtered = append(filtered, a)
		}
	}

	h.membership.Add([]string{req.SenderAddress})

	c.JSON(http.StatusOK, mkClusterResponse{
		Addresses: filtered,
		APIKeys:   h.registry.All(),
	})
}

// RegisterNode admits every address into the local PeerSet and echoes
// the request body back. Re-registering the same address is a no-op, so
// repeated calls are safe.
func (h *Handler) RegisterNode(c *gin.Context) {
	var req registerNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "registering node failed: " + err.Error()})
		return
	}
	h.membership.Add(req.Address)
	c.JSON(http.StatusOK, req)
}

// RegisterKey admits a token minted on another node into the local
// registry and echoes the request body back.
func (h *Handler) RegisterKey(c *gin.Context) {
	var req registerKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "registering key failed: " + err.Error()})
		return
	}
	if err := h.registry.Add(req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "registering key failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}

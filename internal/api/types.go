package api

import (
	"encoding/json"

	"meshkv/internal/store"
)

// keyValue is the wire shape of one {key, value} pair inside /set and
// the entries map returned by /get.
type keyValue struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (kv keyValue) toEntry() store.Entry {
	return store.Entry{Key: kv.Key, Value: kv.Value}
}

func entryToKeyValue(e store.Entry) keyValue {
	return keyValue{Key: e.Key, Value: e.Value}
}

// setRequest is the body of POST /set.
type setRequest struct {
	Token  string     `json:"token,omitempty"`
	DBName string     `json:"db_name" binding:"required"`
	Keys   []keyValue `json:"keys" binding:"required"`
}

// getRequest is the body of POST /get, including the peer-to-peer
// without_key witness list used to prevent read cycles.
type getRequest struct {
	Token      string   `json:"token,omitempty"`
	DBName     string   `json:"db_name" binding:"required"`
	Keys       []string `json:"keys"`
	WithoutKey []string `json:"without_key,omitempty"`
}

// getResponse is the body returned by a successful or quorum-missed
// POST /get.
type getResponse struct {
	Entries      map[string]keyValue `json:"entries"`
	NotFoundKeys []string            `json:"not_found_keys"`
}

// authResponse is the body of POST /auth.
type authResponse struct {
	APIKey string `json:"api-key"`
}

// clusterInfoResponse is the body of GET /clusterinfo.
type clusterInfoResponse struct {
	Addresses []string `json:"addresses"`
}

// mkClusterRequest is the body of POST /mkcluster.
type mkClusterRequest struct {
	SenderAddress string `json:"sender_address" binding:"required"`
}

// mkClusterResponse is the body returned by POST /mkcluster.
type mkClusterResponse struct {
	Addresses []string `json:"addresses"`
	APIKeys   []string `json:"api-keys"`
}

// registerNodeRequest is the body of POST /registernode.
type registerNodeRequest struct {
	Address []string `json:"address" binding:"required"`
}

// registerKeyRequest is the body of POST /registerkey.
type registerKeyRequest struct {
	Token string `json:"token" binding:"required"`
}

// errorResponse is the uniform shape of every non-2xx JSON body this
// surface returns. Every handler and middleware here sets "message",
// including for request-validation failures; "error" is never set.
type errorResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

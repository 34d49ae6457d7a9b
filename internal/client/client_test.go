package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthStoresAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"api-key": "tok-1"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	token, err := c.Auth(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)
	require.Equal(t, "tok-1", c.APIKey())
}

func TestSetThenGetRoundTrip(t *testing.T) {
	store := map[string]json.RawMessage{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/set":
			var body struct {
				Keys []Entry `json:"keys"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, e := range body.Keys {
				store[e.Key] = e.Value
			}
			w.WriteHeader(http.StatusOK)
		case "/get":
			var body struct {
				Keys []string `json:"keys"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			entries := map[string]Entry{}
			var notFound []string
			for _, k := range body.Keys {
				if v, ok := store[k]; ok {
					entries[k] = Entry{Key: k, Value: v}
				} else {
					notFound = append(notFound, k)
				}
			}
			status := http.StatusOK
			if len(notFound) > 0 {
				status = http.StatusNotFound
			}
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(GetResult{Entries: entries, NotFoundKeys: notFound})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	c.SetAPIKey("tok-1")

	err := c.Set(context.Background(), "d", []Entry{{Key: "hello", Value: json.RawMessage(`"world"`)}})
	require.NoError(t, err)

	result, err := c.Get(context.Background(), "d", []string{"hello"})
	require.NoError(t, err)
	require.Empty(t, result.NotFoundKeys)
	require.Equal(t, `"world"`, string(result.Entries["hello"].Value))
}

func TestClusterInfoMergesNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"addresses": []string{"http://other:9"}})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	addrs, err := c.ClusterInfo(context.Background())
	require.NoError(t, err)
	require.Contains(t, addrs, "http://other:9")
	require.Contains(t, c.Nodes(), "http://other:9")
}

func TestSendToAnyNodeFallsBackToSecondNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"api-key": "tok-2"})
	}))
	defer srv.Close()

	c := New("http://127.0.0.1:0", time.Second)
	c.nodes = append(c.nodes, srv.URL)

	token, err := c.Auth(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-2", token)
}

package cluster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcastPrunesUnreachablePeer(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMembership("http://self:1")
	m.Add([]string{srv.URL, "http://127.0.0.1:0"})
	d := NewDistributor(m)

	d.Broadcast(context.Background(), "/set", map[string]string{"k": "v"}, nil)

	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
	require.Equal(t, []string{srv.URL}, m.Get())
}

func TestQuorumReadReturnsFirstHit(t *testing.T) {
	miss := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer miss.Close()
	hit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer hit.Close()

	m := NewMembership("http://self:1")
	m.Add([]string{miss.URL, hit.URL})
	d := NewDistributor(m)

	result, ok := d.QuorumRead(context.Background(), "/get", map[string]string{"k": "v"}, nil, nil)
	require.True(t, ok)
	require.Equal(t, http.StatusOK, result.Status)
	require.JSONEq(t, `{"ok":true}`, string(result.Body))
}

func TestQuorumReadSkipsWitnessedPeer(t *testing.T) {
	var hit int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMembership("http://self:1")
	m.Add([]string{srv.URL})
	d := NewDistributor(m)

	_, ok := d.QuorumRead(context.Background(), "/get", nil, []string{srv.URL}, nil)
	require.False(t, ok)
	require.EqualValues(t, 0, atomic.LoadInt32(&hit))
}

func TestQuorumReadAllMissReturnsFalse(t *testing.T) {
	m := NewMembership("http://self:1")
	d := NewDistributor(m)

	_, ok := d.QuorumRead(context.Background(), "/get", nil, nil, nil)
	require.False(t, ok)
}

func TestQuorumReadPrunesUnreachablePeer(t *testing.T) {
	m := NewMembership("http://self:1")
	m.Add([]string{"http://127.0.0.1:0"})
	d := NewDistributor(m)

	_, ok := d.QuorumRead(context.Background(), "/get", nil, nil, nil)
	require.False(t, ok)
	require.Empty(t, m.Get())
}

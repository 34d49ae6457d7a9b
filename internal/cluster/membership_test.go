package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddExcludesSelfURL(t *testing.T) {
	m := NewMembership("http://self:1")
	m.Add([]string{"http://self:1", "http://peer:2"})

	got := m.Get()
	require.Contains(t, got, "http://peer:2")
	require.NotContains(t, got, "http://self:1")
}

func TestRemovePrunesPeer(t *testing.T) {
	m := NewMembership("http://self:1")
	m.Add([]string{"http://peer:2"})
	m.Remove([]string{"http://peer:2"})
	require.Empty(t, m.Get())
}

type fakeRegistry struct{ added []string }

func (f *fakeRegistry) Add(token string) error {
	f.added = append(f.added, token)
	return nil
}

func TestJoinMergesPeersAndTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(mkClusterResponse{
			Addresses: []string{"http://other:3"},
			APIKeys:   []string{"tok-a"},
		})
	}))
	defer srv.Close()

	m := NewMembership("http://self:1")
	reg := &fakeRegistry{}

	err := m.Join(context.Background(), srv.URL, reg)
	require.NoError(t, err)
	require.Contains(t, m.Get(), "http://other:3")
	require.Contains(t, m.Get(), srv.URL)
	require.Equal(t, []string{"tok-a"}, reg.added)
}

func TestJoinReportsFailureOnUnreachableSeed(t *testing.T) {
	m := NewMembership("http://self:1")
	reg := &fakeRegistry{}

	err := m.Join(context.Background(), "http://127.0.0.1:0", reg)
	require.Error(t, err)
	require.Empty(t, m.Get())
}

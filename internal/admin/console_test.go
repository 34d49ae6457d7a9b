package admin

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meshkv/internal/auth"
	"meshkv/internal/cluster"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestConnectionsPrintsPeerSet(t *testing.T) {
	m := cluster.NewMembership("http://self:1")
	m.Add([]string{"http://peer:2"})

	var out bytes.Buffer
	c := New(strings.NewReader("connections\n"), &out, m, nil, "", zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.Contains(t, out.String(), "peer:2")
}

func TestMkClusterWithNoSeedIsNoop(t *testing.T) {
	m := cluster.NewMembership("http://self:1")
	var out bytes.Buffer
	c := New(strings.NewReader("mkcluster\n"), &out, m, nil, "", zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.Empty(t, m.Get())
}

func TestMkClusterJoinsConfiguredSeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"addresses":[],"api-keys":[]}`))
	}))
	defer srv.Close()

	m := cluster.NewMembership("http://self:1")
	reg, err := auth.Recover(t.TempDir() + "/api_keys.json")
	require.NoError(t, err)

	var out bytes.Buffer
	c := New(strings.NewReader("mkcluster\n"), &out, m, reg, srv.URL, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.Contains(t, m.Get(), srv.URL)
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	m := cluster.NewMembership("http://self:1")
	var out bytes.Buffer
	c := New(strings.NewReader("frobnicate\n"), &out, m, nil, "", zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.Empty(t, out.String())
}

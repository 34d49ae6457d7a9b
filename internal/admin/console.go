// Package admin implements the line-oriented operator console that runs
// alongside the HTTP server.
package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"meshkv/internal/auth"
	"meshkv/internal/cluster"

	"github.com/rs/zerolog"
)

// Console reads commands from in and dispatches the two it recognizes:
// mkcluster (join the configured seed) and connections (print the
// current PeerSet). Anything else is logged at debug level and ignored;
// an unrecognized command never stops the loop.
type Console struct {
	in         io.Reader
	out        io.Writer
	membership *cluster.Membership
	registry   *auth.Registry
	seedURL    string
	log        zerolog.Logger
}

// New creates a Console. seedURL may be empty, in which case mkcluster
// is a no-op — a node started without a seed is expected to run Solo.
func New(in io.Reader, out io.Writer, m *cluster.Membership, reg *auth.Registry, seedURL string, log zerolog.Logger) *Console {
	return &Console{in: in, out: out, membership: m, registry: reg, seedURL: seedURL, log: log}
}

// Run reads one command per line until ctx is cancelled or in reaches
// EOF. It never returns an error: it swallows everything to keep the
// node running.
func (c *Console) Run(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.dispatch(ctx, line)
		}
	}
}

func (c *Console) dispatch(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "mkcluster":
		c.mkCluster(ctx)
	case "connections":
		c.connections()
	default:
		c.log.Debug().Str("command", fields[0]).Msg("unknown admin command")
	}
}

func (c *Console) mkCluster(ctx context.Context) {
	if c.seedURL == "" {
		c.log.Debug().Msg("mkcluster: no seed configured")
		return
	}
	if err := c.membership.Join(ctx, c.seedURL, c.registry); err != nil {
		c.log.Warn().Err(err).Str("seed", c.seedURL).Msg("mkcluster failed")
		return
	}
	c.log.Info().Str("seed", c.seedURL).Msg("joined cluster")
}

func (c *Console) connections() {
	fmt.Fprintln(c.out, c.membership.Get())
}

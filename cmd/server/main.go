// cmd/server is the entrypoint for one meshkv cluster node.
//
// Configuration is via flags (--host, --port, --seed-host, --seed-port,
// --data-dir, --debug, --access-log). An optional --config JSON file with
// the keys seed_host, seed_port, server_host, server_port, debug and
// access_log supplies values for any of those flags not given explicitly.
//
// Example — bootstrap a solo node:
//
//	./server --host 0.0.0.0 --port 8080 --data-dir /var/meshkv/node1
//
// Example — join an existing cluster through a seed:
//
//	./server --host 0.0.0.0 --port 8081 --data-dir /var/meshkv/node2 \
//	         --seed-host 10.0.0.1 --seed-port 8080
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshkv/internal/admin"
	"meshkv/internal/api"
	"meshkv/internal/auth"
	"meshkv/internal/cluster"
	"meshkv/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// fileConfig is the on-disk server configuration shape. Any field
// present in the config file becomes that flag's default; an explicit
// command-line flag still overrides it.
type fileConfig struct {
	SeedHost   string `json:"seed_host"`
	SeedPort   int    `json:"seed_port"`
	ServerHost string `json:"server_host"`
	ServerPort int    `json:"server_port"`
	Debug      bool   `json:"debug"`
	AccessLog  *bool  `json:"access_log"`
}

// applyConfigFile loads path (if non-empty) and, for every flag the
// operator did not pass explicitly (absent from explicit), sets that
// flag from the file. A flag named on the command line always wins.
func applyConfigFile(path string, explicit map[string]bool) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}

	set := func(name, value string) {
		if !explicit[name] {
			flag.Set(name, value)
		}
	}
	if cfg.ServerHost != "" {
		set("host", cfg.ServerHost)
	}
	if cfg.ServerPort != 0 {
		set("port", fmt.Sprint(cfg.ServerPort))
	}
	if cfg.SeedHost != "" {
		set("seed-host", cfg.SeedHost)
	}
	if cfg.SeedPort != 0 {
		set("seed-port", fmt.Sprint(cfg.SeedPort))
	}
	if cfg.Debug {
		set("debug", "true")
	}
	if cfg.AccessLog != nil {
		set("access-log", fmt.Sprint(*cfg.AccessLog))
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	// ── Flags ──────────────────────────────────────────────────────────────
	host := flag.String("host", "0.0.0.0", "Address this node listens on")
	port := flag.Int("port", 8080, "Port this node listens on")
	seedHost := flag.String("seed-host", "", "Seed node host to join at startup (empty: start Solo)")
	seedPort := flag.Int("seed-port", 0, "Seed node port")
	dataDir := flag.String("data-dir", "/tmp/meshkv", "Root directory for the per-key store and token file")
	debug := flag.Bool("debug", false, "Enable debug-level logging")
	accessLog := flag.Bool("access-log", true, "Log every HTTP request")
	configPath := flag.String("config", "", "Optional JSON config file; explicit flags still override it")
	flag.Parse()

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if err := applyConfigFile(*configPath, explicit); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log := newLogger(*debug)

	selfURL := fmt.Sprintf("http://%s:%d", *host, *port)

	// ── Storage and auth ───────────────────────────────────────────────────
	s, err := store.New(*dataDir)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	registry, err := auth.Recover(*dataDir + "/api_keys.json")
	if err != nil {
		log.Error().Err(err).Msg("recover token registry")
		return 1
	}

	// ── Cluster membership and distribution ────────────────────────────────
	membership := cluster.NewMembership(selfURL)
	distributor := cluster.NewDistributor(membership)

	var seedURL string
	if *seedHost != "" {
		seedURL = fmt.Sprintf("http://%s:%d", *seedHost, *seedPort)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if joinErr := membership.Join(ctx, seedURL, registry); joinErr != nil {
			log.Warn().Err(joinErr).Str("seed", seedURL).Msg("could not join cluster at startup, continuing Solo")
		}
		cancel()
	}

	// ── HTTP server ────────────────────────────────────────────────────────
	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	metrics := api.NewMetrics()
	handler := api.NewHandler(s, registry, membership, distributor, selfURL, log, metrics)
	handler.SetAccessLog(*accessLog)
	handler.Register(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", *host, *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// ── Admin console ──────────────────────────────────────────────────────
	adminCtx, cancelAdmin := context.WithCancel(context.Background())
	defer cancelAdmin()
	console := admin.New(os.Stdin, os.Stdout, membership, registry, seedURL, log)
	go console.Run(adminCtx)

	// ── Serve and wait for shutdown ────────────────────────────────────────
	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("self_url", selfURL).Msg("node listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	return 0
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

//go:build tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// initTailscale serves the control-plane mux over a Tailscale tailnet in
// addition to the regular host:port listener (spec §4.6/§4.7's WebSocket
// control plane, reachable from any device on the operator's tailnet without
// opening a port to the public internet). Only compiled in with
// `go build -tags tsnet`; the default build carries no Tailscale dependency
// at runtime. Returns a cleanup func to call on shutdown, or nil if
// tailscale.hostname isn't configured.
func initTailscale(ctx context.Context, cfg *config.Config, mux http.Handler) func() {
	if cfg.Tailscale.Hostname == "" {
		return nil
	}

	stateDir := cfg.Tailscale.StateDir
	if stateDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		stateDir = filepath.Join(dir, "tsnet-goclaw")
	}

	srv := &tsnet.Server{
		Hostname:  cfg.Tailscale.Hostname,
		Dir:       stateDir,
		AuthKey:   cfg.Tailscale.AuthKey,
		Ephemeral: cfg.Tailscale.Ephemeral,
	}

	if _, err := srv.Up(ctx); err != nil {
		slog.Error("tailscale tsnet startup failed", "hostname", cfg.Tailscale.Hostname, "error", err)
		_ = srv.Close()
		return nil
	}

	network, port := "tcp", ":80"
	listenFn := srv.Listen
	if cfg.Tailscale.EnableTLS {
		port = ":443"
		listenFn = srv.ListenTLS
	}

	ln, err := listenFn(network, port)
	if err != nil {
		slog.Error("tailscale listener failed", "addr", port, "error", err)
		_ = srv.Close()
		return nil
	}

	httpSrv := &http.Server{Handler: mux}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Warn("tailscale http server stopped", "error", err)
		}
	}()

	slog.Info("tailscale tsnet listener started", "hostname", cfg.Tailscale.Hostname, "tls", cfg.Tailscale.EnableTLS)

	return func() {
		_ = httpSrv.Close()
		_ = srv.Close()
	}
}

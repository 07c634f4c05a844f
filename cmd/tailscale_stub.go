//go:build !tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// initTailscale is a no-op in the default build (tsnet pulls in a large
// dependency tree not worth carrying unconditionally). Build with
// `-tags tsnet` to enable the real listener in tailscale.go.
func initTailscale(_ context.Context, cfg *config.Config, _ http.Handler) func() {
	if cfg.Tailscale.Hostname != "" {
		slog.Warn("tailscale.hostname configured but binary was built without -tags tsnet; tailnet listener disabled")
	}
	return nil
}

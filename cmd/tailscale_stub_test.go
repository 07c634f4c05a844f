//go:build !tsnet

package cmd

import (
	"context"
	"net/http"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

func TestInitTailscale_StubReturnsNilCleanup(t *testing.T) {
	cleanup := initTailscale(context.Background(), &config.Config{}, http.NewServeMux())
	if cleanup != nil {
		t.Error("expected nil cleanup func from the non-tsnet stub")
	}
}

func TestInitTailscale_StubWarnsButDoesNotPanicWhenHostnameConfigured(t *testing.T) {
	cfg := &config.Config{}
	cfg.Tailscale.Hostname = "my-gateway"
	cleanup := initTailscale(context.Background(), cfg, http.NewServeMux())
	if cleanup != nil {
		t.Error("expected nil cleanup func from the non-tsnet stub even with hostname configured")
	}
}

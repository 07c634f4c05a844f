package dispatch

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/gateway"
)

// ChannelRegistryAdapter bridges channels.Manager to gateway.ChannelRegistry.
// Only registered channels are tracked, so Statuses reports every entry as
// enabled — a disabled channel is simply never registered in the first
// place (cmd/ wiring only registers channels whose config has enabled=true).
type ChannelRegistryAdapter struct {
	manager *channels.Manager
}

func NewChannelRegistryAdapter(m *channels.Manager) *ChannelRegistryAdapter {
	return &ChannelRegistryAdapter{manager: m}
}

func (a *ChannelRegistryAdapter) Statuses() map[string]gateway.ChannelStatus {
	out := make(map[string]gateway.ChannelStatus)
	for name, ch := range a.manager.GetStatus() {
		m, ok := ch.(map[string]interface{})
		if !ok {
			continue
		}
		running, _ := m["running"].(bool)
		out[name] = gateway.ChannelStatus{Linked: running, Enabled: true}
	}
	return out
}

// SetEnabled stops and unregisters a running channel. Re-enabling a channel
// that was disabled this way requires reconstructing it with its config and
// is not supported at runtime — only at process start (see DESIGN.md).
func (a *ChannelRegistryAdapter) SetEnabled(channel string, enabled bool) error {
	if enabled {
		if _, ok := a.manager.GetChannel(channel); ok {
			return nil
		}
		return fmt.Errorf("channels: re-enabling %q at runtime is not supported, restart the gateway", channel)
	}

	ch, ok := a.manager.GetChannel(channel)
	if !ok {
		return fmt.Errorf("channels: unknown channel %q", channel)
	}
	if err := ch.Stop(context.Background()); err != nil {
		return err
	}
	a.manager.UnregisterChannel(channel)
	return nil
}

package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nextlevelbuilder/goclaw/internal/agentrt"
	"github.com/nextlevelbuilder/goclaw/internal/bridge"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/goclaw/internal/channels/telegram"
	"github.com/nextlevelbuilder/goclaw/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/cron"
	"github.com/nextlevelbuilder/goclaw/internal/dispatch"
	"github.com/nextlevelbuilder/goclaw/internal/gateway"
	"github.com/nextlevelbuilder/goclaw/internal/heartbeat"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/telemetry"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// stateDir returns the directory that holds this gateway's local state
// (pairings.json, nodes/paired-nodes.json, cron-jobs.json) — the parent of the
// configured sessions directory, matching the teacher's convention of one
// workspace-adjacent state tree per standalone deployment.
func stateDir(cfg *config.Config) string {
	sessionsDir := config.ExpandHome(cfg.Sessions.Storage)
	if sessionsDir == "" {
		sessionsDir = config.ExpandHome("~/.goclaw/sessions")
	}
	return filepath.Dir(sessionsDir)
}

// runGateway is the entry point registered as rootCmd's default Run: load
// config, build every transport/runtime component (channels, agent worker,
// scheduler, heartbeat, cron, node bridge, control-plane server), start
// them, and block until SIGINT/SIGTERM.
//
// No single teacher file models this wiring end to end — cmd/gateway.go
// constructs an entirely different in-process agent/tools/providers stack
// (see DESIGN.md) — but the overall SHAPE (structured logging → config load
// → core components → channel registration → server construction → signal
// handling → graceful shutdown) follows it closely.
func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	dir := stateDir(cfg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("failed to create state dir", "dir", dir, "error", err)
		os.Exit(1)
	}

	telemetryShutdown, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without tracing", "error", err)
		telemetryShutdown = func(context.Context) error { return nil }
	}
	defer telemetryShutdown(context.Background())

	sessionsMgr, err := sessions.NewManager(config.ExpandHome(cfg.Sessions.Storage), clock.Real())
	if err != nil {
		slog.Error("failed to open sessions store", "error", err)
		os.Exit(1)
	}

	pairingStore, err := store.NewFilePairingStore(dir)
	if err != nil {
		slog.Error("failed to open pairing store", "error", err)
		os.Exit(1)
	}

	msgBus := bus.NewMessageBus(256, cfg.Gateway.InboundDebounceMs)
	defer msgBus.Close()

	channelsMgr := channels.NewManager(msgBus)
	registerChannels(channelsMgr, cfg, msgBus, pairingStore)

	runtime := agentrt.NewRuntime(cfg.Worker, channelsMgr.HandleAgentEvent)

	dispatcher := dispatch.New(runtime, sessionsMgr, cfg)
	consumer := dispatch.NewConsumer(msgBus, dispatcher, sessionsMgr, channelsMgr, cfg)

	pairStore, err := bridge.NewPairStore(filepath.Join(dir, "nodes"))
	if err != nil {
		slog.Error("failed to open node pair store", "error", err)
		os.Exit(1)
	}
	nodeBridge := bridge.New(pairStore, func(nodeID, event string, payload json.RawMessage) {
		slog.Debug("node bridge event", "node", nodeID, "event", event)
	})

	cronEngine, err := cron.NewEngine(dir, dispatcher.RunForced, cfg.Cron.ToRetryConfig())
	if err != nil {
		slog.Error("failed to open cron engine", "error", err)
		os.Exit(1)
	}

	mainSessionKey := sessions.BuildAgentMainSessionKey(cfg.ResolveDefaultAgentID(), cfg.Sessions.MainKey)
	heartbeatSched := heartbeat.New(heartbeat.Deps{
		Sessions: sessionsMgr,
		Run:      dispatcher.RunForced,
		Linked: func(channel string) bool {
			ch, ok := channelsMgr.GetChannel(channel)
			return ok && ch.IsRunning()
		},
		Deliver: func(ctx context.Context, channel, to, accountID, text string) error {
			return channelsMgr.SendToChannel(ctx, channel, to, text)
		},
		Clock: clock.Real(),
	}, heartbeatChannels(cfg, mainSessionKey))

	server := gateway.NewServer(cfg, msgBus)
	tsCleanup := initTailscale(context.Background(), cfg, server.BuildMux())
	if tsCleanup != nil {
		defer tsCleanup()
	}
	router := server.Router()
	router.SetDispatcher(dispatcher)
	router.SetChannelRegistry(dispatch.NewChannelRegistryAdapter(channelsMgr))
	router.SetNodeBridge(dispatch.NewNodeBridgeAdapter(nodeBridge, pairStore))
	router.SetCronStore(dispatch.NewCronAdapter(cronEngine, mainSessionKey))
	router.SetConfig(cfg, cfgPath)
	router.SetSessions(sessionsMgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchStop := make(chan struct{})
	defer close(watchStop)
	if err := config.Watch(cfgPath, cfg, watchStop); err != nil {
		slog.Warn("config hot-reload disabled", "error", err)
	}

	runtime.Start(ctx)
	if err := channelsMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
	}
	go consumer.Run(ctx)
	go cronEngine.Start(ctx)
	heartbeatSched.Start(ctx)
	nodeBridgeAddr := cfg.Gateway.NodeBridgeAddr
	if nodeBridgeAddr == "" {
		nodeBridgeAddr = "127.0.0.1:18789"
	}
	go func() {
		if err := nodeBridge.Serve(ctx, nodeBridgeAddr); err != nil && ctx.Err() == nil {
			slog.Warn("node bridge listener stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		server.BroadcastEvent(*protocol.NewEvent(protocol.EventShutdown, nil))
		channelsMgr.StopAll(context.Background())
		cancel()
	}()

	slog.Info("goclaw gateway starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"channels", channelsMgr.GetEnabledChannels(),
	)

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}
}

// registerChannels constructs and registers every enabled channel adapter.
func registerChannels(mgr *channels.Manager, cfg *config.Config, msgBus *bus.MessageBus, pairingSvc store.PairingStore) {
	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(cfg.Channels.Telegram, msgBus, pairingSvc)
		if err != nil {
			slog.Error("failed to construct telegram channel", "error", err)
		} else {
			mgr.RegisterChannel("telegram", ch)
		}
	}
	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(cfg.Channels.Discord, msgBus, pairingSvc)
		if err != nil {
			slog.Error("failed to construct discord channel", "error", err)
		} else {
			mgr.RegisterChannel("discord", ch)
		}
	}
	if cfg.Channels.WhatsApp.Enabled {
		ch, err := whatsapp.New(cfg.Channels.WhatsApp, msgBus, pairingSvc)
		if err != nil {
			slog.Error("failed to construct whatsapp channel", "error", err)
		} else {
			mgr.RegisterChannel("whatsapp", ch)
		}
	}
}

// heartbeatChannels builds the one configured heartbeat unit (spec §4.4):
// agents.defaults.heartbeat has no per-channel list, so a single probe runs
// against the default agent's main session when configured.
func heartbeatChannels(cfg *config.Config, mainSessionKey string) []heartbeat.Channel {
	if cfg.Agents.Defaults.Heartbeat == nil {
		return nil
	}
	hb := *cfg.Agents.Defaults.Heartbeat
	if hb.Session == "" {
		hb.Session = mainSessionKey
	}
	return []heartbeat.Channel{{Name: "default", Config: hb}}
}

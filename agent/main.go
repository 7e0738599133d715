package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"collabtext/core"
	"collabtext/replica"
)

var configFile = flag.String("config", "", "path to a TOML configuration file")

func main() {
	flag.Parse()
	cfg, err := core.LoadAgentConfig(*configFile)
	if err != nil {
		core.LogFatal("Main", err)
	}
	core.InitializeLogger(cfg.LogLevel)
	core.StartTimestamp = time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Identity: site id and clock survive restarts ---
	state, err := replica.OpenState(cfg.State.Path)
	if err != nil {
		core.LogFatal("Main", err)
	}
	defer state.Close()
	site, err := state.Site(cfg.Site)
	if err != nil {
		core.LogFatal("Main", "Unable to load site id: ", err)
	}
	lease, clock, err := replica.NewLease(state, site, replica.DefaultLeaseBlock)
	if err != nil {
		core.LogFatal("Main", "Unable to lease clock: ", err)
	}
	core.LogInfo("Main", "Site ", site, " resuming at clock ", clock)

	r := replica.New(cfg.Room, site, clock, cfg.Sync.Mode == core.SyncSnapshot)
	r.SetLease(lease)

	// --- Relay: configured, or found on the local network ---
	relayURL := cfg.Relay.URL
	if relayURL == "" {
		timeout := time.Duration(cfg.Relay.DiscoverTimeout) * time.Second
		core.LogInfo("Main", "Looking for a relay (", cfg.Relay.Service, ")")
		relayURL, err = replica.Discover(ctx, cfg.Relay.Service, cfg.Room, timeout)
		if err != nil {
			core.LogFatal("Main", err)
		}
	}

	agent := replica.NewAgent(r, relayURL, time.Duration(cfg.Relay.MaxRetrySeconds)*time.Second)

	if cfg.MDNS.Enabled {
		port, err := core.PortOf(cfg.Listen)
		if err != nil {
			core.LogFatal("Main", "Invalid listen address ", cfg.Listen, ": ", err)
		}
		if err := core.Advertise(ctx, cfg.MDNS.Service, port, []string{"txtv=0", "room=" + cfg.Room, "site=" + site}); err != nil {
			core.LogWarn("Main", err)
		}
	}

	go func() {
		if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			core.LogError("Main", "Relay connection stopped: ", err)
		}
	}()

	srv := &http.Server{Addr: cfg.Listen, Handler: agent.Handler(cfg.UIDir)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	core.LogInfo("Main", "CollabText agent is running on ", cfg.Listen, ", room ", cfg.Room)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		core.LogFatal("Main", "Failed to start server: ", err)
	}
}

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
	"collabtext/relay"
)

var configFile = flag.String("config", "", "path to a TOML configuration file")

func main() {
	flag.Parse()
	cfg, err := core.LoadServerConfig(*configFile)
	if err != nil {
		core.LogFatal("Main", err)
	}
	core.InitializeLogger(cfg.LogLevel)
	core.StartTimestamp = time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Fan-out: Redis when configured, otherwise in process ---
	var broker relay.Broker
	if cfg.Redis.Addr != "" {
		rb, err := relay.NewRedisBroker(ctx, cfg.Redis.Addr)
		if err != nil {
			core.LogFatal("Main", err)
		}
		core.LogInfo("Main", "Connected to Redis at ", cfg.Redis.Addr)
		broker = rb
	} else {
		core.LogInfo("Main", "No Redis configured, relaying within this process")
		broker = relay.NewMemoryBroker()
	}
	defer broker.Close()

	// --- Room directory: PostgreSQL when configured ---
	var directory relay.Directory
	if cfg.Database.URL != "" {
		pg, err := relay.NewPgDirectory(ctx, cfg.Database.URL)
		if err != nil {
			core.LogFatal("Main", err)
		}
		core.LogInfo("Main", "Connected to PostgreSQL")
		directory = pg
	} else {
		directory = relay.NewMemoryDirectory()
	}
	defer directory.Close()

	if cfg.MDNS.Enabled {
		port, err := core.PortOf(cfg.Listen)
		if err != nil {
			core.LogFatal("Main", "Invalid listen address ", cfg.Listen, ": ", err)
		}
		if err := core.Advertise(ctx, cfg.MDNS.Service, port, []string{"path=/ws"}); err != nil {
			core.LogWarn("Main", err)
		}
	}

	srv := &http.Server{Addr: cfg.Listen, Handler: relay.NewServer(broker, directory).Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	core.LogInfo("Main", "CollabText relay starting on ", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		core.LogFatal("Main", "Failed to start server: ", err)
	}
}

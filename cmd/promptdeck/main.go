// Main package for the promptdeck teleprompter control-plane daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/promptdeck/promptdeck/internal"
	"github.com/promptdeck/promptdeck/pkg/command"
	"github.com/promptdeck/promptdeck/pkg/config"
	"github.com/promptdeck/promptdeck/pkg/content"
	"github.com/promptdeck/promptdeck/pkg/control"
	"github.com/promptdeck/promptdeck/pkg/follow"
	"github.com/promptdeck/promptdeck/pkg/metrics"
	"github.com/promptdeck/promptdeck/pkg/server"
	"github.com/promptdeck/promptdeck/pkg/state"
	"github.com/promptdeck/promptdeck/pkg/syncbus"
	"go.uber.org/zap"
)

func main() {
	// Bootstrap logger for failures before the config is available.
	bootLog := zap.Must(zap.NewProduction())
	if os.Getenv("APP_ENV") != "production" {
		bootLog = zap.Must(zap.NewDevelopment())
	}

	//
	// Flags
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	address := flag.String("address", "", "Override the control server listen address")
	notesDir := flag.String("notes", "", "Directory to serve note content from")
	activeNote := flag.String("note", "", "Note (relative to -notes) to load at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Error("Failed to load configuration", zap.Error(err))
		return
	}
	if *address != "" {
		cfg.Server.Address = *address
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		bootLog.Error("Failed to build logger", zap.Error(err))
		return
	}
	defer logger.Sync()

	//
	// Control-plane setup
	store := state.NewStore()
	registry := internal.CreateRegistry(cfg.Server.MaxConnections)
	router := command.NewRouter(logger)
	collector := metrics.NewPrometheusCollector()

	controller := control.New(store, logger)
	controller.RegisterHandlers(router)
	defer controller.StopCountdown()

	broadcaster := state.NewBroadcaster(store, registry, cfg.Broadcast.Debounce, logger)
	broadcaster.OnSent(collector.BroadcastSent)
	defer broadcaster.Stop()

	followLoop := follow.NewLoop(broadcaster, cfg.Broadcast.FollowInterval, cfg.Broadcast.FollowEnabled, logger)
	defer followLoop.Stop()

	// Every mutation feeds the debounced wire broadcast; playback flips
	// additionally drive the follow loop's state machine.
	store.OnChange(func(patch state.Patch) {
		broadcaster.BroadcastSoon()
		if playing, ok := patch["playing"].(bool); ok {
			followLoop.SetPlaying(playing)
		}
	})

	// The main window's attachment to the cross-window bus. Detached
	// popout windows attach to the same bus at runtime.
	bus := syncbus.NewBus(cfg.Sync.ChannelName)
	window := syncbus.Attach(bus, store, cfg.Sync.SettleDelay, logger)
	defer window.Detach()

	if *notesDir != "" {
		provider := content.NewDirProvider(*notesDir)
		if *activeNote != "" {
			provider.SetActive(*activeNote)
			if err := content.LoadActive(store, provider); err != nil {
				logger.Warn("Failed to load startup note", zap.Error(err))
			}
		}
	}

	controlServer, err := server.CreateServer(server.Params{
		Server:      cfg.Server,
		HTTP:        cfg.HTTP,
		Auth:        cfg.Auth,
		RateLimit:   cfg.RateLimit,
		Registry:    registry,
		Router:      router,
		Broadcaster: broadcaster,
		Store:       store,
		Metrics:     collector,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("Failed to create control server", zap.Error(err))
		return
	}

	shutdownCtx, shutdownRelease := context.WithCancel(context.Background())
	defer shutdownRelease()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("Shutdown signal received")
		shutdownRelease()
	}()

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := controlServer.Start(shutdownCtx); err != nil {
			logger.Error("Control server exited with error", zap.Error(err))
			shutdownRelease()
		}
	}()

	wg.Wait()
}

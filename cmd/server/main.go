package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/api"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/config"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/orchestrator"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/provider"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/rules"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/store"
	syncpkg "github.com/bakeable/homeassistant-whatsapp-gateway/internal/sync"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/syncbus"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/webhook"
)

func main() {
	logger := log.NewWithOptions(os.Stdout, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           log.InfoLevel,
		TimeFormat:      time.Kitchen,
	})

	cfg, err := config.Load(os.Getenv("DEBUG_CONFIG_PRINT") == "true")
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.Open(ctx, cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("store unreachable, refusing to start", "error", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}
	}()

	provClient := provider.New(cfg.ProviderBaseURL, cfg.ProviderAPIKey, logger)
	orchClient := orchestrator.New(cfg.OrchestratorBaseURL, cfg.OrchestratorToken)

	bus, err := syncbus.Connect(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to NATS", "error", err)
	}
	defer bus.Close()

	engine := rules.New(rules.Config{
		Store:        st,
		Orchestrator: orchClient,
		Sender:       provClient,
		Publisher:    bus,
		AllowList:    cfg.AllowedServices,
		Instance:     cfg.InstanceName,
		Logger:       logger,
	})
	if err := engine.Reload(ctx); err != nil {
		logger.Warn("initial rule set reload failed, starting with an empty rule set", "error", err)
	}

	coordinator := syncpkg.New(syncpkg.Config{
		Provider:  provClient,
		Store:     st,
		Publisher: bus,
		Instance:  cfg.InstanceName,
		Logger:    logger,
	})

	ingestor := webhook.New(st, engine, cfg.InstanceName, logger)

	apiServer := api.NewServer(api.Config{
		Store:        st,
		Provider:     provClient,
		Orchestrator: orchClient,
		Engine:       engine,
		Sync:         coordinator,
		Progress:     bus,
		Webhook:      ingestor,
		Instance:     cfg.InstanceName,
		AllowList:    cfg.AllowedServices,
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.ListenPort,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting management API", "address", "http://localhost:"+cfg.ListenPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", "error", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan

	logger.Info("shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during http server shutdown", "error", err)
	}
}

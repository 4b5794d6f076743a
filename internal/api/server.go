// Package api implements the Management API: the gateway's single HTTP
// surface for operators, covering WhatsApp-protocol instance control,
// the home-automation orchestrator, the rule set, paged logs, and the
// webhook ingest endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi"
	"github.com/rs/cors"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/orchestrator"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/provider"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/rules"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/store"
	syncpkg "github.com/bakeable/homeassistant-whatsapp-gateway/internal/sync"
)

// Store is the subset of *store.Store the Management API needs.
type Store interface {
	ListChats(ctx context.Context, filter store.ChatFilter) ([]store.Chat, error)
	SetChatEnabled(ctx context.Context, id string, enabled bool) error
	ListMessages(ctx context.Context, page store.Page, filter store.MessageFilter) ([]store.Message, error)
	ListRuleFires(ctx context.Context, page store.Page, filter store.RuleFireFilter) ([]store.RuleFire, error)
	ListEvents(ctx context.Context, page store.Page, filter store.EventLogFilter) ([]store.EventLogEntry, error)
	GetRuleSetYAML(ctx context.Context) (string, error)
}

// Provider is the subset of *provider.Client the Management API needs.
type Provider interface {
	EnsureInstance(ctx context.Context, name string) (created bool, err error)
	RequestQR(ctx context.Context, name string) (provider.QR, error)
	ConnectionStatus(ctx context.Context, name string) (provider.Status, error)
	Disconnect(ctx context.Context, name string) error
	SendText(ctx context.Context, instance, to, text string) (string, error)
	SendMedia(ctx context.Context, instance, to, url, kind, caption string) (string, error)
}

// Orchestrator is the subset of *orchestrator.Client the Management API
// needs.
type Orchestrator interface {
	Status(ctx context.Context) (orchestrator.Status, error)
	ListScripts(ctx context.Context) ([]orchestrator.Script, error)
	ListAutomations(ctx context.Context) ([]orchestrator.Automation, error)
	ListEntities(ctx context.Context) ([]orchestrator.Entity, error)
	CallService(ctx context.Context, serviceName string, target, data map[string]interface{}) error
}

// Engine is the subset of *rules.Engine the Management API needs.
type Engine interface {
	Save(ctx context.Context, yamlText string) (rules.ValidationResult, error)
	Reload(ctx context.Context) error
	TestMessage(event rules.NormalizedEvent) rules.TestResult
}

// SyncCoordinator is the subset of *sync.Coordinator the Management API
// needs.
type SyncCoordinator interface {
	Start(ctx context.Context) syncpkg.StartResult
	Progress() syncpkg.Progress
}

// ProgressSubscriber lets the websocket progress stream subscribe to sync
// transitions without depending on syncbus directly. A nil value makes the
// stream endpoint unavailable.
type ProgressSubscriber interface {
	Subscribe(fn func(syncpkg.Progress)) (unsubscribe func(), err error)
}

// Config bundles Server construction dependencies.
type Config struct {
	Store        Store
	Provider     Provider
	Orchestrator Orchestrator
	Engine       Engine
	Sync         SyncCoordinator
	Progress     ProgressSubscriber // optional
	Webhook      http.Handler
	Instance     string
	AllowList    []string
	Logger       *log.Logger
}

// Server holds the Management API's dependencies and builds its router.
type Server struct {
	store        Store
	provider     Provider
	orchestrator Orchestrator
	engine       Engine
	sync         SyncCoordinator
	progress     ProgressSubscriber
	webhook      http.Handler
	instance     string
	allowList    []string
	logger       *log.Logger
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config) *Server {
	return &Server{
		store:        cfg.Store,
		provider:     cfg.Provider,
		orchestrator: cfg.Orchestrator,
		engine:       cfg.Engine,
		sync:         cfg.Sync,
		progress:     cfg.Progress,
		webhook:      cfg.Webhook,
		instance:     cfg.Instance,
		allowList:    cfg.AllowList,
		logger:       cfg.Logger,
	}
}

// Router builds the chi router for the full Management API surface.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowCredentials: true,
		AllowedOrigins:   []string{"*"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		Debug:            false,
	}).Handler)

	r.Get("/api/health", s.handleHealth)

	r.Get("/api/wa/status", s.handleWAStatus)
	r.Post("/api/wa/instances", s.handleWACreateInstance)
	r.Post("/api/wa/instances/{name}/connect", s.handleWAConnect)
	r.Get("/api/wa/instances/{name}/status", s.handleWAInstanceStatus)
	r.Post("/api/wa/instances/{name}/disconnect", s.handleWADisconnect)
	r.Get("/api/wa/chats", s.handleListChats)
	r.Post("/api/wa/chats/refresh", s.handleRefreshChats)
	r.Get("/api/wa/chats/refresh/status", s.handleRefreshStatus)
	r.Get("/api/wa/chats/refresh/stream", s.handleRefreshStream)
	r.Patch("/api/wa/chats/{id}", s.handleSetChatEnabled)
	r.Post("/api/wa/send", s.handleSendText)
	r.Post("/api/wa/send-media", s.handleSendMedia)

	r.Get("/api/ha/status", s.handleHAStatus)
	r.Get("/api/ha/scripts", s.handleHAScripts)
	r.Get("/api/ha/automations", s.handleHAAutomations)
	r.Get("/api/ha/entities", s.handleHAEntities)
	r.Get("/api/ha/allowed-services", s.handleHAAllowedServices)
	r.Post("/api/ha/call-service", s.handleHACallService)

	r.Get("/api/rules", s.handleGetRules)
	r.Put("/api/rules", s.handlePutRules)
	r.Post("/api/rules/validate", s.handleValidateRules)
	r.Post("/api/rules/test", s.handleTestRules)
	r.Post("/api/rules/reload", s.handleReloadRules)

	r.Get("/api/logs/messages", s.handleLogMessages)
	r.Get("/api/logs/rules", s.handleLogRuleFires)
	r.Get("/api/logs/events", s.handleLogEvents)

	r.Post("/api/notify/send", s.handleNotifySend)

	if s.webhook != nil {
		r.Post("/webhook/provider", s.webhook.ServeHTTP)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

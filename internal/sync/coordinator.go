// Package sync implements the gateway's single-flight catalogue
// synchronisation: fetch groups and contacts from the upstream provider,
// merge them, and reconcile the result into the Store.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/provider"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/store"
)

// State is one step of the sync progress state machine.
type State string

const (
	StateIdle             State = "idle"
	StateFetchingGroups   State = "fetching_groups"
	StateFetchingContacts State = "fetching_contacts"
	StateSaving           State = "saving"
	StateComplete         State = "complete"
	StateError            State = "error"
)

// StartResult is what Start reports back to its caller, before the sync
// itself has necessarily finished.
type StartResult string

const (
	StartResultStarted        StartResult = "started"
	StartResultAlreadyRunning StartResult = "already_running"
)

// Progress is the Sync Coordinator's current, in-process state. There is
// exactly one live Progress at a time; readers get a copy.
type Progress struct {
	State        State     `json:"state"`
	Step         string    `json:"step"`
	GroupCount   int       `json:"group_count"`
	ContactCount int       `json:"contact_count"`
	RemovedCount int       `json:"removed_count"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
}

// Lister is the subset of *provider.Client the coordinator needs.
type Lister interface {
	ListGroups(ctx context.Context, instance string) ([]provider.Chat, error)
	ListContacts(ctx context.Context, instance string) ([]provider.Chat, error)
}

// ChatStore is the subset of *store.Store the coordinator needs.
type ChatStore interface {
	UpsertChatsTx(ctx context.Context, chats []store.ChatUpsert) error
	SyncReconcile(ctx context.Context, syncStart time.Time) (int64, error)
}

// Publisher lets the coordinator announce progress transitions without
// depending on any particular transport. *syncbus.Bus implements this; a
// nil Publisher is also fine (Coordinator checks before calling it).
type Publisher interface {
	PublishSyncProgress(p Progress)
}

// Config bundles Coordinator construction dependencies.
type Config struct {
	Provider  Lister
	Store     ChatStore
	Publisher Publisher // optional
	Instance  string
	Logger    *log.Logger

	// IdleDelay overrides the 30s auto-transition-to-idle delay; zero
	// means use the default. Tests set this to shrink the wait.
	IdleDelay time.Duration
}

// Coordinator owns the single in-process sync progress record and ensures
// at most one sync runs at a time.
type Coordinator struct {
	provider  Lister
	store     ChatStore
	publisher Publisher
	instance  string
	logger    *log.Logger
	idleDelay time.Duration

	mu       sync.RWMutex
	running  bool
	progress Progress
}

// New builds a Coordinator at rest (state idle).
func New(cfg Config) *Coordinator {
	idleDelay := cfg.IdleDelay
	if idleDelay == 0 {
		idleDelay = 30 * time.Second
	}
	return &Coordinator{
		provider:  cfg.Provider,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		instance:  cfg.Instance,
		logger:    cfg.Logger,
		idleDelay: idleDelay,
		progress:  Progress{State: StateIdle},
	}
}

// Progress returns a snapshot of the coordinator's current state.
func (c *Coordinator) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress
}

// Start attempts to begin a sync. If one is already running it reports
// already_running without disturbing it; otherwise it launches the sync on
// a background goroutine, detached from ctx's cancellation, since the sync
// is expected to long outlive the HTTP request that triggered it.
func (c *Coordinator) Start(ctx context.Context) StartResult {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return StartResultAlreadyRunning
	}
	c.running = true
	c.progress = Progress{State: StateFetchingGroups, Step: "fetching groups", StartedAt: time.Now().UTC()}
	c.mu.Unlock()

	c.publish()

	go c.run(context.WithoutCancel(ctx))

	return StartResultStarted
}

func (c *Coordinator) run(ctx context.Context) {
	syncStart := c.Progress().StartedAt

	groups, err := c.provider.ListGroups(ctx, c.instance)
	if err != nil {
		c.logger.Warn("sync: list groups failed, continuing", "error", err)
	}

	c.setState(StateFetchingContacts, "fetching contacts", func(p *Progress) { p.GroupCount = len(groups) })
	c.publish()

	contacts, err := c.provider.ListContacts(ctx, c.instance)
	if err != nil {
		c.logger.Warn("sync: list contacts failed, continuing", "error", err)
	}

	merged := mergeChats(groups, contacts)

	c.setState(StateSaving, "saving chats", func(p *Progress) { p.ContactCount = len(contacts) })
	c.publish()

	upserts := make([]store.ChatUpsert, 0, len(merged))
	for _, ch := range merged {
		lastActivity := time.Now().UTC()
		if ch.LastActivityAt != nil {
			lastActivity = *ch.LastActivityAt
		}
		upserts = append(upserts, store.ChatUpsert{
			ID:             ch.ID,
			Kind:           ch.Kind,
			DisplayName:    ch.DisplayName,
			PhoneNumber:    nonEmptyPtr(ch.PhoneNumber),
			LastActivityAt: lastActivity,
		})
	}

	if err := c.store.UpsertChatsTx(ctx, upserts); err != nil {
		c.fail(fmt.Sprintf("upsert chats: %v", err))
		return
	}

	removed, err := c.store.SyncReconcile(ctx, syncStart)
	if err != nil {
		c.fail(fmt.Sprintf("reconcile: %v", err))
		return
	}

	c.mu.Lock()
	c.progress.State = StateComplete
	c.progress.Step = "complete"
	c.progress.RemovedCount = int(removed)
	c.progress.CompletedAt = time.Now().UTC()
	c.mu.Unlock()
	c.publish()

	time.AfterFunc(c.idleDelay, c.toIdle)
}

func (c *Coordinator) toIdle() {
	c.mu.Lock()
	if c.progress.State == StateComplete || c.progress.State == StateError {
		c.progress = Progress{State: StateIdle}
	}
	c.running = false
	c.mu.Unlock()
	c.publish()
}

func (c *Coordinator) fail(msg string) {
	c.logger.Error("sync: failed", "error", msg)
	c.mu.Lock()
	c.progress.State = StateError
	c.progress.Error = msg
	c.progress.CompletedAt = time.Now().UTC()
	c.running = false
	c.mu.Unlock()
	c.publish()
}

func (c *Coordinator) setState(state State, step string, mutate func(*Progress)) {
	c.mu.Lock()
	c.progress.State = state
	c.progress.Step = step
	if mutate != nil {
		mutate(&c.progress)
	}
	c.mu.Unlock()
}

func (c *Coordinator) publish() {
	if c.publisher == nil {
		return
	}
	c.publisher.PublishSyncProgress(c.Progress())
}

// mergeChats unions groups and contacts by id. On collision it keeps the
// entry with the longer display name, breaking ties in favor of whichever
// side carries a newer last-activity timestamp.
func mergeChats(groups, contacts []provider.Chat) []provider.Chat {
	all := append(append([]provider.Chat{}, groups...), contacts...)
	byID := lo.GroupBy(all, func(c provider.Chat) string { return c.ID })

	merged := make([]provider.Chat, 0, len(byID))
	for _, candidates := range byID {
		best := lo.Reduce(candidates, func(agg provider.Chat, item provider.Chat, _ int) provider.Chat {
			if shouldPrefer(item, agg) {
				return item
			}
			return agg
		}, candidates[0])
		merged = append(merged, best)
	}
	return merged
}

func shouldPrefer(candidate, current provider.Chat) bool {
	if len(candidate.DisplayName) != len(current.DisplayName) {
		return len(candidate.DisplayName) > len(current.DisplayName)
	}
	if candidate.LastActivityAt != nil && (current.LastActivityAt == nil || candidate.LastActivityAt.After(*current.LastActivityAt)) {
		return true
	}
	return false
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

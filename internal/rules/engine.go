package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/orchestrator"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/store"
)

// maxMatchedTextLen caps the triggering text recorded on a rule fire.
const maxMatchedTextLen = 500

// OrchestratorCaller is the subset of the Orchestrator Client the engine
// needs to dispatch ha_service actions.
type OrchestratorCaller interface {
	CallService(ctx context.Context, serviceName string, target, data map[string]interface{}) error
}

// MessageSender is the subset of the Provider Client the engine needs to
// dispatch reply_whatsapp actions.
type MessageSender interface {
	SendText(ctx context.Context, instance, to, text string) (messageID string, err error)
}

// FirePublisher lets the engine announce rule fires without depending on
// any particular transport. *syncbus.Bus implements this; a nil
// FirePublisher is also fine (Engine checks before calling it).
type FirePublisher interface {
	PublishRuleFire(fire store.RuleFire)
}

// RuleStore is the subset of *store.Store the engine needs: rule-set
// persistence, cooldown bookkeeping, and rule-fire recording. *store.Store
// satisfies this directly; tests substitute an in-memory fake.
type RuleStore interface {
	GetRuleSet(ctx context.Context) (store.RuleSetRow, error)
	PutRuleSet(ctx context.Context, yamlText string, newVersion int64) error
	IsOnCooldown(ctx context.Context, ruleID, scopeKey string) (bool, error)
	SetCooldown(ctx context.Context, ruleID, scopeKey string, seconds int) error
	SweepExpiredCooldowns(ctx context.Context) (int64, error)
	InsertRuleFire(ctx context.Context, fire store.RuleFire) (uuid.UUID, error)
}

// Engine holds an in-memory cache of the current parsed rule set plus the
// matching/execution logic.
type Engine struct {
	store        RuleStore
	orchestrator OrchestratorCaller
	sender       MessageSender
	publisher    FirePublisher
	allowList    []string
	instance     string
	logger       *log.Logger

	cache atomic.Pointer[cachedSet]
}

type cachedSet struct {
	rules   []Rule // sorted by priority ascending, enabled only
	version int64
}

// Config bundles Engine construction dependencies.
type Config struct {
	Store        RuleStore
	Orchestrator OrchestratorCaller
	Sender       MessageSender
	Publisher    FirePublisher // optional
	AllowList    []string
	Instance     string
	Logger       *log.Logger
}

// New constructs an Engine with an empty cache; call Reload to populate it
// from the Store at startup.
func New(cfg Config) *Engine {
	e := &Engine{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		sender:       cfg.Sender,
		publisher:    cfg.Publisher,
		allowList:    cfg.AllowList,
		instance:     cfg.Instance,
		logger:       cfg.Logger,
	}
	e.cache.Store(&cachedSet{})
	return e
}

// Reload re-reads the persisted rule set and atomically swaps the cache.
func (e *Engine) Reload(ctx context.Context) error {
	row, err := e.store.GetRuleSet(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoRuleSet) {
			e.cache.Store(&cachedSet{})
			return nil
		}
		return fmt.Errorf("rules: reload: %w", err)
	}

	result := ValidateYAML(row.YAML)
	if !result.Valid {
		return fmt.Errorf("rules: reload: stored rule set no longer parses: %v", result.Errors)
	}

	var doc Document
	if err := yaml.Unmarshal([]byte(row.YAML), &doc); err != nil {
		return fmt.Errorf("rules: reload: %w", err)
	}

	e.cache.Store(&cachedSet{rules: sortedEnabled(doc.Rules), version: row.Version})
	return nil
}

func sortedEnabled(rules []Rule) []Rule {
	enabled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.IsEnabled() {
			enabled = append(enabled, r)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})
	return enabled
}

// Save validates yamlText, and on success persists it with a strictly
// incrementing version and reloads the cache.
func (e *Engine) Save(ctx context.Context, yamlText string) (ValidationResult, error) {
	result := ValidateYAML(yamlText)
	if !result.Valid {
		return result, nil
	}

	current, err := e.store.GetRuleSet(ctx)
	nextVersion := int64(1)
	if err == nil {
		nextVersion = current.Version + 1
	} else if !errors.Is(err, store.ErrNoRuleSet) {
		return result, fmt.Errorf("rules: save: %w", err)
	}

	if err := e.store.PutRuleSet(ctx, result.NormalizedYAML, nextVersion); err != nil {
		return result, fmt.Errorf("rules: save: %w", err)
	}

	if err := e.Reload(ctx); err != nil {
		return result, fmt.Errorf("rules: save: %w", err)
	}

	return result, nil
}

// Check runs the live dispatch path for a single normalised event: priority
// order, cooldown gating, action execution, rule-fire recording.
// msgID is nil for non-message events.
func (e *Engine) Check(ctx context.Context, event NormalizedEvent, msgID *uuid.UUID) ([]EvaluatedRule, error) {
	if _, err := e.store.SweepExpiredCooldowns(ctx); err != nil {
		e.logger.Warn("cooldown sweep failed", "error", err)
	}

	cached := e.cache.Load()
	var evaluated []EvaluatedRule

	for _, rule := range cached.rules {
		if len(rule.Match.Events) > 0 && !containsEventKind(rule.Match.Events, event.EventKind) {
			continue
		}

		onCooldown, err := e.store.IsOnCooldown(ctx, rule.ID, event.ChatID)
		if err != nil {
			return evaluated, fmt.Errorf("rules: check cooldown for rule %s: %w", rule.ID, err)
		}
		if onCooldown {
			evaluated = append(evaluated, EvaluatedRule{RuleID: rule.ID, Name: rule.Name, Matched: false, Skipped: true, Reason: "cooldown active"})
			continue
		}

		if !matchRule(rule, event) {
			evaluated = append(evaluated, EvaluatedRule{RuleID: rule.ID, Name: rule.Name, Matched: false})
			continue
		}

		results, success := e.dispatchActions(ctx, rule, event)
		if _, err := e.recordFire(ctx, rule, event, msgID, results, success); err != nil {
			e.logger.Error("failed to record rule fire", "rule_id", rule.ID, "error", err)
		}

		if success && rule.CooldownSeconds > 0 {
			if err := e.store.SetCooldown(ctx, rule.ID, event.ChatID, rule.CooldownSeconds); err != nil {
				e.logger.Error("failed to set cooldown", "rule_id", rule.ID, "error", err)
			}
		}

		evaluated = append(evaluated, EvaluatedRule{RuleID: rule.ID, Name: rule.Name, Matched: true})

		if rule.ShouldStopOnMatch() {
			break
		}
	}

	return evaluated, nil
}

func (e *Engine) dispatchActions(ctx context.Context, rule Rule, event NormalizedEvent) ([]ActionResult, bool) {
	results := make([]ActionResult, 0, len(rule.Actions))
	overallSuccess := true

	for _, action := range rule.Actions {
		result := e.runAction(ctx, action, event)
		results = append(results, result)
		if !result.Success {
			overallSuccess = false
		}
	}

	return results, overallSuccess
}

func (e *Engine) runAction(ctx context.Context, action Action, event NormalizedEvent) ActionResult {
	switch action.Type {
	case ActionHAService:
		if err := orchestrator.CheckAllowList(e.allowList, action.Service); err != nil {
			return ActionResult{Type: action.Type, Success: false, Detail: action.Service, Error: err.Error()}
		}
		if err := e.orchestrator.CallService(ctx, action.Service, action.Target, action.Data); err != nil {
			return ActionResult{Type: action.Type, Success: false, Detail: action.Service, Error: err.Error()}
		}
		return ActionResult{Type: action.Type, Success: true, Detail: action.Service}

	case ActionReplyWhatsApp:
		if _, err := e.sender.SendText(ctx, e.instance, event.ChatID, action.Text); err != nil {
			return ActionResult{Type: action.Type, Success: false, Detail: action.Text, Error: err.Error()}
		}
		return ActionResult{Type: action.Type, Success: true, Detail: action.Text}

	default:
		return ActionResult{Type: action.Type, Success: false, Error: fmt.Sprintf("unknown action type %q", action.Type)}
	}
}

func (e *Engine) recordFire(ctx context.Context, rule Rule, event NormalizedEvent, msgID *uuid.UUID, results []ActionResult, success bool) (uuid.UUID, error) {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal action results: %w", err)
	}

	var errMsgs []string
	for _, r := range results {
		if !r.Success && r.Error != "" {
			errMsgs = append(errMsgs, r.Error)
		}
	}

	fire := store.RuleFire{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		MessageID:     msgID,
		ChatID:        event.ChatID,
		SenderID:      event.SenderID,
		MatchedText:   truncateText(event.Text, maxMatchedTextLen),
		ActionResults: resultsJSON,
		Success:       success,
		ErrorMessage:  strings.Join(errMsgs, "; "),
	}

	id, err := e.store.InsertRuleFire(ctx, fire)
	if err != nil {
		return id, err
	}

	if e.publisher != nil {
		fire.ID = id
		fire.FiredAt = time.Now().UTC()
		e.publisher.PublishRuleFire(fire)
	}

	return id, nil
}

func truncateText(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

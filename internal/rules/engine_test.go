package rules

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/store"
)

// fakeStore is an in-memory RuleStore, enough to exercise the Engine
// without a live Postgres connection.
type fakeStore struct {
	mu sync.Mutex

	ruleSet   store.RuleSetRow
	hasRules  bool
	cooldowns map[string]bool
	fires     []store.RuleFire
}

func newFakeStore() *fakeStore {
	return &fakeStore{cooldowns: make(map[string]bool)}
}

func (f *fakeStore) GetRuleSet(ctx context.Context) (store.RuleSetRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasRules {
		return store.RuleSetRow{}, store.ErrNoRuleSet
	}
	return f.ruleSet, nil
}

func (f *fakeStore) PutRuleSet(ctx context.Context, yamlText string, newVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasRules = true
	f.ruleSet = store.RuleSetRow{YAML: yamlText, Version: newVersion}
	return nil
}

func (f *fakeStore) IsOnCooldown(ctx context.Context, ruleID, scopeKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cooldowns[ruleID+"|"+scopeKey], nil
}

func (f *fakeStore) SetCooldown(ctx context.Context, ruleID, scopeKey string, seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cooldowns[ruleID+"|"+scopeKey] = true
	return nil
}

func (f *fakeStore) SweepExpiredCooldowns(ctx context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeStore) InsertRuleFire(ctx context.Context, fire store.RuleFire) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fires = append(f.fires, fire)
	return uuid.New(), nil
}

type fakePublisher struct {
	mu    sync.Mutex
	fires []store.RuleFire
}

func (f *fakePublisher) PublishRuleFire(fire store.RuleFire) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fires = append(f.fires, fire)
}

type mockOrchestrator struct{ mock.Mock }

func (m *mockOrchestrator) CallService(ctx context.Context, serviceName string, target, data map[string]interface{}) error {
	args := m.Called(ctx, serviceName, target, data)
	return args.Error(0)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) SendText(ctx context.Context, instance, to, text string) (string, error) {
	args := m.Called(ctx, instance, to, text)
	return args.String(0), args.Error(1)
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestEngine(t *testing.T, yamlText string, allowList []string, orch *mockOrchestrator, sender *mockSender) (*Engine, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	e := New(Config{
		Store:        fs,
		Orchestrator: orch,
		Sender:       sender,
		AllowList:    allowList,
		Instance:     "default",
		Logger:       testLogger(),
	})
	_, err := e.Save(context.Background(), yamlText)
	require.NoError(t, err)
	return e, fs
}

func TestEngine_MatchAndCallsOrchestrator(t *testing.T) {
	yamlText := `
rules:
  - id: goodnight
    name: Goodnight
    priority: 10
    match:
      text:
        mode: contains
        patterns: ["goodnight"]
    actions:
      - type: ha_service
        service: script.turn_on
        target: {entity_id: script.goodnight}
`
	orch := &mockOrchestrator{}
	orch.On("CallService", mock.Anything, "script.turn_on", mock.Anything, mock.Anything).Return(nil)
	sender := &mockSender{}

	e, fs := newTestEngine(t, yamlText, []string{"script.turn_on"}, orch, sender)

	evaluated, err := e.Check(context.Background(), NormalizedEvent{ChatID: "a@g.us", Text: "say goodnight"}, nil)
	require.NoError(t, err)
	require.Len(t, evaluated, 1)
	assert.True(t, evaluated[0].Matched)
	orch.AssertExpectations(t)
	assert.Len(t, fs.fires, 1)
	assert.True(t, fs.fires[0].Success)
}

func TestEngine_PolicyRefusalNeverCallsOrchestrator(t *testing.T) {
	yamlText := `
rules:
  - id: risky
    name: Risky
    priority: 10
    actions:
      - type: ha_service
        service: lock.unlock
`
	orch := &mockOrchestrator{}
	sender := &mockSender{}

	e, fs := newTestEngine(t, yamlText, []string{"script.turn_on"}, orch, sender)

	evaluated, err := e.Check(context.Background(), NormalizedEvent{ChatID: "a@g.us", Text: "anything"}, nil)
	require.NoError(t, err)
	require.Len(t, evaluated, 1)
	assert.True(t, evaluated[0].Matched)

	orch.AssertNotCalled(t, "CallService", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, fs.fires, 1)
	assert.False(t, fs.fires[0].Success)
}

func TestEngine_StopOnMatchHaltsChain(t *testing.T) {
	yamlText := `
rules:
  - id: first
    name: First
    priority: 1
    actions:
      - type: reply_whatsapp
        text: hi from first
  - id: second
    name: Second
    priority: 2
    actions:
      - type: reply_whatsapp
        text: hi from second
`
	orch := &mockOrchestrator{}
	sender := &mockSender{}
	sender.On("SendText", mock.Anything, "default", "a@g.us", "hi from first").Return("m1", nil)

	e, _ := newTestEngine(t, yamlText, nil, orch, sender)

	evaluated, err := e.Check(context.Background(), NormalizedEvent{ChatID: "a@g.us", Text: "anything"}, nil)
	require.NoError(t, err)
	require.Len(t, evaluated, 1)
	assert.Equal(t, "first", evaluated[0].RuleID)
	sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, "hi from second")
}

func TestEngine_CooldownSkipsButContinuesChain(t *testing.T) {
	yamlText := `
rules:
  - id: first
    name: First
    priority: 1
    stop_on_match: false
    cooldown_seconds: 60
    actions:
      - type: reply_whatsapp
        text: hi from first
  - id: second
    name: Second
    priority: 2
    actions:
      - type: reply_whatsapp
        text: hi from second
`
	orch := &mockOrchestrator{}
	sender := &mockSender{}
	sender.On("SendText", mock.Anything, "default", "a@g.us", "hi from first").Return("m1", nil).Once()
	sender.On("SendText", mock.Anything, "default", "a@g.us", "hi from second").Return("m2", nil).Twice()

	e, fs := newTestEngine(t, yamlText, nil, orch, sender)

	// First check: both rules fire, "first" sets a cooldown.
	evaluated, err := e.Check(context.Background(), NormalizedEvent{ChatID: "a@g.us", Text: "anything"}, nil)
	require.NoError(t, err)
	require.Len(t, evaluated, 2)
	assert.True(t, fs.cooldowns["first|a@g.us"])

	// Second check: "first" is on cooldown and is skipped, but the chain
	// continues to "second".
	evaluated, err = e.Check(context.Background(), NormalizedEvent{ChatID: "a@g.us", Text: "anything"}, nil)
	require.NoError(t, err)
	require.Len(t, evaluated, 2)
	assert.True(t, evaluated[0].Skipped)
	assert.Equal(t, "cooldown active", evaluated[0].Reason)
	assert.True(t, evaluated[1].Matched)

	sender.AssertExpectations(t)
}

func TestEngine_TestMessageNeverMutatesState(t *testing.T) {
	yamlText := `
rules:
  - id: goodnight
    name: Goodnight
    priority: 10
    cooldown_seconds: 60
    match:
      text:
        mode: contains
        patterns: ["goodnight"]
    actions:
      - type: ha_service
        service: script.turn_on
`
	orch := &mockOrchestrator{}
	sender := &mockSender{}

	e, fs := newTestEngine(t, yamlText, []string{"script.turn_on"}, orch, sender)

	result := e.TestMessage(NormalizedEvent{ChatID: "a@g.us", Text: "say goodnight"})
	require.Len(t, result.MatchedRules, 1)
	assert.True(t, result.MatchedRules[0].Matched)
	require.Len(t, result.ActionsPreview, 1)
	assert.Contains(t, result.ActionsPreview[0].Description, "script.turn_on")

	orch.AssertNotCalled(t, "CallService", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, fs.fires)
	assert.Empty(t, fs.cooldowns)
}

func TestEngine_PublishesRuleFireWhenPublisherConfigured(t *testing.T) {
	yamlText := `
rules:
  - id: goodnight
    name: Goodnight
    priority: 10
    actions:
      - type: reply_whatsapp
        text: sleep well
`
	orch := &mockOrchestrator{}
	sender := &mockSender{}
	sender.On("SendText", mock.Anything, "default", "a@g.us", "sleep well").Return("m1", nil)
	pub := &fakePublisher{}

	fs := newFakeStore()
	e := New(Config{
		Store:        fs,
		Orchestrator: orch,
		Sender:       sender,
		Publisher:    pub,
		AllowList:    nil,
		Instance:     "default",
		Logger:       testLogger(),
	})
	_, err := e.Save(context.Background(), yamlText)
	require.NoError(t, err)

	_, err = e.Check(context.Background(), NormalizedEvent{ChatID: "a@g.us", Text: "anything"}, nil)
	require.NoError(t, err)

	require.Len(t, pub.fires, 1)
	assert.Equal(t, "goodnight", pub.fires[0].RuleID)
	assert.NotEqual(t, uuid.Nil, pub.fires[0].ID)
}

func TestEngine_PriorityOrderingIsAscending(t *testing.T) {
	yamlText := `
rules:
  - id: low
    name: Low
    priority: 100
    stop_on_match: false
    actions:
      - type: reply_whatsapp
        text: low
  - id: high
    name: High
    priority: 1
    stop_on_match: false
    actions:
      - type: reply_whatsapp
        text: high
`
	orch := &mockOrchestrator{}
	sender := &mockSender{}
	sender.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("m", nil)

	e, _ := newTestEngine(t, yamlText, nil, orch, sender)

	evaluated, err := e.Check(context.Background(), NormalizedEvent{ChatID: "a@g.us", Text: "anything"}, nil)
	require.NoError(t, err)
	require.Len(t, evaluated, 2)
	assert.Equal(t, "high", evaluated[0].RuleID)
	assert.Equal(t, "low", evaluated[1].RuleID)
}

func TestEngine_DisabledRulesAreNeverEvaluated(t *testing.T) {
	yamlText := `
rules:
  - id: off
    name: Off
    priority: 1
    enabled: false
    actions:
      - type: reply_whatsapp
        text: should not send
`
	orch := &mockOrchestrator{}
	sender := &mockSender{}

	e, _ := newTestEngine(t, yamlText, nil, orch, sender)

	evaluated, err := e.Check(context.Background(), NormalizedEvent{ChatID: "a@g.us", Text: "anything"}, nil)
	require.NoError(t, err)
	assert.Empty(t, evaluated)
	sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

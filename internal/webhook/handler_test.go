package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/rules"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/store"
)

type fakeStore struct {
	mu sync.Mutex

	events   []store.EventLogInsert
	messages []store.MessageInsert
	chats    []store.ChatUpsert
	marked   []uuid.UUID

	seenProviderIDs map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{seenProviderIDs: map[string]bool{}}
}

func (f *fakeStore) InsertEvent(ctx context.Context, in store.EventLogInsert) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, in)
	return uuid.New(), nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, in store.MessageInsert) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.ProviderMessageID != nil {
		if f.seenProviderIDs[*in.ProviderMessageID] {
			return uuid.Nil, false, nil
		}
		f.seenProviderIDs[*in.ProviderMessageID] = true
	}
	f.messages = append(f.messages, in)
	return uuid.New(), true, nil
}

func (f *fakeStore) UpsertChat(ctx context.Context, in store.ChatUpsert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, in)
	return nil
}

func (f *fakeStore) MarkMessageProcessed(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return nil
}

type fakeEngine struct {
	mu     sync.Mutex
	events []rules.NormalizedEvent
}

func (e *fakeEngine) Check(ctx context.Context, event rules.NormalizedEvent, msgID *uuid.UUID) ([]rules.EvaluatedRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil, nil
}

func testLogger() *log.Logger { return log.New(io.Discard) }

func postWebhook(t *testing.T, in *Ingestor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/provider", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	in.ServeHTTP(rec, req)
	return rec
}

func TestIngestor_MessagesUpsert_PersistsAndInvokesEngine(t *testing.T) {
	fs := newFakeStore()
	engine := &fakeEngine{}
	in := New(fs, engine, "default", testLogger())

	body := `{
		"event": "messages.upsert",
		"instance": "default",
		"data": {
			"key": {"remoteJid": "123@s.whatsapp.net", "fromMe": false, "id": "m1"},
			"message": {"conversation": "Goodnight!"},
			"pushName": "Alice"
		}
	}`

	rec := postWebhook(t, in, body)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, fs.events, 1)
	require.Len(t, fs.messages, 1)
	assert.Equal(t, "Goodnight!", fs.messages[0].Text)
	assert.Equal(t, "123@s.whatsapp.net", fs.messages[0].ChatID)

	require.Len(t, fs.chats, 1)
	assert.Equal(t, "123@s.whatsapp.net", fs.chats[0].ID)

	require.Len(t, engine.events, 1)
	assert.Equal(t, "MESSAGES_UPSERT", engine.events[0].EventKind)
	assert.Equal(t, "Goodnight!", engine.events[0].Text)

	require.Len(t, fs.marked, 1)
}

func TestIngestor_MessagesUpsert_SelfSentSkipsMessageAndEngine(t *testing.T) {
	fs := newFakeStore()
	engine := &fakeEngine{}
	in := New(fs, engine, "default", testLogger())

	body := `{
		"event": "MESSAGES_UPSERT",
		"instance": "default",
		"data": {
			"key": {"remoteJid": "123@s.whatsapp.net", "fromMe": true, "id": "m2"},
			"message": {"conversation": "I am typing this myself"}
		}
	}`

	rec := postWebhook(t, in, body)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, fs.events, 1)
	assert.Empty(t, fs.messages)
	assert.Empty(t, engine.events)
	assert.Empty(t, fs.marked)
}

func TestIngestor_MessagesUpsert_DuplicateProviderIDSkipsSecondInsert(t *testing.T) {
	fs := newFakeStore()
	engine := &fakeEngine{}
	in := New(fs, engine, "default", testLogger())

	body := `{
		"event": "messages.upsert",
		"instance": "default",
		"data": {
			"key": {"remoteJid": "123@s.whatsapp.net", "fromMe": false, "id": "dup-1"},
			"message": {"conversation": "hello"}
		}
	}`

	postWebhook(t, in, body)
	postWebhook(t, in, body)

	assert.Len(t, fs.events, 2, "event log always writes, regardless of dedup")
	assert.Len(t, fs.messages, 1, "message row written exactly once across duplicate delivery")
	assert.Len(t, engine.events, 1, "engine invoked exactly once, on the first delivery")
}

func TestIngestor_MessagesUpsert_EmptyTextSkipsFurtherProcessing(t *testing.T) {
	fs := newFakeStore()
	engine := &fakeEngine{}
	in := New(fs, engine, "default", testLogger())

	body := `{
		"event": "messages.upsert",
		"instance": "default",
		"data": {
			"key": {"remoteJid": "123@s.whatsapp.net", "fromMe": false, "id": "m3"},
			"message": {}
		}
	}`

	postWebhook(t, in, body)

	assert.Len(t, fs.events, 1)
	assert.Empty(t, fs.messages)
	assert.Empty(t, engine.events)
}

func TestIngestor_MessagesUpsert_ExtractsFromExtendedTextMessage(t *testing.T) {
	fs := newFakeStore()
	engine := &fakeEngine{}
	in := New(fs, engine, "default", testLogger())

	body := `{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "123@s.whatsapp.net", "fromMe": false, "id": "m4"},
			"message": {"extendedTextMessage": {"text": "quoted reply text"}}
		}
	}`

	postWebhook(t, in, body)

	require.Len(t, fs.messages, 1)
	assert.Equal(t, "quoted reply text", fs.messages[0].Text)
}

func TestIngestor_MessagesUpsert_ExtractsFromMediaCaptions(t *testing.T) {
	fs := newFakeStore()
	engine := &fakeEngine{}
	in := New(fs, engine, "default", testLogger())

	body := `{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "123@s.whatsapp.net", "fromMe": false, "id": "m5"},
			"message": {"imageMessage": {"caption": "look at this"}}
		}
	}`

	postWebhook(t, in, body)

	require.Len(t, fs.messages, 1)
	assert.Equal(t, "look at this", fs.messages[0].Text)
}

func TestIngestor_NonMessageEvent_LogsAndInvokesEngineWithEmptyText(t *testing.T) {
	fs := newFakeStore()
	engine := &fakeEngine{}
	in := New(fs, engine, "default", testLogger())

	body := `{"event": "connection.update", "instance": "default", "data": {"state": "open"}}`

	rec := postWebhook(t, in, body)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, fs.events, 1)
	assert.Equal(t, "CONNECTION_UPDATE", fs.events[0].EventKind)
	assert.Empty(t, fs.messages)

	require.Len(t, engine.events, 1)
	assert.Equal(t, "CONNECTION_UPDATE", engine.events[0].EventKind)
	assert.Empty(t, engine.events[0].Text)
}

func TestIngestor_AlwaysReturns200EvenOnMalformedBody(t *testing.T) {
	fs := newFakeStore()
	engine := &fakeEngine{}
	in := New(fs, engine, "default", testLogger())

	rec := postWebhook(t, in, `{not valid json`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fs.events)
}

func TestIngestor_RejectsNonPostMethod(t *testing.T) {
	fs := newFakeStore()
	engine := &fakeEngine{}
	in := New(fs, engine, "default", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/webhook/provider", nil)
	rec := httptest.NewRecorder()
	in.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNormalizeEventKind(t *testing.T) {
	assert.Equal(t, "MESSAGES_UPSERT", normalizeEventKind("messages.upsert"))
	assert.Equal(t, "MESSAGES_UPSERT", normalizeEventKind("MESSAGES_UPSERT"))
	assert.Equal(t, "CONNECTION_UPDATE", normalizeEventKind("connection.update"))
}

func TestExtractText_PrefersConversationOverOtherFields(t *testing.T) {
	m := messageContent{
		Conversation:        "plain text",
		ExtendedTextMessage: &extendedTextMessage{Text: "quoted text"},
	}
	assert.Equal(t, "plain text", extractText(m))
}

func TestTruncateSummary(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "a"
	}
	got := truncateSummary(long)
	assert.Len(t, []rune(got), maxSummaryChars)
}

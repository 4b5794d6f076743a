// Package webhook implements the gateway's single inbound HTTP endpoint:
// the provider posts every event it sees here, regardless of kind, and the
// handler decides what (if anything) reaches the Rule Engine.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/chatid"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/rules"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/store"
)

const (
	kindMessagesUpsert = "MESSAGES_UPSERT"
	maxSummaryChars    = 120
)

// Engine is the subset of *rules.Engine the ingestor needs.
type Engine interface {
	Check(ctx context.Context, event rules.NormalizedEvent, msgID *uuid.UUID) ([]rules.EvaluatedRule, error)
}

// EventStore is the subset of *store.Store the ingestor needs.
type EventStore interface {
	InsertEvent(ctx context.Context, in store.EventLogInsert) (uuid.UUID, error)
	InsertMessage(ctx context.Context, in store.MessageInsert) (id uuid.UUID, inserted bool, err error)
	UpsertChat(ctx context.Context, in store.ChatUpsert) error
	MarkMessageProcessed(ctx context.Context, id uuid.UUID) error
}

// Ingestor handles POST /webhook/provider.
type Ingestor struct {
	store    EventStore
	engine   Engine
	instance string
	logger   *log.Logger
}

// New builds an Ingestor.
func New(s EventStore, engine Engine, instance string, logger *log.Logger) *Ingestor {
	return &Ingestor{store: s, engine: engine, instance: instance, logger: logger}
}

// envelope is the provider's outer webhook shape: {event, instance, data}.
type envelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// messageUpsertData is the MESSAGES_UPSERT payload shape this handler cares
// about; the provider sends considerably more, all of which is preserved
// verbatim in the event log's raw_payload.
type messageUpsertData struct {
	Key     messageKey     `json:"key"`
	Message messageContent `json:"message"`
	PushName string        `json:"pushName"`
}

type messageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type messageContent struct {
	Conversation        string               `json:"conversation"`
	ExtendedTextMessage *extendedTextMessage `json:"extendedTextMessage"`
	ImageMessage        *captionedMessage    `json:"imageMessage"`
	VideoMessage        *captionedMessage    `json:"videoMessage"`
}

type extendedTextMessage struct {
	Text string `json:"text"`
}

type captionedMessage struct {
	Caption string `json:"caption"`
}

func extractText(m messageContent) string {
	if m.Conversation != "" {
		return m.Conversation
	}
	if m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "" {
		return m.ExtendedTextMessage.Text
	}
	if m.ImageMessage != nil && m.ImageMessage.Caption != "" {
		return m.ImageMessage.Caption
	}
	if m.VideoMessage != nil && m.VideoMessage.Caption != "" {
		return m.VideoMessage.Caption
	}
	return ""
}

// normalizeEventKind replaces '.' with '_' and upper-cases, so
// "messages.upsert" and "MESSAGES_UPSERT" compare equal.
func normalizeEventKind(raw string) string {
	return strings.ToUpper(strings.ReplaceAll(raw, ".", "_"))
}

func truncateSummary(s string) string {
	r := []rune(s)
	if len(r) > maxSummaryChars {
		return string(r[:maxSummaryChars])
	}
	return s
}

// ServeHTTP implements POST /webhook/provider. Every POST is answered 200:
// the upstream provider has no business retrying an event the gateway has
// already logged, even when downstream processing failed. Any other method
// is answered 405.
func (in *Ingestor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body := r.Body
	defer body.Close()

	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		in.logger.Warn("webhook: failed to decode envelope", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	in.handleEnvelope(r.Context(), env)
	w.WriteHeader(http.StatusOK)
}

func (in *Ingestor) handleEnvelope(ctx context.Context, env envelope) {
	kind := normalizeEventKind(env.Event)
	instance := env.Instance
	if instance == "" {
		instance = in.instance
	}

	rawPayload, err := json.Marshal(env)
	if err != nil {
		in.logger.Error("webhook: marshal raw payload for event log", "error", err)
		rawPayload = nil
	}

	switch kind {
	case kindMessagesUpsert:
		in.handleMessageUpsert(ctx, instance, env.Data, rawPayload)
	default:
		in.handleOther(ctx, kind, instance, rawPayload)
	}
}

func (in *Ingestor) handleMessageUpsert(ctx context.Context, instance string, data json.RawMessage, rawPayload []byte) {
	var msg messageUpsertData
	if err := json.Unmarshal(data, &msg); err != nil {
		in.logger.Warn("webhook: malformed messages.upsert payload", "error", err)
		in.logEvent(ctx, kindMessagesUpsert, instance, nil, nil, "malformed payload", rawPayload)
		return
	}

	chatID := msg.Key.RemoteJID
	senderID := msg.Key.RemoteJID

	summary := truncateSummary(extractText(msg.Message))
	if msg.Key.FromMe {
		summary = "[sent] " + summary
	}
	in.logEvent(ctx, kindMessagesUpsert, instance, strPtr(chatID), strPtr(senderID), summary, rawPayload)

	if msg.Key.FromMe {
		return
	}

	text := extractText(msg.Message)
	if text == "" {
		return
	}

	var providerMsgID *string
	if msg.Key.ID != "" {
		providerMsgID = strPtr(msg.Key.ID)
	}

	msgRowID, inserted, err := in.store.InsertMessage(ctx, store.MessageInsert{
		ProviderMessageID: providerMsgID,
		ChatID:            chatID,
		SenderID:          senderID,
		SenderDisplayName: msg.PushName,
		Text:              text,
		Kind:              kindMessagesUpsert,
		RawPayload:        rawPayload,
	})
	if err != nil {
		in.logger.Error("webhook: insert message failed", "error", err)
		return
	}
	if !inserted {
		in.logger.Debug("webhook: duplicate message skipped", "provider_message_id", providerMsgID)
		return
	}

	if err := in.store.UpsertChat(ctx, store.ChatUpsert{
		ID:             chatID,
		Kind:           string(chatid.KindFromID(chatID)),
		DisplayName:    msg.PushName,
		LastActivityAt: time.Now(),
	}); err != nil {
		in.logger.Error("webhook: upsert chat failed", "chat_id", chatID, "error", err)
	}

	event := rules.NormalizedEvent{
		EventKind:         kindMessagesUpsert,
		ChatID:            chatID,
		ChatKind:          string(chatid.KindFromID(chatID)),
		SenderID:          senderID,
		SenderName:        msg.PushName,
		Text:              text,
		ProviderMessageID: providerMsgID,
	}

	if _, err := in.engine.Check(ctx, event, &msgRowID); err != nil {
		in.logger.Error("webhook: rule engine check failed", "error", err)
	}

	if err := in.store.MarkMessageProcessed(ctx, msgRowID); err != nil {
		in.logger.Error("webhook: mark message processed failed", "message_id", msgRowID, "error", err)
	}
}

func (in *Ingestor) handleOther(ctx context.Context, kind, instance string, rawPayload []byte) {
	in.logEvent(ctx, kind, instance, nil, nil, "", rawPayload)

	event := rules.NormalizedEvent{
		EventKind: kind,
	}
	if _, err := in.engine.Check(ctx, event, nil); err != nil {
		in.logger.Error("webhook: rule engine check failed", "kind", kind, "error", err)
	}
}

func (in *Ingestor) logEvent(ctx context.Context, kind, instance string, chatID, senderID *string, summary string, rawPayload []byte) {
	if _, err := in.store.InsertEvent(ctx, store.EventLogInsert{
		EventKind:    kind,
		InstanceName: instance,
		ChatID:       chatID,
		SenderID:     senderID,
		Summary:      summary,
		RawPayload:   rawPayload,
	}); err != nil {
		in.logger.Error("webhook: insert event log entry failed", "kind", kind, "error", err)
	}
}

func strPtr(s string) *string { return &s }

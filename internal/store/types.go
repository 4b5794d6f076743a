package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/chatid"
)

// ChatKind distinguishes group from direct chats.
type ChatKind = chatid.Kind

const (
	ChatKindGroup  = chatid.Group
	ChatKindDirect = chatid.Direct
)

// ChatKindFromID derives a Chat's kind from its id suffix.
func ChatKindFromID(id string) ChatKind {
	return chatid.KindFromID(id)
}

// HasKnownSuffix reports whether id carries one of the recognised chat-id
// suffixes, the same suffixes SyncReconcile's DELETE statement checks in SQL
// to decide what is safe to delete.
func HasKnownSuffix(id string) bool {
	return chatid.HasKnownSuffix(id)
}

// Chat is the persisted representation of a chat.
type Chat struct {
	ID             string     `db:"id"`
	Kind           string     `db:"kind"`
	DisplayName    string     `db:"display_name"`
	PhoneNumber    *string    `db:"phone_number"`
	Enabled        bool       `db:"enabled"`
	LastActivityAt *time.Time `db:"last_activity_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// ChatUpsert is the write-side shape for UpsertChat.
type ChatUpsert struct {
	ID             string
	Kind           string
	DisplayName    string
	PhoneNumber    *string
	LastActivityAt time.Time
}

// ChatFilter narrows ListChats.
type ChatFilter struct {
	Kind    string // "" = any
	Enabled *bool  // nil = any
}

// Message is the persisted representation of an inbound message.
type Message struct {
	ID                 uuid.UUID `db:"id"`
	ProviderMessageID  *string   `db:"provider_message_id"`
	ChatID             string    `db:"chat_id"`
	SenderID           string    `db:"sender_id"`
	SenderDisplayName  string    `db:"sender_display_name"`
	Text               string    `db:"text"`
	Kind               string    `db:"kind"`
	RawPayload         []byte    `db:"raw_payload"`
	ReceivedAt         time.Time `db:"received_at"`
	Processed          bool      `db:"processed"`
}

// MessageInsert is the write-side shape for InsertMessage.
type MessageInsert struct {
	ProviderMessageID *string
	ChatID            string
	SenderID          string
	SenderDisplayName string
	Text              string
	Kind              string
	RawPayload        []byte
}

// MessageFilter narrows ListMessages.
type MessageFilter struct {
	ChatID string // "" = any
}

// Page is a shared page/limit cursor for the three list_* log operations.
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalized() (limit, offset int) {
	limit = p.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// RuleSetRow is the persisted singleton rule set row.
type RuleSetRow struct {
	YAML      string    `db:"yaml"`
	Version   int64     `db:"version"`
	UpdatedAt time.Time `db:"updated_at"`
}

// RuleFire is the append-only record of one rule evaluating to a match.
type RuleFire struct {
	ID            uuid.UUID  `db:"id"`
	RuleID        string     `db:"rule_id"`
	RuleName      string     `db:"rule_name"`
	MessageID     *uuid.UUID `db:"message_id"`
	ChatID        string     `db:"chat_id"`
	SenderID      string     `db:"sender_id"`
	MatchedText   string     `db:"matched_text"`
	ActionResults []byte     `db:"action_results"` // JSON-encoded []ActionResult
	Success       bool       `db:"success"`
	ErrorMessage  string     `db:"error_message"`
	FiredAt       time.Time  `db:"fired_at"`
}

// RuleFireFilter narrows ListRuleFires.
type RuleFireFilter struct {
	RuleID string // "" = any
}

// EventLogEntry is the append-only record of one webhook invocation.
type EventLogEntry struct {
	ID           uuid.UUID `db:"id"`
	EventKind    string    `db:"event_kind"`
	InstanceName string    `db:"instance_name"`
	ChatID       *string   `db:"chat_id"`
	SenderID     *string   `db:"sender_id"`
	Summary      string    `db:"summary"`
	RawPayload   []byte    `db:"raw_payload"`
	ReceivedAt   time.Time `db:"received_at"`
}

// EventLogInsert is the write-side shape for InsertEvent.
type EventLogInsert struct {
	EventKind    string
	InstanceName string
	ChatID       *string
	SenderID     *string
	Summary      string
	RawPayload   []byte
}

// EventLogFilter narrows ListEvents.
type EventLogFilter struct {
	EventKind string // "" = any
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

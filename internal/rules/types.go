// Package rules implements the Rule Engine: YAML rule-set
// parsing and validation, priority-ordered matching, cooldown enforcement,
// action dispatch with partial-failure accounting, and rule-fire recording.
package rules

// Document is the top-level YAML document an operator authors.
type Document struct {
	Rules []Rule `yaml:"rules"`
}

// Rule is one entry of the operator-authored rule set.
type Rule struct {
	ID              string      `yaml:"id"`
	Name            string      `yaml:"name"`
	Enabled         *bool       `yaml:"enabled,omitempty"`
	Priority        int         `yaml:"priority"`
	StopOnMatch     *bool       `yaml:"stop_on_match,omitempty"`
	Match           MatchClause `yaml:"match"`
	Actions         []Action    `yaml:"actions"`
	CooldownSeconds int         `yaml:"cooldown_seconds,omitempty"`
}

// IsEnabled defaults to true when unset.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// ShouldStopOnMatch defaults to true when unset.
func (r Rule) ShouldStopOnMatch() bool {
	return r.StopOnMatch == nil || *r.StopOnMatch
}

// MatchClause is the optional set of conditions a rule evaluates against a
// normalised event.
type MatchClause struct {
	Events []string     `yaml:"events,omitempty"`
	Chat   ChatMatch    `yaml:"chat,omitempty"`
	Sender SenderMatch  `yaml:"sender,omitempty"`
	Text   *TextMatch   `yaml:"text,omitempty"`
}

// ChatMatch narrows by chat kind and/or explicit chat id list.
type ChatMatch struct {
	Kind string   `yaml:"kind,omitempty"` // "any" | "group" | "direct" | ""
	IDs  []string `yaml:"ids,omitempty"`
}

// SenderMatch narrows by explicit sender id and/or bare numeric part.
type SenderMatch struct {
	IDs     []string `yaml:"ids,omitempty"`
	Numbers []string `yaml:"numbers,omitempty"`
}

// TextMatchMode enumerates the three supported text-matching strategies.
type TextMatchMode string

const (
	TextContains   TextMatchMode = "contains"
	TextStartsWith TextMatchMode = "starts_with"
	TextRegex      TextMatchMode = "regex"
)

// TextMatch narrows by message text.
type TextMatch struct {
	Mode     TextMatchMode `yaml:"mode"`
	Patterns []string      `yaml:"patterns"`
}

// ActionType enumerates the two supported action kinds.
type ActionType string

const (
	ActionHAService     ActionType = "ha_service"
	ActionReplyWhatsApp ActionType = "reply_whatsapp"
)

// Action is one ordered step of a rule's action list.
type Action struct {
	Type ActionType `yaml:"type"`

	// ha_service
	Service string                 `yaml:"service,omitempty"`
	Target  map[string]interface{} `yaml:"target,omitempty"`
	Data    map[string]interface{} `yaml:"data,omitempty"`

	// reply_whatsapp
	Text string `yaml:"text,omitempty"`
}

// NormalizedEvent is the Rule Engine's sole input, built by the Webhook
// Ingestor (or the test_message API path) from a raw provider payload.
type NormalizedEvent struct {
	EventKind         string
	ChatID            string
	ChatKind          string // "group" | "direct"
	SenderID          string
	SenderName        string
	Text              string
	ProviderMessageID *string
}

// ActionResult records one action's outcome within a rule fire.
type ActionResult struct {
	Type    ActionType `json:"type"`
	Success bool       `json:"success"`
	Detail  string     `json:"detail"`
	Error   string      `json:"error,omitempty"`
}

// EvaluatedRule is one rule's outcome against a single event, returned by
// both the live dispatch path and the test_message dry-run path.
type EvaluatedRule struct {
	RuleID  string `json:"rule_id"`
	Name    string `json:"name"`
	Matched bool   `json:"matched"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}

// ActionPreview is a human-readable description of an action the test_message
// path would have executed, had it run for real.
type ActionPreview struct {
	RuleID      string `json:"rule_id"`
	ActionIndex int    `json:"action_index"`
	Description string `json:"description"`
}

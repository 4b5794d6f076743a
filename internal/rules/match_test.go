package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestMatchRule_EventsFilter(t *testing.T) {
	rule := Rule{Match: MatchClause{Events: []string{"MESSAGES_UPSERT"}}}
	assert.True(t, matchRule(rule, NormalizedEvent{EventKind: "MESSAGES_UPSERT"}))
	assert.False(t, matchRule(rule, NormalizedEvent{EventKind: "PRESENCE_UPDATE"}))
}

func TestMatchRule_EventsFilterNormalizesDottedConvention(t *testing.T) {
	rule := Rule{Match: MatchClause{Events: []string{"messages.upsert"}}}
	assert.True(t, matchRule(rule, NormalizedEvent{EventKind: "MESSAGES_UPSERT"}))

	ruleUnderscored := Rule{Match: MatchClause{Events: []string{"MESSAGES_UPSERT"}}}
	assert.True(t, matchRule(ruleUnderscored, NormalizedEvent{EventKind: "messages.upsert"}))
}

func TestMatchRule_NoConditionsMatchesEverything(t *testing.T) {
	rule := Rule{}
	assert.True(t, matchRule(rule, NormalizedEvent{EventKind: "ANYTHING"}))
}

func TestMatchRule_ChatKind(t *testing.T) {
	rule := Rule{Match: MatchClause{Chat: ChatMatch{Kind: "group"}}}
	assert.True(t, matchRule(rule, NormalizedEvent{ChatKind: "group"}))
	assert.False(t, matchRule(rule, NormalizedEvent{ChatKind: "direct"}))

	any := Rule{Match: MatchClause{Chat: ChatMatch{Kind: "any"}}}
	assert.True(t, matchRule(any, NormalizedEvent{ChatKind: "direct"}))
}

func TestMatchRule_ChatIDs(t *testing.T) {
	rule := Rule{Match: MatchClause{Chat: ChatMatch{IDs: []string{"a@g.us", "b@g.us"}}}}
	assert.True(t, matchRule(rule, NormalizedEvent{ChatID: "a@g.us"}))
	assert.False(t, matchRule(rule, NormalizedEvent{ChatID: "c@g.us"}))
}

func TestMatchRule_SenderIDsAndNumbersAreConjunctive(t *testing.T) {
	rule := Rule{Match: MatchClause{Sender: SenderMatch{
		IDs:     []string{"491234567@s.whatsapp.net"},
		Numbers: []string{"491234567"},
	}}}
	assert.True(t, matchRule(rule, NormalizedEvent{SenderID: "491234567@s.whatsapp.net"}))

	// id matches but number doesn't belong to a *different* configured set
	ruleMismatch := Rule{Match: MatchClause{Sender: SenderMatch{
		IDs:     []string{"491234567@s.whatsapp.net"},
		Numbers: []string{"999999999"},
	}}}
	assert.False(t, matchRule(ruleMismatch, NormalizedEvent{SenderID: "491234567@s.whatsapp.net"}))
}

func TestMatchRule_TextContainsCaseInsensitiveTrims(t *testing.T) {
	rule := Rule{Match: MatchClause{Text: &TextMatch{Mode: TextContains, Patterns: []string{"goodnight"}}}}
	assert.True(t, matchRule(rule, NormalizedEvent{Text: "  Say GOODNIGHT now  "}))
	assert.False(t, matchRule(rule, NormalizedEvent{Text: "good morning"}))
	assert.False(t, matchRule(rule, NormalizedEvent{Text: "   "}))
}

func TestMatchRule_TextStartsWith(t *testing.T) {
	rule := Rule{Match: MatchClause{Text: &TextMatch{Mode: TextStartsWith, Patterns: []string{"/help"}}}}
	assert.True(t, matchRule(rule, NormalizedEvent{Text: "/HELP me please"}))
	assert.False(t, matchRule(rule, NormalizedEvent{Text: "please /help"}))
}

func TestMatchRule_TextRegexCaseInsensitive(t *testing.T) {
	rule := Rule{Match: MatchClause{Text: &TextMatch{Mode: TextRegex, Patterns: []string{`^ping\s*\d*$`}}}}
	assert.True(t, matchRule(rule, NormalizedEvent{Text: "PING 42"}))
	assert.False(t, matchRule(rule, NormalizedEvent{Text: "pingpong"}))
}

func TestRule_DefaultsEnabledAndStopOnMatch(t *testing.T) {
	r := Rule{}
	assert.True(t, r.IsEnabled())
	assert.True(t, r.ShouldStopOnMatch())

	r2 := Rule{Enabled: boolPtr(false), StopOnMatch: boolPtr(false)}
	assert.False(t, r2.IsEnabled())
	assert.False(t, r2.ShouldStopOnMatch())
}

func TestNumericPart(t *testing.T) {
	assert.Equal(t, "491234567", numericPart("491234567@s.whatsapp.net"))
	assert.Equal(t, "491234567", numericPart("491234567"))
}

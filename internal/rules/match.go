package rules

import (
	"regexp"
	"strings"
)

// regexpCompile compiles a regex pattern case-insensitively.
func regexpCompile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// asciiToLower lowercases only ASCII letters, leaving everything else
// untouched, so text matching doesn't vary with the operating system's
// locale. A locale-aware fold would need to be an explicit opt-in; this
// implementation doesn't provide one.
func asciiToLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// matchRule reports whether rule matches event.
func matchRule(rule Rule, event NormalizedEvent) bool {
	if len(rule.Match.Events) > 0 && !containsEventKind(rule.Match.Events, event.EventKind) {
		return false
	}

	if rule.Match.Chat.Kind != "" && rule.Match.Chat.Kind != "any" {
		if rule.Match.Chat.Kind != event.ChatKind {
			return false
		}
	}
	if len(rule.Match.Chat.IDs) > 0 && !contains(rule.Match.Chat.IDs, event.ChatID) {
		return false
	}

	if len(rule.Match.Sender.IDs) > 0 && !contains(rule.Match.Sender.IDs, event.SenderID) {
		return false
	}
	if len(rule.Match.Sender.Numbers) > 0 {
		number := numericPart(event.SenderID)
		if !contains(rule.Match.Sender.Numbers, number) {
			return false
		}
	}

	if rule.Match.Text != nil {
		if !matchText(*rule.Match.Text, event.Text) {
			return false
		}
	}

	return true
}

func matchText(t TextMatch, text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	switch t.Mode {
	case TextContains:
		lower := asciiToLower(trimmed)
		for _, p := range t.Patterns {
			if strings.Contains(lower, asciiToLower(strings.TrimSpace(p))) {
				return true
			}
		}
	case TextStartsWith:
		lower := asciiToLower(trimmed)
		for _, p := range t.Patterns {
			if strings.HasPrefix(lower, asciiToLower(strings.TrimSpace(p))) {
				return true
			}
		}
	case TextRegex:
		for _, p := range t.Patterns {
			re, err := regexpCompile(p)
			if err != nil {
				continue
			}
			if re.MatchString(text) {
				return true
			}
		}
	}
	return false
}

// numericPart returns everything before "@" in a chat/sender id.
func numericPart(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		return id[:i]
	}
	return id
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// normalizeEventKind folds the dotted and underscored event-kind
// conventions onto the same canonical form ("messages.upsert" and
// "MESSAGES_UPSERT" both become "MESSAGES_UPSERT"), matching
// webhook.normalizeEventKind so a rule's configured events list compares
// equal to an incoming event regardless of which convention it was
// authored in.
func normalizeEventKind(raw string) string {
	return strings.ToUpper(strings.ReplaceAll(raw, ".", "_"))
}

func containsEventKind(haystack []string, needle string) bool {
	needle = normalizeEventKind(needle)
	for _, h := range haystack {
		if normalizeEventKind(h) == needle {
			return true
		}
	}
	return false
}

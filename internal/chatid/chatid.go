// Package chatid derives chat kind from a WhatsApp-protocol chat id's
// suffix. It has no dependencies, so every other package (store, rules,
// webhook) can share one definition of "group" vs "direct" without an
// import cycle.
package chatid

// Kind is one of "group" or "direct".
type Kind string

const (
	Group  Kind = "group"
	Direct Kind = "direct"
)

// KindFromID derives a chat's kind from its id suffix: "@g.us" is a group,
// anything else (including the recognised direct suffixes and anything
// unrecognised) is treated as direct.
func KindFromID(id string) Kind {
	if hasSuffix(id, "@g.us") {
		return Group
	}
	return Direct
}

// HasKnownSuffix reports whether id carries one of the three recognised
// chat-id suffixes. Sync reconciliation only deletes chats whose id lacks
// one of these.
func HasKnownSuffix(id string) bool {
	return hasSuffix(id, "@g.us") || hasSuffix(id, "@s.whatsapp.net") || hasSuffix(id, "@c.us")
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

package rules

import (
	"fmt"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/orchestrator"
)

// TestResult is the shape POST /api/rules/test returns.
type TestResult struct {
	MatchedRules  []EvaluatedRule `json:"matched_rules"`
	ActionsPreview []ActionPreview `json:"actions_preview"`
}

// TestMessage runs matching against the cached rule set for a synthetic
// event WITHOUT executing actions, touching cooldowns, or persisting
// anything. It previews what a live event would do without ever mutating
// state.
func (e *Engine) TestMessage(event NormalizedEvent) TestResult {
	cached := e.cache.Load()

	var (
		evaluated []EvaluatedRule
		preview   []ActionPreview
	)

	for _, rule := range cached.rules {
		if len(rule.Match.Events) > 0 && !containsEventKind(rule.Match.Events, event.EventKind) {
			continue
		}

		if !matchRule(rule, event) {
			evaluated = append(evaluated, EvaluatedRule{RuleID: rule.ID, Name: rule.Name, Matched: false})
			continue
		}

		evaluated = append(evaluated, EvaluatedRule{RuleID: rule.ID, Name: rule.Name, Matched: true})
		for i, action := range rule.Actions {
			preview = append(preview, ActionPreview{
				RuleID:      rule.ID,
				ActionIndex: i,
				Description: describeAction(action, e.allowList),
			})
		}

		if rule.ShouldStopOnMatch() {
			break
		}
	}

	return TestResult{MatchedRules: evaluated, ActionsPreview: preview}
}

func describeAction(a Action, allowList []string) string {
	switch a.Type {
	case ActionHAService:
		if err := orchestrator.CheckAllowList(allowList, a.Service); err != nil {
			return fmt.Sprintf("would call orchestrator service %q (REFUSED: %v)", a.Service, err)
		}
		return fmt.Sprintf("would call orchestrator service %q with target=%v data=%v", a.Service, a.Target, a.Data)
	case ActionReplyWhatsApp:
		return fmt.Sprintf("would reply with text %q", a.Text)
	default:
		return fmt.Sprintf("unknown action type %q", a.Type)
	}
}

package rules

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ValidationError is a single structured complaint against a rule set:
// a field path, its source line, and a human-readable message.
type ValidationError struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (line %d)", e.Path, e.Message, e.Line)
	}
	return fmt.Sprintf("%s (line %d)", e.Message, e.Line)
}

// ValidationResult is the shape returned by validate_yaml and by the
// PUT /api/rules and POST /api/rules/validate management endpoints.
type ValidationResult struct {
	Valid         bool              `json:"valid"`
	Errors        []ValidationError `json:"errors"`
	RuleCount     int               `json:"rule_count"`
	NormalizedYAML string          `json:"normalised_yaml,omitempty"`
}

var syntaxErrorLineRe = regexp.MustCompile(`line (\d+)`)

// ValidateYAML parses yamlText strictly and schema-validates the result.
// On a YAML syntax error it returns a single structured error with path
// "" and the best-effort line number. On schema
// violations it returns one ValidationError per violation. When valid, the
// result carries the round-tripped canonical YAML.
func ValidateYAML(yamlText string) ValidationResult {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(yamlText), &root); err != nil {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Path:    "",
				Line:    extractLine(err),
				Message: err.Error(),
			}},
		}
	}

	var doc Document
	// An empty document is valid and means zero rules.
	if len(root.Content) > 0 {
		if err := root.Decode(&doc); err != nil {
			return ValidationResult{
				Valid: false,
				Errors: []ValidationError{{
					Path:    "",
					Line:    extractLine(err),
					Message: err.Error(),
				}},
			}
		}
	}

	errs := validateSchema(doc, ruleLines(&root))
	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs, RuleCount: len(doc.Rules)}
	}

	normalized, err := yaml.Marshal(doc)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Message: fmt.Sprintf("failed to re-encode canonical yaml: %v", err)}},
		}
	}

	return ValidationResult{
		Valid:          true,
		RuleCount:      len(doc.Rules),
		NormalizedYAML: string(normalized),
	}
}

func extractLine(err error) int {
	m := syntaxErrorLineRe.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return 0
	}
	var line int
	_, _ = fmt.Sscanf(m[1], "%d", &line)
	return line
}

// ruleLines maps each rule's index (in document order) to its source line,
// by walking the parsed node tree for the top-level "rules" sequence. Used
// to attach line numbers to schema-validation errors.
func ruleLines(root *yaml.Node) []int {
	if len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if key.Value != "rules" {
			continue
		}
		seq := doc.Content[i+1]
		if seq.Kind != yaml.SequenceNode {
			return nil
		}
		lines := make([]int, len(seq.Content))
		for j, item := range seq.Content {
			lines[j] = item.Line
		}
		return lines
	}
	return nil
}

func validateSchema(doc Document, lines []int) []ValidationError {
	var errs []ValidationError
	seenIDs := make(map[string]bool, len(doc.Rules))

	lineFor := func(i int) int {
		if i < len(lines) {
			return lines[i]
		}
		return 0
	}

	for i, r := range doc.Rules {
		path := fmt.Sprintf("rules[%d]", i)
		line := lineFor(i)

		if r.ID == "" {
			errs = append(errs, ValidationError{Path: path + ".id", Line: line, Message: "rule id must not be empty"})
		} else if seenIDs[r.ID] {
			errs = append(errs, ValidationError{Path: path + ".id", Line: line, Message: fmt.Sprintf("duplicate rule id %q", r.ID)})
		} else {
			seenIDs[r.ID] = true
		}

		if r.Name == "" {
			errs = append(errs, ValidationError{Path: path + ".name", Line: line, Message: "rule name must not be empty"})
		}

		if len(r.Actions) == 0 {
			errs = append(errs, ValidationError{Path: path + ".actions", Line: line, Message: "at least one action is required"})
		}

		for j, a := range r.Actions {
			actionPath := fmt.Sprintf("%s.actions[%d]", path, j)
			switch a.Type {
			case ActionHAService:
				if a.Service == "" {
					errs = append(errs, ValidationError{Path: actionPath + ".service", Line: line, Message: "ha_service action requires a non-empty service"})
				}
			case ActionReplyWhatsApp:
				if a.Text == "" {
					errs = append(errs, ValidationError{Path: actionPath + ".text", Line: line, Message: "reply_whatsapp action requires a non-empty text"})
				}
			default:
				errs = append(errs, ValidationError{Path: actionPath + ".type", Line: line, Message: fmt.Sprintf("unknown action type %q", a.Type)})
			}
		}

		if r.Match.Text != nil {
			t := r.Match.Text
			switch t.Mode {
			case TextContains, TextStartsWith, TextRegex:
			default:
				errs = append(errs, ValidationError{Path: path + ".match.text.mode", Line: line, Message: fmt.Sprintf("unknown text match mode %q", t.Mode)})
			}
			if len(t.Patterns) == 0 {
				errs = append(errs, ValidationError{Path: path + ".match.text.patterns", Line: line, Message: "text match requires at least one pattern"})
			}
			if t.Mode == TextRegex {
				for _, p := range t.Patterns {
					if _, err := regexpCompile(p); err != nil {
						errs = append(errs, ValidationError{Path: path + ".match.text.patterns", Line: line, Message: fmt.Sprintf("invalid regex %q: %v", p, err)})
					}
				}
			}
		}
	}

	return errs
}

package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateYAML_EmptyDocumentIsValid(t *testing.T) {
	result := ValidateYAML("")
	assert.True(t, result.Valid)
	assert.Equal(t, 0, result.RuleCount)
}

func TestValidateYAML_SyntaxError(t *testing.T) {
	result := ValidateYAML("rules:\n  - id: [unterminated")
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "", result.Errors[0].Path)
}

func TestValidateYAML_MissingIDAndName(t *testing.T) {
	yamlText := `
rules:
  - priority: 10
    actions:
      - type: reply_whatsapp
        text: hi
`
	result := ValidateYAML(yamlText)
	require.False(t, result.Valid)

	var paths []string
	for _, e := range result.Errors {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "rules[0].id")
	assert.Contains(t, paths, "rules[0].name")
}

func TestValidateYAML_DuplicateIDs(t *testing.T) {
	yamlText := `
rules:
  - id: a
    name: First
    priority: 1
    actions: [{type: reply_whatsapp, text: hi}]
  - id: a
    name: Second
    priority: 2
    actions: [{type: reply_whatsapp, text: hi}]
`
	result := ValidateYAML(yamlText)
	require.False(t, result.Valid)
	found := false
	for _, e := range result.Errors {
		if e.Path == "rules[1].id" {
			found = true
		}
	}
	assert.True(t, found, "expected a duplicate-id error on the second rule")
}

func TestValidateYAML_NoActions(t *testing.T) {
	yamlText := `
rules:
  - id: a
    name: First
    priority: 1
    actions: []
`
	result := ValidateYAML(yamlText)
	require.False(t, result.Valid)
	assert.Equal(t, "rules[0].actions", result.Errors[0].Path)
}

func TestValidateYAML_HAServiceRequiresService(t *testing.T) {
	yamlText := `
rules:
  - id: a
    name: First
    priority: 1
    actions:
      - type: ha_service
`
	result := ValidateYAML(yamlText)
	require.False(t, result.Valid)
	assert.Equal(t, "rules[0].actions[0].service", result.Errors[0].Path)
}

func TestValidateYAML_ReplyRequiresText(t *testing.T) {
	yamlText := `
rules:
  - id: a
    name: First
    priority: 1
    actions:
      - type: reply_whatsapp
`
	result := ValidateYAML(yamlText)
	require.False(t, result.Valid)
	assert.Equal(t, "rules[0].actions[0].text", result.Errors[0].Path)
}

func TestValidateYAML_ValidRoundTrips(t *testing.T) {
	yamlText := `
rules:
  - id: goodnight
    name: Goodnight
    priority: 10
    match:
      events: ["MESSAGES_UPSERT"]
      text:
        mode: contains
        patterns: ["goodnight"]
    actions:
      - type: ha_service
        service: script.turn_on
        target:
          entity_id: script.goodnight
`
	result := ValidateYAML(yamlText)
	require.True(t, result.Valid, "%v", result.Errors)
	assert.Equal(t, 1, result.RuleCount)
	assert.NotEmpty(t, result.NormalizedYAML)

	// Re-validating the canonical form must parse identically.
	again := ValidateYAML(result.NormalizedYAML)
	require.True(t, again.Valid)
	assert.Equal(t, 1, again.RuleCount)
}

func TestValidateYAML_InvalidRegexPattern(t *testing.T) {
	yamlText := `
rules:
  - id: a
    name: First
    priority: 1
    match:
      text:
        mode: regex
        patterns: ["("]
    actions:
      - type: reply_whatsapp
        text: hi
`
	result := ValidateYAML(yamlText)
	require.False(t, result.Valid)
}

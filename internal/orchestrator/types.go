package orchestrator

// Script, Automation, and Entity are the orchestrator's catalogue shapes,
// trimmed to what the gateway surfaces to an operator.
type Script struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
}

type Automation struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	State    string `json:"state"`
}

type Entity struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// ServiceDetail describes one callable service's expected fields.
type ServiceDetail struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Fields      map[string]interface{} `json:"fields"`
}

// Status is the orchestrator's own health/version summary.
type Status struct {
	Version string `json:"version"`
	State   string `json:"state"`
}

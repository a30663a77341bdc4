package enums

import "fmt"

// Scenario tags why the requester needs the delivery.
type Scenario string

const (
	ScenarioTraveling Scenario = "traveling"
	ScenarioEvent     Scenario = "event"
	ScenarioUrgent    Scenario = "urgent"
)

var validScenarios = []Scenario{
	ScenarioTraveling,
	ScenarioEvent,
	ScenarioUrgent,
}

// IsValid reports whether the value is a known Scenario.
func (s Scenario) IsValid() bool {
	for _, candidate := range validScenarios {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseScenario converts raw input into a Scenario.
func ParseScenario(value string) (Scenario, error) {
	for _, candidate := range validScenarios {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scenario %q", value)
}

package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Stop is an extra drop-off point on a mission route.
type Stop struct {
	Location string   `json:"location"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	Note     *string  `json:"note,omitempty"`
}

// Stops is persisted as a jsonb array on missions.stops.
type Stops []Stop

func (s Stops) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	payload, err := json.Marshal([]Stop(s))
	if err != nil {
		return nil, fmt.Errorf("stops: marshal: %w", err)
	}
	return string(payload), nil
}

func (s *Stops) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = Stops{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("stops: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*s = Stops{}
		return nil
	}
	var decoded []Stop
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("stops: unmarshal: %w", err)
	}
	*s = decoded
	return nil
}

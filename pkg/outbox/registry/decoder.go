package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
)

// PayloadVersion is the envelope version every catalog payload is written at.
const PayloadVersion = 1

// ErrUnknownPayload reports a delivery whose type or version has no shape in
// the catalog.
var ErrUnknownPayload = errors.New("unknown event payload")

// Decoder rebuilds typed payloads on the consuming side with the same shapes
// and validation rules the relay applies before publishing.
type Decoder struct {
	shapes   map[enums.OutboxEventType]func() any
	validate *validator.Validate
}

func NewDecoder() *Decoder {
	d := &Decoder{
		shapes:   make(map[enums.OutboxEventType]func() any, len(catalog)),
		validate: validator.New(),
	}
	for _, desc := range catalog {
		d.shapes[desc.EventType] = desc.PayloadFactory
	}
	return d
}

// Decode returns a pointer to the payload struct registered for eventType.
func (d *Decoder) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	shape, ok := d.shapes[eventType]
	if !ok || version != PayloadVersion {
		return nil, fmt.Errorf("%w: %s@v%d", ErrUnknownPayload, eventType, version)
	}
	payload := shape()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	if err := d.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", eventType, err)
	}
	return payload, nil
}

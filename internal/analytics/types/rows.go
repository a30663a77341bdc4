package types

import (
	"bytes"
	"encoding/json"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// MissionEventRow mirrors the mission_events BigQuery schema. Money columns
// are integer paise.
type MissionEventRow struct {
	EventID     string             `bigquery:"event_id"`
	EventType   string             `bigquery:"event_type"`
	OccurredAt  time.Time          `bigquery:"occurred_at"`
	MissionID   string             `bigquery:"mission_id"`
	OfferID     *string            `bigquery:"offer_id"`
	RequesterID *string            `bigquery:"requester_id"`
	RunnerID    *string            `bigquery:"runner_id"`
	ActorID     *string            `bigquery:"actor_id"`
	Status      *string            `bigquery:"status"`
	Scenario    *string            `bigquery:"scenario"`
	Category    *string            `bigquery:"category"`
	Reason      *string            `bigquery:"reason"`
	AmountPaise *int64             `bigquery:"amount_paise"`
	IsBoosted   *bool              `bigquery:"is_boosted"`
	Payload     cbigquery.NullJSON `bigquery:"payload"`
}

// JSONColumn wraps a raw payload for a nullable JSON column. Blank input
// stores NULL.
func JSONColumn(raw json.RawMessage) cbigquery.NullJSON {
	if len(bytes.TrimSpace(raw)) == 0 {
		return cbigquery.NullJSON{}
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}
}

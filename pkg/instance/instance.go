package instance

import "github.com/angelmondragon/maiyom-backend/pkg/env"

// GetID names this process in logs. Heroku's DYNO wins over WORKER_ID.
func GetID() string {
	return env.First("local", "DYNO", "WORKER_ID")
}

package instance

import "os"

const defaultID = "local"

// GetID identifies the running process in logs. DYNO wins over WORKER_ID.
func GetID() string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return defaultID
}

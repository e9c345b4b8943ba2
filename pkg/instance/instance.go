package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

// ID identifies this process in logs and cron lock ownership. Platform
// provided identifiers win over the hostname.
func ID() string {
	for _, key := range []string{"CIVIC_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return fallbackID
}

package logging

import (
	"github.com/sirupsen/logrus"
)

// Operational returns the process-wide CLI-facing logger used by
// cmd/sandboxd for the one-line-per-event output described in spec §7
// ("orchestrator prints a one-line summary per failed sandbox"). It is
// distinct from the per-sandbox rotating child logs in logger.go: this
// logger is for the operator's terminal/journal, not the sandbox's own
// audit trail.
func Operational(jsonFormat bool) *logrus.Logger {
	log := logrus.New()
	if jsonFormat {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	log.SetLevel(logrus.InfoLevel)
	return log
}

// Package ffsimlog centralizes the one piece of global logging setup the
// CLI needs: turning a --log flag string into the process-wide logrus
// level, the way inference-sim/cmd/root.go does for its own --log flag.
// Package-level loggers elsewhere (costoracle, simulator) just call
// logrus.WithField directly; this package only owns the level switch.
package ffsimlog

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Configure parses level and sets it as logrus's global level. It also
// pins a text formatter with full timestamps, since the default formatter
// omits them and a batch CLI run benefits from knowing how long each pass
// took relative to the others.
func Configure(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("ffsimlog: %w", err)
	}

	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return nil
}

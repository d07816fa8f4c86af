// Package logging builds the process logger: a slog fan-out over console or
// file, OTel and GELF outputs, plus a zerolog adapter for the dispatcher.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath names the log file of a process started at sessionStart.
func LogFilePath(logsDir, service string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", service, sessionStart.Format("20060102_150405")),
	)
}

// Package logging configures the process-wide charmbracelet logger.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Init sets the default logger's level and prefix. Unknown levels fall back
// to info with a warning.
func Init(level, prefix string) {
	log.SetDefault(log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          prefix,
	}))

	level = strings.TrimSpace(level)
	if level == "" {
		log.SetLevel(log.InfoLevel)
		return
	}
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.SetLevel(log.InfoLevel)
		log.Warn("unknown LOG_LEVEL, using info", "value", level)
		return
	}
	log.SetLevel(lvl)
}

// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"path"
	"runtime"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Setup sets the log level and the text format used by the daemon. The
// level is any name logrus understands, e.g. "debug" or "warn".
func Setup(out io.Writer, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}

	log.SetLevel(lvl)
	log.SetOutput(out)
	log.SetReportCaller(true)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			_, filename := path.Split(f.File)
			return "", fmt.Sprintf("%20v:%-5d", filename, f.Line)
		},
	})
	return nil
}

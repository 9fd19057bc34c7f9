// Package logger configures the process-wide logrus logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Setup sets level and formatter. Unknown levels fall back to info.
func Setup(level string, json bool) {
	SetupTo(os.Stdout, level, json)
}

// SetupTo is Setup with an explicit output
func SetupTo(out io.Writer, level string, json bool) {
	logrus.SetOutput(out)

	if json {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

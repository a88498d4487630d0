// Package logging builds the logrus logger shared by the API and the consumer.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger at the given level. Development output is
// human-readable text; any other environment logs JSON.
func NewLogger(level, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if environment == "development" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// Package logging builds the logrus logger shared by all components.
//
// Components accept a logrus.FieldLogger in their constructor. When none is
// given they fall back to Nop.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/prasenjit/proxyboy/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a logger from the logging settings. An unknown level falls
// back to info.
func New(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "@timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	log.SetOutput(out)

	return log
}

// Nop returns a logger that discards everything
func Nop() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

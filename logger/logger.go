// Package logger holds the project-wide logrus logger.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/gruntwork-io/go-commons/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const projectName = "clicktrack"

var (
	mu            sync.Mutex
	projectLogger = newLogger()
)

// Options configures the project logger.
type Options struct {
	// Level is a logrus level name such as "debug" or "info".
	Level string `yaml:"level"`

	// File, when set, receives a copy of the log rotated by size.
	File string `yaml:"file"`

	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// GetProjectLogger returns an entry tagged with the project name.
func GetProjectLogger() *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	return projectLogger.WithField("name", projectName)
}

// Configure applies opts to the project logger.
func Configure(opts Options) error {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return errors.WithStackTrace(err)
		}
		level = parsed
	}

	var out io.Writer = os.Stderr
	if opts.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		})
	}

	mu.Lock()
	defer mu.Unlock()
	projectLogger.SetLevel(level)
	projectLogger.SetOutput(out)
	return nil
}

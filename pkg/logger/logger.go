// Package logger configures the process-wide logrus root once at
// startup: console plus optional rotating file output. Components get
// their own tagged entries via Component().
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config for log output.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // empty: console only
	MaxSize    int    // MB per file before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// Init applies the configuration to the logrus root. Called exactly
// once at process start.
func Init(config Config) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}

	logrus.SetOutput(io.MultiWriter(writers...))
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
	})
	return nil
}

// Component returns an entry tagged for one engine component.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}

func Debugf(format string, args ...interface{}) { logrus.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { logrus.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { logrus.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { logrus.Errorf(format, args...) }

// WithFields mirrors logrus.WithFields for call sites that want
// structured context without importing logrus directly.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return logrus.WithFields(fields)
}

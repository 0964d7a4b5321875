package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ivlev/swimprogress/internal/config"
)

// Setup configures the global logrus logger from the log section of the config.
// Console output goes to stderr; stdout carries command results.
func Setup(params config.LogConfig) {
	if params.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logrus.SetLevel(GetLevel(params.Level))

	if params.File == "" {
		logrus.SetOutput(os.Stderr)
		return
	}

	if !strings.HasSuffix(params.File, ".log") {
		params.File += ".log"
	}

	lumberJackLogger := &lumberjack.Logger{
		Filename:   params.File,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		Compress:   true,
	}

	if params.ToConsole {
		logrus.SetOutput(io.MultiWriter(os.Stderr, lumberJackLogger))
	} else {
		logrus.SetOutput(lumberJackLogger)
	}
}

func GetLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "error":
		return logrus.ErrorLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "trace":
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// App default configurations
var (
	ModName = "utils"
	log     = logrus.WithField(
		"module", ModName,
	)
	DefaultLoglvl    = logrus.InfoLevel
	DefaultLogOutput = os.Stdout
	DefaultFormater  = &logrus.TextFormatter{FullTimestamp: true}
)

// Select Log Level from string
func ParseLogLevel(lvl string) logrus.Level {
	switch lvl {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		log.Warnf("unknown log level %q, defaulting to info", lvl)
		return DefaultLoglvl
	}
}

// parse log output from string
func ParseLogOutput(out string) io.Writer {
	switch out {
	case "terminal":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		return DefaultLogOutput
	}
}

// parse Formatter from string
func ParseLogFormatter(format string) logrus.Formatter {
	switch format {
	case "text":
		return &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		return &logrus.JSONFormatter{}
	default:
		return DefaultFormater
	}
}

package config

import (
	"io"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/kvca-ops/enrolsync/pkg/utils/logging"
)

// Logger holds CLI flags for logging configuration
type Logger struct {
	level     string
	format    string
	output    string
	sentryDSN string
	sentryEnv string
}

// Flags returns CLI flags for logging configuration
func (x *Logger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Logging",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("ENROLSYNC_LOG_LEVEL"),
			Destination: &x.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Category:    "Logging",
			Usage:       "Log format (console or json)",
			Value:       "console",
			Sources:     cli.EnvVars("ENROLSYNC_LOG_FORMAT"),
			Destination: &x.format,
		},
		&cli.StringFlag{
			Name:        "log-output",
			Category:    "Logging",
			Usage:       "Log output destination (stdout, stderr or a file path)",
			Value:       "stdout",
			Sources:     cli.EnvVars("ENROLSYNC_LOG_OUTPUT"),
			Destination: &x.output,
		},
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Category:    "Logging",
			Usage:       "Sentry DSN for error-level log reporting",
			Sources:     cli.EnvVars("ENROLSYNC_SENTRY_DSN", "SENTRY_DSN"),
			Destination: &x.sentryDSN,
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Category:    "Logging",
			Usage:       "Sentry environment tag",
			Value:       "production",
			Sources:     cli.EnvVars("ENROLSYNC_SENTRY_ENV"),
			Destination: &x.sentryEnv,
		},
	}
}

// Configure builds the process-wide logger and installs it via
// logging.SetDefault. The returned closer flushes sentry and closes the log
// file, when either is in use.
func (x *Logger) Configure() (func(), error) {
	var level slog.Level
	switch x.level {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid log level", goerr.V("level", x.level))
	}

	var format logging.Format
	switch x.format {
	case "console", "":
		format = logging.FormatConsole
	case "json":
		format = logging.FormatJSON
	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid log format", goerr.V("format", x.format))
	}

	var w io.Writer
	var file *os.File
	switch x.output {
	case "stdout", "-", "":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(x.output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open log file", goerr.V("path", x.output))
		}
		w = f
		file = f
	}

	logger := logging.New(w, level, format)

	var flushSentry func()
	if x.sentryDSN != "" {
		flush, err := logging.InitSentry(x.sentryDSN, x.sentryEnv)
		if err != nil {
			if file != nil {
				_ = file.Close()
			}
			return nil, err
		}
		flushSentry = flush
		logger = slog.New(logging.WithSentry(logger.Handler()))
	}

	logging.SetDefault(logger)

	closer := func() {
		if flushSentry != nil {
			flushSentry()
		}
		if file != nil {
			_ = file.Close()
		}
	}
	return closer, nil
}

// LogValue renders the logging configuration for startup logs
func (x Logger) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("level", x.level),
		slog.String("format", x.format),
		slog.String("output", x.output),
		slog.Bool("sentry", x.sentryDSN != ""),
	)
}

package log

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// Host adds the local hostname to every entry. The node-check agent
	// runs on many nodes at once and its lines are told apart by host.
	Host bool
}

// ParseLevel maps a level name to a Level, case-insensitively, defaulting
// to info
func ParseLevel(s string) Level {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return l
	default:
		return InfoLevel
	}
}

func (l Level) toZerolog() zerolog.Level {
	level, err := zerolog.ParseLevel(string(l))
	if err != nil || l == "" {
		return zerolog.InfoLevel
	}
	return level
}

// Init configures the global logger. Output defaults to stderr since a
// launched application owns stdout.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.toZerolog())

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Host {
		if host, err := os.Hostname(); err == nil {
			ctx = ctx.Str("host", host)
		}
	}
	Logger = ctx.Logger()
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithJobID creates a child logger with job_id field
func WithJobID(jobID string) zerolog.Logger {
	return Logger.With().Str("job_id", jobID).Logger()
}

// ForJob creates a child logger with component and job_id fields
func ForJob(component, jobID string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("job_id", jobID).Logger()
}

// WithAttempt tags l with a run attempt number
func WithAttempt(l zerolog.Logger, attempt int) zerolog.Logger {
	return l.With().Int("attempt", attempt).Logger()
}

// WithNode tags l with a node name
func WithNode(l zerolog.Logger, node string) zerolog.Logger {
	return l.With().Str("node", node).Logger()
}

// WithDataset creates a child logger with dataset_id field
func WithDataset(id int) zerolog.Logger {
	return Logger.With().Int("dataset_id", id).Logger()
}

package logging

import (
	"io"
	"os"
	"strings"
)

// Config selects the level, encoding and destination of a Logger. It is read
// from the environment as part of the service configuration.
type Config struct {
	// Level is DEBUG, INFO, WARN, ERROR or FATAL. Empty lets the caller
	// pick a default for its environment.
	Level string `env:"LOG_LEVEL"`
	// Format is json or text.
	Format string `env:"LOG_FORMAT" envDefault:"json"`
	// Output is stdout, stderr or a file path opened for appending.
	Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Parse log level
	level := parseLevel(cfg.Level)

	// Get output writer
	output, err := getOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	return New(level, output).WithFormat(parseFormat(cfg.Format)), nil
}

// parseFormat maps a format name to Format, defaulting to JSON.
func parseFormat(format string) Format {
	if strings.EqualFold(format, string(TextFormat)) {
		return TextFormat
	}
	return JSONFormat
}

// parseLevel converts a string log level to LogLevel.
func parseLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// getOutput returns an io.Writer for the given output destination.
func getOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		// Treat as file path
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		return file, nil
	}
}

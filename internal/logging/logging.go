// Package logging provides structured logging utilities.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storage-cost/internal/errors"
)

// Service is attached to every entry written by the global logger
const Service = "storage-cost"

var (
	// Logger is the global logger instance
	Logger *zap.Logger

	// level backs the global logger so verbosity can change at runtime
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Config contains logging configuration
type Config struct {
	// Level is the minimum log level
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console)
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// Output is the output destination (stdout, stderr, file path)
	Output string `json:"output" yaml:"output" mapstructure:"output"`

	// Development adds stack traces to errors and panics on DPanic
	Development bool `json:"development" yaml:"development" mapstructure:"development"`
}

// DefaultConfig logs info and above to stderr in console format
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// Validate rejects unknown levels and formats
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return errors.Wrapf(errors.TypeConfig, err, "logging.level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "console", "json", "":
	default:
		return errors.Newf(errors.TypeConfig, "logging.format %q must be console or json", c.Format)
	}
	return nil
}

// Initialize replaces the global logger. On error the previous logger stays
// in place.
func Initialize(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	lvl, _ := zapcore.ParseLevel(cfg.Level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr", "":
		sink = zapcore.Lock(os.Stderr)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Wrapf(errors.TypeConfig, err, "opening log file %s", cfg.Output)
		}
		sink = zapcore.AddSync(file)
	}

	level.SetLevel(lvl)
	opts := []zap.Option{
		zap.AddCaller(),
		zap.Fields(zap.String("service", Service)),
	}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	Logger = zap.New(zapcore.NewCore(encoder, sink, level), opts...)
	return nil
}

// SetLevel changes the verbosity of the global logger and of every logger
// derived from it
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Sync flushes the logger
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Named returns a child of the global logger scoped to a component
func Named(component string) *zap.Logger {
	return Logger.Named(component)
}

// OrNamed returns l when set, otherwise a named child of the global logger
func OrNamed(l *zap.Logger, component string) *zap.Logger {
	if l != nil {
		return l
	}
	return Named(component)
}

func init() {
	_ = Initialize(DefaultConfig())
}

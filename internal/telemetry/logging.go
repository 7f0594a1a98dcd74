package telemetry

import (
	"fmt"
	"strings"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the level, encoding and sinks of the service logger.
type LogConfig struct {
	Level string
	// Format is "json" or "console". Empty means json.
	Format string
	// Output lists zap sink paths. Empty means stdout.
	Output  []string
	Service string
	Version string
}

// NewLogger creates a new OpenTelemetry-aware zap logger. Unknown levels fall
// back to info.
func NewLogger(cfg LogConfig) (*otelzap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		config.Encoding = "json"
	case "console":
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	config.OutputPaths = []string{"stdout"}
	if len(cfg.Output) > 0 {
		config.OutputPaths = cfg.Output
	}
	config.ErrorOutputPaths = []string{"stderr"}

	fields := map[string]interface{}{}
	if cfg.Service != "" {
		fields["service"] = cfg.Service
	}
	if cfg.Version != "" {
		fields["version"] = cfg.Version
	}
	config.InitialFields = fields

	zapLogger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return otelzap.New(zapLogger), nil
}

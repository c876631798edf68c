package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level string // debug, info, warn, error; empty means info
	// OutputPath is a comma separated list of sinks: stdout, stderr or
	// file paths. Empty means stdout.
	OutputPath string
	Format     string // json or console
	Service    string // added to every entry when set
}

// NewLogger creates a structured logger writing to every configured sink
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", cfg.Level)
		}
	}

	encoder, err := newEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	sink, err := openSinks(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Service != "" {
		opts = append(opts, zap.Fields(zap.String("service", cfg.Service)))
	}
	return zap.New(zapcore.NewCore(encoder, sink, level), opts...), nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	switch format {
	case "json", "":
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "timestamp"
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(ec), nil
	case "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return zapcore.NewConsoleEncoder(ec), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func openSinks(spec string) (zapcore.WriteSyncer, error) {
	if strings.TrimSpace(spec) == "" {
		spec = "stdout"
	}
	var sinks []zapcore.WriteSyncer
	for _, name := range strings.Split(spec, ",") {
		switch name = strings.TrimSpace(name); name {
		case "":
		case "stdout":
			sinks = append(sinks, zapcore.Lock(os.Stdout))
		case "stderr":
			sinks = append(sinks, zapcore.Lock(os.Stderr))
		default:
			if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
				return nil, fmt.Errorf("log directory for %s: %w", name, err)
			}
			f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file: %w", err)
			}
			sinks = append(sinks, zapcore.AddSync(f))
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return zapcore.NewMultiWriteSyncer(sinks...), nil
}

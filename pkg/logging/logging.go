// Package logging builds the zap loggers used by the devnet and tbactl.
package logging

import (
	"github.com/canopy-network/tokenbound/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the level, encoding and sink of a logger.
type Options struct {
	Level    string // debug, info, warn or error; anything else is info
	Encoding string // json or console
	Output   string // a zap sink such as stdout or stderr
}

// New builds the devnet logger from LOG_LEVEL and LOG_ENCODING.
func New() (*zap.Logger, error) {
	return Build(Options{
		Level:    utils.Env("LOG_LEVEL", "info"),
		Encoding: utils.Env("LOG_ENCODING", "json"),
		Output:   "stdout",
	})
}

// NewWithLevel is Build with logs on stdout.
func NewWithLevel(level, encoding string) (*zap.Logger, error) {
	return Build(Options{Level: level, Encoding: encoding, Output: "stdout"})
}

func Build(o Options) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(o.Level)
	if err != nil || lvl > zapcore.ErrorLevel {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Development = lvl == zapcore.DebugLevel
	cfg.Encoding = o.Encoding
	if o.Output == "" {
		o.Output = "stdout"
	}
	cfg.OutputPaths = []string{o.Output}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

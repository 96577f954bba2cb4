package cliutil

import (
	"io"
	"log/slog"

	ipfslog "github.com/ipfs/go-log/v2"
	"go.uber.org/zap/zapcore"
)

// Routes output of the ipfs logging library (used inside the blockstore and datastore packages) to the same writer and level as slog.
func SetIpfsWriter(out io.Writer, format string, level slog.Level) {
	cfg := zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		NameKey:     "system",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	var ze zapcore.Encoder
	switch format {
	case "json":
		ze = zapcore.NewJSONEncoder(cfg)
	default:
		ze = zapcore.NewConsoleEncoder(cfg)
	}
	nc := zapcore.NewCore(ze, zapcore.AddSync(out), zapLevel(level))
	ipfslog.SetPrimaryCore(nc)
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level <= slog.LevelDebug:
		return zapcore.DebugLevel
	case level <= slog.LevelInfo:
		return zapcore.InfoLevel
	case level <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

package main

import (
	"io"
	"log/slog"

	"github.com/ggoodman/hostbridge/config"
	"github.com/ggoodman/hostbridge/internal/logctx"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the slog logger used by every component. Records go to w
// (stderr in production) through a zap core whose level can be changed at
// runtime through level.
func newLogger(cfg config.Config, level zap.AtomicLevel, w io.Writer) *slog.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.LogFormat == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	return slog.New(logctx.Handler{Handler: zapslog.NewHandler(core)})
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l < slog.LevelInfo:
		return zapcore.DebugLevel
	case l < slog.LevelWarn:
		return zapcore.InfoLevel
	case l < slog.LevelError:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

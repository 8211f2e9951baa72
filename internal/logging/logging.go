// Package logging builds the querysync.Logger selected by configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/internal/config"
	qlogrus "github.com/unkn0wn-root/querysync/log/logrus"
	qslog "github.com/unkn0wn-root/querysync/log/slog"
	qzap "github.com/unkn0wn-root/querysync/log/zap"
)

// Stack is a configured logger plus the slog logger hook sinks write to.
type Stack struct {
	Logger querysync.Logger
	// Slog shares the writer and level of Logger whatever the driver.
	Slog *slog.Logger

	flush func() error
}

// Sync flushes buffered entries (zap only).
func (s *Stack) Sync() error {
	if s.flush == nil {
		return nil
	}
	return s.flush()
}

// New builds the stack for cfg writing to w.
func New(cfg config.Log, w io.Writer, component string) (*Stack, error) {
	lvl := parseLevel(cfg.Level)
	json := strings.EqualFold(cfg.Format, "json")

	var sh slog.Handler
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		sh = slog.NewJSONHandler(w, opts)
	} else {
		sh = slog.NewTextHandler(w, opts)
	}
	sl := slog.New(sh)
	st := &Stack{Slog: sl}

	switch strings.ToLower(cfg.Driver) {
	case "", "slog":
		st.Logger = qslog.New(sl, component)
	case "zap":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var enc zapcore.Encoder
		if json {
			enc = zapcore.NewJSONEncoder(encCfg)
		} else {
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		zl := zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), zapLevel(lvl)))
		st.Logger = qzap.New(zl, component)
		st.flush = zl.Sync
	case "logrus":
		ll := logrus.New()
		ll.SetOutput(w)
		ll.SetLevel(logrusLevel(lvl))
		if json {
			ll.SetFormatter(&logrus.JSONFormatter{})
		} else {
			ll.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
		}
		st.Logger = qlogrus.New(ll, component)
	default:
		return nil, fmt.Errorf("logging: unknown driver %q", cfg.Driver)
	}
	return st, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l <= slog.LevelDebug:
		return zapcore.DebugLevel
	case l <= slog.LevelInfo:
		return zapcore.InfoLevel
	case l <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func logrusLevel(l slog.Level) logrus.Level {
	switch {
	case l <= slog.LevelDebug:
		return logrus.DebugLevel
	case l <= slog.LevelInfo:
		return logrus.InfoLevel
	case l <= slog.LevelWarn:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

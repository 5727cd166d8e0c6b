package logger

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogBridge adapts the service's zerolog logger to the log/slog API so
// domain packages can take a *slog.Logger without knowing the backend.
// Groups are flattened into dotted key prefixes; zerolog events are flat.
type slogBridge struct {
	zl    *zerolog.Logger
	attrs []slog.Attr
	group string
}

// NewSlog wraps zl in a *slog.Logger.
func NewSlog(zl *zerolog.Logger) *slog.Logger {
	return slog.New(&slogBridge{zl: zl})
}

// Enabled defers level filtering to zerolog's global level.
func (b *slogBridge) Enabled(context.Context, slog.Level) bool { return true }

func (b *slogBridge) Handle(ctx context.Context, rec slog.Record) error {
	ev := levelEvent(FromContext(ctx, b.zl), rec.Level)
	for _, a := range b.attrs {
		appendAttr(ev, b.group, a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		appendAttr(ev, b.group, a)
		return true
	})
	ev.Msg(rec.Message)
	return nil
}

func (b *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *b
	cp.attrs = append(append([]slog.Attr{}, b.attrs...), attrs...)
	return &cp
}

func (b *slogBridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return b
	}
	cp := *b
	if cp.group != "" {
		cp.group += "."
	}
	cp.group += name
	return &cp
}

func levelEvent(zl *zerolog.Logger, lvl slog.Level) *zerolog.Event {
	switch {
	case lvl <= slog.LevelDebug:
		return zl.Debug()
	case lvl >= slog.LevelError:
		return zl.Error()
	case lvl >= slog.LevelWarn:
		return zl.Warn()
	default:
		return zl.Info()
	}
}

func appendAttr(ev *zerolog.Event, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	switch a.Value.Kind() {
	case slog.KindString:
		ev.Str(key, a.Value.String())
	case slog.KindInt64:
		ev.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		ev.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		ev.Float64(key, a.Value.Float64())
	case slog.KindBool:
		ev.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		ev.Dur(key, a.Value.Duration())
	case slog.KindTime:
		ev.Time(key, a.Value.Time())
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			appendAttr(ev, key, ga)
		}
	default:
		ev.Interface(key, a.Value.Any())
	}
}

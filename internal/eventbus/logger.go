package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// zapAdapter 让 watermill 内部日志走 zap
type zapAdapter struct {
	l *zap.Logger
}

func NewZapAdapter(l *zap.Logger) watermill.LoggerAdapter {
	return zapAdapter{l: l.Named("watermill")}
}

func fields(f watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (a zapAdapter) Error(msg string, err error, f watermill.LogFields) {
	a.l.Error(msg, append(fields(f), zap.Error(err))...)
}

func (a zapAdapter) Info(msg string, f watermill.LogFields)  { a.l.Info(msg, fields(f)...) }
func (a zapAdapter) Debug(msg string, f watermill.LogFields) { a.l.Debug(msg, fields(f)...) }
func (a zapAdapter) Trace(msg string, f watermill.LogFields) { a.l.Debug(msg, fields(f)...) }

func (a zapAdapter) With(f watermill.LogFields) watermill.LoggerAdapter {
	return zapAdapter{l: a.l.With(fields(f)...)}
}

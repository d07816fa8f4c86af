package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// GELFWriter sends one GELF message. *gelf.Writer satisfies it.
type GELFWriter interface {
	WriteMessage(m *gelf.Message) error
}

var _ GELFWriter = (*gelf.Writer)(nil)

type gelfField struct {
	key   string
	value any
}

// GELFHandler is a slog.Handler that writes records as GELF messages.
// Attributes become additional fields, group names joined with "_".
type GELFHandler struct {
	w        GELFWriter
	level    slog.Leveler
	host     string
	facility string
	prefix   string
	fields   []gelfField
}

// NewGELFHandler creates a handler writing records at or above level to w.
func NewGELFHandler(w GELFWriter, level slog.Leveler, facility string) *GELFHandler {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &GELFHandler{w: w, level: level, host: host, facility: facility}
}

func (h *GELFHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *GELFHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]interface{}, len(h.fields)+r.NumAttrs())
	for _, f := range h.fields {
		extra[f.key] = f.value
	}
	r.Attrs(func(a slog.Attr) bool {
		for _, f := range flatten(h.prefix, a) {
			extra[f.key] = f.value
		}
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return h.w.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(ts.UnixNano()) / float64(time.Second),
		Level:    syslogLevel(r.Level),
		Facility: h.facility,
		Extra:    extra,
	})
}

func (h *GELFHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.fields = append([]gelfField(nil), h.fields...)
	for _, a := range attrs {
		out.fields = append(out.fields, flatten(h.prefix, a)...)
	}
	return &out
}

func (h *GELFHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	out.prefix = h.prefix + name + "_"
	return &out
}

// flatten expands group attributes and prefixes keys with "_" as GELF
// requires for additional fields.
func flatten(prefix string, a slog.Attr) []gelfField {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return nil
	}
	if a.Value.Kind() == slog.KindGroup {
		var out []gelfField
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "_"
		}
		for _, ga := range a.Value.Group() {
			out = append(out, flatten(p, ga)...)
		}
		return out
	}
	key := "_" + strings.ReplaceAll(prefix+a.Key, " ", "_")
	return []gelfField{{key: key, value: gelfValue(a.Value)}}
}

func gelfValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
}

// syslogLevel maps slog levels onto the syslog severities GELF uses.
func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return 3
	case l >= slog.LevelWarn:
		return 4
	case l >= slog.LevelInfo:
		return 6
	default:
		return 7
	}
}

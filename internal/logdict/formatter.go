package logdict

import (
	"fmt"
	"log/slog"
	"time"
)

const defaultDatefmt = time.RFC3339

// templateFormatter renders entries through a compiled template and
// appends record attributes as key=value pairs.
type templateFormatter struct {
	tpl     *template
	datefmt string
}

func newTemplateFormatter(spec FormatterSpec) (*templateFormatter, error) {
	tpl, err := compileTemplate(spec.Format, spec.Style)
	if err != nil {
		return nil, err
	}
	datefmt := spec.Datefmt
	if datefmt == "" {
		datefmt = defaultDatefmt
	}
	return &templateFormatter{tpl: tpl, datefmt: datefmt}, nil
}

func (f *templateFormatter) Format(e Entry) []byte {
	b := make([]byte, 0, 128)
	b = f.tpl.appendEntry(b, e, f.datefmt)
	b = appendAttrs(b, "", e.Attrs)
	return b
}

// appendAttrs renders attributes as " key=value" pairs, flattening groups
// into dotted keys.
func appendAttrs(b []byte, prefix string, attrs []slog.Attr) []byte {
	for _, a := range attrs {
		if a.Value.Kind() == slog.KindGroup {
			p := prefix
			if a.Key != "" {
				if p != "" {
					p += "."
				}
				p += a.Key
			}
			b = appendAttrs(b, p, a.Value.Group())
			continue
		}
		if a.Key == "" {
			continue
		}
		b = append(b, ' ')
		if prefix != "" {
			b = append(b, prefix...)
			b = append(b, '.')
		}
		b = append(b, a.Key...)
		b = append(b, '=')
		b = append(b, attrString(a.Value)...)
	}
	return b
}

func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return fmt.Sprintf("%q", v.String())
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		if v.Kind() == slog.KindAny {
			if err, ok := v.Any().(error); ok {
				return fmt.Sprintf("%q", err.Error())
			}
		}
		return fmt.Sprint(v.Any())
	}
}

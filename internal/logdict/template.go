package logdict

import (
	"fmt"
	"strconv"
	"strings"
)

type templateField int

const (
	fieldTime templateField = iota
	fieldLogger
	fieldLevel
	fieldMessage
	fieldFunc
	fieldLine
)

var fieldByName = map[string]templateField{
	"time":    fieldTime,
	"logger":  fieldLogger,
	"level":   fieldLevel,
	"message": fieldMessage,
	"func":    fieldFunc,
	"line":    fieldLine,
}

// template is a compiled format string: literal chunks interleaved with
// field references. Compilation rejects unknown placeholders, so rendering
// cannot fail.
type template struct {
	segs []segment

	// needsSource is set when func or line appear, so rendering only
	// resolves the record PC when a template actually uses it.
	needsSource bool
}

type segment struct {
	literal string
	field   templateField
	isField bool
}

// compileTemplate compiles format according to style: "{" (default) uses
// {field} placeholders with {{ and }} escapes, "%" uses %(field)s with %%
// escapes. An empty format compiles to the bare message.
func compileTemplate(format, style string) (*template, error) {
	switch style {
	case "", "{", "brace":
		if format == "" {
			format = "{message}"
		}
		return compileBrace(format)
	case "%", "percent":
		if format == "" {
			format = "%(message)s"
		}
		return compilePercent(format)
	default:
		return nil, fmt.Errorf("style: got %q, want \"{\" or \"%%\"", style)
	}
}

func compileBrace(format string) (*template, error) {
	var t template
	var lit strings.Builder
	for i := 0; i < len(format); {
		switch format[i] {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				lit.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated placeholder at byte %d", i)
			}
			name := format[i+1 : i+end]
			f, ok := fieldByName[name]
			if !ok {
				return nil, fmt.Errorf("unknown placeholder %q", name)
			}
			t.flushLiteral(&lit)
			t.addField(f)
			i += end + 1
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				lit.WriteByte('}')
				i += 2
				continue
			}
			return nil, fmt.Errorf("unmatched \"}\" at byte %d", i)
		default:
			lit.WriteByte(format[i])
			i++
		}
	}
	t.flushLiteral(&lit)
	return &t, nil
}

func compilePercent(format string) (*template, error) {
	var t template
	var lit strings.Builder
	for i := 0; i < len(format); {
		if format[i] != '%' {
			lit.WriteByte(format[i])
			i++
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			lit.WriteByte('%')
			i += 2
			continue
		}
		if i+1 >= len(format) || format[i+1] != '(' {
			return nil, fmt.Errorf("stray %% at byte %d", i)
		}
		end := strings.IndexByte(format[i+2:], ')')
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder at byte %d", i)
		}
		name := format[i+2 : i+2+end]
		verb := i + 2 + end + 1
		if verb >= len(format) || (format[verb] != 's' && format[verb] != 'd') {
			return nil, fmt.Errorf("placeholder %%(%s) must end with s or d", name)
		}
		f, ok := fieldByName[name]
		if !ok {
			return nil, fmt.Errorf("unknown placeholder %q", name)
		}
		t.flushLiteral(&lit)
		t.addField(f)
		i = verb + 1
	}
	t.flushLiteral(&lit)
	return &t, nil
}

func (t *template) flushLiteral(b *strings.Builder) {
	if b.Len() == 0 {
		return
	}
	t.segs = append(t.segs, segment{literal: b.String()})
	b.Reset()
}

func (t *template) addField(f templateField) {
	t.segs = append(t.segs, segment{field: f, isField: true})
	if f == fieldFunc || f == fieldLine {
		t.needsSource = true
	}
}

func (t *template) appendEntry(b []byte, e Entry, datefmt string) []byte {
	var fn string
	var line int
	if t.needsSource {
		fn, line = e.source()
	}
	for _, s := range t.segs {
		if !s.isField {
			b = append(b, s.literal...)
			continue
		}
		switch s.field {
		case fieldTime:
			b = e.Time.AppendFormat(b, datefmt)
		case fieldLogger:
			b = append(b, e.Logger...)
		case fieldLevel:
			b = append(b, LevelName(e.Level)...)
		case fieldMessage:
			b = append(b, e.Message...)
		case fieldFunc:
			b = append(b, fn...)
		case fieldLine:
			b = strconv.AppendInt(b, int64(line), 10)
		}
	}
	return b
}

package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// JSONWriter writes records as a single JSON array. Output is produced on
// Flush, so it is only suitable for replace-mode sinks.
type JSONWriter struct {
	w      *bufio.Writer
	indent string
	items  []harvest.Record
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, indent string) *JSONWriter {
	return &JSONWriter{
		w:      bufio.NewWriter(w),
		indent: indent,
		items:  make([]harvest.Record, 0),
	}
}

// Write buffers a single record.
func (w *JSONWriter) Write(r harvest.Record) error {
	w.items = append(w.items, r)
	return nil
}

// Flush writes the buffered records as a JSON array.
func (w *JSONWriter) Flush() error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range w.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := marshalRecord(r)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')

	var out bytes.Buffer
	if w.indent != "" {
		if err := json.Indent(&out, buf.Bytes(), "", w.indent); err != nil {
			return err
		}
	} else {
		out = buf
	}

	if _, err := w.w.Write(out.Bytes()); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	w.items = w.items[:0]
	return w.w.Flush()
}

// JSONLWriter writes newline-delimited JSON (JSONL).
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		w: bufio.NewWriter(w),
	}
}

// Write writes a single record as a JSON line.
func (w *JSONLWriter) Write(r harvest.Record) error {
	output, err := marshalRecord(r)
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}

	return w.w.Flush()
}

// Flush flushes the buffer.
func (w *JSONLWriter) Flush() error {
	return w.w.Flush()
}

// marshalRecord encodes r as a JSON object keeping field order.
func marshalRecord(r harvest.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(plain(f.Value))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// plain converts values without a natural JSON form into strings. Numbers
// and booleans pass through; dates use harvest.FormatValue.
func plain(v any) any {
	switch x := v.(type) {
	case nil, string, []string, bool, int, int64, float64:
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return harvest.FormatValue(*x)
	default:
		return harvest.FormatValue(x)
	}
}

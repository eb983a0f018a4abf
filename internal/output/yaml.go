package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// YAMLWriter writes each record as its own YAML document, so a file can be
// appended to across runs.
type YAMLWriter struct {
	w *bufio.Writer
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{
		w: bufio.NewWriter(w),
	}
}

// Write writes one record as a YAML document.
func (w *YAMLWriter) Write(r harvest.Record) error {
	if _, err := w.w.WriteString("---\n"); err != nil {
		return err
	}

	encoder := yaml.NewEncoder(w.w)
	encoder.SetIndent(2)
	if err := encoder.Encode(recordNode(r)); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}

	return w.w.Flush()
}

// Flush flushes the buffer.
func (w *YAMLWriter) Flush() error {
	return w.w.Flush()
}

// recordNode builds a mapping node so field order survives encoding.
func recordNode(r harvest.Record) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range r.Fields() {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: f.Name}
		val := &yaml.Node{}
		if err := val.Encode(plain(f.Value)); err != nil {
			val = &yaml.Node{Kind: yaml.ScalarNode, Value: harvest.FormatValue(f.Value)}
		}
		node.Content = append(node.Content, key, val)
	}
	return node
}

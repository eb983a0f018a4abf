package output

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// ExistingKeys reads the values of field from a previously written output
// file. A resumed run seeds its dedupe memo with them. A missing file has no
// keys.
func ExistingKeys(path string, format Format, field string) ([]string, error) {
	if path == "" || path == "-" {
		return nil, nil
	}
	if format == "" {
		format = FormatFromPath(path)
	}

	f, err := os.Open(path) //#nosec G304 -- output path comes from the CLI
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	switch format {
	case FormatCSV:
		return csvKeys(f, field)
	case FormatJSONL:
		return jsonlKeys(f, field)
	case FormatYAML:
		return yamlKeys(f, field)
	case FormatJSON:
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		var keys []string
		gjson.GetBytes(data, "#."+gjson.Escape(field)).ForEach(func(_, v gjson.Result) bool {
			if v.String() != "" {
				keys = append(keys, v.String())
			}
			return true
		})
		return keys, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func csvKeys(r io.Reader, field string) ([]string, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := -1
	for i, name := range header {
		if name == field {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("column %q not found in existing output", field)
	}

	var keys []string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return keys, nil
		}
		if err != nil {
			return keys, err
		}
		if col < len(row) && row[col] != "" {
			keys = append(keys, row[col])
		}
	}
}

func jsonlKeys(r io.Reader, field string) ([]string, error) {
	path := gjson.Escape(field)
	var keys []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if v := gjson.GetBytes(scanner.Bytes(), path); v.Exists() && v.String() != "" {
			keys = append(keys, v.String())
		}
	}
	return keys, scanner.Err()
}

func yamlKeys(r io.Reader, field string) ([]string, error) {
	var keys []string
	dec := yaml.NewDecoder(r)
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return keys, nil
		}
		if err != nil {
			return keys, err
		}
		if v, ok := doc[field]; ok && v != nil && fmt.Sprint(v) != "" {
			keys = append(keys, fmt.Sprint(v))
		}
	}
}

// Package schema describes destination tables: column names, types and the
// record fields they are filled from.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// Table is a destination table definition.
type Table struct {
	Name    string   `json:"name" yaml:"name" validate:"required"`
	Columns []Column `json:"columns" yaml:"columns" validate:"required,min=1,dive"`
}

// Column maps one record field to one table column.
type Column struct {
	Name   string     `json:"name" yaml:"name" validate:"required"`
	Type   ColumnType `json:"type" yaml:"type" validate:"required,oneof=text integer real decimal boolean date timestamp"`
	Source string     `json:"source,omitempty" yaml:"source,omitempty"` // Record field; defaults to Name
}

// Field returns the record field the column reads.
func (c Column) Field() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Name
}

var validate = validator.New()

// Validate checks the table definition.
func (t Table) Validate() error {
	err := validate.Struct(t)
	if err == nil {
		return seenColumns(t.Columns)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", e.Namespace(), formatValidationError(e)))
	}
	return fmt.Errorf("invalid table %q: %s", t.Name, strings.Join(msgs, "; "))
}

func seenColumns(cols []Column) error {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		key := strings.ToUpper(c.Name)
		if seen[key] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[key] = true
	}
	return nil
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// Names returns the column names in order.
func (t Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Row returns the column values of r in column order, converted for the
// column type.
func (t Table) Row(r harvest.Record) []any {
	row := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		v, _ := r.Get(c.Field())
		row[i] = Convert(v, c.Type)
	}
	return row
}

// FromFile loads a table definition from a JSON or YAML file.
func FromFile(path string) (Table, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- CLI reads a user-specified schema file
	if err != nil {
		return Table{}, fmt.Errorf("failed to read schema file: %w", err)
	}

	var t Table
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &t); err != nil {
			return Table{}, fmt.Errorf("failed to parse JSON schema: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &t); err != nil {
			return Table{}, fmt.Errorf("failed to parse YAML schema: %w", err)
		}
	default:
		return Table{}, fmt.Errorf("unsupported schema file format: %s", ext)
	}

	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type exportTable struct {
	Description      string   `yaml:"description"`
	WriteDisposition string   `yaml:"write_disposition"`
	PrimaryKey       []string `yaml:"primary_key"`
	Columns          []Column `yaml:"columns"`
}

type exportDoc struct {
	Name   string                 `yaml:"name"`
	Tables map[string]exportTable `yaml:"tables"`
}

// ExportYAML writes <dir>/<name>.schema.yaml describing tables. dispositions
// maps table name to its write disposition.
func ExportYAML(dir, name string, tables []Table, dispositions map[string]string) (string, error) {
	doc := exportDoc{Name: name, Tables: make(map[string]exportTable, len(tables))}
	for _, t := range tables {
		doc.Tables[t.Name] = exportTable{
			Description:      t.Description,
			WriteDisposition: dispositions[t.Name],
			PrimaryKey:       t.PrimaryKey,
			Columns:          t.Columns,
		}
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render schema: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create schema export directory: %w", err)
	}
	path := filepath.Join(dir, name+".schema.yaml")
	return path, os.WriteFile(path, b, 0o644)
}

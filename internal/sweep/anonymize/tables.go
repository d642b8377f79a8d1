package anonymize

import (
	"fmt"

	"github.com/vietddude/sweeper/internal/infra/storage/postgres"
)

// ColumnSpec is one column to rewrite.
type ColumnSpec struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`
	Type string `yaml:"type"` // SQL type the value is cast back to, default text
}

// TableSpec is one table to rewrite.
type TableSpec struct {
	Name    string       `yaml:"name"`
	Key     string       `yaml:"key"`
	Columns []ColumnSpec `yaml:"columns"`
}

// Validate checks the table before any SQL is built from it.
func (t TableSpec) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	for _, c := range t.Columns {
		switch c.Kind {
		case "", KindText, KindToken, KindCount:
		default:
			return fmt.Errorf("table %s column %s: unknown kind %q", t.Name, c.Name, c.Kind)
		}
	}
	return nil
}

// StorageTable converts t to the storage layer's table description.
func (t TableSpec) StorageTable() postgres.Table {
	key := t.Key
	if key == "" {
		key = "id"
	}
	cols := make([]postgres.Column, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = postgres.Column{Name: c.Name, Type: c.Type}
	}
	return postgres.Table{Name: t.Name, Key: key, Columns: cols}
}

// DefaultTables lists the personal fields of the collection schema.
func DefaultTables() []TableSpec {
	return []TableSpec{
		{
			Name: "collection_ad",
			Key:  "id",
			Columns: []ColumnSpec{
				{Name: "headline", Kind: KindText},
				{Name: "link_description", Kind: KindText},
				{Name: "body", Kind: KindText},
				{Name: "duplicates", Kind: KindCount, Type: "integer"},
				{Name: "offer_link", Kind: KindText},
			},
		},
		{
			Name: "collection_card",
			Key:  "id",
			Columns: []ColumnSpec{
				{Name: "title", Kind: KindText},
				{Name: "body", Kind: KindText},
				{Name: "caption", Kind: KindText},
				{Name: "link_url", Kind: KindText},
				{Name: "link_description", Kind: KindText},
			},
		},
		{
			Name: "collection_page",
			Key:  "id",
			Columns: []ColumnSpec{
				{Name: "page_name", Kind: KindText},
			},
		},
		{
			Name: "user",
			Key:  "id",
			Columns: []ColumnSpec{
				{Name: "security_token", Kind: KindToken},
				{Name: "first_name", Kind: KindText},
				{Name: "last_name", Kind: KindText},
			},
		},
	}
}

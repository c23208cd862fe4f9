// Package structured answers questions against the financial database by
// generating SQL, executing it and narrating the rows.
package structured

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"gorm.io/gorm"
)

// Store is the relational store the generated statements run against.
type Store interface {
	// Schema describes every table as "Table: name" and "Columns: col (type), ...".
	Schema(ctx context.Context) (string, error)
	// Execute runs a statement and returns its rows.
	Execute(ctx context.Context, sql string) (*Table, error)
}

// Table is a query result.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// String renders the table as aligned text with a header line.
func (t *Table) String() string {
	if t == nil {
		return ""
	}
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.Columns, "\t"))
	cells := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) && row[i] != nil {
				cells[i] = fmt.Sprint(row[i])
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

// GormStore runs statements through gorm, so any registered dialect works.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a store over db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Schema introspects tables and column types through the gorm migrator.
func (s *GormStore) Schema(ctx context.Context) (string, error) {
	m := s.db.WithContext(ctx).Migrator()
	tables, err := m.GetTables()
	if err != nil {
		return "", fmt.Errorf("failed to list tables: %w", err)
	}

	parts := make([]string, 0, len(tables))
	for _, table := range tables {
		columns, err := m.ColumnTypes(table)
		if err != nil {
			return "", fmt.Errorf("failed to describe table %s: %w", table, err)
		}
		cols := make([]string, len(columns))
		for i, c := range columns {
			cols[i] = fmt.Sprintf("%s (%s)", c.Name(), c.DatabaseTypeName())
		}
		parts = append(parts, fmt.Sprintf("\nTable: %s\nColumns: %s", table, strings.Join(cols, ", ")))
	}
	return strings.Join(parts, "\n"), nil
}

// Execute runs sql as a raw query.
func (s *GormStore) Execute(ctx context.Context, sql string) (*Table, error) {
	rows, err := s.db.WithContext(ctx).Raw(sql).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	table := &Table{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

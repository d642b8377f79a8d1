package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/vietddude/sweeper/internal/core/domain"
	"github.com/vietddude/sweeper/internal/infra/storage"
	"github.com/vietddude/sweeper/internal/infra/storage/retry"
	"github.com/vietddude/sweeper/internal/sweep/metrics"
)

// Column is a column rewritten by bulk field mutation. Type is the SQL type
// the text value is cast back to.
type Column struct {
	Name string
	Type string
}

var allowedTypes = map[string]struct{}{
	"text":    {},
	"varchar": {},
	"integer": {},
	"bigint":  {},
}

// Table describes a table processed by bulk field mutation.
type Table struct {
	Name    string
	Key     string
	Columns []Column
}

func (t Table) validate() error {
	if t.Name == "" || t.Key == "" {
		return fmt.Errorf("table name and key are required")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", t.Name)
	}
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %s has a column without a name", t.Name)
		}
		if _, ok := allowedTypes[columnType(c)]; !ok {
			return fmt.Errorf("table %s column %s: unsupported type %q", t.Name, c.Name, c.Type)
		}
	}
	return nil
}

func columnType(c Column) string {
	if c.Type == "" {
		return "text"
	}
	return strings.ToLower(c.Type)
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// buildSelectRows reads the key and every column as text, packed into one array.
func buildSelectRows(t Table) string {
	vals := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		vals[i] = ident(c.Name) + "::text"
	}
	key := ident(t.Key)
	return fmt.Sprintf(
		"SELECT %s AS key, ARRAY[%s]::text[] AS vals FROM %s WHERE %s > $1 ORDER BY %s LIMIT $2",
		key, strings.Join(vals, ", "), ident(t.Name), key, key,
	)
}

// buildBulkUpdate pairs one array parameter per column, index-aligned by row,
// so a page of any size is written with a single statement.
func buildBulkUpdate(t Table) string {
	sets := make([]string, len(t.Columns))
	params := make([]string, 0, len(t.Columns)+1)
	aliases := make([]string, 0, len(t.Columns)+1)

	params = append(params, "$1::bigint[]")
	aliases = append(aliases, ident(t.Key))
	for i, c := range t.Columns {
		col := ident(c.Name)
		sets[i] = fmt.Sprintf("%s = d.%s::%s", col, col, columnType(c))
		params = append(params, fmt.Sprintf("$%d::text[]", i+2))
		aliases = append(aliases, col)
	}

	key := ident(t.Key)
	return fmt.Sprintf(
		"UPDATE %s AS t SET %s FROM unnest(%s) AS d(%s) WHERE t.%s = d.%s",
		ident(t.Name),
		strings.Join(sets, ", "),
		strings.Join(params, ", "),
		strings.Join(aliases, ", "),
		key, key,
	)
}

// bulkUpdateArgs transposes rows into one array per column.
func bulkUpdateArgs(t Table, rows []domain.Row) ([]any, error) {
	keys := make([]int64, len(rows))
	columns := make([][]sql.NullString, len(t.Columns))
	for i := range columns {
		columns[i] = make([]sql.NullString, len(rows))
	}

	for r, row := range rows {
		if len(row.Values) != len(t.Columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", row.Key, len(row.Values), len(t.Columns))
		}
		keys[r] = int64(row.Key)
		for c, v := range row.Values {
			columns[c][r] = v
		}
	}

	args := make([]any, 0, len(columns)+1)
	args = append(args, pq.Array(keys))
	for _, col := range columns {
		args = append(args, pq.Array(col))
	}
	return args, nil
}

type nullStrings []sql.NullString

func (n *nullStrings) Scan(src any) error {
	return pq.Array((*[]sql.NullString)(n)).Scan(src)
}

type recordRow struct {
	Key  int64       `db:"key"`
	Vals nullStrings `db:"vals"`
}

// RecordRepo reads and rewrites rows of one table for bulk field mutation.
type RecordRepo struct {
	exec      *retry.Executor
	table     Table
	selectSQL string
	updateSQL string
}

func NewRecordRepo(exec *retry.Executor, table Table) (*RecordRepo, error) {
	if err := table.validate(); err != nil {
		return nil, err
	}
	return &RecordRepo{
		exec:      exec,
		table:     table,
		selectSQL: buildSelectRows(table),
		updateSQL: buildBulkUpdate(table),
	}, nil
}

func (r *RecordRepo) ReadRows(ctx context.Context, after domain.WorkUnit, limit int) ([]domain.Row, error) {
	var recs []recordRow
	if err := r.exec.Select(ctx, "read_"+r.table.Name, &recs, r.selectSQL, int64(after), limit); err != nil {
		return nil, fmt.Errorf("read %s after %d: %w", r.table.Name, after, err)
	}

	rows := make([]domain.Row, len(recs))
	for i, rec := range recs {
		rows[i] = domain.Row{Key: domain.WorkUnit(rec.Key), Values: rec.Vals}
	}
	return rows, nil
}

func (r *RecordRepo) WriteRows(ctx context.Context, rows []domain.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, storage.ErrEmptyBatch
	}
	args, err := bulkUpdateArgs(r.table, rows)
	if err != nil {
		return 0, err
	}

	metrics.DBBatchSize.WithLabelValues("write_" + r.table.Name).Observe(float64(len(rows)))

	n, err := r.exec.Exec(ctx, "write_"+r.table.Name, r.updateSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", r.table.Name, err)
	}
	return n, nil
}

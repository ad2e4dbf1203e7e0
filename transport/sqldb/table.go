package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/tfkr-ae/arsenal/model"
	"github.com/tfkr-ae/arsenal/transport"
)

// DefaultLimit is the row limit of All when none is given.
const DefaultLimit = 10

var (
	// ErrNoCriteria is returned by Update and Delete when neither the bound
	// view nor the caller gives filter criteria.
	ErrNoCriteria = errors.New("filter criteria are required")
	// ErrNotSingle is returned by Get when the filter matches zero or
	// several rows.
	ErrNotSingle = errors.New("rows count is not 1")
	// ErrInvalidRow is returned when the data to write is not a mapping.
	ErrInvalidRow = errors.New("row data must be a mapping")
)

// Table runs statements against one table.
type Table struct {
	Name string

	db      *sqlx.DB
	binding transport.Binding
	logger  *slog.Logger
}

// NewTable returns a Table for the named table of db.
func NewTable(db *sqlx.DB, name string, options ...func(*Table) error) (*Table, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	t := &Table{
		Name:   name,
		db:     db,
		logger: slog.Default(),
	}
	if err := t.WithOptions(options...); err != nil {
		return nil, err
	}
	return t, nil
}

// WithOptions applies options in order and stops at the first error.
func (t *Table) WithOptions(options ...func(*Table) error) error {
	for _, option := range options {
		if err := option(t); err != nil {
			return fmt.Errorf("applying option on table %s : %w", t.Name, err)
		}
	}
	return nil
}

// WithLogger sets the statement logger. A nil logger falls back to
// slog.Default().
func WithLogger(logger *slog.Logger) func(*Table) error {
	return func(t *Table) error {
		if logger == nil {
			t.logger = slog.Default()
			return nil
		}
		t.logger = logger
		return nil
	}
}

// WithView binds the table to a view: it is the row inserted or written when
// no data is given and its filter fields select rows.
func WithView(v *model.View) func(*Table) error {
	return func(t *Table) error {
		t.binding = transport.Bind(v)
		return nil
	}
}

// WithType binds the table to the view type selected rows are wrapped in.
func WithType(typ *model.Type) func(*Table) error {
	return func(t *Table) error {
		t.binding = transport.BindType(typ)
		return nil
	}
}

// Binding returns what the table is bound to.
func (t *Table) Binding() transport.Binding { return t.binding }

// Insert inserts data, or the bound view when data is nil, as one row.
// Nested mappings and lists are stored as JSON text.
func (t *Table) Insert(ctx context.Context, data any) (sql.Result, error) {
	row, err := t.row(data)
	if err != nil {
		return nil, err
	}

	columns := sortedKeys(row)
	quoted := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, column := range columns {
		quoted[i] = quote(column)
		if args[i], err = sqlValue(row[column]); err != nil {
			return nil, fmt.Errorf("encoding column %s : %w", column, err)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(t.Name),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "),
	)
	return t.Exec(ctx, query, args...)
}

// All selects at most limit rows, DefaultLimit when limit is not positive,
// starting at offset. Only filter restricts the rows; the bound view's filter
// fields are not applied. Rows are wrapped by the bound type, into a
// *model.Sequence[*model.View], or returned as []any of maps when unbound.
func (t *Table) All(ctx context.Context, filter map[string]any, limit, offset int) (any, error) {
	rows, err := t.selectRows(ctx, filter, limit, offset)
	if err != nil {
		return nil, err
	}
	wrapped, err := t.binding.Wrapper()(rows)
	if err != nil {
		return nil, fmt.Errorf("wrapping rows of %s : %w", t.Name, err)
	}
	return wrapped, nil
}

// Get selects the single row matching the bound view's raw filter criteria
// merged with filter. It returns ErrNotSingle unless exactly one row matches.
func (t *Table) Get(ctx context.Context, filter map[string]any) (any, error) {
	rows, err := t.selectRows(ctx, t.binding.Criteria(true, filter), 2, 0)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("%w: %s matched no rows", ErrNotSingle, t.Name)
	case 2:
		return nil, fmt.Errorf("%w: %s matched more than one row", ErrNotSingle, t.Name)
	}
	wrapped, err := t.binding.Wrapper()(rows[0])
	if err != nil {
		return nil, fmt.Errorf("wrapping row of %s : %w", t.Name, err)
	}
	return wrapped, nil
}

// Update writes data, or the bound view when data is nil, to every row
// matching the bound view's raw filter criteria merged with filter; explicit
// criteria win. It refuses to run without criteria.
func (t *Table) Update(ctx context.Context, data any, filter map[string]any) (int64, error) {
	criteria := t.binding.Criteria(true, filter)
	if len(criteria) == 0 {
		return 0, fmt.Errorf("updating %s : %w", t.Name, ErrNoCriteria)
	}
	row, err := t.row(data)
	if err != nil {
		return 0, err
	}

	columns := sortedKeys(row)
	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+len(criteria))
	for i, column := range columns {
		sets[i] = quote(column) + " = ?"
		value, err := sqlValue(row[column])
		if err != nil {
			return 0, fmt.Errorf("encoding column %s : %w", column, err)
		}
		args = append(args, value)
	}
	where, whereArgs, err := whereClause(criteria)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("UPDATE %s SET %s%s", quote(t.Name), strings.Join(sets, ", "), where)
	res, err := t.Exec(ctx, query, append(args, whereArgs...)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete deletes every row matching the bound view's raw filter criteria
// merged with filter. It refuses to run without criteria.
func (t *Table) Delete(ctx context.Context, filter map[string]any) (int64, error) {
	criteria := t.binding.Criteria(true, filter)
	if len(criteria) == 0 {
		return 0, fmt.Errorf("deleting from %s : %w", t.Name, ErrNoCriteria)
	}
	where, args, err := whereClause(criteria)
	if err != nil {
		return 0, err
	}

	res, err := t.Exec(ctx, fmt.Sprintf("DELETE FROM %s%s", quote(t.Name), where), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Exec runs a statement. Every other write goes through it.
func (t *Table) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	t.logger.Debug("executing statement", "table", t.Name, "query", query)

	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing %q : %w", query, err)
	}
	return res, nil
}

func (t *Table) selectRows(ctx context.Context, criteria map[string]any, limit, offset int) ([]any, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	where, args, err := whereClause(criteria)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s%s LIMIT ? OFFSET ?", quote(t.Name), where)
	args = append(args, limit, offset)

	t.logger.Debug("selecting rows", "table", t.Name, "query", query)

	rows, err := t.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing %q : %w", query, err)
	}
	defer rows.Close()

	result := make([]any, 0)
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scanning row of %s : %w", t.Name, err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows of %s : %w", t.Name, err)
	}
	return result, nil
}

func (t *Table) row(data any) (map[string]any, error) {
	payload := t.binding.Payload(data)
	row, ok := payload.(map[string]any)
	if !ok || len(row) == 0 {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidRow, payload)
	}
	return row, nil
}

// whereClause joins criteria with AND in column order. A nil value matches
// NULL.
func whereClause(criteria map[string]any) (string, []any, error) {
	if len(criteria) == 0 {
		return "", nil, nil
	}
	var conditions []string
	var args []any
	for _, column := range sortedKeys(criteria) {
		value := criteria[column]
		if value == nil {
			conditions = append(conditions, quote(column)+" IS NULL")
			continue
		}
		encoded, err := sqlValue(value)
		if err != nil {
			return "", nil, fmt.Errorf("encoding criterion %s : %w", column, err)
		}
		conditions = append(conditions, quote(column)+" = ?")
		args = append(args, encoded)
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

func sqlValue(value any) (any, error) {
	switch value.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return value, nil
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

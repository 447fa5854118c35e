package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// timeColumnCandidates are checked in order when inferring a table's time
// column during live introspection.
var timeColumnCandidates = []string{"charttime", "admittime", "starttime", "chartdate", "intime"}

// FromPostgres builds a catalogue by introspecting a live Postgres database.
// Only column metadata is read; the catalogue never executes generated SQL.
// Entity narrowing and hints are inherited from the built-in catalogue for
// any table both sides know about.
func FromPostgres(ctx context.Context, connString string, logger *zap.Logger) (*Catalogue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	const query = `
		SELECT table_schema, table_name, column_name
		FROM information_schema.columns
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY table_schema, table_name, ordinal_position
	`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]Table)
	for rows.Next() {
		var schemaName, tableName, columnName string
		if err := rows.Scan(&schemaName, &tableName, &columnName); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		qualified := schemaName + "." + tableName
		t := tables[qualified]
		t.Columns = append(t.Columns, columnName)
		tables[qualified] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no user tables found")
	}

	for name, t := range tables {
		for _, candidate := range timeColumnCandidates {
			if containsColumn(t.Columns, candidate) {
				t.TimeColumn = candidate
				tables[name] = t
				break
			}
		}
	}

	cat := &Catalogue{
		Tables:       tables,
		EntityTables: make(map[string][]string),
	}

	builtin := Default()
	for entityType, names := range builtin.EntityTables {
		for _, name := range names {
			if _, ok := tables[name]; ok {
				cat.EntityTables[entityType] = append(cat.EntityTables[entityType], name)
			}
		}
	}
	cat.Hints = builtin.Hints

	logger.Info("introspected catalogue",
		zap.Int("tables", len(cat.Tables)),
		zap.Int("entity_types", len(cat.EntityTables)))

	return cat, nil
}

func containsColumn(columns []string, name string) bool {
	for _, col := range columns {
		if col == name {
			return true
		}
	}
	return false
}

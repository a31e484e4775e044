// internal/pipeline/schema/relational.go
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"nlquery-agent/internal/common/database"
	"nlquery-agent/internal/models"
)

type column struct {
	name     string
	dataType string
	nullable bool
	primary  bool
}

type foreignKey struct {
	column    string
	refTable  string
	refColumn string
}

type table struct {
	name    string
	columns []column
	fks     []foreignKey
}

// RelationalBuilder reads table and column metadata from the catalog.
type RelationalBuilder struct {
	client *database.RelationalClient
}

func NewRelationalBuilder(client *database.RelationalClient) *RelationalBuilder {
	return &RelationalBuilder{client: client}
}

func (b *RelationalBuilder) Build(ctx context.Context) (models.SchemaSnapshot, error) {
	var (
		tables []*table
		err    error
	)
	if b.client.Dialect == database.DialectSQLite {
		tables, err = b.sqliteTables(ctx)
	} else {
		tables, err = b.postgresTables(ctx)
	}
	if err != nil {
		return models.SchemaSnapshot{}, fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
	}

	snapshot := models.SchemaSnapshot{
		Backend:  models.BackendRelational,
		Entities: make([]models.Entity, 0, len(tables)),
	}
	for _, t := range tables {
		snapshot.Entities = append(snapshot.Entities, models.Entity{
			Name:  t.name,
			Shape: t.ddl(),
		})
	}
	return snapshot, nil
}

func (b *RelationalBuilder) postgresTables(ctx context.Context) ([]*table, error) {
	q := introspectionQueries[database.DialectPostgres]
	schemaName := b.client.Schema
	if schemaName == "" {
		schemaName = "public"
	}

	rows, err := b.client.DB.QueryContext(ctx, q.Columns, schemaName)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var tables []*table
	index := make(map[string]*table)
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		t, ok := index[tableName]
		if !ok {
			t = &table{name: tableName}
			index[tableName] = t
			tables = append(tables, t)
		}
		t.columns = append(t.columns, column{
			name:     columnName,
			dataType: dataType,
			nullable: strings.EqualFold(isNullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	fkRows, err := b.client.DB.QueryContext(ctx, q.ForeignKeys, schemaName)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var tableName string
		var fk foreignKey
		if err := fkRows.Scan(&tableName, &fk.column, &fk.refTable, &fk.refColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		if t, ok := index[tableName]; ok {
			t.fks = append(t.fks, fk)
		}
	}
	if err := fkRows.Err(); err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	return tables, nil
}

func (b *RelationalBuilder) sqliteTables(ctx context.Context) ([]*table, error) {
	rows, err := b.client.DB.QueryContext(ctx, introspectionQueries[database.DialectSQLite].Columns)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]*table, 0, len(names))
	for _, name := range names {
		t := &table{name: name}
		if err := b.sqliteColumns(ctx, t); err != nil {
			return nil, err
		}
		if err := b.sqliteForeignKeys(ctx, t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (b *RelationalBuilder) sqliteColumns(ctx context.Context, t *table) error {
	rows, err := b.client.DB.QueryContext(ctx, sqliteTableInfo(t.name))
	if err != nil {
		return fmt.Errorf("table_info %s: %w", t.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid      int
			name     string
			ctype    string
			notNull  int
			defValue sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defValue, &pk); err != nil {
			return fmt.Errorf("scan table_info %s: %w", t.name, err)
		}
		t.columns = append(t.columns, column{
			name:     name,
			dataType: strings.ToLower(ctype),
			nullable: notNull == 0 && pk == 0,
			primary:  pk > 0,
		})
	}
	return rows.Err()
}

func (b *RelationalBuilder) sqliteForeignKeys(ctx context.Context, t *table) error {
	rows, err := b.client.DB.QueryContext(ctx, sqliteForeignKeys(t.name))
	if err != nil {
		return fmt.Errorf("foreign_key_list %s: %w", t.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, seq                   int
			refTable, from            string
			to                        sql.NullString
			onUpdate, onDelete, match string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return fmt.Errorf("scan foreign_key_list %s: %w", t.name, err)
		}
		refColumn := to.String
		if !to.Valid || refColumn == "" {
			refColumn = "id"
		}
		t.fks = append(t.fks, foreignKey{column: from, refTable: refTable, refColumn: refColumn})
	}
	return rows.Err()
}

// ddl renders the table as a CREATE TABLE statement, the form models read best.
func (t *table) ddl() string {
	lines := make([]string, 0, len(t.columns)+len(t.fks))
	for _, c := range t.columns {
		line := "  " + c.name
		if c.dataType != "" {
			line += " " + c.dataType
		}
		if c.primary {
			line += " PRIMARY KEY"
		} else if !c.nullable {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}
	for _, fk := range t.fks {
		lines = append(lines, fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s(%s)", fk.column, fk.refTable, fk.refColumn))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", t.name, strings.Join(lines, ",\n"))
}

// internal/pipeline/schema/queries.go
package schema

import (
	"strings"

	"nlquery-agent/internal/common/database"
)

type introspection struct {
	Columns     string
	ForeignKeys string
}

// introspectionQueries holds the catalog queries per dialect. SQLite has no
// information_schema and is handled through PRAGMA statements instead.
var introspectionQueries = map[database.Dialect]introspection{
	database.DialectPostgres: {
		Columns: `
			SELECT table_name, column_name, data_type, is_nullable
			FROM information_schema.columns
			WHERE table_schema = $1
			ORDER BY table_name, ordinal_position`,
		ForeignKeys: `
			SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
			  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
			ORDER BY tc.table_name, kcu.column_name`,
	},
	database.DialectSQLite: {
		Columns: `
			SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`,
	},
}

func sqliteTableInfo(table string) string {
	return "PRAGMA table_info(" + quoteIdent(table) + ")"
}

func sqliteForeignKeys(table string) string {
	return "PRAGMA foreign_key_list(" + quoteIdent(table) + ")"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

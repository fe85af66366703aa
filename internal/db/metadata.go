package db

import (
	"fmt"
	"strings"
)

// TableInfo is one entry of a table listing.
type TableInfo struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
	Type   string `json:"type"`
}

// ColumnInfo describes one table column.
type ColumnInfo struct {
	Name          string `json:"name"`
	DataType      string `json:"data_type"`
	IsNullable    bool   `json:"is_nullable"`
	IsPrimaryKey  bool   `json:"is_primary_key"`
	DefaultValue  string `json:"default_value,omitempty"`
	CharMaxLength *int64 `json:"char_max_length,omitempty"`
}

// IndexInfo describes one index on a table.
type IndexInfo struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"is_unique"`
}

// ForeignKeyInfo describes one outgoing foreign key column.
type ForeignKeyInfo struct {
	Name             string `json:"name"`
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// TableDescription is the cached snapshot produced by DescribeTable.
type TableDescription struct {
	Table       string           `json:"table"`
	Schema      string           `json:"schema"`
	Columns     []ColumnInfo     `json:"columns"`
	PrimaryKeys []string         `json:"primary_keys"`
	Indexes     []IndexInfo      `json:"indexes"`
	ForeignKeys []ForeignKeyInfo `json:"foreign_keys"`
	RowEstimate int64            `json:"row_estimate"`
}

// dialectSQL holds the metadata queries for one driver. Each query takes the
// same positional parameters: (table, schema), except the listing queries.
type dialectSQL struct {
	listTables         string
	listTablesFiltered string
	columns            string
	primaryKeys        string
	indexes            string
	foreignKeys        string
	rowEstimate        string
}

var postgresSQL = dialectSQL{
	listTables: `
		SELECT table_name, table_schema, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_name`,
	listTablesFiltered: `
		SELECT table_name, table_schema, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name`,
	columns: `
		SELECT
			column_name,
			data_type,
			CASE WHEN is_nullable = 'YES' THEN true ELSE false END AS is_nullable,
			COALESCE(column_default, '') AS default_value,
			character_maximum_length
		FROM information_schema.columns
		WHERE table_name = $1 AND table_schema = $2
		ORDER BY ordinal_position`,
	primaryKeys: `
		SELECT ku.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage ku
			ON tc.constraint_name = ku.constraint_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_name = $1
			AND tc.table_schema = $2
		ORDER BY ku.ordinal_position`,
	indexes: `
		SELECT
			i.relname AS index_name,
			array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)) AS columns,
			ix.indisunique AS is_unique
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relname = $1 AND n.nspname = $2
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname`,
	foreignKeys: `
		SELECT
			tc.constraint_name,
			ku.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage ku
			ON tc.constraint_name = ku.constraint_name
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_name = $1
			AND tc.table_schema = $2
		ORDER BY tc.constraint_name`,
	rowEstimate: `
		SELECT COALESCE(c.reltuples::bigint, 0) AS row_estimate
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relname = $1 AND n.nspname = $2`,
}

var mysqlSQL = dialectSQL{
	listTables: `
		SELECT table_name, table_schema, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
		ORDER BY table_name`,
	listTablesFiltered: `
		SELECT table_name, table_schema, table_type
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name`,
	columns: `
		SELECT
			COLUMN_NAME AS column_name,
			DATA_TYPE AS data_type,
			CASE WHEN IS_NULLABLE = 'YES' THEN true ELSE false END AS is_nullable,
			COALESCE(COLUMN_DEFAULT, '') AS default_value,
			CHARACTER_MAXIMUM_LENGTH AS character_maximum_length
		FROM information_schema.columns
		WHERE table_name = ? AND table_schema = ?
		ORDER BY ordinal_position`,
	primaryKeys: `
		SELECT COLUMN_NAME AS column_name
		FROM information_schema.key_column_usage
		WHERE constraint_name = 'PRIMARY'
			AND table_name = ? AND table_schema = ?
		ORDER BY ordinal_position`,
	indexes: `
		SELECT
			INDEX_NAME AS index_name,
			GROUP_CONCAT(COLUMN_NAME ORDER BY SEQ_IN_INDEX) AS columns,
			CASE WHEN NON_UNIQUE = 0 THEN true ELSE false END AS is_unique
		FROM information_schema.statistics
		WHERE table_name = ? AND table_schema = ?
		GROUP BY index_name, non_unique
		ORDER BY index_name`,
	foreignKeys: `
		SELECT
			CONSTRAINT_NAME AS constraint_name,
			COLUMN_NAME AS column_name,
			REFERENCED_TABLE_NAME AS referenced_table,
			REFERENCED_COLUMN_NAME AS referenced_column
		FROM information_schema.key_column_usage
		WHERE REFERENCED_TABLE_NAME IS NOT NULL
			AND table_name = ? AND table_schema = ?
		ORDER BY CONSTRAINT_NAME`,
	rowEstimate: `
		SELECT COALESCE(TABLE_ROWS, 0) AS row_estimate
		FROM information_schema.tables
		WHERE table_name = ? AND table_schema = ?`,
}

func sqlForDriver(driver string) dialectSQL {
	if driver == "mysql" {
		return mysqlSQL
	}
	return postgresSQL
}

// normalizeTableType folds the dialects' table_type values (BASE TABLE,
// SYSTEM VIEW, ...) into "table" / "view".
func normalizeTableType(tableType string) string {
	t := strings.ToLower(tableType)
	switch {
	case strings.Contains(t, "base table"):
		return "table"
	case strings.Contains(t, "view"):
		return "view"
	default:
		return t
	}
}

// splitIndexColumns parses the aggregated column list, which arrives as a
// Postgres array literal ({a,b}) or a MySQL GROUP_CONCAT string (a,b).
func splitIndexColumns(raw string) []string {
	raw = strings.Trim(raw, "{}")
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case string:
		switch strings.ToLower(b) {
		case "true", "t", "yes", "1":
			return true
		}
	}
	return false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		var out int64
		if _, err := fmt.Sscan(n, &out); err == nil {
			return out, true
		}
	case []byte:
		var out int64
		if _, err := fmt.Sscan(string(n), &out); err == nil {
			return out, true
		}
	}
	return 0, false
}

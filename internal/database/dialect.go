// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package database

import (
	"fmt"
	"strings"
)

// Dialect captures the SQL differences between the supported backends.
type Dialect int

const (
	DialectDuckDB Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "duckdb"
}

func (d Dialect) jsonType() string {
	if d == DialectPostgres {
		return "JSONB"
	}
	return "JSON"
}

func (d Dialect) timestampType() string {
	if d == DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// existing references a column of the conflicting row inside
// ON CONFLICT DO UPDATE. PostgreSQL requires the table qualifier; DuckDB
// resolves bare names to the existing row.
func (d Dialect) existing(table, column string) string {
	if d == DialectPostgres {
		return table + "." + column
	}
	return column
}

// castJSON wraps a placeholder so text parameters land in the JSON column.
func (d Dialect) castJSON(placeholder string) string {
	return fmt.Sprintf("CAST(%s AS %s)", placeholder, d.jsonType())
}

// entityColumns is the insert column order used by upsertSQL.
const entityColumns = "id, tenant_id, parent_id, payload, created_at, updated_at"

const entityParamsPerRow = 6

// upsertSQL builds a multi-row upsert for rows entity rows. The update only
// fires when the stored payload differs structurally from the incoming one,
// which keeps updated_at stable across unchanged re-syncs.
func (d Dialect) upsertSQL(table string, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, entityColumns)
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		base := r * entityParamsPerRow
		fmt.Fprintf(&b, "($%d, $%d, $%d, %s, $%d, $%d)",
			base+1, base+2, base+3, d.castJSON(fmt.Sprintf("$%d", base+4)), base+5, base+6)
	}
	fmt.Fprintf(&b, " ON CONFLICT (id) DO UPDATE SET tenant_id = excluded.tenant_id, parent_id = excluded.parent_id, payload = excluded.payload, updated_at = excluded.updated_at WHERE %s IS DISTINCT FROM excluded.payload",
		d.existing(table, "payload"))
	return b.String()
}

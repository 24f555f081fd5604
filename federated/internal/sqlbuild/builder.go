package sqlbuild

import (
	"strings"

	"golang.org/x/text/encoding"

	"github.com/kundb/go-federated/sqltypes"
)

// Builder renders statements for one federated table.
type Builder struct {
	Def *sqltypes.TableDef
	// Enc is the remote connection encoding; nil for Unicode remotes.
	Enc encoding.Encoding
}

// SelectAll returns the pre-built full projection: "SELECT `a`, `b` FROM `t`".
// It is cached on the share at open time.
func (b *Builder) SelectAll() string {
	return b.Select(sqltypes.ColumnSet{}, false)
}

// Select returns the scan projection. With pruning enabled, columns outside
// the read set are replaced by "NULL AS `col`" so the remote does not ship
// data the executor will not look at.
func (b *Builder) Select(readSet sqltypes.ColumnSet, prune bool) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i := range b.Def.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		if prune && !readSet.Has(i) {
			sb.WriteString("NULL AS ")
			AppendIdent(&sb, b.Def.Columns[i].Name)
			continue
		}
		AppendIdent(&sb, b.Def.Columns[i].Name)
	}
	sb.WriteString(" FROM ")
	AppendIdent(&sb, b.Def.RemoteTable)
	return sb.String()
}

// AppendFilter appends a pushed-down filter to a statement that may already
// carry a WHERE clause.
func AppendFilter(query, filter string, hasWhere bool) string {
	if filter == "" {
		return query
	}
	if hasWhere {
		return query + " AND (" + filter + ")"
	}
	return query + " WHERE (" + filter + ")"
}

// RowCondition renders the old-image condition of an UPDATE or DELETE: one
// comparison per column in cols, values taken from row, joined by AND.
func (b *Builder) RowCondition(row sqltypes.Row, cols sqltypes.ColumnSet) (string, error) {
	var sb strings.Builder
	first := true
	for i := range b.Def.Columns {
		if !cols.Has(i) {
			continue
		}
		if !first {
			sb.WriteString(" AND ")
		}
		first = false
		AppendIdent(&sb, b.Def.Columns[i].Name)
		if row[i].Null {
			sb.WriteString(" IS NULL")
			continue
		}
		sb.WriteString(" = ")
		if err := appendValue(&sb, row[i], b.Enc); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

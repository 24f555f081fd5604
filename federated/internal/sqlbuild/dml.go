package sqlbuild

import (
	"errors"
	"strings"

	"github.com/kundb/go-federated/sqltypes"
)

// DupPolicy selects the duplicate-row handling of inserts.
type DupPolicy int

const (
	DupError DupPolicy = iota
	DupIgnore
	DupReplace
)

// InsertPrefix renders the statement head shared by single and bulk inserts:
// "INSERT [IGNORE] INTO `t` (`a`, `b`) VALUES " (or "REPLACE INTO"). An empty
// write set emits no column list so that "VALUES ()" inserts all defaults.
func (b *Builder) InsertPrefix(writeSet sqltypes.ColumnSet, policy DupPolicy) string {
	var sb strings.Builder
	switch policy {
	case DupReplace:
		sb.WriteString("REPLACE INTO ")
	case DupIgnore:
		sb.WriteString("INSERT IGNORE INTO ")
	default:
		sb.WriteString("INSERT INTO ")
	}
	AppendIdent(&sb, b.Def.RemoteTable)
	if writeSet.IsEmpty() {
		sb.WriteString(" VALUES ")
		return sb.String()
	}
	sb.WriteString(" (")
	first := true
	for i := range b.Def.Columns {
		if !writeSet.Has(i) {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		AppendIdent(&sb, b.Def.Columns[i].Name)
	}
	sb.WriteString(") VALUES ")
	return sb.String()
}

// ValuesTuple renders one "(v1,v2)" tuple of the write-set columns.
func (b *Builder) ValuesTuple(row sqltypes.Row, writeSet sqltypes.ColumnSet) (string, error) {
	var sb strings.Builder
	sb.WriteString("(")
	first := true
	for i := range b.Def.Columns {
		if !writeSet.Has(i) {
			continue
		}
		if !first {
			sb.WriteString(",")
		}
		first = false
		if err := appendValue(&sb, row[i], b.Enc); err != nil {
			return "", err
		}
	}
	sb.WriteString(")")
	return sb.String(), nil
}

// Insert renders a complete single-row insert.
func (b *Builder) Insert(row sqltypes.Row, writeSet sqltypes.ColumnSet, policy DupPolicy) (string, error) {
	tuple, err := b.ValuesTuple(row, writeSet)
	if err != nil {
		return "", err
	}
	return b.InsertPrefix(writeSet, policy) + tuple, nil
}

// Update renders "UPDATE [IGNORE] `t` SET col = v, ... WHERE <cond>". The new
// image comes from newRow restricted to writeSet, the condition from oldRow
// restricted to condSet. Without a usable primary key the statement is capped
// with LIMIT 1 so that exactly the one local row is touched.
func (b *Builder) Update(oldRow, newRow sqltypes.Row, writeSet, condSet sqltypes.ColumnSet, ignore, limit1 bool) (string, error) {
	if writeSet.IsEmpty() {
		return "", errors.New("sqlbuild: update with empty write set")
	}
	var sb strings.Builder
	if ignore {
		sb.WriteString("UPDATE IGNORE ")
	} else {
		sb.WriteString("UPDATE ")
	}
	AppendIdent(&sb, b.Def.RemoteTable)
	sb.WriteString(" SET ")
	first := true
	for i := range b.Def.Columns {
		if !writeSet.Has(i) {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		AppendIdent(&sb, b.Def.Columns[i].Name)
		sb.WriteString(" = ")
		if err := appendValue(&sb, newRow[i], b.Enc); err != nil {
			return "", err
		}
	}
	cond, err := b.RowCondition(oldRow, condSet)
	if err != nil {
		return "", err
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(cond)
	if limit1 {
		sb.WriteString(" LIMIT 1")
	}
	return sb.String(), nil
}

// Delete renders "DELETE FROM `t` WHERE <cond> [LIMIT 1]".
func (b *Builder) Delete(row sqltypes.Row, condSet sqltypes.ColumnSet, limit1 bool) (string, error) {
	cond, err := b.RowCondition(row, condSet)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	AppendIdent(&sb, b.Def.RemoteTable)
	sb.WriteString(" WHERE ")
	sb.WriteString(cond)
	if limit1 {
		sb.WriteString(" LIMIT 1")
	}
	return sb.String(), nil
}

package sqltypes

// Column describes one local table column as seen by the translator.
type Column struct {
	Name     string
	Kind     ColumnKind
	Nullable bool
}

// IndexPart is one column of an index definition. PrefixLen is non-zero for
// string prefix parts. Whether an exact lookup matches its last part with LIKE
// is decided by KeyBound.PrefixLast, not by PrefixLen.
type IndexPart struct {
	Column    int
	PrefixLen int
}

// Index is one local index definition.
type Index struct {
	Name   string
	Unique bool
	Parts  []IndexPart
}

// TableDef is the handler-facing description of one federated table: the
// local shape plus the remote table identity.
type TableDef struct {
	Name        string // local table name, used as the share key
	RemoteTable string
	Columns     []Column
	Indexes     []Index
	PrimaryKey  int // ordinal into Indexes, -1 when the table has none
	// Charset is the local table character set; it becomes the remote
	// connection charset and drives literal transcoding.
	Charset string
	Comment string // local table comment, may carry planner directives
}

// ColumnOrdinal returns the ordinal of the named column or -1. Matching is
// case sensitive; the executor hands over names exactly as defined.
func (d *TableDef) ColumnOrdinal(name string) int {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return i
		}
	}
	return -1
}

// HasPrimaryKey reports whether a primary key index is defined.
func (d *TableDef) HasPrimaryKey() bool {
	return d.PrimaryKey >= 0 && d.PrimaryKey < len(d.Indexes)
}

// PrimaryKeySet returns the set of columns covered by the primary key, or an
// empty set when the table has none.
func (d *TableDef) PrimaryKeySet() ColumnSet {
	var set ColumnSet
	if !d.HasPrimaryKey() {
		return set
	}
	for _, part := range d.Indexes[d.PrimaryKey].Parts {
		set.Set(part.Column)
	}
	return set
}

package remote

// ResultSet is a fully stored remote result. It supports forward iteration,
// per-cell null checks and random seeks to previously marked row offsets.
// Multiple result sets can be alive concurrently on one driver; the handler
// releases them collectively on reset.
type ResultSet struct {
	fields []string
	rows   [][][]byte
	cur    int
}

// NumFields returns the number of result columns.
func (r *ResultSet) NumFields() int { return len(r.fields) }

// Fields returns the result column names.
func (r *ResultSet) Fields() []string { return r.fields }

// NumRows returns the number of stored rows.
func (r *ResultSet) NumRows() uint64 { return uint64(len(r.rows)) }

// Cursor returns the offset of the row the next Fetch will return.
func (r *ResultSet) Cursor() int { return r.cur }

// Fetch returns the next row and advances the cursor. A nil cell is a SQL
// NULL. ok is false past the last row.
func (r *ResultSet) Fetch() (row [][]byte, ok bool) {
	if r.cur >= len(r.rows) {
		return nil, false
	}
	row = r.rows[r.cur]
	r.cur++
	return row, true
}

// Seek positions the cursor on a row offset previously taken from Cursor.
func (r *ResultSet) Seek(offset int) { r.cur = offset }

// IsNull reports whether the cell at col of row is NULL.
func IsNull(row [][]byte, col int) bool { return row[col] == nil }

// Ref is the opaque positional reference the handler hands to the executor:
// result identity plus row cursor. The zero Ref marks end of file.
type Ref struct {
	Result *ResultSet
	Offset int
}

// MarkPosition captures a durable reference to the row at the given cursor
// offset of a held result set.
func MarkPosition(rs *ResultSet, cursor int) Ref {
	return Ref{Result: rs, Offset: cursor}
}

// SeekPosition restores a marked position. It returns the referenced result
// set with its cursor rewound to the marked row, or ErrEndOfFile for a
// zeroed or exhausted reference.
func SeekPosition(ref Ref) (*ResultSet, error) {
	if ref.Result == nil || ref.Offset < 0 || ref.Offset >= len(ref.Result.rows) {
		return nil, ErrEndOfFile
	}
	ref.Result.Seek(ref.Offset)
	return ref.Result, nil
}

// NewTestResultSet builds a stored result from literal rows. Test support.
func NewTestResultSet(fields []string, rows [][][]byte) *ResultSet {
	return &ResultSet{fields: fields, rows: rows}
}

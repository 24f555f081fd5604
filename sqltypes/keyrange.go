package sqltypes

// RangeFlag qualifies one side of a key range.
type RangeFlag int

const (
	// RangeExact matches the key parts exactly (col = v). On a string
	// prefix part it degrades to a LIKE prefix match.
	RangeExact RangeFlag = iota
	// RangeAfter excludes the boundary on the start side (col > v) and
	// includes everything up to it on the end side (col <= v).
	RangeAfter
	// RangeOrNext includes the boundary going forward (col >= v).
	RangeOrNext
	// RangeBefore excludes the boundary going backward (col < v).
	RangeBefore
	// RangeOrPrev includes the boundary going backward (col <= v).
	RangeOrPrev
)

// KeyBound is one side of a key range: a flag plus a value per key part, in
// index order. A bound may cover a prefix of the index parts only.
type KeyBound struct {
	Flag RangeFlag
	// Parts holds one value per covered key part. A NULL value matches
	// with IS NULL (exact) or IS NOT NULL (inexact).
	Parts []Value
	// PrefixLast marks the last covered part as a string prefix; an exact
	// bound then matches with LIKE 'v%'.
	PrefixLast bool
}

// KeyRange is a pair of optional bounds. A nil side is unbounded.
type KeyRange struct {
	Start *KeyBound
	End   *KeyBound
}

package remote

import "strings"

// PartialMode is the decomposition of a logical full scan into smaller
// remote queries.
type PartialMode int

const (
	PartialNone PartialMode = iota
	// PartialShard issues the scan once per shard namespace.
	PartialShard
	// PartialRange slices the scan along the cached range boundaries of
	// the sharding column.
	PartialRange
	// PartialShardRange nests range slices inside the shard walk.
	PartialShardRange
)

func (m PartialMode) String() string {
	switch m {
	case PartialNone:
		return "none"
	case PartialShard:
		return "shard"
	case PartialRange:
		return "range"
	case PartialShardRange:
		return "shard-range"
	default:
		return "unknown"
	}
}

// ScanInfo drives a partial read: the captured base query and filter plus
// the shard and range walk state. The driver consumes one segment per Query
// call; the handler keeps calling while HasNext reports remaining segments.
type ScanInfo struct {
	Mode PartialMode
	// BaseQuery is the projection and table, without WHERE.
	BaseQuery string
	// Filter is the pushed-down condition, empty when none.
	Filter string
	// ForUpdate decorates every segment with a write lock.
	ForUpdate bool

	Shards      []string
	ShardOffset int

	// RangeCol is the sharding column; boundaries are its ascending
	// values in literal form. RangeQuote marks a string-typed column.
	RangeCol    string
	RangeQuote  bool
	RangeValues []string
	RangeOffset int
}

// HasNext reports whether segments remain.
func (si *ScanInfo) HasNext() bool {
	switch si.Mode {
	case PartialShard:
		return si.ShardOffset < len(si.Shards)
	case PartialRange:
		return si.RangeOffset <= len(si.RangeValues)
	case PartialShardRange:
		if si.ShardOffset < len(si.Shards)-1 {
			return true
		}
		return si.ShardOffset == len(si.Shards)-1 && si.RangeOffset <= len(si.RangeValues)
	default:
		return false
	}
}

// next renders the upcoming segment and advances the walk. shard is the
// namespace the statement must run in, empty for plain range segments.
func (si *ScanInfo) next() (shard, query string) {
	var sb strings.Builder
	switch si.Mode {
	case PartialShard:
		shard = si.Shards[si.ShardOffset]
		si.ShardOffset++
		sb.WriteString(si.BaseQuery)
		if si.Filter != "" {
			sb.WriteString(" WHERE ")
			sb.WriteString(si.Filter)
		}
		if si.ForUpdate {
			sb.WriteString(" FOR UPDATE")
		}
		return shard, sb.String()
	case PartialShardRange:
		// the inner range walk exhausts before the shard advances
		if si.RangeOffset > len(si.RangeValues) {
			si.RangeOffset = 0
			si.ShardOffset++
		}
		shard = si.Shards[si.ShardOffset]
	}

	sb.WriteString(si.BaseQuery)
	sb.WriteString(" WHERE (")
	si.appendRangeCond(&sb)
	sb.WriteString(")")
	if si.Filter != "" {
		sb.WriteString(" AND (")
		sb.WriteString(si.Filter)
		sb.WriteString(")")
	}
	si.RangeOffset++
	if si.ForUpdate {
		sb.WriteString(" FOR UPDATE")
	}
	return shard, sb.String()
}

// appendRangeCond renders the boundary condition of the current range
// segment: col <= b[0], b[k-1] < col <= b[k], col > b[n-1].
func (si *ScanInfo) appendRangeCond(sb *strings.Builder) {
	switch {
	case si.RangeOffset == 0:
		appendIdent(sb, si.RangeCol)
		sb.WriteString(" <= ")
		si.appendBoundary(sb, 0)
	case si.RangeOffset == len(si.RangeValues):
		appendIdent(sb, si.RangeCol)
		sb.WriteString(" > ")
		si.appendBoundary(sb, si.RangeOffset-1)
	default:
		appendIdent(sb, si.RangeCol)
		sb.WriteString(" > ")
		si.appendBoundary(sb, si.RangeOffset-1)
		sb.WriteString(" AND ")
		appendIdent(sb, si.RangeCol)
		sb.WriteString(" <= ")
		si.appendBoundary(sb, si.RangeOffset)
	}
}

func (si *ScanInfo) appendBoundary(sb *strings.Builder, i int) {
	if si.RangeQuote {
		sb.WriteString("'")
	}
	sb.WriteString(si.RangeValues[i])
	if si.RangeQuote {
		sb.WriteString("'")
	}
}

func appendIdent(sb *strings.Builder, name string) {
	sb.WriteByte('`')
	for i := 0; i < len(name); i++ {
		if name[i] == '`' {
			sb.WriteByte('`')
		}
		sb.WriteByte(name[i])
	}
	sb.WriteByte('`')
}

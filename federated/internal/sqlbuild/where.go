package sqlbuild

import (
	"errors"
	"strings"

	"github.com/kundb/go-federated/sqltypes"
)

// ErrEmptyRange is returned when a key range has neither side.
var ErrEmptyRange = errors.New("sqlbuild: key range has no bounds")

// WhereFromKey renders the condition text of a key range over the given
// index. The two sides are emitted as "(start) AND (end)" when both are
// present. fromRecordsInRange relaxes exact matches on the start side to >=
// (and on the end side to <=) the way a row-count probe needs them; eqRange
// marks a degenerate equality range whose end side collapses to a dummy
// condition.
//
// The returned text carries no leading WHERE keyword.
func (b *Builder) WhereFromKey(idx sqltypes.Index, kr sqltypes.KeyRange, fromRecordsInRange, eqRange bool) (string, error) {
	if kr.Start == nil && kr.End == nil {
		return "", ErrEmptyRange
	}
	var sb strings.Builder
	both := kr.Start != nil && kr.End != nil
	for side, bound := range []*sqltypes.KeyBound{kr.Start, kr.End} {
		if bound == nil {
			continue
		}
		if both {
			if side > 0 {
				sb.WriteString(") AND (")
			} else {
				sb.WriteString("(")
			}
		}
		if err := b.emitBound(&sb, idx, bound, side == 1, fromRecordsInRange, eqRange); err != nil {
			return "", err
		}
	}
	if both {
		sb.WriteString(")")
	}
	return sb.String(), nil
}

func (b *Builder) emitBound(sb *strings.Builder, idx sqltypes.Index, bound *sqltypes.KeyBound, endSide, fromRecordsInRange, eqRange bool) error {
	for i, v := range bound.Parts {
		if i >= len(idx.Parts) {
			return errors.New("sqlbuild: key bound covers more parts than the index")
		}
		part := idx.Parts[i]
		col := b.Def.Columns[part.Column]
		last := i == len(bound.Parts)-1
		if i > 0 {
			sb.WriteString(" AND ")
		}

		if col.Nullable && v.Null {
			AppendIdent(sb, col.Name)
			if bound.Flag == sqltypes.RangeExact {
				sb.WriteString(" IS NULL")
			} else {
				sb.WriteString(" IS NOT NULL")
			}
			continue
		}

		sb.WriteString("(")
		if err := b.emitComparison(sb, col, bound, v, last, endSide, fromRecordsInRange, eqRange); err != nil {
			return err
		}
		sb.WriteString(")")
	}
	return nil
}

func (b *Builder) emitComparison(sb *strings.Builder, col sqltypes.Column, bound *sqltypes.KeyBound, v sqltypes.Value, last, endSide, fromRecordsInRange, eqRange bool) error {
	flag := bound.Flag
	// a composite bound constrains every part but the last one inclusively
	if !last {
		switch flag {
		case sqltypes.RangeAfter:
			flag = sqltypes.RangeOrNext
		case sqltypes.RangeBefore:
			flag = sqltypes.RangeOrPrev
		}
	}

	switch flag {
	case sqltypes.RangeExact:
		if last && bound.PrefixLast && col.Kind == sqltypes.KindString {
			AppendIdent(sb, col.Name)
			sb.WriteString(" LIKE ")
			return appendLikePrefix(sb, v, b.Enc)
		}
		AppendIdent(sb, col.Name)
		if fromRecordsInRange {
			if endSide {
				sb.WriteString(" <= ")
			} else {
				sb.WriteString(" >= ")
			}
		} else {
			sb.WriteString(" = ")
		}
	case sqltypes.RangeAfter:
		if eqRange {
			sb.WriteString("1=1")
			return nil
		}
		AppendIdent(sb, col.Name)
		if endSide {
			sb.WriteString(" <= ")
		} else {
			sb.WriteString(" > ")
		}
	case sqltypes.RangeOrNext:
		AppendIdent(sb, col.Name)
		sb.WriteString(" >= ")
	case sqltypes.RangeBefore:
		AppendIdent(sb, col.Name)
		sb.WriteString(" < ")
	case sqltypes.RangeOrPrev:
		AppendIdent(sb, col.Name)
		sb.WriteString(" <= ")
	default:
		return errors.New("sqlbuild: unsupported range flag")
	}
	return appendValue(sb, v, b.Enc)
}

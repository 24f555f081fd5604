// Package sqltypes holds the value and table contracts shared between the
// federated handler and the local query executor. The executor owns the row
// and field representation; this package is the narrow, engine-neutral view
// of it the handler needs to translate operations into remote SQL.
package sqltypes

import (
	"fmt"
	"strconv"
	"time"
)

// ColumnKind classifies a column for literal rendering. The translator only
// cares about quoting and escaping rules, not about the full local type
// system.
type ColumnKind int

const (
	KindInt ColumnKind = iota
	KindUint
	KindFloat
	KindDecimal
	KindString // character data, charset aware
	KindBytes  // BLOB, VARBINARY
	KindBit
	KindTime // temporal, rendered in UTC
)

func (k ColumnKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindBit:
		return "bit"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("ColumnKind(%d)", int(k))
	}
}

// Quoted reports whether literals of this kind are emitted inside single
// quotes.
func (k ColumnKind) Quoted() bool {
	switch k {
	case KindString, KindBytes, KindTime:
		return true
	default:
		return false
	}
}

// Value is one cell of a local row in its canonical wire form. Raw holds the
// textual form for numeric and temporal kinds and the uninterpreted bytes for
// string, bytes and bit kinds. A NULL cell has Null set and Raw nil.
type Value struct {
	Kind ColumnKind
	Null bool
	Raw  []byte
}

// Row is a full local row image, one Value per table column.
type Row []Value

// Null returns a NULL value of the given kind.
func Null(kind ColumnKind) Value { return Value{Kind: kind, Null: true} }

// Int64 returns an integer value.
func Int64(v int64) Value {
	return Value{Kind: KindInt, Raw: strconv.AppendInt(nil, v, 10)}
}

// Uint64 returns an unsigned integer value.
func Uint64(v uint64) Value {
	return Value{Kind: KindUint, Raw: strconv.AppendUint(nil, v, 10)}
}

// Float64 returns a floating point value.
func Float64(v float64) Value {
	return Value{Kind: KindFloat, Raw: strconv.AppendFloat(nil, v, 'g', -1, 64)}
}

// Decimal returns a decimal value from its textual form.
func Decimal(s string) Value { return Value{Kind: KindDecimal, Raw: []byte(s)} }

// String returns a character value.
func String(s string) Value { return Value{Kind: KindString, Raw: []byte(s)} }

// Bytes returns a binary value.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Raw: b} }

// Bit returns a bit-field value from its raw big-endian bytes.
func Bit(b []byte) Value { return Value{Kind: KindBit, Raw: b} }

// Time returns a temporal value. The literal is always rendered in UTC so
// that round-trips through the remote are bit-exact regardless of the local
// session time zone.
func Time(t time.Time) Value {
	return Value{Kind: KindTime, Raw: []byte(t.UTC().Format("2006-01-02 15:04:05.999999"))}
}

// IsNull reports whether the value is NULL.
func (v Value) IsNull() bool { return v.Null }

// Text returns the canonical textual form. For NULL values it returns the
// empty string.
func (v Value) Text() string { return string(v.Raw) }

func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	return string(v.Raw)
}

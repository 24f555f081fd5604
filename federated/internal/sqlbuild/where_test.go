package sqlbuild

import (
	"testing"

	"github.com/kundb/go-federated/sqltypes"
)

func bound(flag sqltypes.RangeFlag, parts ...sqltypes.Value) *sqltypes.KeyBound {
	return &sqltypes.KeyBound{Flag: flag, Parts: parts}
}

func TestWhereFromKey(t *testing.T) {
	b := testBuilder()
	pk := b.Def.Indexes[0]
	nameIdx := b.Def.Indexes[1]

	tests := []struct {
		name    string
		idx     sqltypes.Index
		kr      sqltypes.KeyRange
		inRange bool
		eqRange bool
		want    string
	}{
		{
			name: "exact single part",
			idx:  pk,
			kr:   sqltypes.KeyRange{Start: bound(sqltypes.RangeExact, sqltypes.Int64(42))},
			want: "(`id` = 42)",
		},
		{
			name:    "exact from records in range",
			idx:     pk,
			kr:      sqltypes.KeyRange{Start: bound(sqltypes.RangeExact, sqltypes.Int64(42))},
			inRange: true,
			want:    "(`id` >= 42)",
		},
		{
			name: "after start side",
			idx:  pk,
			kr:   sqltypes.KeyRange{Start: bound(sqltypes.RangeAfter, sqltypes.Int64(3))},
			want: "(`id` > 3)",
		},
		{
			name: "both sides",
			idx:  pk,
			kr: sqltypes.KeyRange{
				Start: bound(sqltypes.RangeOrNext, sqltypes.Int64(3)),
				End:   bound(sqltypes.RangeBefore, sqltypes.Int64(9)),
			},
			want: "((`id` >= 3)) AND ((`id` < 9))",
		},
		{
			name: "after end side is inclusive",
			idx:  pk,
			kr: sqltypes.KeyRange{
				Start: bound(sqltypes.RangeExact, sqltypes.Int64(3)),
				End:   bound(sqltypes.RangeAfter, sqltypes.Int64(9)),
			},
			want: "((`id` = 3)) AND ((`id` <= 9))",
		},
		{
			name: "eq range end collapses",
			idx:  pk,
			kr: sqltypes.KeyRange{
				Start: bound(sqltypes.RangeExact, sqltypes.Int64(3)),
				End:   bound(sqltypes.RangeAfter, sqltypes.Int64(3)),
			},
			eqRange: true,
			want:    "((`id` = 3)) AND ((1=1))",
		},
		{
			name: "null part exact",
			idx:  nameIdx,
			kr:   sqltypes.KeyRange{Start: bound(sqltypes.RangeExact, sqltypes.Null(sqltypes.KindString))},
			want: "`name` IS NULL",
		},
		{
			name: "null part inexact",
			idx:  nameIdx,
			kr:   sqltypes.KeyRange{Start: bound(sqltypes.RangeAfter, sqltypes.Null(sqltypes.KindString))},
			want: "`name` IS NOT NULL",
		},
		{
			name: "composite inner part inclusive",
			idx:  nameIdx,
			kr:   sqltypes.KeyRange{Start: bound(sqltypes.RangeAfter, sqltypes.String("m"), sqltypes.Int64(5))},
			want: "(`name` >= 'm') AND (`id` > 5)",
		},
		{
			name: "or prev",
			idx:  pk,
			kr:   sqltypes.KeyRange{End: bound(sqltypes.RangeOrPrev, sqltypes.Int64(10))},
			want: "(`id` <= 10)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.WhereFromKey(tt.idx, tt.kr, tt.inRange, tt.eqRange)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWhereFromKeyLikePrefix(t *testing.T) {
	b := testBuilder()
	kr := sqltypes.KeyRange{
		Start: &sqltypes.KeyBound{
			Flag:       sqltypes.RangeExact,
			Parts:      []sqltypes.Value{sqltypes.String("ab")},
			PrefixLast: true,
		},
	}
	got, err := b.WhereFromKey(b.Def.Indexes[1], kr, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "(`name` LIKE 'ab%')" {
		t.Fatalf("got %q", got)
	}
}

func TestWhereFromKeyEmpty(t *testing.T) {
	b := testBuilder()
	if _, err := b.WhereFromKey(b.Def.Indexes[0], sqltypes.KeyRange{}, false, false); err == nil {
		t.Fatal("expected error for empty range")
	}
}

package sqlbuild

import (
	"strings"
	"testing"
	"time"

	"github.com/kundb/go-federated/sqltypes"
)

func testDef() *sqltypes.TableDef {
	return &sqltypes.TableDef{
		Name:        "db/t",
		RemoteTable: "t",
		Columns: []sqltypes.Column{
			{Name: "id", Kind: sqltypes.KindInt},
			{Name: "name", Kind: sqltypes.KindString, Nullable: true},
			{Name: "payload", Kind: sqltypes.KindBytes, Nullable: true},
			{Name: "flags", Kind: sqltypes.KindBit},
			{Name: "created", Kind: sqltypes.KindTime},
		},
		Indexes: []sqltypes.Index{
			{Name: "PRIMARY", Unique: true, Parts: []sqltypes.IndexPart{{Column: 0}}},
			{Name: "name_idx", Parts: []sqltypes.IndexPart{{Column: 1}, {Column: 0}}},
		},
		PrimaryKey: 0,
	}
}

func testBuilder() *Builder { return &Builder{Def: testDef()} }

func TestSelect(t *testing.T) {
	b := testBuilder()
	want := "SELECT `id`, `name`, `payload`, `flags`, `created` FROM `t`"
	if got := b.SelectAll(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSelectPruned(t *testing.T) {
	b := testBuilder()
	want := "SELECT `id`, NULL AS `name`, NULL AS `payload`, NULL AS `flags`, `created` FROM `t`"
	got := b.Select(sqltypes.NewColumnSet(0, 4), true)
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAppendValue(t *testing.T) {
	tests := []struct {
		name string
		v    sqltypes.Value
		want string
	}{
		{"int", sqltypes.Int64(-7), "-7"},
		{"uint", sqltypes.Uint64(42), "42"},
		{"float", sqltypes.Float64(1.5), "1.5"},
		{"decimal", sqltypes.Decimal("10.250"), "10.250"},
		{"string", sqltypes.String("o'hare"), "'o''hare'"},
		{"bytes", sqltypes.Bytes([]byte{'a', '\'', 'b'}), "'a''b'"},
		{"bit", sqltypes.Bit([]byte{0xAB, 0x01}), "0xab01"},
		{"bit empty", sqltypes.Bit(nil), "0x00"},
		{"null", sqltypes.Null(sqltypes.KindInt), "NULL"},
		{"time utc", sqltypes.Time(time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("x", 3600))), "'2024-03-01 11:30:00'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			if err := appendValue(&b, tt.v, nil); err != nil {
				t.Fatal(err)
			}
			if b.String() != tt.want {
				t.Fatalf("got %q, want %q", b.String(), tt.want)
			}
		})
	}
}

func TestInsert(t *testing.T) {
	b := testBuilder()
	row := sqltypes.Row{
		sqltypes.Int64(1),
		sqltypes.String("a"),
		sqltypes.Null(sqltypes.KindBytes),
		sqltypes.Bit([]byte{1}),
		sqltypes.Time(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
	}
	got, err := b.Insert(row, sqltypes.NewColumnSet(0, 1), DupError)
	if err != nil {
		t.Fatal(err)
	}
	want := "INSERT INTO `t` (`id`, `name`) VALUES (1,'a')"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInsertPolicies(t *testing.T) {
	b := testBuilder()
	set := sqltypes.NewColumnSet(0)
	if got := b.InsertPrefix(set, DupIgnore); got != "INSERT IGNORE INTO `t` (`id`) VALUES " {
		t.Fatalf("ignore: got %q", got)
	}
	if got := b.InsertPrefix(set, DupReplace); got != "REPLACE INTO `t` (`id`) VALUES " {
		t.Fatalf("replace: got %q", got)
	}
}

func TestInsertEmptyWriteSet(t *testing.T) {
	b := testBuilder()
	got, err := b.Insert(make(sqltypes.Row, 5), sqltypes.ColumnSet{}, DupError)
	if err != nil {
		t.Fatal(err)
	}
	if got != "INSERT INTO `t` VALUES ()" {
		t.Fatalf("got %q", got)
	}
}

func TestUpdate(t *testing.T) {
	b := testBuilder()
	oldRow := sqltypes.Row{sqltypes.Int64(7), sqltypes.String("A"), sqltypes.Null(sqltypes.KindBytes), sqltypes.Bit([]byte{0}), sqltypes.Time(time.Unix(0, 0))}
	newRow := sqltypes.Row{sqltypes.Int64(7), sqltypes.String("B"), sqltypes.Null(sqltypes.KindBytes), sqltypes.Bit([]byte{0}), sqltypes.Time(time.Unix(0, 0))}

	got, err := b.Update(oldRow, newRow, sqltypes.NewColumnSet(1), sqltypes.NewColumnSet(0, 1), false, false)
	if err != nil {
		t.Fatal(err)
	}
	want := "UPDATE `t` SET `name` = 'B' WHERE `id` = 7 AND `name` = 'A'"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got, err = b.Update(oldRow, newRow, sqltypes.NewColumnSet(1), sqltypes.NewColumnSet(0), true, true)
	if err != nil {
		t.Fatal(err)
	}
	want = "UPDATE IGNORE `t` SET `name` = 'B' WHERE `id` = 7 LIMIT 1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDelete(t *testing.T) {
	b := testBuilder()
	row := sqltypes.Row{sqltypes.Int64(7), sqltypes.Null(sqltypes.KindString), sqltypes.Null(sqltypes.KindBytes), sqltypes.Bit([]byte{0}), sqltypes.Time(time.Unix(0, 0))}
	got, err := b.Delete(row, sqltypes.NewColumnSet(0, 1), true)
	if err != nil {
		t.Fatal(err)
	}
	want := "DELETE FROM `t` WHERE `id` = 7 AND `name` IS NULL LIMIT 1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAppendFilter(t *testing.T) {
	if got := AppendFilter("SELECT 1", "", false); got != "SELECT 1" {
		t.Fatalf("got %q", got)
	}
	if got := AppendFilter("SELECT 1", "a > 2", false); got != "SELECT 1 WHERE (a > 2)" {
		t.Fatalf("got %q", got)
	}
	if got := AppendFilter("SELECT 1 WHERE (x)", "a > 2", true); got != "SELECT 1 WHERE (x) AND (a > 2)" {
		t.Fatalf("got %q", got)
	}
}

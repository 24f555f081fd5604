package federated

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/go-sql-driver/mysql"

	"github.com/kundb/go-federated/federated/internal/registry"
	"github.com/kundb/go-federated/federated/internal/remote"
	"github.com/kundb/go-federated/federated/internal/remote/remotetest"
	"github.com/kundb/go-federated/sqltypes"
)

const setTZ = "set time_zone='+00:00'"

var handlerKey int

func testTableDef() *sqltypes.TableDef {
	return &sqltypes.TableDef{
		Name:        "db/t",
		RemoteTable: "t",
		Columns: []sqltypes.Column{
			{Name: "id", Kind: sqltypes.KindInt},
			{Name: "v", Kind: sqltypes.KindString},
		},
		Indexes: []sqltypes.Index{
			{Name: "PRIMARY", Unique: true, Parts: []sqltypes.IndexPart{{Column: 0}}},
		},
		PrimaryKey: 0,
	}
}

func testHandler(t *testing.T, scheme string) (*remotetest.Recorder, *Handler, *Session) {
	t.Helper()
	handlerKey++
	key := fmt.Sprintf("%s/%s/%d", t.Name(), scheme, handlerKey)
	rec := remotetest.New()
	ept := rec.Endpoint(remote.Config{Scheme: scheme, Database: "db0", Host: key})
	def := testTableDef()
	def.Name = key
	share := registry.AcquireShareWithEndpoint(key, ept, "t", "SELECT `id`, `v` FROM `t`")
	sess := NewSession(nil, nil)
	h := newHandler(sess, def, share)
	t.Cleanup(func() { h.Close() })
	return rec, h, sess
}

func wantWire(t *testing.T, rec *remotetest.Recorder, want ...string) {
	t.Helper()
	if !reflect.DeepEqual(rec.Statements, want) {
		t.Fatalf("wire order:\n got %q\nwant %q", rec.Statements, want)
	}
}

func TestIndexReadSingleStatement(t *testing.T) {
	// SELECT v FROM t WHERE id=42 must produce exactly one remote statement
	// and no transaction bookkeeping.
	rec, h, _ := testHandler(t, remote.SchemeStandard)
	query := "SELECT `id`, `v` FROM `t` WHERE (`id` = 42)"
	rec.SetResult(query, remotetest.Rows([]string{"id", "v"}, []any{"42", "seven"}))

	ctx := context.Background()
	if err := h.ExternalLock(ctx, LockRead); err != nil {
		t.Fatal(err)
	}
	kr := sqltypes.KeyRange{Start: &sqltypes.KeyBound{
		Flag:  sqltypes.RangeExact,
		Parts: []sqltypes.Value{sqltypes.Int64(42)},
	}}
	row, err := h.IndexReadIdx(ctx, 0, kr, false)
	if err != nil {
		t.Fatal(err)
	}
	if string(row[1]) != "seven" {
		t.Fatalf("row: got %q", row)
	}
	if _, err := h.IndexNext(); !errors.Is(err, ErrEndOfFile) {
		t.Fatalf("got %v, want end of file", err)
	}
	if err := h.ExternalLock(ctx, LockNone); err != nil {
		t.Fatal(err)
	}

	wantWire(t, rec, setTZ, query)
}

func TestBulkInsertSingleStatement(t *testing.T) {
	// INSERT INTO t VALUES (1,'a'),(2,'b'),(3,'c') collapses to one remote
	// statement; the autocommit window leaves no bookkeeping on the wire.
	rec, h, sess := testHandler(t, remote.SchemeStandard)
	ctx := context.Background()

	if err := h.ExternalLock(ctx, LockWrite); err != nil {
		t.Fatal(err)
	}
	h.StartBulkInsert(3)
	writeSet := sqltypes.NewColumnSet(0, 1)
	for _, r := range []struct {
		id int64
		v  string
	}{{1, "a"}, {2, "b"}, {3, "c"}} {
		row := sqltypes.Row{sqltypes.Int64(r.id), sqltypes.String(r.v)}
		if err := h.WriteRow(ctx, row, writeSet); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.EndBulkInsert(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.ExternalLock(ctx, LockNone); err != nil {
		t.Fatal(err)
	}
	if err := sess.StmtCommit(ctx); err != nil {
		t.Fatal(err)
	}

	wantWire(t, rec, setTZ,
		"INSERT INTO `t` (`id`, `v`) VALUES (1,'a'),(2,'b'),(3,'c')")
}

func TestBulkInsertBatchCap(t *testing.T) {
	rec, h, sess := testHandler(t, remote.SchemeStandard)
	sess.Attrs().SetBulkBatchSize(2)
	ctx := context.Background()

	if err := h.ExternalLock(ctx, LockWrite); err != nil {
		t.Fatal(err)
	}
	h.StartBulkInsert(0)
	writeSet := sqltypes.NewColumnSet(0, 1)
	for i := int64(1); i <= 3; i++ {
		row := sqltypes.Row{sqltypes.Int64(i), sqltypes.String("x")}
		if err := h.WriteRow(ctx, row, writeSet); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.EndBulkInsert(ctx); err != nil {
		t.Fatal(err)
	}

	wantWire(t, rec, setTZ,
		"INSERT INTO `t` (`id`, `v`) VALUES (1,'x'),(2,'x')",
		"INSERT INTO `t` (`id`, `v`) VALUES (3,'x')")
}

func TestExplicitTransactionLifecycle(t *testing.T) {
	// BEGIN; INSERT; SAVEPOINT s1; INSERT; ROLLBACK TO s1; COMMIT
	rec, h, sess := testHandler(t, remote.SchemeStandard)
	ctx := context.Background()

	sess.TxnBegin()
	if err := h.ExternalLock(ctx, LockWrite); err != nil {
		t.Fatal(err)
	}
	row := sqltypes.Row{sqltypes.Int64(1), sqltypes.String("a")}
	if err := h.WriteRow(ctx, row, sqltypes.NewColumnSet(0, 1)); err != nil {
		t.Fatal(err)
	}

	level := sess.Savepoint()
	if level != 2 {
		t.Fatalf("savepoint level: got %d, want 2", level)
	}
	row2 := sqltypes.Row{sqltypes.Int64(2), sqltypes.String("b")}
	if err := h.WriteRow(ctx, row2, sqltypes.NewColumnSet(0, 1)); err != nil {
		t.Fatal(err)
	}
	sess.RollbackTo(ctx, level)
	if err := sess.TxnCommit(ctx); err != nil {
		t.Fatal(err)
	}

	wantWire(t, rec, setTZ,
		"SET AUTOCOMMIT=0",
		"INSERT INTO `t` (`id`, `v`) VALUES (1,'a')",
		"SAVEPOINT save2",
		"INSERT INTO `t` (`id`, `v`) VALUES (2,'b')",
		"ROLLBACK TO SAVEPOINT save2",
		"COMMIT",
	)
}

func TestUpdateShardingColumnDecomposes(t *testing.T) {
	// updating a vindex column turns into DELETE old image + INSERT new image
	rec, h, sess := testHandler(t, remote.SchemeSharded)
	ctx := context.Background()
	sess.Attrs().SetSessionToken("tok")

	h.pkSet = h.def.PrimaryKeySet()
	h.pkInit = true
	h.vindexSet = sqltypes.NewColumnSet(1)
	h.vindexInit = true

	if err := h.ExternalLock(ctx, LockWrite); err != nil {
		t.Fatal(err)
	}
	oldRow := sqltypes.Row{sqltypes.Int64(7), sqltypes.String("A")}
	newRow := sqltypes.Row{sqltypes.Int64(7), sqltypes.String("B")}
	if err := h.UpdateRow(ctx, oldRow, newRow, sqltypes.NewColumnSet(1)); err != nil {
		t.Fatal(err)
	}

	wantWire(t, rec, setTZ,
		"set kundb_session='tok'",
		"DELETE FROM `t` WHERE `id` = 7 AND `v` = 'A' LIMIT 1",
		"INSERT INTO `t` (`id`, `v`) VALUES (7,'B')",
	)
}

func TestUpdateShardingColumnDuplicate(t *testing.T) {
	rec, h, _ := testHandler(t, remote.SchemeSharded)
	ctx := context.Background()

	h.pkSet = h.def.PrimaryKeySet()
	h.pkInit = true
	h.vindexSet = sqltypes.NewColumnSet(1)
	h.vindexInit = true

	del := "DELETE FROM `t` WHERE `id` = 7 AND `v` = 'A' LIMIT 1"
	rec.SetExecResult(del, remote.ExecResult{AffectedRows: 2})

	if err := h.ExternalLock(ctx, LockWrite); err != nil {
		t.Fatal(err)
	}
	oldRow := sqltypes.Row{sqltypes.Int64(7), sqltypes.String("A")}
	newRow := sqltypes.Row{sqltypes.Int64(7), sqltypes.String("B")}
	err := h.UpdateRow(ctx, oldRow, newRow, sqltypes.NewColumnSet(1))
	if !errors.Is(err, ErrFoundDuppUnique) {
		t.Fatalf("got %v, want duplicate-unique", err)
	}
	for _, stmt := range rec.Statements {
		if stmt == "INSERT INTO `t` (`id`, `v`) VALUES (7,'B')" {
			t.Fatal("insert must not run after a duplicate delete")
		}
	}
}

func TestUpdateWithoutPrimaryKeyCapsToOneRow(t *testing.T) {
	rec, h, _ := testHandler(t, remote.SchemeStandard)
	h.def.PrimaryKey = -1
	ctx := context.Background()

	if err := h.ExternalLock(ctx, LockWrite); err != nil {
		t.Fatal(err)
	}
	oldRow := sqltypes.Row{sqltypes.Int64(7), sqltypes.String("A")}
	newRow := sqltypes.Row{sqltypes.Int64(7), sqltypes.String("B")}
	if err := h.UpdateRow(ctx, oldRow, newRow, sqltypes.NewColumnSet(1)); err != nil {
		t.Fatal(err)
	}
	wantWire(t, rec, setTZ,
		"UPDATE `t` SET `v` = 'B' WHERE `id` = 7 AND `v` = 'A' LIMIT 1")
}

func TestDeleteRow(t *testing.T) {
	rec, h, _ := testHandler(t, remote.SchemeStandard)
	ctx := context.Background()

	if err := h.ExternalLock(ctx, LockWrite); err != nil {
		t.Fatal(err)
	}
	row := sqltypes.Row{sqltypes.Int64(7), sqltypes.String("A")}
	if err := h.DeleteRow(ctx, row); err != nil {
		t.Fatal(err)
	}
	wantWire(t, rec, setTZ,
		"DELETE FROM `t` WHERE `id` = 7 AND `v` = 'A' LIMIT 1")
}

func TestDuplicateKeyMapping(t *testing.T) {
	rec, h, _ := testHandler(t, remote.SchemeStandard)
	ctx := context.Background()

	stmt := "INSERT INTO `t` (`id`, `v`) VALUES (1,'a')"
	rec.FailWith(stmt, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	if err := h.ExternalLock(ctx, LockWrite); err != nil {
		t.Fatal(err)
	}
	row := sqltypes.Row{sqltypes.Int64(1), sqltypes.String("a")}
	err := h.WriteRow(ctx, row, sqltypes.NewColumnSet(0, 1))
	if !errors.Is(err, ErrFoundDuppKey) {
		t.Fatalf("got %v, want duplicate-key class", err)
	}
}

func TestRndPosZeroRefIsEndOfFile(t *testing.T) {
	_, h, _ := testHandler(t, remote.SchemeStandard)
	if _, err := h.RndPos(Ref{}); !errors.Is(err, ErrEndOfFile) {
		t.Fatalf("got %v, want end of file", err)
	}
}

func TestScanWithPartialRange(t *testing.T) {
	rec, h, sess := testHandler(t, remote.SchemeSharded)
	sess.Attrs().SetSessionToken("tok")
	ctx := context.Background()

	h.share.SetRangeInfo("id", false, []string{"100"})
	if !h.SetFetchMode("rg_rd") {
		t.Fatal("hint not accepted")
	}

	first := "SELECT `id`, `v` FROM `t` WHERE (`id` <= 100)"
	second := "SELECT `id`, `v` FROM `t` WHERE (`id` > 100)"
	rec.SetResult(first, remotetest.Rows([]string{"id", "v"}, []any{"1", "a"}))
	rec.SetResult(second, remotetest.Rows([]string{"id", "v"}, []any{"200", "b"}))

	if err := h.ExternalLock(ctx, LockRead); err != nil {
		t.Fatal(err)
	}
	if err := h.RndInit(ctx); err != nil {
		t.Fatal(err)
	}
	var got []string
	for {
		row, err := h.RndNext(ctx)
		if errors.Is(err, ErrEndOfFile) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, string(row[0]))
	}
	if err := h.RndEnd(); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"1", "200"}) {
		t.Fatalf("rows: got %v", got)
	}
	wantWire(t, rec, setTZ, "set kundb_session='tok'", first, second)
}

func TestPositionAndReRead(t *testing.T) {
	rec, h, _ := testHandler(t, remote.SchemeStandard)
	ctx := context.Background()

	query := "SELECT `id`, `v` FROM `t`"
	rec.SetResult(query, remotetest.Rows([]string{"id", "v"},
		[]any{"1", "a"}, []any{"2", "b"}, []any{"3", "c"}))

	if err := h.ExternalLock(ctx, LockRead); err != nil {
		t.Fatal(err)
	}
	if err := h.RndInit(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.RndNext(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.RndNext(ctx); err != nil {
		t.Fatal(err)
	}
	ref := h.Position() // row "2"
	if _, err := h.RndNext(ctx); err != nil {
		t.Fatal(err)
	}

	row, err := h.RndPos(ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(row[0]) != "2" {
		t.Fatalf("re-read: got %q, want 2", row[0])
	}
}

func TestInfoRefreshesStats(t *testing.T) {
	rec, h, _ := testHandler(t, remote.SchemeStandard)
	ctx := context.Background()

	statusFields := []string{
		"Name", "Engine", "Version", "Row_format", "Rows", "Avg_row_length",
		"Data_length", "Max_data_length", "Index_length", "Data_free",
		"Auto_increment", "Create_time", "Update_time", "Check_time",
	}
	rec.SetResult("SHOW TABLE STATUS LIKE 't'", remotetest.Rows(statusFields,
		[]any{"t", "InnoDB", "10", "Dynamic", "5000", "64", "0", "0", "0", "0", nil, nil, nil, nil}))

	if err := h.Info(ctx, InfoVariable|InfoConst); err != nil {
		t.Fatal(err)
	}
	if h.Records() != 5000 {
		t.Fatalf("records: got %d", h.Records())
	}
	if est := h.RecordsInRange(0); est < 2 {
		t.Fatalf("records in range: got %d", est)
	}
}

func TestOpenUnknownServer(t *testing.T) {
	_, err := Open(NewSession(nil, nil), testTableDef(), "nosuchserver/t")
	var fe *Error
	if !errors.As(err, &fe) || fe.Code != ErrCodeForeignServerDoesntExist {
		t.Fatalf("got %v, want foreign-server-doesnt-exist", err)
	}
}

func TestOpenRejectsBadConnString(t *testing.T) {
	_, err := Open(NewSession(nil, nil), testTableDef(), "http://u@h/d/t")
	var fe *Error
	if !errors.As(err, &fe) || fe.Code != ErrCodeForeignDataStringInvalid {
		t.Fatalf("got %v, want invalid connection string", err)
	}
}

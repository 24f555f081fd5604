package federated

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/kundb/go-federated/federated/internal/dsn"
	"github.com/kundb/go-federated/federated/internal/registry"
	"github.com/kundb/go-federated/federated/internal/remote"
	"github.com/kundb/go-federated/federated/internal/sqlbuild"
	"github.com/kundb/go-federated/sqltypes"
)

// bulkPadding reserves statement bytes beyond the accumulated tuples.
const bulkPadding = 128

type bulkState struct {
	sb       strings.Builder
	prefix   string
	rows     int
	writeSet sqltypes.ColumnSet
	started  bool
}

// StartBulkInsert opens the bulk-insert window. rows is the executor's
// estimate; a single-row insert bypasses the window.
func (h *Handler) StartBulkInsert(rows uint64) {
	if rows == 1 {
		h.bulk = nil
		return
	}
	h.bulk = &bulkState{}
}

// EndBulkInsert flushes the remainder of the bulk window.
func (h *Handler) EndBulkInsert(ctx context.Context) error {
	err := h.flushBulk(ctx)
	h.bulk = nil
	return err
}

// flushBulk sends the accumulated tuples as one statement. Bulk inserts are
// never reordered with later statements: every statement entry point flushes
// first.
func (h *Handler) flushBulk(ctx context.Context) error {
	if h.bulk == nil || h.bulk.rows == 0 {
		return nil
	}
	if err := h.acquire(false); err != nil {
		return err
	}
	query := h.bulk.sb.String()
	h.bulk.sb.Reset()
	h.bulk.rows = 0
	h.bulk.started = false

	start := time.Now()
	err := h.drv.Exec(ctx, query, remote.ScanOLTP)
	h.sess.metrics.addTime(StatsTimeBulk, start)
	if err != nil {
		return stashRemoteError(err)
	}
	h.sess.metrics.addCounter(counterStatements, 1)
	h.share.AddDelta(h.drv.AffectedRows())
	h.sess.metrics.addCounter(counterRowsWritten, h.drv.AffectedRows())
	return nil
}

func (h *Handler) maxStatementSize() int {
	if h.maxQuerySize > 0 {
		return h.maxQuerySize
	}
	if h.drv != nil {
		return h.drv.MaxQuerySize()
	}
	return h.share.Server.Endpoint().Config().MaxQuerySize
}

// WriteRow inserts one local row. Inside an open bulk window rows accumulate
// until the next tuple would cross the statement size cap or the session's
// batch row cap.
func (h *Handler) WriteRow(ctx context.Context, row sqltypes.Row, writeSet sqltypes.ColumnSet) error {
	if !h.sess.InTxn() {
		// a single autocommittable statement needs no savepoint
		h.sess.StmtAutocommit()
	}
	if err := h.acquire(false); err != nil {
		return err
	}

	if h.bulk != nil {
		return h.bulkWrite(ctx, row, writeSet)
	}

	query, err := h.builder.Insert(row, writeSet, h.dupPolicy)
	if err != nil {
		return &Error{Code: ErrCodeQueryOnForeignDataSource, msg: "cannot build insert", cause: err}
	}
	return h.execDML(ctx, query)
}

func (h *Handler) bulkWrite(ctx context.Context, row sqltypes.Row, writeSet sqltypes.ColumnSet) error {
	b := h.bulk
	tuple, err := h.builder.ValuesTuple(row, writeSet)
	if err != nil {
		return &Error{Code: ErrCodeQueryOnForeignDataSource, msg: "cannot build insert", cause: err}
	}
	if !b.started {
		b.prefix = h.builder.InsertPrefix(writeSet, h.dupPolicy)
		b.writeSet = writeSet
	}

	max := h.maxStatementSize() - bulkPadding
	needed := len(tuple) + 1
	if b.started && (b.sb.Len()+needed > max || b.rows >= h.sess.attrs.BulkBatchSize()) {
		if err := h.flushBulk(ctx); err != nil {
			return err
		}
	}
	if !b.started {
		b.sb.WriteString(b.prefix)
		b.started = true
	} else {
		b.sb.WriteString(",")
	}
	b.sb.WriteString(tuple)
	b.rows++
	return nil
}

func (h *Handler) execDML(ctx context.Context, query string) error {
	start := time.Now()
	err := h.drv.Exec(ctx, query, remote.ScanOLTP)
	h.sess.metrics.addTime(StatsTimeExec, start)
	if err != nil {
		return stashRemoteError(err)
	}
	h.sess.metrics.addCounter(counterStatements, 1)
	h.share.AddDelta(h.drv.AffectedRows())
	h.sess.metrics.addCounter(counterRowsWritten, h.drv.AffectedRows())
	return nil
}

// dmlCondSet returns the columns of the old-image condition and whether the
// statement still needs a LIMIT 1 cap. With a known primary key and the
// primary-key DML level enabled, the condition shrinks to the key and
// sharding columns and the cap is dropped.
func (h *Handler) dmlCondSet() (sqltypes.ColumnSet, bool) {
	pkUsable := h.pkInit && !h.pkSet.IsEmpty() && h.vindexInit && h.sess.attrs.PKDMLLevel() > 0
	if !pkUsable {
		var all sqltypes.ColumnSet
		for i := range h.def.Columns {
			all.Set(i)
		}
		return all, true
	}
	cond := sqltypes.ColumnSet{}
	for i := range h.def.Columns {
		if h.pkSet.Has(i) || h.vindexSet.Has(i) {
			cond.Set(i)
		}
	}
	return cond, false
}

// UpdateRow updates one local row from its old image to the write-set
// columns of the new image. An update touching a sharding column is
// decomposed into a delete of the old image and an insert of the new one,
// because the remote refuses vindex updates in place.
func (h *Handler) UpdateRow(ctx context.Context, oldRow, newRow sqltypes.Row, writeSet sqltypes.ColumnSet) error {
	if err := h.flushBulk(ctx); err != nil {
		return err
	}
	if !h.sess.InTxn() {
		h.sess.StmtAutocommit()
	}
	if err := h.acquire(false); err != nil {
		return err
	}

	condSet, limit1 := h.dmlCondSet()

	if h.vindexInit && !h.vindexSet.IsEmpty() && writeSet.Overlaps(h.vindexSet) {
		return h.updateShardingColumn(ctx, oldRow, newRow, condSet)
	}

	if !h.def.HasPrimaryKey() {
		limit1 = true
	}
	query, err := h.builder.Update(oldRow, newRow, writeSet, condSet, h.dupPolicy == sqlbuild.DupIgnore, limit1)
	if err != nil {
		return &Error{Code: ErrCodeQueryOnForeignDataSource, msg: "cannot build update", cause: err}
	}
	return h.execDML(ctx, query)
}

// updateShardingColumn rewrites a vindex-column update as delete plus
// insert, in that order. A delete touching more than one remote row aborts
// with the duplicate-unique class before the insert runs.
func (h *Handler) updateShardingColumn(ctx context.Context, oldRow, newRow sqltypes.Row, condSet sqltypes.ColumnSet) error {
	del, err := h.builder.Delete(oldRow, condSet, true)
	if err != nil {
		return &Error{Code: ErrCodeQueryOnForeignDataSource, msg: "cannot build delete", cause: err}
	}
	if err := h.execDML(ctx, del); err != nil {
		return err
	}
	if h.drv.AffectedRows() > 1 {
		return ErrFoundDuppUnique
	}

	var all sqltypes.ColumnSet
	for i := range h.def.Columns {
		all.Set(i)
	}
	ins, err := h.builder.Insert(newRow, all, h.dupPolicy)
	if err != nil {
		return &Error{Code: ErrCodeQueryOnForeignDataSource, msg: "cannot build insert", cause: err}
	}
	return h.execDML(ctx, ins)
}

// DeleteRow deletes one local row identified by its image.
func (h *Handler) DeleteRow(ctx context.Context, row sqltypes.Row) error {
	if err := h.flushBulk(ctx); err != nil {
		return err
	}
	if !h.sess.InTxn() {
		h.sess.StmtAutocommit()
	}
	if err := h.acquire(false); err != nil {
		return err
	}
	condSet, limit1 := h.dmlCondSet()
	query, err := h.builder.Delete(row, condSet, limit1)
	if err != nil {
		return &Error{Code: ErrCodeQueryOnForeignDataSource, msg: "cannot build delete", cause: err}
	}
	return h.execDML(ctx, query)
}

// DeletePushdown deletes directly on the remote using the pushed filter,
// capped by the local LIMIT widened with the expand factor when the
// pushdown covers the predicate only partially.
func (h *Handler) DeletePushdown(ctx context.Context, limit uint64) error {
	if err := h.flushBulk(ctx); err != nil {
		return err
	}
	if !h.sess.InTxn() {
		h.sess.StmtAutocommit()
	}
	if err := h.acquire(false); err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(h.remoteTableIdent())
	if h.filter != "" {
		sb.WriteString(" WHERE (")
		sb.WriteString(h.filter)
		sb.WriteString(")")
	}
	if limit > 0 {
		cap := limit
		if h.filterPartial {
			cap *= h.sess.attrs.LimitExpandFactor()
		}
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.FormatUint(cap, 10))
	}
	return h.execDML(ctx, sb.String())
}

// DeleteAllRows empties the remote table: TRUNCATE for a truncate statement,
// DELETE FROM otherwise.
func (h *Handler) DeleteAllRows(ctx context.Context, truncate bool) error {
	if err := h.flushBulk(ctx); err != nil {
		return err
	}
	// no need for a savepoint in autocommit mode
	if !h.sess.InTxn() {
		h.sess.StmtAutocommit()
	}
	if err := h.acquire(false); err != nil {
		return err
	}
	stmt := "DELETE FROM " + h.remoteTableIdent()
	if truncate {
		stmt = "TRUNCATE " + h.remoteTableIdent()
	}
	before := h.share.Stats().Records
	if err := h.execDML(ctx, stmt); err != nil {
		return err
	}
	h.share.AddDelta(before)
	return nil
}

// Optimize passes OPTIMIZE TABLE through to the remote.
func (h *Handler) Optimize(ctx context.Context) error {
	return h.adminStatement(ctx, "OPTIMIZE TABLE "+h.remoteTableIdent())
}

// Repair passes REPAIR TABLE through to the remote.
func (h *Handler) Repair(ctx context.Context) error {
	return h.adminStatement(ctx, "REPAIR TABLE "+h.remoteTableIdent())
}

func (h *Handler) adminStatement(ctx context.Context, stmt string) error {
	drv, err := h.sess.Acquire(h.share, false)
	if err != nil {
		return err
	}
	defer h.sess.Release(drv)
	if _, err := drv.Query(ctx, stmt, remote.ScanDefault, nil); err != nil {
		return stashRemoteError(err)
	}
	return nil
}

// Discover probes a remote table for assisted local table creation: it
// returns the remote's CREATE TABLE statement. Nothing is replicated; the
// probe is read only.
func Discover(ctx context.Context, connStr string) (string, error) {
	ci, err := dsn.Parse(connStr, remote.Schemes())
	if err != nil {
		return "", dsnError(err)
	}
	cfg := remote.Config{
		Scheme:   ci.Scheme,
		Host:     ci.Host,
		Port:     ci.Port,
		Socket:   ci.Socket,
		User:     ci.User,
		Password: ci.Password,
		Database: ci.Database,
	}
	srv, err := registry.AcquireServer(cfg)
	if err != nil {
		return "", connectError(err)
	}
	defer srv.Release()
	drv, err := srv.AcquireDriver()
	if err != nil {
		return "", connectError(err)
	}
	defer srv.ReleaseDriver(drv)

	rs, err := drv.Query(ctx, "SHOW CREATE TABLE "+sqlbuild.QuoteIdent(ci.Table), remote.ScanDefault, nil)
	if err != nil {
		return "", stashRemoteError(err)
	}
	row, ok := rs.Fetch()
	if !ok || rs.NumFields() < 2 || remote.IsNull(row, 1) {
		return "", ErrNoSuchTable
	}
	return string(row[1]), nil
}


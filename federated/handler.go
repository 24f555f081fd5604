package federated

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kundb/go-federated/federated/internal/charset"
	"github.com/kundb/go-federated/federated/internal/dsn"
	"github.com/kundb/go-federated/federated/internal/meta"
	"github.com/kundb/go-federated/federated/internal/partial"
	"github.com/kundb/go-federated/federated/internal/registry"
	"github.com/kundb/go-federated/federated/internal/remote"
	"github.com/kundb/go-federated/federated/internal/sqlbuild"
	"github.com/kundb/go-federated/sqltypes"
)

// LockType is the local table lock the executor stores for a statement.
type LockType int

const (
	LockNone LockType = iota
	LockRead
	LockReadNoInsert
	LockWriteAllowWrite
	LockWrite
)

func (l LockType) write() bool { return l >= LockWriteAllowWrite }

// InfoFlag selects what Info refreshes.
type InfoFlag uint

const (
	InfoVariable InfoFlag = 1 << iota
	InfoConst
	InfoAuto
	// InfoInit additionally refreshes the sharded metadata caches: shard
	// topology, range boundaries, vindex membership.
	InfoInit
)

// Handler is one open federated table inside one session. It translates the
// executor's operation set into remote SQL and converts results back row at
// a time. Handlers are not safe for concurrent use.
type Handler struct {
	sess    *Session
	def     *sqltypes.TableDef
	share   *registry.Share
	builder sqlbuild.Builder
	logger  *slog.Logger

	drv remote.Driver

	results    []*remote.ResultSet
	rs         *remote.ResultSet
	lastRS     *remote.ResultSet
	lastCursor int

	scan     *remote.ScanInfo
	scanMode remote.ScanMode

	activeIndex  int
	lockType     LockType
	inLockTables bool

	readSet sqltypes.ColumnSet

	filter        string
	filterPartial bool
	eqPushed      bool
	fetchHint     *partial.Hint
	limit         uint64

	dupPolicy sqlbuild.DupPolicy
	bulk      *bulkState

	// per-handler metadata caches
	records        uint64
	recordsPerShard uint64
	cardinality    []uint64
	cardInit       bool
	pkSet          sqltypes.ColumnSet
	pkInit         bool
	vindexSet      sqltypes.ColumnSet
	vindexInit     bool
	autoIncValue   uint64
	maxQuerySize   int

	// per-statement range cache when share-level caching is off
	localPartCol    string
	localPartQuote  bool
	localPartValues []string
	localPartInit   bool
}

// Open opens a federated table: the connection string is parsed, the shared
// descriptor acquired and the handler's statement state reset. def's
// RemoteTable defaults to the table named in the connection string.
func Open(sess *Session, def *sqltypes.TableDef, connStr string) (*Handler, error) {
	ci, err := dsn.Parse(connStr, remote.Schemes())
	if err != nil {
		if errors.Is(err, dsn.ErrUnknownServer) {
			return nil, &Error{Code: ErrCodeForeignServerDoesntExist, msg: "server not registered", cause: err}
		}
		return nil, dsnError(err)
	}
	cfg := remote.Config{
		Scheme:   ci.Scheme,
		Host:     ci.Host,
		Port:     ci.Port,
		Socket:   ci.Socket,
		User:     ci.User,
		Password: ci.Password,
		Database: ci.Database,
		Charset:  def.Charset,
		Logger:   sess.logger,
	}
	if def.RemoteTable == "" {
		def.RemoteTable = ci.Table
	}
	enc, err := charset.Lookup(def.Charset)
	if err != nil {
		return nil, dsnError(err)
	}
	builder := sqlbuild.Builder{Def: def, Enc: enc}
	share, err := registry.AcquireShare(def.Name, cfg, def.RemoteTable, builder.SelectAll())
	if err != nil {
		return nil, connectError(err)
	}
	return newHandler(sess, def, share), nil
}

func newHandler(sess *Session, def *sqltypes.TableDef, share *registry.Share) *Handler {
	enc, _ := charset.Lookup(def.Charset)
	h := &Handler{
		sess:    sess,
		def:     def,
		share:   share,
		builder: sqlbuild.Builder{Def: def, Enc: enc},
		logger:  sess.logger.With(slog.String("table", def.Name)),
	}
	h.resetStmt()
	return h
}

// Close releases the shared descriptor.
func (h *Handler) Close() error {
	h.Reset()
	if h.drv != nil {
		h.sess.Release(h.drv)
		h.drv = nil
	}
	h.share.Release()
	return nil
}

// Name returns the local table key.
func (h *Handler) Name() string { return h.def.Name }

func (h *Handler) sharded() bool {
	return h.share.Server.Endpoint().Config().Scheme == remote.SchemeSharded
}

func (h *Handler) acquire(readonly bool) error {
	if h.drv != nil {
		return nil
	}
	drv, err := h.sess.Acquire(h.share, readonly)
	if err != nil {
		return err
	}
	h.drv = drv
	return nil
}

// StoreLock lets the handler downgrade the executor's lock request: outside
// of explicit LOCK TABLES a plain write lock degrades to allow-write and a
// read-no-insert to a plain read.
func (h *Handler) StoreLock(lock LockType, inLockTables bool) LockType {
	h.inLockTables = inLockTables
	if !inLockTables {
		if lock == LockWrite {
			lock = LockWriteAllowWrite
		}
		if lock == LockReadNoInsert {
			lock = LockRead
		}
	}
	if lock != LockNone {
		h.lockType = lock
	}
	return lock
}

// ExternalLock brackets a statement. LockNone releases the driver back to
// the pool; any other lock acquires one and, for writes or non-autocommit
// drivers, registers the statement or transaction scope with the session.
func (h *Handler) ExternalLock(ctx context.Context, lock LockType) error {
	if lock == LockNone {
		if err := h.flushBulk(ctx); err != nil {
			return err
		}
		if h.drv != nil {
			h.sess.Release(h.drv)
			h.drv = nil
		}
		return nil
	}
	h.lockType = lock
	if err := h.acquire(!lock.write()); err != nil {
		return err
	}
	if lock.write() || !h.drv.Autocommit() {
		if !h.sess.InTxn() {
			h.sess.StmtBegin()
		} else {
			h.sess.TxnBegin()
		}
	}
	return nil
}

// StartStmt registers a statement scope when the executor starts one without
// an external lock transition.
func (h *Handler) StartStmt() {
	if !h.sess.InTxn() {
		h.sess.StmtBegin()
	}
}

// SetReadSet declares the columns the executor will look at; column pruning
// replaces the rest with NULL.
func (h *Handler) SetReadSet(set sqltypes.ColumnSet) { h.readSet = set }

// PushCondition installs a pre-rendered remote-safe filter. covers reports
// whether the pushdown covers the whole local predicate; equality marks an
// equality condition that already restricts the result size.
func (h *Handler) PushCondition(filter string, covers, equality bool) {
	h.filter = filter
	h.filterPartial = !covers
	h.eqPushed = equality
}

// PopCondition removes the pushed filter.
func (h *Handler) PopCondition() {
	h.filter = ""
	h.filterPartial = false
	h.eqPushed = false
}

// SetFetchMode applies a statement fetch-mode hint token. Unknown tokens are
// ignored and reported false.
func (h *Handler) SetFetchMode(token string) bool {
	hint, ok := partial.ParseHint(token)
	if !ok {
		return false
	}
	h.fetchHint = &hint
	return true
}

// SetLimit declares the active LIMIT, scaled by join breadth; zero clears
// it.
func (h *Handler) SetLimit(n uint64) { h.limit = n }

// SetDupPolicy selects duplicate handling for subsequent inserts and
// updates.
func (h *Handler) SetDupPolicy(p sqlbuild.DupPolicy) { h.dupPolicy = p }

func (h *Handler) trackResult(rs *remote.ResultSet) {
	h.results = append(h.results, rs)
}

func (h *Handler) freeResults() {
	h.results = nil
	h.rs = nil
	h.lastRS = nil
	h.lastCursor = 0
}

// resetStmt clears the per-statement state.
func (h *Handler) resetStmt() {
	h.activeIndex = -1
	h.scan = nil
	h.scanMode = remote.ScanDefault
	h.fetchHint = nil
	h.limit = 0
	h.dupPolicy = sqlbuild.DupError
	h.localPartInit = false
	h.localPartCol = ""
	h.localPartValues = nil
}

// Reset returns the handler to its post-open state: every tracked result is
// released, pushed conditions, hints and the bulk window are dropped.
func (h *Handler) Reset() error {
	h.freeResults()
	h.resetStmt()
	h.PopCondition()
	h.bulk = nil
	return nil
}

// scanLockSuffix returns the locking decoration of scan statements.
func (h *Handler) scanLockSuffix() string {
	if h.lockType.write() {
		return " FOR UPDATE"
	}
	if h.lockType == LockReadNoInsert && h.inLockTables {
		return " LOCK IN SHARE MODE"
	}
	return ""
}

// plan consults the partial-read planner for the current scan.
func (h *Handler) plan(ctx context.Context) partial.Plan {
	attrs := h.sess.attrs
	in := partial.Input{
		ShardRead:          attrs.ShardRead(),
		RangeRead:          attrs.RangeRead(),
		Hint:               h.fetchHint,
		TableComment:       h.def.Comment,
		EstimatedRows:      h.records,
		SessionRowCap:      attrs.PartialRowCap(),
		Limit:              h.limit,
		AutoPartialOnLimit: attrs.AutoPartialOnLimit(),
		EqPushed:           h.eqPushed,
		Preference:         attrs.PartialPreference(),
		OLAPDefault:        attrs.OLAPDefault(),
	}
	if !h.sharded() {
		in.ShardRead = false
		in.RangeRead = false
		return partial.Choose(in)
	}
	shards, state := h.share.Server.Shards()
	in.ShardCount = len(shards)
	in.TopologyKnown = state == registry.TopologyKnown
	in.RangeCol, _, in.RangeValues = h.rangeInfo(ctx)
	return partial.Choose(in)
}

// rangeInfo returns the effective range-partition layout: the share cache
// when enabled, a per-statement probe otherwise.
func (h *Handler) rangeInfo(ctx context.Context) (string, bool, []string) {
	if h.sess.attrs.CacheRangeInfo() {
		col, quoted, values, _ := h.share.RangeInfo()
		return col, quoted, values
	}
	if !h.localPartInit && h.drv != nil {
		h.localPartCol, h.localPartQuote, h.localPartValues, _ =
			meta.FetchRangeInfo(ctx, h.drv, h.def, h.share.RemoteTable)
		h.localPartInit = true
	}
	return h.localPartCol, h.localPartQuote, h.localPartValues
}

// RndInit starts a full scan: the scan decomposition is chosen, the base
// query with its pushed filter captured and the first remote query issued.
func (h *Handler) RndInit(ctx context.Context) error {
	if err := h.flushBulk(ctx); err != nil {
		return err
	}
	if err := h.acquire(!h.lockType.write()); err != nil {
		return err
	}
	h.rs = nil
	h.scan = nil

	prune := h.pruneEnabled()
	base := h.builder.Select(h.readSet, prune)

	plan := h.plan(ctx)
	h.scanMode = plan.Scan
	if h.lockType.write() {
		// scans feeding DML need transactional semantics
		h.scanMode = remote.ScanOLTP
	}

	start := time.Now()
	defer h.sess.metrics.addTime(StatsTimeQuery, start)

	if plan.Mode != remote.PartialNone {
		h.logger.LogAttrs(ctx, slog.LevelDebug, "partial read",
			slog.String("mode", plan.Mode.String()), slog.String("scan", h.scanMode.String()))
		scan := &remote.ScanInfo{
			Mode:      plan.Mode,
			BaseQuery: base,
			Filter:    h.filter,
			ForUpdate: h.lockType.write(),
		}
		shards, _ := h.share.Server.Shards()
		scan.Shards = shards
		col, quoted, values := h.rangeInfo(ctx)
		scan.RangeCol, scan.RangeQuote, scan.RangeValues = col, quoted, values
		h.scan = scan
		rs, err := h.drv.Query(ctx, "", h.scanMode, scan)
		if err != nil {
			return stashRemoteError(err)
		}
		h.rs = rs
		h.trackResult(rs)
		h.sess.metrics.addCounter(counterStatements, 1)
		return nil
	}

	query := sqlbuild.AppendFilter(base, h.filter, false)
	query += h.scanLockSuffix()
	rs, err := h.drv.Query(ctx, query, h.scanMode, nil)
	if err != nil {
		return stashRemoteError(err)
	}
	h.rs = rs
	h.trackResult(rs)
	h.sess.metrics.addCounter(counterStatements, 1)
	return nil
}

func (h *Handler) pruneEnabled() bool {
	if h.readSet.IsEmpty() {
		return false
	}
	if h.lockType.write() {
		return h.sess.attrs.PruneDMLColumns()
	}
	return h.sess.attrs.PruneQueryColumns()
}

// RndNext returns the next scan row. On end of the current result a partial
// read advances to its next segment transparently.
func (h *Handler) RndNext(ctx context.Context) ([][]byte, error) {
	for {
		if h.rs == nil {
			return nil, ErrEndOfFile
		}
		h.lastCursor = h.rs.Cursor()
		row, ok := h.rs.Fetch()
		if ok {
			h.lastRS = h.rs
			h.sess.metrics.addCounter(counterRowsRead, 1)
			return row, nil
		}
		if h.scan == nil || !h.scan.HasNext() {
			return nil, ErrEndOfFile
		}
		rs, err := h.drv.Query(ctx, "", h.scanMode, h.scan)
		if err != nil {
			return nil, stashRemoteError(err)
		}
		h.rs = rs
		h.trackResult(rs)
		h.sess.metrics.addCounter(counterStatements, 1)
	}
}

// RndEnd finishes a scan.
func (h *Handler) RndEnd() error {
	h.rs = nil
	h.scan = nil
	return nil
}

// IndexInit selects the active index.
func (h *Handler) IndexInit(idx int) error {
	if idx < 0 || idx >= len(h.def.Indexes) {
		return &Error{Code: ErrCodeQueryOnForeignDataSource, msg: "index out of range"}
	}
	h.activeIndex = idx
	return nil
}

// IndexEnd finishes index access.
func (h *Handler) IndexEnd() error {
	h.activeIndex = -1
	h.rs = nil
	return nil
}

// IndexRead looks up rows by a single key bound on the active index and
// returns the first match.
func (h *Handler) IndexRead(ctx context.Context, bound *sqltypes.KeyBound) ([][]byte, error) {
	return h.IndexReadIdx(ctx, h.activeIndex, sqltypes.KeyRange{Start: bound}, false)
}

// IndexReadIdx executes a key-range read on an explicit index and returns
// the first matching row.
func (h *Handler) IndexReadIdx(ctx context.Context, idx int, kr sqltypes.KeyRange, eqRange bool) ([][]byte, error) {
	if err := h.flushBulk(ctx); err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(h.def.Indexes) {
		return nil, &Error{Code: ErrCodeQueryOnForeignDataSource, msg: "index out of range"}
	}
	if err := h.acquire(!h.lockType.write()); err != nil {
		return nil, err
	}
	cond, err := h.builder.WhereFromKey(h.def.Indexes[idx], kr, false, eqRange)
	if err != nil {
		return nil, &Error{Code: ErrCodeQueryOnForeignDataSource, msg: "cannot build key condition", cause: err}
	}
	query := h.builder.Select(h.readSet, h.pruneEnabled()) + " WHERE " + cond
	query = sqlbuild.AppendFilter(query, h.filter, true)
	query += h.scanLockSuffix()

	mode := remote.ScanDefault
	if h.lockType.write() {
		mode = remote.ScanOLTP
	}
	start := time.Now()
	rs, err := h.drv.Query(ctx, query, mode, nil)
	h.sess.metrics.addTime(StatsTimeQuery, start)
	if err != nil {
		return nil, stashRemoteError(err)
	}
	h.rs = rs
	h.trackResult(rs)
	h.sess.metrics.addCounter(counterStatements, 1)
	return h.fetchCurrent()
}

// IndexNext returns the next row of the current index read.
func (h *Handler) IndexNext() ([][]byte, error) {
	return h.fetchCurrent()
}

func (h *Handler) fetchCurrent() ([][]byte, error) {
	if h.rs == nil {
		return nil, ErrEndOfFile
	}
	h.lastCursor = h.rs.Cursor()
	row, ok := h.rs.Fetch()
	if !ok {
		return nil, ErrEndOfFile
	}
	h.lastRS = h.rs
	h.sess.metrics.addCounter(counterRowsRead, 1)
	return row, nil
}

// ReadRangeFirst starts a range read over the active index.
func (h *Handler) ReadRangeFirst(ctx context.Context, start, end *sqltypes.KeyBound, eqRange bool) ([][]byte, error) {
	return h.IndexReadIdx(ctx, h.activeIndex, sqltypes.KeyRange{Start: start, End: end}, eqRange)
}

// ReadRangeNext continues a range read.
func (h *Handler) ReadRangeNext() ([][]byte, error) { return h.fetchCurrent() }

// Position returns the reference of the row last returned; it stays valid
// until the handler is reset.
func (h *Handler) Position() Ref {
	if h.lastRS == nil {
		return Ref{}
	}
	return remote.MarkPosition(h.lastRS, h.lastCursor)
}

// RndPos re-reads the row a reference points at. A zeroed reference reports
// end of file.
func (h *Handler) RndPos(ref Ref) ([][]byte, error) {
	rs, err := remote.SeekPosition(ref)
	if err != nil {
		return nil, ErrEndOfFile
	}
	h.rs = rs
	return h.fetchCurrent()
}

// Info refreshes the cached metadata the flags ask for. Metadata statements
// are best effort and never fail the user operation, except when the table
// status probe proves the remote table missing.
func (h *Handler) Info(ctx context.Context, flags InfoFlag) error {
	if flags&(InfoVariable|InfoConst|InfoAuto) == 0 {
		return nil
	}
	drv := h.drv
	temp := false
	if drv == nil {
		d, err := h.sess.Acquire(h.share, true)
		if err != nil {
			return err
		}
		drv, temp = d, true
		defer func() {
			if temp {
				h.sess.Release(drv)
			}
		}()
	}

	start := time.Now()
	defer h.sess.metrics.addTime(StatsTimeMeta, start)

	if flags&InfoInit != 0 && h.sharded() {
		meta.EnsureShards(ctx, drv, h.share.Server, h.share.Server.Endpoint().Config().Database)
	}

	if flags&(InfoVariable|InfoConst) != 0 {
		h.maxQuerySize = drv.MaxQuerySize()
		st := h.share.Stats()
		if meta.NeedRefresh(st, h.share.Delta(), time.Now()) {
			if err := meta.RefreshTableStats(ctx, drv, h.share); err != nil {
				if errors.Is(err, meta.ErrNoSuchTable) {
					return ErrNoSuchTable
				}
				// any other failure keeps the cached status
			} else {
				st = h.share.Stats()
				h.cardInit = false
			}
		}
		h.recordsPerShard = st.Records
		h.records = h.scaleRecords(st.Records)
		if !h.cardInit {
			h.cardinality = meta.FetchIndexCardinality(ctx, drv, h.def, h.share.RemoteTable)
			h.cardInit = true
		}
		if !h.pkInit {
			h.pkSet = h.def.PrimaryKeySet()
			h.pkInit = true
		}
	}

	if flags&InfoAuto != 0 {
		h.autoIncValue = drv.LastInsertID()
	}

	if flags&InfoInit != 0 && h.sharded() {
		if h.sess.attrs.CacheRangeInfo() {
			meta.EnsureRangeInfo(ctx, drv, h.share, h.def)
		}
		if !h.vindexInit {
			if set, ok := meta.FetchVindexes(ctx, drv, h.def, h.share.RemoteTable); ok {
				h.vindexSet = set
				h.vindexInit = true
			}
		}
	}
	return nil
}

// scaleRecords maps the per-shard row count of a sharded table into the
// optimizer estimate per the session's records mode.
func (h *Handler) scaleRecords(records uint64) uint64 {
	if !h.sharded() {
		return records
	}
	mode, factor := h.sess.attrs.TableRecordsMode()
	shards, state := h.share.Server.Shards()
	switch mode {
	case RecordsTimesShards:
		if state == registry.TopologyKnown && len(shards) > 0 {
			return records * uint64(len(shards))
		}
	case RecordsTimesFactor:
		if factor > 0 {
			return records * factor
		}
	}
	return records
}

// Records returns the optimizer row estimate.
func (h *Handler) Records() uint64 { return h.records }

// AutoIncrementValue returns the last observed remote insert id.
func (h *Handler) AutoIncrementValue() uint64 { return h.autoIncValue }

// recordsInRangeFloor keeps range estimates from collapsing plans.
const recordsInRangeFloor = 2

// RecordsInRange estimates the rows an index range covers from the cached
// remote cardinality.
func (h *Handler) RecordsInRange(idx int) uint64 {
	if idx < 0 || idx >= len(h.def.Indexes) || !h.cardInit {
		return recordsInRangeFloor
	}
	card := h.cardinality[idx]
	if card == 0 {
		card = 1
	}
	est := h.recordsPerShard / card
	if est < recordsInRangeFloor {
		return recordsInRangeFloor
	}
	return est
}

// RecPerKey returns the estimated rows per key value of a single-part index,
// derived from the remote cardinality when the session enables it.
func (h *Handler) RecPerKey(idx int) uint64 {
	if !h.sess.attrs.InitRecPerKey() || !h.cardInit || idx < 0 || idx >= len(h.def.Indexes) {
		return 0
	}
	ix := h.def.Indexes[idx]
	if len(ix.Parts) != 1 {
		return 0
	}
	card := h.cardinality[idx]
	if card == 0 {
		card = 1
	}
	rec := h.recordsPerShard / card
	if !ix.Unique && rec <= 1 {
		// a non-unique index never promises a single row
		rec = 2
	}
	if rec == 0 {
		rec = 1
	}
	return rec
}

// remoteTableIdent returns the quoted remote table name.
func (h *Handler) remoteTableIdent() string {
	var sb strings.Builder
	sqlbuild.AppendIdent(&sb, h.share.RemoteTable)
	return sb.String()
}

package federated

import (
	"sync"

	"github.com/kundb/go-federated/federated/internal/remote"
)

// Session attribute defaults.
const (
	defaultBulkBatchSize     = 100
	defaultLimitExpandFactor = 2
	defaultPartialRowCap     = 100000
)

// RecordsMode scales the per-shard row count of a sharded table into the
// estimate reported to the optimizer.
type RecordsMode int

const (
	// RecordsPerShard reports the row count of one shard unchanged.
	RecordsPerShard RecordsMode = iota
	// RecordsTimesShards multiplies by the shard count.
	RecordsTimesShards
	// RecordsTimesFactor multiplies by a configured factor.
	RecordsTimesFactor
)

/*
SessionAttrs holds the session-visible switches and variables of the engine.
A SessionAttrs instance is shared between the session and its handlers;
getters and setters are safe for concurrent use so that monitoring can read
them while the session runs.
*/
type SessionAttrs struct {
	mu sync.RWMutex

	shardRead          bool
	rangeRead          bool
	autoPartialOnLimit bool
	pruneQueryColumns  bool
	pruneDMLColumns    bool
	cboActualRecords   bool
	initRecPerKey      bool
	olapDefault        bool
	cacheRangeInfo     bool

	bulkBatchSize     int
	partialPreference remote.PartialMode
	recordsMode       RecordsMode
	recordsFactor     uint64
	limitExpandFactor uint64
	pkDMLLevel        int
	partialRowCap     uint64

	sessionToken string
}

// NewSessionAttrs returns attributes with engine defaults.
func NewSessionAttrs() *SessionAttrs {
	return &SessionAttrs{
		shardRead:          true,
		rangeRead:          true,
		autoPartialOnLimit: true,
		cacheRangeInfo:     true,
		bulkBatchSize:      defaultBulkBatchSize,
		partialPreference:  remote.PartialShard,
		limitExpandFactor:  defaultLimitExpandFactor,
		pkDMLLevel:         1,
		partialRowCap:      defaultPartialRowCap,
	}
}

// ShardRead returns whether per-shard partial reads are enabled.
func (a *SessionAttrs) ShardRead() bool { a.mu.RLock(); defer a.mu.RUnlock(); return a.shardRead }

// SetShardRead enables or disables per-shard partial reads.
func (a *SessionAttrs) SetShardRead(v bool) { a.mu.Lock(); defer a.mu.Unlock(); a.shardRead = v }

// RangeRead returns whether per-range partial reads are enabled.
func (a *SessionAttrs) RangeRead() bool { a.mu.RLock(); defer a.mu.RUnlock(); return a.rangeRead }

// SetRangeRead enables or disables per-range partial reads.
func (a *SessionAttrs) SetRangeRead(v bool) { a.mu.Lock(); defer a.mu.Unlock(); a.rangeRead = v }

// AutoPartialOnLimit returns whether a small LIMIT engages partial reads.
func (a *SessionAttrs) AutoPartialOnLimit() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.autoPartialOnLimit
}

// SetAutoPartialOnLimit toggles limit-driven partial reads.
func (a *SessionAttrs) SetAutoPartialOnLimit(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.autoPartialOnLimit = v
}

// PruneQueryColumns returns whether scan projections replace unread columns
// with NULL.
func (a *SessionAttrs) PruneQueryColumns() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pruneQueryColumns
}

// SetPruneQueryColumns toggles column pruning for query statements.
func (a *SessionAttrs) SetPruneQueryColumns(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneQueryColumns = v
}

// PruneDMLColumns returns whether DML-side scans prune unread columns.
func (a *SessionAttrs) PruneDMLColumns() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pruneDMLColumns
}

// SetPruneDMLColumns toggles column pruning for DML statements.
func (a *SessionAttrs) SetPruneDMLColumns(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneDMLColumns = v
}

// CBOActualRecords returns whether cost estimates use the fetched remote row
// count instead of defaults.
func (a *SessionAttrs) CBOActualRecords() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cboActualRecords
}

// SetCBOActualRecords toggles cost estimation on actual records.
func (a *SessionAttrs) SetCBOActualRecords(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cboActualRecords = v
}

// InitRecPerKey returns whether per-key record estimates are derived from
// remote index cardinalities.
func (a *SessionAttrs) InitRecPerKey() bool { a.mu.RLock(); defer a.mu.RUnlock(); return a.initRecPerKey }

// SetInitRecPerKey toggles per-key record estimation.
func (a *SessionAttrs) SetInitRecPerKey(v bool) { a.mu.Lock(); defer a.mu.Unlock(); a.initRecPerKey = v }

// OLAPDefault returns whether scans default to the streaming workload.
func (a *SessionAttrs) OLAPDefault() bool { a.mu.RLock(); defer a.mu.RUnlock(); return a.olapDefault }

// SetOLAPDefault selects the streaming workload as scan default.
func (a *SessionAttrs) SetOLAPDefault(v bool) { a.mu.Lock(); defer a.mu.Unlock(); a.olapDefault = v }

// CacheRangeInfo returns whether range-partition boundaries are cached on
// the share instead of fetched per statement.
func (a *SessionAttrs) CacheRangeInfo() bool { a.mu.RLock(); defer a.mu.RUnlock(); return a.cacheRangeInfo }

// SetCacheRangeInfo toggles share-level range boundary caching.
func (a *SessionAttrs) SetCacheRangeInfo(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cacheRangeInfo = v
}

// BulkBatchSize returns the row cap of one bulk-insert batch.
func (a *SessionAttrs) BulkBatchSize() int { a.mu.RLock(); defer a.mu.RUnlock(); return a.bulkBatchSize }

// SetBulkBatchSize caps the rows accumulated per bulk-insert statement.
func (a *SessionAttrs) SetBulkBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bulkBatchSize = n
}

// PartialPreference returns the tie-breaking partial-read mode.
func (a *SessionAttrs) PartialPreference() remote.PartialMode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.partialPreference
}

// SetPartialPreference sets the tie-breaking partial-read mode.
func (a *SessionAttrs) SetPartialPreference(m remote.PartialMode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.partialPreference = m
}

// TableRecordsMode returns how sharded row counts scale into estimates.
func (a *SessionAttrs) TableRecordsMode() (RecordsMode, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.recordsMode, a.recordsFactor
}

// SetTableRecordsMode sets how sharded row counts scale into estimates.
func (a *SessionAttrs) SetTableRecordsMode(m RecordsMode, factor uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordsMode = m
	a.recordsFactor = factor
}

// LimitExpandFactor returns the widening applied to remote-side LIMIT caps
// when predicate pushdown is partial.
func (a *SessionAttrs) LimitExpandFactor() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.limitExpandFactor
}

// SetLimitExpandFactor sets the remote LIMIT widening factor.
func (a *SessionAttrs) SetLimitExpandFactor(f uint64) {
	if f < 1 {
		f = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limitExpandFactor = f
}

// PKDMLLevel returns the primary-key DML level: 0 disables primary-key-only
// conditions for updates and deletes.
func (a *SessionAttrs) PKDMLLevel() int { a.mu.RLock(); defer a.mu.RUnlock(); return a.pkDMLLevel }

// SetPKDMLLevel sets the primary-key DML level.
func (a *SessionAttrs) SetPKDMLLevel(level int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pkDMLLevel = level
}

// PartialRowCap returns the estimated row count above which scans decompose.
func (a *SessionAttrs) PartialRowCap() uint64 { a.mu.RLock(); defer a.mu.RUnlock(); return a.partialRowCap }

// SetPartialRowCap sets the partial-read row threshold.
func (a *SessionAttrs) SetPartialRowCap(n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.partialRowCap = n
}

// SessionToken returns the gateway session continuity token set by the
// executor, empty when none.
func (a *SessionAttrs) SessionToken() string { a.mu.RLock(); defer a.mu.RUnlock(); return a.sessionToken }

// SetSessionToken sets the gateway session continuity token.
func (a *SessionAttrs) SetSessionToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionToken = token
}

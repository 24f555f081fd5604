// Package meta acquires and caches remote metadata: table status, index
// cardinalities, shard topology, range-partition boundaries and
// sharding-column membership. Lookups are best effort; a failure yields a
// conservative default and never fails the user operation, with the one
// exception of a table status probe that proves the remote table missing.
package meta

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/kundb/go-federated/federated/internal/registry"
	"github.com/kundb/go-federated/federated/internal/remote"
	"github.com/kundb/go-federated/federated/internal/sqlbuild"
	"github.com/kundb/go-federated/sqltypes"
)

// recordsFloor is imposed on a zero remote row count so that cost estimates
// do not collapse otherwise sane plans.
const recordsFloor = 2

// staleAfter ages out a cached table status.
const staleAfter = 24 * time.Hour

// deltaFraction triggers a refresh once the accumulated row changes exceed
// this fraction of the cached row count (with a small absolute minimum).
const (
	deltaFraction = 10 // one tenth
	deltaMinimum  = 1000
)

// ErrNoSuchTable reports a table status probe that proves the remote table
// missing or malformed.
var ErrNoSuchTable = errors.New("meta: remote table does not exist")

// NeedRefresh decides whether the cached table status must be re-fetched.
func NeedRefresh(st registry.Stats, delta uint64, now time.Time) bool {
	if st.RefreshedAt.IsZero() {
		return true
	}
	if now.Sub(st.RefreshedAt) >= staleAfter {
		return true
	}
	threshold := st.Records / deltaFraction
	if threshold < deltaMinimum {
		threshold = deltaMinimum
	}
	return delta >= threshold
}

// RefreshTableStats runs SHOW TABLE STATUS against the remote and replaces
// the share's cached status. A result without the expected shape maps to
// ErrNoSuchTable.
func RefreshTableStats(ctx context.Context, drv remote.Driver, share *registry.Share) error {
	var sb strings.Builder
	sb.WriteString("SHOW TABLE STATUS LIKE ")
	sqlbuild.AppendStringLiteral(&sb, share.RemoteTable)
	rs, err := drv.Query(ctx, sb.String(), remote.ScanDefault, nil)
	if err != nil {
		return err
	}
	// fields 4, 5, 12 and 13 of the result are needed; make sure they exist
	if rs.NumFields() < 14 || rs.NumRows() == 0 {
		return ErrNoSuchTable
	}
	row, ok := rs.Fetch()
	if !ok {
		return ErrNoSuchTable
	}
	st := registry.Stats{RefreshedAt: time.Now()}
	if !remote.IsNull(row, 4) {
		st.Records, _ = strconv.ParseUint(string(row[4]), 10, 64)
	}
	if st.Records == 0 {
		st.Records = recordsFloor
	}
	if !remote.IsNull(row, 5) {
		st.MeanRecLength, _ = strconv.ParseUint(string(row[5]), 10, 64)
	}
	if !remote.IsNull(row, 12) {
		st.UpdateTime = parseTime(string(row[12]))
	}
	if !remote.IsNull(row, 13) {
		st.CheckTime = parseTime(string(row[13]))
	}
	share.SetStats(st)
	return nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

// EnsureShards enumerates the gateway's shard namespaces once per server.
// Enumeration failure pins the topology to unsupported, which disables shard
// decomposition for good.
func EnsureShards(ctx context.Context, drv remote.Driver, srv *registry.Server, database string) {
	if _, state := srv.Shards(); state != registry.TopologyUnknown {
		return
	}
	rs, err := drv.Query(ctx, "SHOW KUNDB_SHARDS "+sqlbuild.QuoteIdent(database), remote.ScanDefault, nil)
	if err != nil {
		srv.MarkShardsUnsupported()
		return
	}
	var shards []string
	for {
		row, ok := rs.Fetch()
		if !ok {
			break
		}
		if !remote.IsNull(row, 0) {
			shards = append(shards, string(row[0]))
		}
	}
	if len(shards) == 0 {
		srv.MarkShardsUnsupported()
		return
	}
	srv.SetShards(shards)
}

// FetchRangeInfo reads the range-partition layout of the remote table: the
// sharding column and its ascending boundary values. A table without range
// partitioning returns ok false; so does any failure.
func FetchRangeInfo(ctx context.Context, drv remote.Driver, def *sqltypes.TableDef, remoteTable string) (col string, quoted bool, values []string, ok bool) {
	rs, err := drv.Query(ctx, "SHOW KUNDB_RANGE_INFO "+sqlbuild.QuoteIdent(remoteTable), remote.ScanDefault, nil)
	if err != nil || rs.NumRows() == 0 {
		return "", false, nil, false
	}
	for {
		row, fetched := rs.Fetch()
		if !fetched {
			break
		}
		if remote.IsNull(row, 0) || rs.NumFields() < 2 || remote.IsNull(row, 1) {
			return "", false, nil, false
		}
		col = string(row[0])
		values = append(values, string(row[1]))
	}
	ord := ordinalFold(def, col)
	if ord < 0 {
		return "", false, nil, false
	}
	return col, def.Columns[ord].Kind.Quoted(), values, true
}

// EnsureRangeInfo populates the share's global range cache once.
func EnsureRangeInfo(ctx context.Context, drv remote.Driver, share *registry.Share, def *sqltypes.TableDef) {
	if _, _, _, ok := share.RangeInfo(); ok {
		return
	}
	col, quoted, values, ok := FetchRangeInfo(ctx, drv, def, share.RemoteTable)
	if !ok {
		// remember the miss so the probe does not repeat per statement
		share.SetRangeInfo("", false, nil)
		return
	}
	share.SetRangeInfo(col, quoted, values)
}

// FetchVindexes reads the set of columns participating in the remote's
// sharding key. ok is false when the probe failed and the set must not be
// cached.
func FetchVindexes(ctx context.Context, drv remote.Driver, def *sqltypes.TableDef, remoteTable string) (set sqltypes.ColumnSet, ok bool) {
	rs, err := drv.Query(ctx, "SHOW KUNDB_VINDEXES IN "+sqlbuild.QuoteIdent(remoteTable), remote.ScanDefault, nil)
	if err != nil {
		return set, false
	}
	for {
		row, fetched := rs.Fetch()
		if !fetched {
			break
		}
		if remote.IsNull(row, 0) {
			continue
		}
		if ord := ordinalFold(def, string(row[0])); ord >= 0 {
			set.Set(ord)
		}
	}
	return set, true
}

// FetchIndexCardinality reads SHOW INDEX and maps remote cardinalities onto
// the local index list. Missing information defaults to 1, which keeps the
// optimizer from trusting the index.
func FetchIndexCardinality(ctx context.Context, drv remote.Driver, def *sqltypes.TableDef, remoteTable string) []uint64 {
	card := make([]uint64, len(def.Indexes))
	for i := range card {
		card[i] = 1
	}
	rs, err := drv.Query(ctx, "SHOW INDEX IN "+sqlbuild.QuoteIdent(remoteTable), remote.ScanDefault, nil)
	if err != nil || rs.NumFields() < 7 {
		return card
	}
	for {
		row, ok := rs.Fetch()
		if !ok {
			break
		}
		if remote.IsNull(row, 2) {
			continue
		}
		idx := indexOrdinal(def, string(row[2]))
		if idx < 0 {
			continue
		}
		if remote.IsNull(row, 6) {
			continue
		}
		if v, err := strconv.ParseUint(string(row[6]), 10, 64); err == nil && v > 0 {
			card[idx] = v
		}
	}
	return card
}

func ordinalFold(def *sqltypes.TableDef, name string) int {
	for i := range def.Columns {
		if strings.EqualFold(def.Columns[i].Name, name) {
			return i
		}
	}
	return -1
}

func indexOrdinal(def *sqltypes.TableDef, name string) int {
	for i := range def.Indexes {
		if def.Indexes[i].Name == name {
			return i
		}
	}
	return -1
}

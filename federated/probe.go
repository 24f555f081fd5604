package federated

import (
	"context"
	"time"

	"github.com/kundb/go-federated/federated/internal/dsn"
	"github.com/kundb/go-federated/federated/internal/meta"
	"github.com/kundb/go-federated/federated/internal/registry"
	"github.com/kundb/go-federated/federated/internal/remote"
	"github.com/kundb/go-federated/federated/internal/sqlbuild"
)

// ProbeReport is the remote-side view of a federated table, gathered with
// the same metadata statements the engine caches at runtime.
type ProbeReport struct {
	CreateTable   string
	Records       uint64
	MeanRecLength uint64
	UpdateTime    time.Time
	CheckTime     time.Time

	Shards            []string
	ShardsUnsupported bool

	RangeColumn     string
	RangeBoundaries []string

	VindexColumns []string
}

// Probe connects to the remote a connection string points at and gathers
// the table's metadata. Best-effort fields stay empty on failure; a missing
// remote table is an error.
func Probe(ctx context.Context, connStr string) (*ProbeReport, error) {
	ci, err := dsn.Parse(connStr, remote.Schemes())
	if err != nil {
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
	}
	share, err := registry.AcquireShare("probe/"+connStr, cfg, ci.Table, "")
	if err != nil {
		return nil, connectError(err)
	}
	defer share.Release()
	drv, err := share.Server.AcquireDriver()
	if err != nil {
		return nil, connectError(err)
	}
	defer share.Server.ReleaseDriver(drv)

	report := &ProbeReport{}
	if err := meta.RefreshTableStats(ctx, drv, share); err != nil {
		if err == meta.ErrNoSuchTable {
			return nil, ErrNoSuchTable
		}
		return nil, stashRemoteError(err)
	}
	st := share.Stats()
	report.Records = st.Records
	report.MeanRecLength = st.MeanRecLength
	report.UpdateTime = st.UpdateTime
	report.CheckTime = st.CheckTime

	if rs, err := drv.Query(ctx, "SHOW CREATE TABLE "+sqlbuild.QuoteIdent(ci.Table), remote.ScanDefault, nil); err == nil {
		if row, ok := rs.Fetch(); ok && rs.NumFields() >= 2 && !remote.IsNull(row, 1) {
			report.CreateTable = string(row[1])
		}
	}

	if cfg.Scheme == remote.SchemeSharded {
		meta.EnsureShards(ctx, drv, share.Server, cfg.Database)
		shards, state := share.Server.Shards()
		report.Shards = shards
		report.ShardsUnsupported = state == registry.TopologyUnsupported

		if rs, err := drv.Query(ctx, "SHOW KUNDB_RANGE_INFO "+sqlbuild.QuoteIdent(ci.Table), remote.ScanDefault, nil); err == nil {
			for {
				row, ok := rs.Fetch()
				if !ok {
					break
				}
				if rs.NumFields() >= 2 && !remote.IsNull(row, 0) && !remote.IsNull(row, 1) {
					report.RangeColumn = string(row[0])
					report.RangeBoundaries = append(report.RangeBoundaries, string(row[1]))
				}
			}
		}

		if rs, err := drv.Query(ctx, "SHOW KUNDB_VINDEXES IN "+sqlbuild.QuoteIdent(ci.Table), remote.ScanDefault, nil); err == nil {
			for {
				row, ok := rs.Fetch()
				if !ok {
					break
				}
				if !remote.IsNull(row, 0) {
					report.VindexColumns = append(report.VindexColumns, string(row[0]))
				}
			}
		}
	}
	return report, nil
}

// RegisterServer registers a named server definition in the local catalog;
// connection strings may then refer to it as "<name>/<table>".
func RegisterServer(name, connStr string) error {
	ci, err := dsn.Parse(connStr, remote.Schemes())
	if err != nil {
		return dsnError(err)
	}
	dsn.RegisterServer(name, *ci)
	return nil
}

// DropServer removes a named server definition from the local catalog.
func DropServer(name string) { dsn.DropServer(name) }

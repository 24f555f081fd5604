package remote

import (
	"context"
	"strings"
)

// sessionTokenVar is the remote session variable carrying the gateway
// session continuity token.
const sessionTokenVar = "kundb_session"

// Sharded is the driver flavor for a KunDB/Vitess style gateway. On top of
// the standard session handling it ships the per-client-session continuity
// token, switches the observed workload between OLTP and OLAP, and executes
// partial-read scans that pin the connection to shard namespaces.
type Sharded struct {
	core

	curMode   ScanMode
	inShardDB bool
	sentToken string
	tokenFn   func() string
}

func newSharded(ept *Endpoint) *Sharded {
	d := &Sharded{curMode: scanUnknown}
	d.init(ept)
	d.onConnect = func() {
		// a fresh gateway connection runs OLTP
		d.curMode = ScanOLTP
		d.inShardDB = false
		d.sentToken = ""
	}
	d.beforeSend = d.syncSessionToken
	return d
}

// SetTokenSource wires the per-client-session token. The token is re-sent
// only when its value changes.
func (d *Sharded) SetTokenSource(fn func() string) { d.tokenFn = fn }

func (d *Sharded) syncSessionToken(ctx context.Context) error {
	if d.tokenFn == nil {
		return nil
	}
	token := d.tokenFn()
	if token == "" || token == d.sentToken {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("set ")
	sb.WriteString(sessionTokenVar)
	sb.WriteString("='")
	sb.WriteString(token)
	sb.WriteString("'")
	if _, err := d.rawSend(ctx, sb.String()); err != nil {
		return err
	}
	d.sentToken = token
	return nil
}

func (d *Sharded) switchWorkload(ctx context.Context, mode ScanMode) error {
	if mode != ScanOLAP && mode != ScanOLTP {
		return nil
	}
	if mode == d.curMode {
		return nil
	}
	stmt := "SET WORKLOAD='OLTP'"
	if mode == ScanOLAP {
		stmt = "SET WORKLOAD='OLAP'"
	}
	if _, err := d.send(ctx, stmt); err != nil {
		return err
	}
	d.curMode = mode
	return nil
}

// useDatabase pins the connection to a namespace.
func (d *Sharded) useDatabase(ctx context.Context, db string) error {
	var sb strings.Builder
	sb.WriteString("USE ")
	appendIdent(&sb, db)
	_, err := d.send(ctx, sb.String())
	return err
}

// leaveShardDB switches the connection back to the default database after a
// shard-pinned scan segment.
func (d *Sharded) leaveShardDB(ctx context.Context) error {
	if !d.inShardDB {
		return nil
	}
	if err := d.useDatabase(ctx, d.ept.cfg.Database); err != nil {
		return err
	}
	d.inShardDB = false
	return nil
}

// Query reconciles session state, switches the workload when the plan
// demands it and sends either the given statement or, while a partial-read
// scan is active, its next segment.
func (d *Sharded) Query(ctx context.Context, query string, mode ScanMode, scan *ScanInfo) (*ResultSet, error) {
	if err := d.reconcile(ctx); err != nil {
		return nil, err
	}
	if err := d.switchWorkload(ctx, mode); err != nil {
		return nil, err
	}

	var rs *ResultSet
	var err error
	switch {
	case scan != nil && (scan.Mode == PartialShard || scan.Mode == PartialShardRange):
		shard, segment := scan.next()
		if err = d.useDatabase(ctx, shard); err != nil {
			return nil, err
		}
		d.inShardDB = true
		rs, err = d.sendQuery(ctx, segment)
	case scan != nil && scan.Mode == PartialRange:
		_, segment := scan.next()
		if err = d.leaveShardDB(ctx); err != nil {
			return nil, err
		}
		rs, err = d.sendQuery(ctx, segment)
	default:
		if err = d.leaveShardDB(ctx); err != nil {
			return nil, err
		}
		rs, err = d.sendQuery(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	d.finishStatement()
	return rs, nil
}

// Exec reconciles session state and sends a statement without rows.
func (d *Sharded) Exec(ctx context.Context, query string, mode ScanMode) error {
	if err := d.reconcile(ctx); err != nil {
		return err
	}
	if err := d.switchWorkload(ctx, mode); err != nil {
		return err
	}
	if err := d.leaveShardDB(ctx); err != nil {
		return err
	}
	if _, err := d.send(ctx, query); err != nil {
		return err
	}
	d.finishStatement()
	return nil
}

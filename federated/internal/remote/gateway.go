package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// ExecResult carries the bookkeeping of a statement without rows.
type ExecResult struct {
	AffectedRows uint64
	InsertID     uint64
}

// Gateway is the wire seam of a driver: one dedicated remote connection with
// raw statement dispatch. The production gateway wraps a database/sql
// connection backed by go-sql-driver/mysql; tests substitute a scripted
// recorder.
type Gateway interface {
	Exec(ctx context.Context, query string) (ExecResult, error)
	Query(ctx context.Context, query string) (*ResultSet, error)
	Close() error
}

// DialFunc produces a fresh dedicated connection to the endpoint.
type DialFunc func(ctx context.Context) (Gateway, error)

// Endpoint is the long-lived, per-server connection factory shared by every
// driver bound to the same remote. It owns the database/sql pool the
// dedicated connections are drawn from.
type Endpoint struct {
	cfg  Config
	db   *sql.DB
	dial DialFunc
}

// NewEndpoint opens the connection factory for cfg.
func NewEndpoint(cfg Config) (*Endpoint, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	if cfg.Socket != "" {
		mc.Net = "unix"
		mc.Addr = cfg.Socket
	} else {
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	if cfg.Charset != "" {
		mc.Params = map[string]string{"charset": cfg.Charset}
	}
	mc.AllowCleartextPasswords = true
	mc.InterpolateParams = false
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	db := sql.OpenDB(connector)
	// drivers hold dedicated connections; the pool only parks them between
	// acquires
	db.SetConnMaxLifetime(0)
	ept := &Endpoint{cfg: cfg, db: db}
	ept.dial = ept.dialConn
	return ept, nil
}

// NewTestEndpoint builds an endpoint whose connections come from dial
// instead of a real server. Test support.
func NewTestEndpoint(cfg Config, dial DialFunc) *Endpoint {
	return &Endpoint{cfg: cfg, dial: dial}
}

// Config returns the endpoint configuration.
func (e *Endpoint) Config() Config { return e.cfg }

// Close releases the underlying pool.
func (e *Endpoint) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

func (e *Endpoint) dialConn(ctx context.Context) (Gateway, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlGateway{conn: conn}, nil
}

// sqlGateway adapts one dedicated database/sql connection.
type sqlGateway struct {
	conn *sql.Conn
}

func (g *sqlGateway) Exec(ctx context.Context, query string) (ExecResult, error) {
	res, err := g.conn.ExecContext(ctx, query)
	if err != nil {
		return ExecResult{}, err
	}
	var er ExecResult
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		er.AffectedRows = uint64(n)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		er.InsertID = uint64(id)
	}
	return er, nil
}

func (g *sqlGateway) Query(ctx context.Context, query string) (*ResultSet, error) {
	rows, err := g.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return storeResult(rows)
}

func (g *sqlGateway) Close() error { return g.conn.Close() }

// storeResult materializes the full result client side, the way the original
// engine stores results: random seeks and multiple live result sets per
// connection come for free.
func storeResult(rows *sql.Rows) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{fields: cols}
	raw := make([]sql.RawBytes, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([][]byte, len(cols))
		for i, cell := range raw {
			if cell == nil {
				continue // NULL cell
			}
			row[i] = make([]byte, len(cell))
			copy(row[i], cell)
		}
		rs.rows = append(rs.rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// IsRemoteError reports whether err is a SQL-level error of the remote, as
// opposed to a transport failure. Transport failures invalidate the
// connection.
func IsRemoteError(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr)
}

// RemoteErrorNumber extracts the remote error code, or 0.
func RemoteErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

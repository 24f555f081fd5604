// Package remotetest provides a scripted wire recorder standing in for a
// remote server. Unit tests assert the exact statement sequences the engine
// puts on the wire and feed back canned result sets.
package remotetest

import (
	"context"
	"fmt"

	"github.com/kundb/go-federated/federated/internal/remote"
)

// Recorder scripts and records the wire traffic of one fake endpoint. All
// connections dialed from it share the statement log.
type Recorder struct {
	// Statements is every statement sent, in wire order.
	Statements []string
	// Dials counts established connections.
	Dials int

	// ConnectErr makes every dial fail.
	ConnectErr error

	results     map[string]*remote.ResultSet
	queued      []*remote.ResultSet
	execResults map[string]remote.ExecResult
	failures    map[string]error
}

// New returns an empty recorder.
func New() *Recorder {
	return &Recorder{
		results:     map[string]*remote.ResultSet{},
		execResults: map[string]remote.ExecResult{},
		failures:    map[string]error{},
	}
}

// Endpoint wraps the recorder into an endpoint for driver construction.
func (r *Recorder) Endpoint(cfg remote.Config) *remote.Endpoint {
	return remote.NewTestEndpoint(cfg, r.dial)
}

// SetResult scripts the result set of an exact query text.
func (r *Recorder) SetResult(query string, rs *remote.ResultSet) { r.results[query] = rs }

// QueueResult scripts the result of the next otherwise-unscripted query.
func (r *Recorder) QueueResult(rs *remote.ResultSet) { r.queued = append(r.queued, rs) }

// SetExecResult scripts affected rows and insert id of an exact statement.
func (r *Recorder) SetExecResult(query string, res remote.ExecResult) { r.execResults[query] = res }

// FailWith scripts an error for an exact statement.
func (r *Recorder) FailWith(query string, err error) { r.failures[query] = err }

// Reset clears the statement log but keeps the scripted responses.
func (r *Recorder) Reset() { r.Statements = nil }

func (r *Recorder) dial(context.Context) (remote.Gateway, error) {
	if r.ConnectErr != nil {
		return nil, r.ConnectErr
	}
	r.Dials++
	return &gateway{rec: r}, nil
}

type gateway struct {
	rec    *Recorder
	closed bool
}

func (g *gateway) Exec(_ context.Context, query string) (remote.ExecResult, error) {
	g.rec.Statements = append(g.rec.Statements, query)
	if err, ok := g.rec.failures[query]; ok {
		return remote.ExecResult{}, err
	}
	return g.rec.execResults[query], nil
}

func (g *gateway) Query(_ context.Context, query string) (*remote.ResultSet, error) {
	g.rec.Statements = append(g.rec.Statements, query)
	if err, ok := g.rec.failures[query]; ok {
		return nil, err
	}
	if rs, ok := g.rec.results[query]; ok {
		return rs, nil
	}
	if len(g.rec.queued) > 0 {
		rs := g.rec.queued[0]
		g.rec.queued = g.rec.queued[1:]
		return rs, nil
	}
	return remote.NewTestResultSet(nil, nil), nil
}

func (g *gateway) Close() error {
	if g.closed {
		return fmt.Errorf("remotetest: connection closed twice")
	}
	g.closed = true
	return nil
}

// Rows is a convenience constructor for canned results: each row is a slice
// of cells, nil for NULL.
func Rows(fields []string, rows ...[]any) *remote.ResultSet {
	data := make([][][]byte, 0, len(rows))
	for _, in := range rows {
		row := make([][]byte, len(in))
		for i, cell := range in {
			switch v := cell.(type) {
			case nil:
				row[i] = nil
			case string:
				row[i] = []byte(v)
			case []byte:
				row[i] = v
			default:
				row[i] = []byte(fmt.Sprint(v))
			}
		}
		data = append(data, row)
	}
	return remote.NewTestResultSet(fields, data)
}

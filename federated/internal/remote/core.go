package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kundb/go-federated/federated/internal/savepoint"
	"github.com/kundb/go-federated/federated/sqltrace"
)

// setTimeZoneUTC is asserted once per physical connection so that temporal
// literal round-trips are bit-exact. Reconnects re-assert it.
const setTimeZoneUTC = "set time_zone='+00:00'"

// core carries the state and behavior the driver flavors share: the
// connection, autocommit bookkeeping, the savepoint stack and statement
// dispatch. Flavors hook into connection setup and per-statement preambles.
type core struct {
	ept    *Endpoint
	logger *slog.Logger

	gw Gateway

	readonly            bool
	active              bool
	requestedAutocommit bool
	actualAutocommit    bool
	sps                 savepoint.Stack

	affected uint64
	insertID uint64

	// onConnect resets flavor state after a (re)connect.
	onConnect func()
	// beforeSend runs before every wire statement once the connection is
	// up; the sharded flavor syncs its session token here.
	beforeSend func(ctx context.Context) error
}

func (c *core) init(ept *Endpoint) {
	c.ept = ept
	c.logger = ept.cfg.logger()
	c.requestedAutocommit = true
	c.actualAutocommit = true
}

// Connect establishes the underlying session eagerly.
func (c *core) Connect(ctx context.Context) error { return c.ensureConn(ctx) }

func (c *core) ensureConn(ctx context.Context) error {
	if c.gw != nil {
		return nil
	}
	gw, err := c.ept.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	c.gw = gw
	// autocommit is on as observed on a fresh connection
	c.actualAutocommit = true
	if c.onConnect != nil {
		c.onConnect()
	}
	if _, err := c.rawSend(ctx, setTimeZoneUTC); err != nil {
		return err
	}
	return nil
}

// rawSend dispatches one statement on the established connection, bypassing
// the per-statement preamble. Transport failures drop the connection so the
// next statement redials.
func (c *core) rawSend(ctx context.Context, query string) (ExecResult, error) {
	if sqltrace.On() {
		sqltrace.Traceln(query)
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "send", slog.String("sql", query))
	res, err := c.gw.Exec(ctx, query)
	if err != nil && !IsRemoteError(err) {
		c.dropConn()
	}
	if err == nil {
		c.affected = res.AffectedRows
		c.insertID = res.InsertID
	}
	return res, err
}

// send dispatches one statement, running the flavor preamble first.
func (c *core) send(ctx context.Context, query string) (ExecResult, error) {
	if err := c.ensureConn(ctx); err != nil {
		return ExecResult{}, err
	}
	if c.beforeSend != nil {
		if err := c.beforeSend(ctx); err != nil {
			return ExecResult{}, err
		}
	}
	return c.rawSend(ctx, query)
}

func (c *core) sendQuery(ctx context.Context, query string) (*ResultSet, error) {
	if err := c.ensureConn(ctx); err != nil {
		return nil, err
	}
	if c.beforeSend != nil {
		if err := c.beforeSend(ctx); err != nil {
			return nil, err
		}
	}
	if sqltrace.On() {
		sqltrace.Traceln(query)
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "query", slog.String("sql", query))
	rs, err := c.gw.Query(ctx, query)
	if err != nil && !IsRemoteError(err) {
		c.dropConn()
	}
	return rs, err
}

func (c *core) dropConn() {
	if c.gw != nil {
		c.gw.Close()
		c.gw = nil
	}
}

// reconcile brings autocommit and savepoint state in line before a user
// statement:
//
//  1. dial if the connection is not yet established
//  2. compute the wanted autocommit: requested or read only; forced off while
//     the driver is mid-transaction; allowed back on when every savepoint on
//     the stack is a read-only scope
//  3. emit SET AUTOCOMMIT when wanted and actual differ
//  4. realize the topmost savepoint, emitting its SAVEPOINT statement unless
//     the scope is restricted
func (c *core) reconcile(ctx context.Context) error {
	if c.gw == nil {
		// connection gone; observed autocommit resets with it
		c.actualAutocommit = true
		if err := c.ensureConn(ctx); err != nil {
			return err
		}
	}

	wants := c.requestedAutocommit || c.readonly
	if c.active {
		// inside a transaction autocommit is never wanted, even for reads
		wants = false
	}
	if !wants && c.sps.AllRestrict() {
		wants = true
	}

	if wants != c.actualAutocommit {
		stmt := "SET AUTOCOMMIT=0"
		if wants {
			stmt = "SET AUTOCOMMIT=1"
		}
		if _, err := c.send(ctx, stmt); err != nil {
			return err
		}
		c.actualAutocommit = wants
	}

	if !c.actualAutocommit && c.sps.Last() != c.sps.Actual() {
		top := c.sps.Top()
		if top.Flags&savepoint.Restrict == 0 {
			if _, err := c.send(ctx, fmt.Sprintf("SAVEPOINT save%d", top.Level)); err != nil {
				return err
			}
			c.active = true
			top.Flags |= savepoint.Emitted
		}
		top.Flags |= savepoint.Realized
	}
	return nil
}

func (c *core) finishStatement() {
	c.active = c.active || !c.actualAutocommit
}

// AffectedRows returns the row count of the last statement.
func (c *core) AffectedRows() uint64 { return c.affected }

// LastInsertID returns the insert id of the last statement.
func (c *core) LastInsertID() uint64 { return c.insertID }

// MaxQuerySize returns the byte cap of a single statement.
func (c *core) MaxQuerySize() int { return c.ept.cfg.maxQuerySize() }

// SavepointSet pushes a new savepoint scope. The SAVEPOINT statement itself
// is deferred until a statement executes inside the scope.
func (c *core) SavepointSet(level uint64) error {
	if err := c.sps.Set(level); err != nil {
		return err
	}
	c.active = true
	c.requestedAutocommit = false
	return nil
}

// SavepointRelease pops every scope at or above level, releasing the deepest
// realized one on the remote. It returns the remaining topmost level.
func (c *core) SavepointRelease(ctx context.Context, level uint64) uint64 {
	if emit, ok := c.sps.Release(level); ok {
		c.send(ctx, fmt.Sprintf("RELEASE SAVEPOINT save%d", emit))
	}
	return c.sps.Last()
}

// SavepointRollback pops every scope above level and rolls the remote back
// to the closest realized one below. It returns the remaining topmost level.
func (c *core) SavepointRollback(ctx context.Context, level uint64) uint64 {
	if emit, ok := c.sps.Rollback(level); ok {
		c.send(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT save%d", emit))
	}
	return c.sps.Last()
}

// SavepointRestrict marks the scope at level read only.
func (c *core) SavepointRestrict(level uint64) { c.sps.Restrict(level) }

// LastSavepoint returns the topmost stack level.
func (c *core) LastSavepoint() uint64 { return c.sps.Last() }

// ActualSavepoint returns the topmost realized level.
func (c *core) ActualSavepoint() uint64 { return c.sps.Actual() }

// RequestTxn pins the driver to transactional mode.
func (c *core) RequestTxn() { c.requestedAutocommit = false }

// Commit ends the transaction on the remote and resets the driver. A failing
// COMMIT triggers a rollback.
func (c *core) Commit(ctx context.Context) error {
	var err error
	if !c.actualAutocommit {
		if _, err = c.send(ctx, "COMMIT"); err != nil {
			c.Rollback(ctx)
		}
	}
	c.Reset()
	return err
}

// Rollback aborts the transaction on the remote and resets the driver. When
// the rollback cannot reach the remote the driver reports
// ErrIncompleteRollback; the caller downgrades it to a warning.
func (c *core) Rollback(ctx context.Context) error {
	var err error
	if !c.actualAutocommit {
		if _, serr := c.send(ctx, "ROLLBACK"); serr != nil {
			err = ErrIncompleteRollback
		}
	} else if c.active {
		err = ErrIncompleteRollback
	}
	c.Reset()
	return err
}

// Reset clears the savepoint stack and transactional state; the next
// statement reconciles from scratch.
func (c *core) Reset() {
	c.sps.Clear()
	c.active = false
	c.requestedAutocommit = true
}

// Active reports whether the driver holds uncommitted work or an open
// savepoint.
func (c *core) Active() bool { return c.active }

// Autocommit returns the autocommit state as observed on the remote.
func (c *core) Autocommit() bool { return c.actualAutocommit }

// SetReadonly marks the driver as serving read-only statements.
func (c *core) SetReadonly(readonly bool) { c.readonly = readonly }

// Readonly reports whether the driver serves read-only statements.
func (c *core) Readonly() bool { return c.readonly }

// Endpoint identifies the remote server this driver is bound to.
func (c *core) Endpoint() *Endpoint { return c.ept }

// Close drops the underlying connection.
func (c *core) Close() error {
	if c.gw == nil {
		return nil
	}
	err := c.gw.Close()
	c.gw = nil
	return err
}

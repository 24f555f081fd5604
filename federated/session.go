package federated

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kundb/go-federated/federated/internal/registry"
	"github.com/kundb/go-federated/federated/internal/remote"
)

// tokenSource is the optional interface of drivers that ship a session
// continuity token.
type tokenSource interface {
	SetTokenSource(fn func() string)
}

type txnEntry struct {
	drv remote.Driver
	srv *registry.Server
}

// Session is the per-client-session transaction context: the set of active
// I/O drivers, the statement and transaction scopes and the savepoint level
// counter. Sessions are created lazily by the executor on first use of the
// engine and are driven from a single thread.
type Session struct {
	attrs   *SessionAttrs
	logger  *slog.Logger
	metrics *metrics
	token   string

	txnList []txnEntry
	level   uint64
	// curScope is the innermost open savepoint level, 0 when none; drivers
	// joining mid-scope catch up to it.
	curScope  uint64
	stmtLevel uint64
	inStmt    bool
	inTxn     bool
}

// NewSession creates a session context. attrs nil selects defaults.
func NewSession(attrs *SessionAttrs, logger *slog.Logger) *Session {
	if attrs == nil {
		attrs = NewSessionAttrs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		attrs:   attrs,
		logger:  logger,
		metrics: newMetrics(stdMetrics, defTimeKeys),
		token:   uuid.NewString(),
	}
}

// Attrs returns the session attributes.
func (s *Session) Attrs() *SessionAttrs { return s.attrs }

// Stats returns the statistics of this session.
func (s *Session) Stats() Stats { return s.metrics.stats() }

// SessionToken returns the gateway continuity token: the executor-provided
// value when set, the generated session identity otherwise.
func (s *Session) SessionToken() string {
	if t := s.attrs.SessionToken(); t != "" {
		return t
	}
	return s.token
}

// InTxn reports whether the session runs an explicit transaction.
func (s *Session) InTxn() bool { return s.inTxn }

// Acquire returns a driver bound to the share's server: the one already
// active in this session when present, an idle parked one otherwise, a
// fresh one as last resort. Drivers joining while a savepoint scope is open
// catch up to the scope level.
func (s *Session) Acquire(share *registry.Share, readonly bool) (remote.Driver, error) {
	for _, e := range s.txnList {
		if e.drv.Endpoint() == share.Server.Endpoint() {
			e.drv.SetReadonly(readonly)
			return e.drv, nil
		}
	}
	drv, err := share.Server.AcquireDriver()
	if err != nil {
		return nil, connectError(err)
	}
	drv.SetReadonly(readonly)
	if ts, ok := drv.(tokenSource); ok {
		ts.SetTokenSource(s.SessionToken)
	}
	if s.inTxn {
		drv.RequestTxn()
	}
	if s.curScope > 0 && !readonly && drv.LastSavepoint() < s.curScope {
		drv.SavepointSet(s.curScope)
	}
	s.txnList = append(s.txnList, txnEntry{drv: drv, srv: share.Server})
	s.metrics.addGauge(gaugeDriver, 1)
	return drv, nil
}

// Release hands a driver back. Inactive drivers return to the server's idle
// pool; active ones stay in the session until the transaction ends.
func (s *Session) Release(drv remote.Driver) {
	if drv == nil || drv.Active() {
		return
	}
	for i, e := range s.txnList {
		if e.drv == drv {
			s.txnList = append(s.txnList[:i], s.txnList[i+1:]...)
			e.srv.ReleaseDriver(drv)
			s.metrics.addGauge(gaugeDriver, -1)
			return
		}
	}
}

// releaseInactive returns every no-longer-active driver to its server.
func (s *Session) releaseInactive() {
	kept := s.txnList[:0]
	for _, e := range s.txnList {
		if e.drv.Active() {
			kept = append(kept, e)
			continue
		}
		e.srv.ReleaseDriver(e.drv)
		s.metrics.addGauge(gaugeDriver, -1)
	}
	s.txnList = kept
}

// spAcquire opens a new savepoint scope on every read-write driver.
func (s *Session) spAcquire() uint64 {
	s.level++
	s.curScope = s.level
	for _, e := range s.txnList {
		if e.drv.Readonly() {
			continue
		}
		e.drv.SavepointSet(s.level)
	}
	return s.level
}

// StmtBegin opens the statement scope: the level counter advances and every
// read-write driver gets a pending statement savepoint.
func (s *Session) StmtBegin() {
	if s.inStmt {
		return
	}
	s.inStmt = true
	s.stmtLevel = s.spAcquire()
	s.metrics.addGauge(gaugeStmt, 1)
}

// StmtAutocommit marks the statement scope read-only-equivalent: a single
// autocommittable statement needs no savepoint and may run with autocommit
// on.
func (s *Session) StmtAutocommit() {
	if !s.inStmt {
		return
	}
	for _, e := range s.txnList {
		e.drv.SavepointRestrict(s.stmtLevel)
	}
}

// StmtCommit closes the statement scope. Outside an explicit transaction the
// statement is the whole transaction and the drivers commit.
func (s *Session) StmtCommit(ctx context.Context) error {
	if !s.inStmt {
		return nil
	}
	var firstErr error
	for _, e := range s.txnList {
		if e.drv.Readonly() {
			continue
		}
		e.drv.SavepointRelease(ctx, s.stmtLevel)
	}
	if !s.inTxn {
		for _, e := range s.txnList {
			if err := e.drv.Commit(ctx); err != nil && firstErr == nil {
				firstErr = stashRemoteError(err)
			}
		}
		s.level = 0
	}
	s.inStmt = false
	s.curScope = 0
	s.metrics.addGauge(gaugeStmt, -1)
	s.releaseInactive()
	return firstErr
}

// StmtRollback undoes the statement scope. Outside an explicit transaction
// the drivers roll back entirely.
func (s *Session) StmtRollback(ctx context.Context) error {
	if !s.inStmt {
		return nil
	}
	var warn error
	for _, e := range s.txnList {
		if e.drv.Readonly() {
			continue
		}
		e.drv.SavepointRollback(ctx, s.stmtLevel)
		e.drv.SavepointRelease(ctx, s.stmtLevel)
	}
	if !s.inTxn {
		for _, e := range s.txnList {
			if err := e.drv.Rollback(ctx); err != nil && warn == nil {
				warn = mapRollbackError(err)
			}
		}
		s.level = 0
	}
	s.inStmt = false
	s.curScope = 0
	s.metrics.addGauge(gaugeStmt, -1)
	s.releaseInactive()
	return warn
}

// TxnBegin enters an explicit transaction: a level is reserved for the
// transaction scope and every driver is pinned to transactional mode.
func (s *Session) TxnBegin() {
	if s.inTxn {
		return
	}
	s.inTxn = true
	s.level++
	for _, e := range s.txnList {
		if e.drv.Readonly() {
			continue
		}
		e.drv.RequestTxn()
	}
	s.metrics.addGauge(gaugeTx, 1)
}

// TxnCommit commits every driver and ends the transaction.
func (s *Session) TxnCommit(ctx context.Context) error {
	var firstErr error
	for _, e := range s.txnList {
		start := time.Now()
		if err := e.drv.Commit(ctx); err != nil && firstErr == nil {
			firstErr = stashRemoteError(err)
		}
		s.metrics.addTime(StatsTimeCommit, start)
	}
	s.endTxn()
	return firstErr
}

// TxnRollback rolls back every driver and ends the transaction. A rollback
// that could not reach the remote is downgraded to the not-complete-rollback
// warning.
func (s *Session) TxnRollback(ctx context.Context) error {
	var warn error
	for _, e := range s.txnList {
		start := time.Now()
		if err := e.drv.Rollback(ctx); err != nil && warn == nil {
			warn = mapRollbackError(err)
		}
		s.metrics.addTime(StatsTimeRollback, start)
	}
	s.endTxn()
	return warn
}

func (s *Session) endTxn() {
	if s.inTxn {
		s.inTxn = false
		s.metrics.addGauge(gaugeTx, -1)
	}
	if s.inStmt {
		s.inStmt = false
		s.metrics.addGauge(gaugeStmt, -1)
	}
	s.level = 0
	s.curScope = 0
	s.stmtLevel = 0
	s.releaseInactive()
}

// Savepoint opens an executor-visible savepoint and returns its level.
func (s *Session) Savepoint() uint64 {
	s.TxnBegin()
	return s.spAcquire()
}

// RollbackTo rolls every read-write driver back to the savepoint level.
func (s *Session) RollbackTo(ctx context.Context, level uint64) {
	for _, e := range s.txnList {
		if e.drv.Readonly() {
			continue
		}
		e.drv.SavepointRollback(ctx, level)
	}
	s.curScope = level
}

// ReleaseSavepoint releases the savepoint level on every read-write driver.
func (s *Session) ReleaseSavepoint(ctx context.Context, level uint64) {
	for _, e := range s.txnList {
		if e.drv.Readonly() {
			continue
		}
		e.drv.SavepointRelease(ctx, level)
	}
	if s.curScope >= level {
		s.curScope = 0
	}
}

// Close rolls back any open work and drops every driver. It is called at
// session disconnect.
func (s *Session) Close(ctx context.Context) error {
	warn := s.TxnRollback(ctx)
	for _, e := range s.txnList {
		e.drv.Close()
		s.metrics.addGauge(gaugeDriver, -1)
	}
	s.txnList = nil
	return warn
}

func mapRollbackError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, remote.ErrIncompleteRollback) {
		return ErrWarnIncompleteRollback
	}
	return stashRemoteError(err)
}

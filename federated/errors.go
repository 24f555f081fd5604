package federated

import (
	"errors"
	"fmt"

	"github.com/kundb/go-federated/federated/internal/remote"
)

// Error codes surfaced to the executor. The numbering follows the server
// error space so that the executor's reporting stays uniform.
const (
	ErrCodeConnectToForeignDataSource = 1429
	ErrCodeQueryOnForeignDataSource   = 1430
	ErrCodeForeignDataStringInvalid   = 1433
	ErrCodeForeignDataStringCantCreate = 1432
	ErrCodeCantCreateFederatedTable   = 1434
	ErrCodeForeignServerDoesntExist   = 1477
	ErrCodeWarnNotCompleteRollback    = 1196
	ErrCodeNoSuchTable                = 1146

	// handler-level error classes
	ErrCodeFoundDuppKey    = 121
	ErrCodeFoundDuppUnique = 127
	ErrCodeOutOfMemory     = 128
	ErrCodeEndOfFile       = 137
)

// remote server duplicate-key error numbers mapped to the local
// duplicate-key class.
const (
	remoteErrDupKey   = 1022
	remoteErrDupEntry = 1062
)

// Error is a handler error with its executor-facing code. Remote errors are
// stashed verbatim underneath.
type Error struct {
	Code  int
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("federated: %s: %v", e.msg, e.cause)
	}
	return "federated: " + e.msg
}

// Unwrap returns the stashed cause.
func (e *Error) Unwrap() error { return e.cause }

// Is matches errors by code so that sentinel comparisons survive wrapping.
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return fe.Code == e.Code
	}
	return false
}

// Sentinel errors of the handler surface.
var (
	ErrEndOfFile              = &Error{Code: ErrCodeEndOfFile, msg: "end of file"}
	ErrFoundDuppKey           = &Error{Code: ErrCodeFoundDuppKey, msg: "duplicate key"}
	ErrFoundDuppUnique        = &Error{Code: ErrCodeFoundDuppUnique, msg: "duplicate unique key"}
	ErrWarnIncompleteRollback = &Error{Code: ErrCodeWarnNotCompleteRollback, msg: "some non-transactional changes could not be rolled back"}
	ErrNoSuchTable            = &Error{Code: ErrCodeNoSuchTable, msg: "remote table does not exist"}
)

func connectError(err error) error {
	return &Error{Code: ErrCodeConnectToForeignDataSource, msg: "unable to connect to foreign data source", cause: err}
}

func dsnError(err error) error {
	return &Error{Code: ErrCodeForeignDataStringInvalid, msg: "invalid connection string", cause: err}
}

// stashRemoteError maps a failed remote statement into the executor-facing
// error classes: connect failures, duplicate keys, plain remote-SQL errors.
func stashRemoteError(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, remote.ErrConnectFailed) {
		return connectError(err)
	}
	if errors.Is(err, remote.ErrEndOfFile) {
		return ErrEndOfFile
	}
	switch remote.RemoteErrorNumber(err) {
	case remoteErrDupEntry, remoteErrDupKey:
		return &Error{Code: ErrCodeFoundDuppKey, msg: "duplicate key on remote", cause: err}
	}
	return &Error{Code: ErrCodeQueryOnForeignDataSource, msg: "error on remote system", cause: err}
}

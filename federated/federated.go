// Package federated implements the remote-session layer of a federated
// storage engine: local table operations are translated into SQL against a
// remote MySQL-compatible server or a sharded KunDB gateway, and the remote
// results are handed back row at a time.
//
// The executor drives a Handler per open table. Handlers share process-wide
// server records and table descriptors, draw I/O drivers from a per-session
// pool, and lean on the internal translator, partial-read planner and
// metadata cache.
package federated

import "github.com/kundb/go-federated/federated/internal/remote"

// DriverVersion is the engine version.
const DriverVersion = "1.2.5"

// Schemes lists the remote schemes connection strings may use.
func Schemes() []string { return remote.Schemes() }

// Ref is the opaque positional reference handed to the executor for
// position and rnd_pos.
type Ref = remote.Ref

package registry

import (
	"sync"

	"github.com/kundb/go-federated/federated/internal/remote"
)

// TopologyState qualifies the cached shard list of a server.
type TopologyState int

const (
	// TopologyUnknown means shard enumeration has not run yet.
	TopologyUnknown TopologyState = iota
	// TopologyUnsupported means the remote did not enumerate shards; shard
	// decomposition is off for good.
	TopologyUnsupported
	// TopologyKnown means the shard list is cached.
	TopologyKnown
)

// maxIdleDrivers bounds the drivers a server record parks between acquires.
const maxIdleDrivers = 8

// Server is the process-wide shared record of one remote endpoint: the
// connection factory, the parked idle drivers and the topology cache.
type Server struct {
	key      string
	hash     uint64
	ept      *remote.Endpoint
	useCount int

	mu        sync.Mutex
	idle      []remote.Driver
	topoState TopologyState
	shards    []string
}

// Hash returns a compact 64-bit fingerprint of the server key.
func (s *Server) Hash() uint64 { return s.hash }

// Endpoint returns the connection factory of this server.
func (s *Server) Endpoint() *remote.Endpoint { return s.ept }

// AcquireDriver returns an idle parked driver or constructs a fresh one.
func (s *Server) AcquireDriver() (remote.Driver, error) {
	s.mu.Lock()
	if n := len(s.idle); n > 0 {
		drv := s.idle[n-1]
		s.idle = s.idle[:n-1]
		s.mu.Unlock()
		return drv, nil
	}
	s.mu.Unlock()
	return remote.New(s.ept)
}

// ReleaseDriver parks an inactive driver for reuse. Surplus drivers are
// closed.
func (s *Server) ReleaseDriver(drv remote.Driver) {
	drv.Reset()
	s.mu.Lock()
	if len(s.idle) < maxIdleDrivers {
		s.idle = append(s.idle, drv)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	drv.Close()
}

// Shards returns the cached topology.
func (s *Server) Shards() ([]string, TopologyState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shards, s.topoState
}

// SetShards caches an enumerated shard list. A topology once cached is kept.
func (s *Server) SetShards(shards []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topoState != TopologyUnknown {
		return
	}
	s.shards = shards
	s.topoState = TopologyKnown
}

// MarkShardsUnsupported pins the topology to "the remote does not enumerate
// shards".
func (s *Server) MarkShardsUnsupported() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topoState == TopologyUnknown {
		s.topoState = TopologyUnsupported
	}
}

// Release drops one reference; the last one removes the record and closes
// its connections outside the registry mutex.
func (s *Server) Release() {
	global.mu.Lock()
	s.useCount--
	last := s.useCount == 0
	if last {
		delete(global.servers, s.key)
	}
	global.mu.Unlock()
	if !last {
		return
	}
	for _, drv := range s.idle {
		drv.Close()
	}
	s.idle = nil
	s.ept.Close()
}

package registry

import (
	"sync"
	"time"
)

// Stats is the cached remote table status.
type Stats struct {
	Records       uint64
	MeanRecLength uint64
	UpdateTime    time.Time
	CheckTime     time.Time
	// RefreshedAt is when the status was last fetched; zero means never.
	RefreshedAt time.Time
}

// Share is the process-wide shared descriptor of one local federated table:
// the remote table identity, the pre-built scan projection, the reference to
// the server record and the cached range-partition layout.
type Share struct {
	key      string
	useCount int

	Server      *Server
	RemoteTable string
	BaseSelect  string

	mu    sync.Mutex
	stats Stats
	// delta counts inserts, updates and deletes since the last refresh
	delta uint64

	rangeInit  bool
	partCol    string
	partQuote  bool
	partValues []string
}

// Key returns the local table key.
func (sh *Share) Key() string { return sh.key }

// Stats returns the cached table status.
func (sh *Share) Stats() Stats {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.stats
}

// SetStats replaces the cached table status and restarts the delta counter.
func (sh *Share) SetStats(st Stats) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.stats = st
	sh.delta = 0
}

// AddDelta accounts rows written, updated or deleted since the last refresh.
func (sh *Share) AddDelta(n uint64) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.delta += n
}

// Delta returns the accumulated row changes since the last refresh.
func (sh *Share) Delta() uint64 {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.delta
}

// RangeInfo returns the cached range-partition layout of the remote table.
// ok is false until a fetch ran; a table without range partitioning caches
// an empty column name.
func (sh *Share) RangeInfo() (col string, quoted bool, values []string, ok bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.partCol, sh.partQuote, sh.partValues, sh.rangeInit
}

// SetRangeInfo caches the range-partition layout. The first fetch wins.
func (sh *Share) SetRangeInfo(col string, quoted bool, values []string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.rangeInit {
		return
	}
	sh.rangeInit = true
	sh.partCol = col
	sh.partQuote = quoted
	sh.partValues = values
}

// Release drops one reference; the last one removes the descriptor and
// releases its server reference.
func (sh *Share) Release() {
	global.mu.Lock()
	sh.useCount--
	last := sh.useCount == 0
	if last {
		delete(global.shares, sh.key)
	}
	global.mu.Unlock()
	if last {
		sh.Server.Release()
	}
}

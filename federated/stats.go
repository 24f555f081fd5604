package federated

import (
	"fmt"
	"strings"
)

// StatsHistogram represents statistic data in a histogram structure.
type StatsHistogram struct {
	// Count holds the number of measurements.
	Count uint64
	// Sum holds the sum of the measurements.
	Sum uint64
	// Buckets contains the count of measurements belonging to a bucket
	// where the value of the measurement is less or equal the bucket map
	// key.
	Buckets map[uint64]uint64
}

func (s *StatsHistogram) String() string {
	return fmt.Sprintf("count %d sum %d values %v", s.Count, s.Sum, s.Buckets)
}

// Constants for time statistics.
const (
	StatsTimeQuery    = iota // Time spent on remote queries returning rows.
	StatsTimeExec            // Time spent on remote DML statements.
	StatsTimeBulk            // Time spent on bulk-insert flushes.
	StatsTimeMeta            // Time spent on metadata statements.
	StatsTimeCommit          // Time spent on commits.
	StatsTimeRollback        // Time spent on rollbacks.
	NumStatsTime
)

var statsTimeTexts = []string{"query", "exec", "bulk", "meta", "commit", "rollback"}

// Stats contains engine statistics.
type Stats struct {
	OpenDrivers      int // The number of currently held remote drivers.
	OpenTransactions int // The number of sessions inside an explicit transaction.
	OpenStatements   int // The number of statement scopes currently open.
	Statements       uint64 // Total statements sent to remotes.
	RowsRead         uint64 // Total rows fetched from remotes.
	RowsWritten      uint64 // Total rows written, updated or deleted.

	Times []*StatsHistogram // Spent time statistics (see StatsTime* constants for details).
}

func (s Stats) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("\nopenDrivers      %d", s.OpenDrivers))
	sb.WriteString(fmt.Sprintf("\nopenTransactions %d", s.OpenTransactions))
	sb.WriteString(fmt.Sprintf("\nopenStatements   %d", s.OpenStatements))
	sb.WriteString(fmt.Sprintf("\nstatements       %d", s.Statements))
	sb.WriteString(fmt.Sprintf("\nrowsRead         %d", s.RowsRead))
	sb.WriteString(fmt.Sprintf("\nrowsWritten      %d", s.RowsWritten))
	sb.WriteString("\nTimes")
	for i, timeStat := range s.Times {
		sb.WriteString(fmt.Sprintf("\n  %-8s %s", statsTimeTexts[i], timeStat.String()))
	}
	return sb.String()
}

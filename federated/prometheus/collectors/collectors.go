// Package collectors provides prometheus collectors for engine and
// per-session statistics.
package collectors

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kundb/go-federated/federated"
)

const namespace = "go_federated"

var statsTimeTexts = []string{"query", "exec", "bulk", "meta", "commit", "rollback"}

type collector struct {
	fn func() *federated.Stats

	openDrivers      *prometheus.Desc
	openTransactions *prometheus.Desc
	openStatements   *prometheus.Desc
	statements       *prometheus.Desc
	rowsRead         *prometheus.Desc
	rowsWritten      *prometheus.Desc
	sqlTimes         *prometheus.Desc
}

func newCollector(fn func() *federated.Stats, subsystem string, labels prometheus.Labels) prometheus.Collector {
	// fqName: namespace, subsystem, name
	fqName := func(name string) string { return strings.Join([]string{namespace, subsystem, name}, "_") }
	return &collector{
		fn: fn,
		openDrivers: prometheus.NewDesc(
			fqName("open_drivers"),
			fmt.Sprintf("The number of currently held %s remote drivers.", subsystem),
			nil,
			labels,
		),
		openTransactions: prometheus.NewDesc(
			fqName("open_transactions"),
			fmt.Sprintf("The number of open %s transactions.", subsystem),
			nil,
			labels,
		),
		openStatements: prometheus.NewDesc(
			fqName("open_statements"),
			fmt.Sprintf("The number of open %s statement scopes.", subsystem),
			nil,
			labels,
		),
		statements: prometheus.NewDesc(
			fqName("statements_total"),
			fmt.Sprintf("The total statements %s sent to remote servers.", subsystem),
			nil,
			labels,
		),
		rowsRead: prometheus.NewDesc(
			fqName("rows_read_total"),
			fmt.Sprintf("The total rows %s fetched from remote servers.", subsystem),
			nil,
			labels,
		),
		rowsWritten: prometheus.NewDesc(
			fqName("rows_written_total"),
			fmt.Sprintf("The total rows %s written to remote servers.", subsystem),
			nil,
			labels,
		),
		sqlTimes: prometheus.NewDesc(
			fqName("sql_time"),
			fmt.Sprintf("The spent time measured in milliseconds for the different remote operations of %s.", subsystem),
			[]string{"sql"},
			labels,
		),
	}
}

// Describe implements Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.openDrivers
	ch <- c.openTransactions
	ch <- c.openStatements
	ch <- c.statements
	ch <- c.rowsRead
	ch <- c.rowsWritten
	ch <- c.sqlTimes
}

// Collect implements Collector.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.fn()
	ch <- prometheus.MustNewConstMetric(c.openDrivers, prometheus.GaugeValue, float64(stats.OpenDrivers))
	ch <- prometheus.MustNewConstMetric(c.openTransactions, prometheus.GaugeValue, float64(stats.OpenTransactions))
	ch <- prometheus.MustNewConstMetric(c.openStatements, prometheus.GaugeValue, float64(stats.OpenStatements))
	ch <- prometheus.MustNewConstMetric(c.statements, prometheus.CounterValue, float64(stats.Statements))
	ch <- prometheus.MustNewConstMetric(c.rowsRead, prometheus.CounterValue, float64(stats.RowsRead))
	ch <- prometheus.MustNewConstMetric(c.rowsWritten, prometheus.CounterValue, float64(stats.RowsWritten))
	for i, t := range stats.Times {
		buckets := make(map[float64]uint64, len(t.Buckets))
		for k, v := range t.Buckets {
			buckets[float64(k)] = v
		}
		ch <- prometheus.MustNewConstHistogram(c.sqlTimes, t.Count, float64(t.Sum), buckets, statsTimeTexts[i])
	}
}

// NewEngineStatsCollector returns a collector that exports the process-wide
// engine statistics.
func NewEngineStatsCollector() prometheus.Collector {
	return newCollector(federated.EngineStats, "engine", nil)
}

// NewSessionStatsCollector returns a collector that exports the statistics
// of one session.
func NewSessionStatsCollector(s *federated.Session, name string) prometheus.Collector {
	fn := func() *federated.Stats {
		st := s.Stats()
		return &st
	}
	return newCollector(fn, "session", prometheus.Labels{"session": name})
}

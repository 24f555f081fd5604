// Package partial plans the decomposition of a logical full scan into
// multiple remote queries: none, per shard, per range segment, or per shard
// and range segment. Statement hints win over heuristics; heuristics weigh
// estimated rows, active limits and pushed-down predicates; a capability
// filter drops modes the cached topology cannot serve.
package partial

import (
	"strings"

	"github.com/kundb/go-federated/federated/internal/remote"
)

// ForcePartialComment is the table-comment directive that permits partial
// reads regardless of the row heuristics.
const ForcePartialComment = "force partial read"

// Plan is the outcome: the workload mode the scan runs under and the chosen
// decomposition.
type Plan struct {
	Scan remote.ScanMode
	Mode remote.PartialMode
}

// Hint is a parsed statement hint. Scan and Mode are applied independently;
// ModeSet distinguishes "no partial-read directive" from "full read".
type Hint struct {
	Scan    remote.ScanMode
	Mode    remote.PartialMode
	ModeSet bool
}

// hint tokens set workload mode and partial-read mode independently
var hintTokens = map[string]Hint{
	"oltp":        {Scan: remote.ScanOLTP},
	"olap":        {Scan: remote.ScanOLAP},
	"sd_rd":       {Mode: remote.PartialShard, ModeSet: true},
	"rg_rd":       {Mode: remote.PartialRange, ModeSet: true},
	"full_rd":     {Mode: remote.PartialNone, ModeSet: true},
	"rg_sd_rd":    {Mode: remote.PartialShardRange, ModeSet: true},
	"sd_tp_rd":    {Scan: remote.ScanOLTP, Mode: remote.PartialShard, ModeSet: true},
	"sd_ap_rd":    {Scan: remote.ScanOLAP, Mode: remote.PartialShard, ModeSet: true},
	"rg_tp_rd":    {Scan: remote.ScanOLTP, Mode: remote.PartialRange, ModeSet: true},
	"rg_ap_rd":    {Scan: remote.ScanOLAP, Mode: remote.PartialRange, ModeSet: true},
	"full_tp_rd":  {Scan: remote.ScanOLTP, Mode: remote.PartialNone, ModeSet: true},
	"full_ap_rd":  {Scan: remote.ScanOLAP, Mode: remote.PartialNone, ModeSet: true},
	"rg_sd_tp_rd": {Scan: remote.ScanOLTP, Mode: remote.PartialShardRange, ModeSet: true},
	"rg_sd_ap_rd": {Scan: remote.ScanOLAP, Mode: remote.PartialShardRange, ModeSet: true},
}

// ParseHint resolves a fetch-mode token. ok is false for unknown tokens.
func ParseHint(token string) (Hint, bool) {
	h, ok := hintTokens[strings.ToLower(token)]
	return h, ok
}

// Input gathers everything the mode choice looks at.
type Input struct {
	// ShardRead and RangeRead are the session's planner feature switches;
	// both off disables the planner entirely.
	ShardRead bool
	RangeRead bool

	// Hint is the parsed statement hint, nil when none was given.
	Hint *Hint
	// TableComment may carry the force-partial-read directive.
	TableComment string

	EstimatedRows uint64
	// SessionRowCap is the row estimate above which partial reads engage.
	SessionRowCap uint64
	// Limit is the active LIMIT scaled by join breadth, 0 when none.
	Limit uint64
	// AutoPartialOnLimit lets a small limit engage partial reads.
	AutoPartialOnLimit bool
	// EqPushed marks an equality predicate pushed down to the remote,
	// assumed to already restrict the result.
	EqPushed bool

	// Topology capabilities.
	ShardCount    int
	TopologyKnown bool
	RangeCol      string
	RangeValues   []string

	// Preference breaks the tie when shard and range are both possible.
	Preference remote.PartialMode
	// OLAPDefault selects streaming scans when no hint decides.
	OLAPDefault bool
}

func (in *Input) shardPossible() bool {
	return in.ShardRead && in.TopologyKnown && in.ShardCount > 1
}

func (in *Input) rangePossible() bool {
	return in.RangeRead && in.RangeCol != "" && len(in.RangeValues) > 0
}

// Choose selects the scan decomposition.
func Choose(in Input) Plan {
	plan := Plan{Scan: remote.ScanDefault, Mode: remote.PartialNone}
	if in.OLAPDefault {
		plan.Scan = remote.ScanOLAP
	}
	if in.Hint != nil && in.Hint.Scan != remote.ScanDefault {
		plan.Scan = in.Hint.Scan
	}

	if !in.ShardRead && !in.RangeRead {
		return plan
	}

	if in.Hint != nil && in.Hint.ModeSet {
		plan.Mode = in.Hint.Mode
		return capabilityFilter(plan, in)
	}

	forced := strings.Contains(strings.ToLower(in.TableComment), ForcePartialComment)
	if !forced {
		wantByRows := in.SessionRowCap > 0 && in.EstimatedRows > in.SessionRowCap
		wantByLimit := in.AutoPartialOnLimit && in.Limit > 0 && in.Limit < in.EstimatedRows
		if !wantByRows && !wantByLimit {
			return plan
		}
		if in.EqPushed {
			return plan
		}
	}

	shard, rng := in.shardPossible(), in.rangePossible()
	switch {
	case shard && rng:
		if in.Preference == remote.PartialRange {
			plan.Mode = remote.PartialRange
		} else {
			plan.Mode = remote.PartialShard
		}
	case shard:
		plan.Mode = remote.PartialShard
	case rng:
		plan.Mode = remote.PartialRange
	}
	return plan
}

// capabilityFilter downgrades a hinted mode the topology cannot serve.
func capabilityFilter(plan Plan, in Input) Plan {
	switch plan.Mode {
	case remote.PartialShard:
		if !in.shardPossible() {
			plan.Mode = remote.PartialNone
		}
	case remote.PartialRange:
		if !in.rangePossible() {
			plan.Mode = remote.PartialNone
		}
	case remote.PartialShardRange:
		switch {
		case in.shardPossible() && in.rangePossible():
		case in.shardPossible():
			plan.Mode = remote.PartialShard
		case in.rangePossible():
			plan.Mode = remote.PartialRange
		default:
			plan.Mode = remote.PartialNone
		}
	}
	return plan
}

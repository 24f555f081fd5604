package partial

import (
	"testing"

	"github.com/kundb/go-federated/federated/internal/remote"
)

func TestParseHint(t *testing.T) {
	tests := []struct {
		token    string
		wantScan remote.ScanMode
		wantMode remote.PartialMode
		wantSet  bool
	}{
		{"oltp", remote.ScanOLTP, remote.PartialNone, false},
		{"olap", remote.ScanOLAP, remote.PartialNone, false},
		{"sd_rd", remote.ScanDefault, remote.PartialShard, true},
		{"rg_rd", remote.ScanDefault, remote.PartialRange, true},
		{"full_rd", remote.ScanDefault, remote.PartialNone, true},
		{"rg_sd_rd", remote.ScanDefault, remote.PartialShardRange, true},
		{"sd_tp_rd", remote.ScanOLTP, remote.PartialShard, true},
		{"sd_ap_rd", remote.ScanOLAP, remote.PartialShard, true},
		{"rg_tp_rd", remote.ScanOLTP, remote.PartialRange, true},
		{"rg_ap_rd", remote.ScanOLAP, remote.PartialRange, true},
		{"full_tp_rd", remote.ScanOLTP, remote.PartialNone, true},
		{"full_ap_rd", remote.ScanOLAP, remote.PartialNone, true},
		{"rg_sd_tp_rd", remote.ScanOLTP, remote.PartialShardRange, true},
		{"rg_sd_ap_rd", remote.ScanOLAP, remote.PartialShardRange, true},
		{"OLAP", remote.ScanOLAP, remote.PartialNone, false}, // case insensitive
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			h, ok := ParseHint(tt.token)
			if !ok {
				t.Fatal("token not recognized")
			}
			if h.Scan != tt.wantScan || h.Mode != tt.wantMode || h.ModeSet != tt.wantSet {
				t.Fatalf("got %+v", h)
			}
		})
	}
	if _, ok := ParseHint("bogus"); ok {
		t.Fatal("unknown token must not parse")
	}
}

func capableInput() Input {
	return Input{
		ShardRead:     true,
		RangeRead:     true,
		EstimatedRows: 1_000_000,
		SessionRowCap: 10_000,
		ShardCount:    4,
		TopologyKnown: true,
		RangeCol:      "col",
		RangeValues:   []string{"100"},
		Preference:    remote.PartialShard,
	}
}

func TestChoose(t *testing.T) {
	t.Run("disabled planner", func(t *testing.T) {
		in := capableInput()
		in.ShardRead = false
		in.RangeRead = false
		if got := Choose(in); got.Mode != remote.PartialNone {
			t.Fatalf("got %v", got.Mode)
		}
	})

	t.Run("rows above cap decompose", func(t *testing.T) {
		if got := Choose(capableInput()); got.Mode != remote.PartialShard {
			t.Fatalf("got %v", got.Mode)
		}
	})

	t.Run("preference breaks tie", func(t *testing.T) {
		in := capableInput()
		in.Preference = remote.PartialRange
		if got := Choose(in); got.Mode != remote.PartialRange {
			t.Fatalf("got %v", got.Mode)
		}
	})

	t.Run("small table stays whole", func(t *testing.T) {
		in := capableInput()
		in.EstimatedRows = 100
		if got := Choose(in); got.Mode != remote.PartialNone {
			t.Fatalf("got %v", got.Mode)
		}
	})

	t.Run("limit engages partial read", func(t *testing.T) {
		in := capableInput()
		in.EstimatedRows = 5000
		in.Limit = 10
		in.AutoPartialOnLimit = true
		if got := Choose(in); got.Mode == remote.PartialNone {
			t.Fatal("limit below estimate must decompose")
		}
	})

	t.Run("equality pushdown suppresses", func(t *testing.T) {
		in := capableInput()
		in.EqPushed = true
		if got := Choose(in); got.Mode != remote.PartialNone {
			t.Fatalf("got %v", got.Mode)
		}
	})

	t.Run("force comment overrides heuristics", func(t *testing.T) {
		in := capableInput()
		in.EstimatedRows = 1
		in.TableComment = "v1, force partial read, audited"
		if got := Choose(in); got.Mode == remote.PartialNone {
			t.Fatal("forced table must decompose")
		}
	})

	t.Run("hint wins", func(t *testing.T) {
		in := capableInput()
		in.EstimatedRows = 1
		in.Hint = &Hint{Scan: remote.ScanOLAP, Mode: remote.PartialRange, ModeSet: true}
		got := Choose(in)
		if got.Mode != remote.PartialRange || got.Scan != remote.ScanOLAP {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("hinted full read wins", func(t *testing.T) {
		in := capableInput()
		in.Hint = &Hint{Mode: remote.PartialNone, ModeSet: true}
		if got := Choose(in); got.Mode != remote.PartialNone {
			t.Fatalf("got %v", got.Mode)
		}
	})

	t.Run("unknown topology disables shard mode", func(t *testing.T) {
		in := capableInput()
		in.TopologyKnown = false
		if got := Choose(in); got.Mode != remote.PartialRange {
			t.Fatalf("got %v, want range fallback", got.Mode)
		}
	})

	t.Run("single shard cannot decompose by shard", func(t *testing.T) {
		in := capableInput()
		in.ShardCount = 1
		if got := Choose(in); got.Mode != remote.PartialRange {
			t.Fatalf("got %v, want range fallback", got.Mode)
		}
	})

	t.Run("no range metadata disables range mode", func(t *testing.T) {
		in := capableInput()
		in.RangeCol = ""
		in.Preference = remote.PartialRange
		if got := Choose(in); got.Mode != remote.PartialShard {
			t.Fatalf("got %v, want shard fallback", got.Mode)
		}
	})

	t.Run("hinted shard range degrades to possible half", func(t *testing.T) {
		in := capableInput()
		in.TopologyKnown = false
		in.Hint = &Hint{Mode: remote.PartialShardRange, ModeSet: true}
		if got := Choose(in); got.Mode != remote.PartialRange {
			t.Fatalf("got %v", got.Mode)
		}
	})

	t.Run("olap default sets scan mode", func(t *testing.T) {
		in := capableInput()
		in.OLAPDefault = true
		if got := Choose(in); got.Scan != remote.ScanOLAP {
			t.Fatalf("got %v", got.Scan)
		}
	})
}

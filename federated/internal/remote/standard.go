package remote

import "context"

// Standard is the driver flavor for a plain MySQL-compatible remote. It has
// no workload modes and ignores partial-read scans; the planner never
// selects them without gateway topology.
type Standard struct {
	core
}

func newStandard(ept *Endpoint) *Standard {
	d := &Standard{}
	d.init(ept)
	return d
}

// Query reconciles session state, sends the statement and stores its result.
func (d *Standard) Query(ctx context.Context, query string, _ ScanMode, _ *ScanInfo) (*ResultSet, error) {
	if err := d.reconcile(ctx); err != nil {
		return nil, err
	}
	rs, err := d.sendQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	d.finishStatement()
	return rs, nil
}

// Exec reconciles session state and sends a statement without rows.
func (d *Standard) Exec(ctx context.Context, query string, _ ScanMode) error {
	if err := d.reconcile(ctx); err != nil {
		return err
	}
	if _, err := d.send(ctx, query); err != nil {
		return err
	}
	d.finishStatement()
	return nil
}

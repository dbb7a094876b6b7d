package visit

import (
	"bytes"
	"fmt"
	"sort"
	"time"
)

// Station identifies one physical point of care with its own queue view.
type Station string

const (
	StationReception  Station = "reception"
	StationConsulting Station = "consulting"
	StationLab        Station = "lab"
	StationTreatment  Station = "treatment"
	StationDashboard  Station = "dashboard"
)

// DefaultLookback bounds the consulting and treatment queues. A visit started
// near midnight or spanning a shift boundary must not silently drop out of a
// station's queue, so these views look back a window rather than "today
// only". Any window longer than the longest plausible single visit works.
const DefaultLookback = 7 * 24 * time.Hour

// StationView is a live, filtered, ordered projection of the visit set.
// Match and Less evaluate at call time, so a long-lived subscription rolls
// over midnight without re-subscribing.
type StationView struct {
	Station Station
	Match   func(*Visit) bool
	Less    func(a, b *Visit) bool
}

// Apply filters and orders visits into the view's queue. The result is a new
// slice; the input is never reordered in place.
func (view StationView) Apply(visits []*Visit) []*Visit {
	var queue []*Visit
	for _, v := range visits {
		if view.Match(v) {
			queue = append(queue, v)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool { return view.Less(queue[i], queue[j]) })
	return queue
}

// Views builds the per-station projections. The clock is injectable so the
// day boundary and lookback window are testable.
type Views struct {
	now      func() time.Time
	lookback time.Duration
}

func NewViews(lookback time.Duration) *Views {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Views{
		now:      func() time.Time { return time.Now().UTC() },
		lookback: lookback,
	}
}

// SetClock overrides the view clock. Test hook.
func (vs *Views) SetClock(now func() time.Time) {
	vs.now = now
}

// ForStation returns the view for a station name, or an error for a name
// that is not a station.
func (vs *Views) ForStation(st Station) (StationView, error) {
	switch st {
	case StationReception:
		return vs.Reception(), nil
	case StationConsulting:
		return vs.Consulting(), nil
	case StationLab:
		return vs.Lab(), nil
	case StationTreatment:
		return vs.Treatment(), nil
	case StationDashboard:
		return vs.Dashboard(), nil
	default:
		return StationView{}, fmt.Errorf("unknown station: %s", st)
	}
}

// Reception shows today's arrivals still waiting at the front desk, oldest
// first. A visit leaves this queue the moment its status advances; the
// dashboard keeps the unfiltered today view.
func (vs *Views) Reception() StationView {
	return StationView{
		Station: StationReception,
		Match: func(v *Visit) bool {
			return v.Status == StatusReception && !v.Date.Before(startOfDay(vs.now()))
		},
		Less: byDateAsc,
	}
}

// Consulting shows patients inside the exam room within the lookback window.
// Patients still waiting at the front desk stay on the reception queue until
// reception hands them over.
func (vs *Views) Consulting() StationView {
	return StationView{
		Station: StationConsulting,
		Match: func(v *Visit) bool {
			return v.Status == StatusConsulting && !v.Date.Before(vs.now().Add(-vs.lookback))
		},
		Less: byDateAsc,
	}
}

// Lab is not a pure status filter: a visit stays reachable from the lab as
// long as it carries an outstanding test order, whatever station is
// otherwise acting on it. Folding this into the status enum would lose the
// documented ability to need lab work and treatment at the same time.
func (vs *Views) Lab() StationView {
	return StationView{
		Station: StationLab,
		Match: func(v *Visit) bool {
			if !v.HasTestOrder() {
				return false
			}
			switch v.Status {
			case StatusConsulting, StatusTesting, StatusTreatment:
				return true
			default:
				return false
			}
		},
		Less: byCreatedDesc,
	}
}

// Treatment shows patients in the treatment room within the lookback window.
func (vs *Views) Treatment() StationView {
	return StationView{
		Station: StationTreatment,
		Match: func(v *Visit) bool {
			return v.Status == StatusTreatment && !v.Date.Before(vs.now().Add(-vs.lookback))
		},
		Less: byDateAsc,
	}
}

// Dashboard shows all of today's visits regardless of status.
func (vs *Views) Dashboard() StationView {
	return StationView{
		Station: StationDashboard,
		Match: func(v *Visit) bool {
			return !v.Date.Before(startOfDay(vs.now()))
		},
		Less: byDateAsc,
	}
}

// DashboardCounts aggregates today's visits per status.
type DashboardCounts struct {
	Reception  int `json:"reception"`
	Consulting int `json:"consulting"`
	Testing    int `json:"testing"`
	Treatment  int `json:"treatment"`
	Completed  int `json:"completed"`
	Total      int `json:"total"`
}

// CountByStatus tallies a queue into per-status counts.
func CountByStatus(visits []*Visit) DashboardCounts {
	var c DashboardCounts
	for _, v := range visits {
		switch v.Status {
		case StatusReception:
			c.Reception++
		case StatusConsulting:
			c.Consulting++
		case StatusTesting:
			c.Testing++
		case StatusTreatment:
			c.Treatment++
		case StatusCompleted:
			c.Completed++
		}
		c.Total++
	}
	return c
}

// byDateAsc orders by arrival time, falling back to the deterministic
// tie-break so queue positions never flip between renders.
func byDateAsc(a, b *Visit) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return tieBreak(a, b)
}

func byCreatedDesc(a, b *Visit) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return tieBreak(a, b)
}

// tieBreak makes every view's order total: equal primary keys fall back to
// creation time, then to the raw id bytes.
func tieBreak(a, b *Visit) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

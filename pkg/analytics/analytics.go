// Package analytics computes daily operating KPIs for each unit of a stitched day.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/stitcher"
)

const (
	// IntervalHours is the length of one dispatch interval in hours.
	IntervalHours = 5.0 / 60.0

	DefaultOutageMinPoints = 3
)

type Analytics struct {
	// OutageMinPoints is the shortest run of zero output reported as an outage.
	OutageMinPoints int
}

func New() *Analytics {
	return &Analytics{OutageMinPoints: DefaultOutageMinPoints}
}

// Outage is a run of consecutive zero (or missing) intervals.
type Outage struct {
	Start  string `json:"start" yaml:"start"`
	End    string `json:"end" yaml:"end"`
	Points int    `json:"points" yaml:"points"`
}

// KPIs summarises one unit over one day. Min, max, mean and energy ignore
// missing intervals; fractions are over all rows.
type KPIs struct {
	Unit             string   `json:"unit" yaml:"unit"`
	Rows             int      `json:"rows" yaml:"rows"`
	Missing          int      `json:"missing" yaml:"missing"`
	MinMW            float64  `json:"min_mw" yaml:"min_mw"`
	MaxMW            float64  `json:"max_mw" yaml:"max_mw"`
	MeanMW           float64  `json:"mean_mw" yaml:"mean_mw"`
	EnergyMWh        float64  `json:"energy_mwh" yaml:"energy_mwh"`
	DischargeMWh     float64  `json:"discharge_mwh" yaml:"discharge_mwh"`
	ChargeMWh        float64  `json:"charge_mwh" yaml:"charge_mwh"`
	ZeroFraction     float64  `json:"zero_fraction" yaml:"zero_fraction"`
	NegativeFraction float64  `json:"negative_fraction" yaml:"negative_fraction"`
	RampMaxMW        float64  `json:"ramp_max_mw" yaml:"ramp_max_mw"`
	RampP95MW        float64  `json:"ramp_p95_mw" yaml:"ramp_p95_mw"`
	SlopeMWPerHour   float64  `json:"slope_mw_per_hour" yaml:"slope_mw_per_hour"`
	Outages          []Outage `json:"outages,omitempty" yaml:"outages,omitempty"`
	Notes            []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Report is the per-day KPI document written by the report command.
type Report struct {
	Day         string `json:"day" yaml:"day"`
	Source      string `json:"source" yaml:"source"`
	GeneratedAt string `json:"generated_at" yaml:"generated_at"`
	Units       []KPIs `json:"units" yaml:"units"`
}

// BuildReport computes KPIs for every unit column of the table.
func (a *Analytics) BuildReport(t *stitcher.Table, source string) Report {
	r := Report{
		Source:      source,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Units:       a.TableKPIs(t),
	}
	if len(t.Rows) > 0 {
		r.Day = t.Rows[0].Timestamp.In(models.NEMTime).Format("2006-01-02")
	}
	return r
}

// TableKPIs computes KPIs for every column in table order.
func (a *Analytics) TableKPIs(t *stitcher.Table) []KPIs {
	out := make([]KPIs, 0, len(t.Units))
	for i, unit := range t.Units {
		out = append(out, a.UnitKPIs(unit, t, i))
	}
	return out
}

// UnitKPIs computes KPIs for column col of the table.
func (a *Analytics) UnitKPIs(unit string, t *stitcher.Table, col int) KPIs {
	k := KPIs{Unit: unit, Rows: len(t.Rows)}
	if k.Rows == 0 {
		return k
	}

	var (
		observed   int
		sum        float64
		zeros      int
		negatives  int
		ramps      []float64
		xs, ys     []float64
		first      = t.Rows[0].Timestamp
		prev       *float64
		zeroStart  = -1
		minV, maxV = math.Inf(1), math.Inf(-1)
	)

	for i, row := range t.Rows {
		v := row.Values[col]

		isZero := v == nil || *v == 0
		if isZero && zeroStart < 0 {
			zeroStart = i
		}
		if !isZero && zeroStart >= 0 {
			a.addOutage(&k, t, zeroStart, i-1)
			zeroStart = -1
		}

		if v == nil {
			k.Missing++
			prev = nil
			continue
		}

		observed++
		sum += *v
		minV = math.Min(minV, *v)
		maxV = math.Max(maxV, *v)
		switch {
		case *v > 0:
			k.DischargeMWh += *v * IntervalHours
		case *v < 0:
			k.ChargeMWh += -*v * IntervalHours
			negatives++
		default:
			zeros++
		}
		if prev != nil {
			ramps = append(ramps, math.Abs(*v-*prev))
		}
		prev = v

		xs = append(xs, row.Timestamp.Sub(first).Hours())
		ys = append(ys, *v)
	}
	if zeroStart >= 0 {
		a.addOutage(&k, t, zeroStart, len(t.Rows)-1)
	}

	k.ZeroFraction = float64(zeros) / float64(k.Rows)
	k.NegativeFraction = float64(negatives) / float64(k.Rows)
	if observed > 0 {
		k.MinMW, k.MaxMW = minV, maxV
		k.MeanMW = sum / float64(observed)
		k.EnergyMWh = sum * IntervalHours
	}
	if len(ramps) > 0 {
		sort.Float64s(ramps)
		k.RampMaxMW = ramps[len(ramps)-1]
		k.RampP95MW = Percentile(ramps, 95)
	}
	k.SlopeMWPerHour = slope(xs, ys)
	k.Notes = notes(k)
	return k
}

func (a *Analytics) addOutage(k *KPIs, t *stitcher.Table, from, to int) {
	minPoints := a.OutageMinPoints
	if minPoints <= 0 {
		minPoints = DefaultOutageMinPoints
	}
	if to-from+1 < minPoints {
		return
	}
	k.Outages = append(k.Outages, Outage{
		Start:  t.Rows[from].Timestamp.Format(models.TimestampLayout),
		End:    t.Rows[to].Timestamp.Format(models.TimestampLayout),
		Points: to - from + 1,
	})
}

// Percentile interpolates linearly between closest ranks of sorted values.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// slope is the least-squares gradient of ys over xs; zero for fewer than 3 points.
func slope(xs, ys []float64) float64 {
	n := float64(len(xs))
	if len(xs) < 3 {
		return 0
	}
	var sx, sy, sxx, sxy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxx += xs[i] * xs[i]
		sxy += xs[i] * ys[i]
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}

func notes(k KPIs) []string {
	var out []string
	if k.NegativeFraction > 0 {
		out = append(out, "Negative dispatch observed.")
	}
	if k.RampMaxMW > math.Max(20, 0.2*(k.MaxMW-k.MinMW)) {
		out = append(out, fmt.Sprintf("Large ramp detected: %.1f MW/5min.", k.RampMaxMW))
	}
	if len(k.Outages) > 0 {
		out = append(out, fmt.Sprintf("%d outage-like zero segments (>= 15 min).", len(k.Outages)))
	}
	if math.Abs(k.SlopeMWPerHour) > 5 {
		out = append(out, fmt.Sprintf("Monotonic trend: slope %+.1f MW/h.", k.SlopeMWPerHour))
	}
	return out
}

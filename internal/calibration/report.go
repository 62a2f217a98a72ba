package calibration

import (
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// ReportVersion is written into every report this package produces.
	ReportVersion = 2
	// MaxCompatibleVersion is the newest report version the interpolator
	// will still read. Reports above it are ignored, not rewritten.
	MaxCompatibleVersion = 15
)

// DefaultTargets are the bin centre temperatures in °C.
var DefaultTargets = []float64{15, 20, 25, 30, 35, 40, 45}

// DefaultSamplesPerBin is how many reports each temperature bin keeps.
const DefaultSamplesPerBin = 5

// TemperatureReport is one stored gyro offset measurement. Time is in unix
// seconds; a zero ActualTemperature marks an unused slot.
type TemperatureReport struct {
	Version           uint8   `json:"version"`
	Bin               uint8   `json:"bin"`
	Sample            uint8   `json:"sample"`
	NumBins           uint8   `json:"num_bins"`
	NumSamples        uint8   `json:"num_samples"`
	TargetTemperature float64 `json:"target_temperature"`
	ActualTemperature float64 `json:"actual_temperature"`
	Offset            r3.Vec  `json:"offset"`
	Time              uint32  `json:"time"`
}

// Table is the report grid indexed [bin][sample].
type Table [][]TemperatureReport

// NewTable creates an empty table with one bin per target temperature.
func NewTable(targets []float64, samplesPerBin int) Table {
	t := make(Table, len(targets))
	for b, target := range targets {
		t[b] = make([]TemperatureReport, samplesPerBin)
		for s := range t[b] {
			t[b][s] = TemperatureReport{
				Bin:               uint8(b),
				Sample:            uint8(s),
				NumBins:           uint8(len(targets)),
				NumSamples:        uint8(samplesPerBin),
				TargetTemperature: target,
			}
		}
	}
	return t
}

// TableFromReports rebuilds a table from a flat report list as returned by
// a Store. The shape comes from the first report; reports that do not fit
// it are skipped. An empty list yields nil.
func TableFromReports(reports []TemperatureReport) Table {
	if len(reports) == 0 {
		return nil
	}
	bins, samples := int(reports[0].NumBins), int(reports[0].NumSamples)
	if bins == 0 || samples == 0 {
		return nil
	}
	t := make(Table, bins)
	for b := range t {
		t[b] = make([]TemperatureReport, samples)
	}
	for _, r := range reports {
		if int(r.Bin) >= bins || int(r.Sample) >= samples {
			continue
		}
		t[r.Bin][r.Sample] = r
	}
	return t
}

// Reports flattens the table in bin-major order.
func (t Table) Reports() []TemperatureReport {
	var out []TemperatureReport
	for _, bin := range t {
		out = append(out, bin...)
	}
	return out
}

// Clone returns a deep copy.
func (t Table) Clone() Table {
	c := make(Table, len(t))
	for b := range t {
		c[b] = append([]TemperatureReport(nil), t[b]...)
	}
	return c
}

// closestBin returns the bin whose target temperature is nearest to temp.
func (t Table) closestBin(temp float64) int {
	best := 0
	for b := 1; b < len(t); b++ {
		if absf(temp-t[b][0].TargetTemperature) < absf(temp-t[best][0].TargetTemperature) {
			best = b
		}
	}
	return best
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

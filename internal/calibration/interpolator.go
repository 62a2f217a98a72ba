package calibration

import "sort"

const (
	// autoRangeExtra is how much closer in temperature a stored point must
	// be than the live measurement before it is preferred.
	autoRangeExtra = 1.0
	// minInterpolationSpan is the narrowest temperature span used for a slope.
	minInterpolationSpan = 0.5
)

// Interpolator predicts one gyro axis offset from temperature, using one
// representative report per bin plus the live auto-calibrated value.
type Interpolator struct {
	temps  []float64
	values []float64
}

// NewInterpolator builds the interpolator for axis (0=x, 1=y, 2=z). Each bin
// contributes the report holding its median offset, ignoring empty slots.
// Reports with a version outside 1..MaxCompatibleVersion are left out.
func NewInterpolator(t Table, axis int) *Interpolator {
	ip := &Interpolator{}
	for _, bin := range t {
		if len(bin) == 0 {
			continue
		}
		r := medianReport(bin, axis)
		if r.Version == 0 || r.Version > MaxCompatibleVersion {
			continue
		}
		ip.temps = append(ip.temps, r.ActualTemperature)
		ip.values = append(ip.values, axisOf(r, axis))
	}
	return ip
}

// Len is the number of stored points.
func (ip *Interpolator) Len() int { return len(ip.temps) }

func medianReport(bin []TemperatureReport, axis int) TemperatureReport {
	var vals []float64
	for _, r := range bin {
		if r.ActualTemperature != 0 {
			vals = append(vals, axisOf(r, axis))
		}
	}
	if len(vals) == 0 {
		return bin[0]
	}
	sort.Float64s(vals)
	median := vals[len(vals)/2]
	for _, r := range bin {
		if r.ActualTemperature != 0 && axisOf(r, axis) == median {
			return r
		}
	}
	return bin[0]
}

func axisOf(r TemperatureReport, axis int) float64 {
	switch axis {
	case 0:
		return r.Offset.X
	case 1:
		return r.Offset.Y
	default:
		return r.Offset.Z
	}
}

// Offset returns the predicted offset at target °C. autoTemp and autoValue
// are the live auto-calibration temperature and value for this axis.
func (ip *Interpolator) Offset(target, autoTemp, autoValue float64) float64 {
	n := len(ip.temps)
	adjAutoDelta := absf(autoTemp-target) - autoRangeExtra

	switch n {
	case 0:
		return autoValue
	case 1:
		if adjAutoDelta < absf(ip.temps[0]-target) {
			return autoValue
		}
		return ip.values[0]
	}

	var l int
	switch {
	case target < ip.temps[1]:
		l = 0
	case target >= ip.temps[n-2]:
		l = n - 2
	default:
		for l = 1; l < n-2; l++ {
			if ip.temps[l] <= target && target < ip.temps[l+1] {
				break
			}
		}
	}
	u := l + 1

	if ip.temps[u]-ip.temps[l] < minInterpolationSpan {
		if l > 0 && (u == n-1 || ip.temps[u]-ip.temps[l-1] < ip.temps[u+1]-ip.temps[l]) {
			l--
		} else if u < n-1 {
			u++
		}
	}

	slope := 0.0
	if ip.temps[u]-ip.temps[l] >= minInterpolationSpan {
		slope = (ip.values[u] - ip.values[l]) / (ip.temps[u] - ip.temps[l])
	}

	if adjAutoDelta < absf(ip.temps[u]-target) {
		return autoValue + slope*(target-autoTemp)
	}
	return ip.values[u] + slope*(target-ip.temps[u])
}

package calibration

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// RecordSize is the encoded size of one TemperatureReport.
const RecordSize = 56

// ErrShortRecord is returned when a buffer is not a whole number of records.
var ErrShortRecord = errors.New("calibration: short record")

// Record layout, little endian:
//
//	0  version u8, bin u8, sample u8, numBins u8, numSamples u8, pad[3]
//	8  target f64
//	16 actual f64
//	24 offset x, y, z f64
//	48 time u32, pad[4]

// MarshalBinary encodes r into a RecordSize byte record.
func (r TemperatureReport) MarshalBinary() ([]byte, error) {
	b := make([]byte, RecordSize)
	r.put(b)
	return b, nil
}

func (r TemperatureReport) put(b []byte) {
	b[0], b[1], b[2], b[3], b[4] = r.Version, r.Bin, r.Sample, r.NumBins, r.NumSamples
	le := binary.LittleEndian
	le.PutUint64(b[8:], math.Float64bits(r.TargetTemperature))
	le.PutUint64(b[16:], math.Float64bits(r.ActualTemperature))
	le.PutUint64(b[24:], math.Float64bits(r.Offset.X))
	le.PutUint64(b[32:], math.Float64bits(r.Offset.Y))
	le.PutUint64(b[40:], math.Float64bits(r.Offset.Z))
	le.PutUint32(b[48:], r.Time)
}

// UnmarshalBinary decodes a single record.
func (r *TemperatureReport) UnmarshalBinary(b []byte) error {
	if len(b) < RecordSize {
		return fmt.Errorf("%w: %d bytes", ErrShortRecord, len(b))
	}
	le := binary.LittleEndian
	*r = TemperatureReport{
		Version:           b[0],
		Bin:               b[1],
		Sample:            b[2],
		NumBins:           b[3],
		NumSamples:        b[4],
		TargetTemperature: math.Float64frombits(le.Uint64(b[8:])),
		ActualTemperature: math.Float64frombits(le.Uint64(b[16:])),
		Time:              le.Uint32(b[48:]),
	}
	r.Offset.X = math.Float64frombits(le.Uint64(b[24:]))
	r.Offset.Y = math.Float64frombits(le.Uint64(b[32:]))
	r.Offset.Z = math.Float64frombits(le.Uint64(b[40:]))
	return nil
}

// EncodeReports concatenates the records of reports.
func EncodeReports(reports []TemperatureReport) []byte {
	b := make([]byte, len(reports)*RecordSize)
	for i, r := range reports {
		r.put(b[i*RecordSize:])
	}
	return b
}

// DecodeReports splits b into records.
func DecodeReports(b []byte) ([]TemperatureReport, error) {
	if len(b)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrShortRecord, len(b)%RecordSize)
	}
	out := make([]TemperatureReport, len(b)/RecordSize)
	for i := range out {
		if err := out[i].UnmarshalBinary(b[i*RecordSize:]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

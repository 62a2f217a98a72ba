package db

import (
	"database/sql"
	"fmt"
	"log"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrcore/internal/calibration"
)

// CalibrationStore persists temperature reports in the calibration_reports
// table. It implements calibration.Store.
type CalibrationStore struct {
	db *DB
}

func NewCalibrationStore(db *DB) *CalibrationStore {
	return &CalibrationStore{db: db}
}

func (s *CalibrationStore) Load(serial string) ([]calibration.TemperatureReport, error) {
	rows, err := s.db.Query(`
		SELECT version, bin, sample, num_bins, num_samples, target_temperature,
			actual_temperature, offset_x, offset_y, offset_z, report_time
		FROM calibration_reports
		WHERE serial = ?
		ORDER BY bin, sample`, serial)
	if err != nil {
		return nil, fmt.Errorf("query calibration reports: %w", err)
	}
	defer rows.Close()

	var out []calibration.TemperatureReport
	for rows.Next() {
		var (
			r                             calibration.TemperatureReport
			version, bin, sample          int
			numBins, numSamples, reported int64
			offset                        r3.Vec
		)
		if err := rows.Scan(&version, &bin, &sample, &numBins, &numSamples,
			&r.TargetTemperature, &r.ActualTemperature,
			&offset.X, &offset.Y, &offset.Z, &reported); err != nil {
			return nil, fmt.Errorf("scan calibration report: %w", err)
		}
		r.Version = uint8(version)
		r.Bin = uint8(bin)
		r.Sample = uint8(sample)
		r.NumBins = uint8(numBins)
		r.NumSamples = uint8(numSamples)
		r.Offset = offset
		r.Time = uint32(reported)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Save replaces every report stored for serial in one transaction.
func (s *CalibrationStore) Save(serial string, reports []calibration.TemperatureReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("[db] warning: failed to rollback transaction: %v", err)
		}
	}()

	if _, err := tx.Exec(`DELETE FROM calibration_reports WHERE serial = ?`, serial); err != nil {
		return fmt.Errorf("clear calibration reports: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO calibration_reports (
			serial, bin, sample, version, num_bins, num_samples, target_temperature,
			actual_temperature, offset_x, offset_y, offset_z, report_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range reports {
		if _, err := stmt.Exec(serial, r.Bin, r.Sample, r.Version, r.NumBins, r.NumSamples,
			r.TargetTemperature, r.ActualTemperature, r.Offset.X, r.Offset.Y, r.Offset.Z, r.Time); err != nil {
			return fmt.Errorf("insert calibration report %d/%d: %w", r.Bin, r.Sample, err)
		}
	}
	return tx.Commit()
}

// Serials lists the devices with stored reports.
func (s *CalibrationStore) Serials() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT serial FROM calibration_reports ORDER BY serial`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var serial string
		if err := rows.Scan(&serial); err != nil {
			return nil, err
		}
		out = append(out, serial)
	}
	return out, rows.Err()
}

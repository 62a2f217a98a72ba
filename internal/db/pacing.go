package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/banshee-data/vrcore/internal/timeutil"
)

// Frame outcomes recorded per vsync tick.
const (
	OutcomePresent  = "present"
	OutcomeRewarp   = "rewarp"
	OutcomeFallback = "fallback"
	OutcomeSkipped  = "skipped"
)

// PacingSample is one warp tick as stored in frame_pacing. Latency is the
// time from the frame's pose sample to its predicted display time.
type PacingSample struct {
	SessionID      string  `json:"session_id"`
	Tick           uint64  `json:"tick"`
	FrameID        uint64  `json:"frame_id"`
	Vsync          float64 `json:"vsync"`
	DisplayTime    float64 `json:"display_time"`
	LatencySeconds float64 `json:"latency_seconds"`
	Outcome        string  `json:"outcome"`
	RecordedAt     float64 `json:"recorded_at"`
}

// RecordPacing inserts samples in one transaction.
func (db *DB) RecordPacing(ctx context.Context, samples []PacingSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("[db] warning: failed to rollback transaction: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frame_pacing (
			session_id, tick, frame_id, vsync, display_time, latency_seconds, outcome, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, s.SessionID, int64(s.Tick), int64(s.FrameID), s.Vsync,
			s.DisplayTime, s.LatencySeconds, s.Outcome, s.RecordedAt); err != nil {
			return fmt.Errorf("insert pacing sample: %w", err)
		}
	}
	return tx.Commit()
}

// RecentPacing returns up to limit of the newest samples, oldest first.
func (db *DB) RecentPacing(ctx context.Context, limit int) ([]PacingSample, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, tick, frame_id, vsync, display_time, latency_seconds, outcome, recorded_at
		FROM (
			SELECT rowid AS rid, * FROM frame_pacing ORDER BY recorded_at DESC, rowid DESC LIMIT ?
		)
		ORDER BY recorded_at, rid`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PacingSample
	for rows.Next() {
		var (
			s             PacingSample
			tick, frameID int64
		)
		if err := rows.Scan(&s.SessionID, &tick, &frameID, &s.Vsync, &s.DisplayTime,
			&s.LatencySeconds, &s.Outcome, &s.RecordedAt); err != nil {
			return nil, err
		}
		s.Tick, s.FrameID = uint64(tick), uint64(frameID)
		out = append(out, s)
	}
	return out, rows.Err()
}

// PacingSummary counts stored ticks per outcome for a session.
func (db *DB) PacingSummary(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM frame_pacing WHERE session_id = ? GROUP BY outcome`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// PrunePacing deletes samples recorded before cutoff (unix seconds).
func (db *DB) PrunePacing(ctx context.Context, cutoff float64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM frame_pacing WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PacingRecorder batches pacing samples off the render path. Add never
// blocks; samples arriving while the buffer is full are dropped.
type PacingRecorder struct {
	DB            *DB
	FlushInterval time.Duration
	BatchSize     int
	// Retention bounds the history kept; zero keeps everything.
	Retention time.Duration

	clock   timeutil.Clock
	ch      chan PacingSample
	dropped atomic.Uint64
}

func NewPacingRecorder(db *DB, clock timeutil.Clock) *PacingRecorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PacingRecorder{
		DB:            db,
		FlushInterval: time.Second,
		BatchSize:     256,
		Retention:     24 * time.Hour,
		clock:         clock,
		ch:            make(chan PacingSample, 4096),
	}
}

// Add queues s for the next flush.
func (r *PacingRecorder) Add(s PacingSample) {
	select {
	case r.ch <- s:
	default:
		r.dropped.Add(1)
	}
}

// Dropped is the number of samples discarded because the buffer was full.
func (r *PacingRecorder) Dropped() uint64 { return r.dropped.Load() }

// Run writes queued samples until ctx is cancelled, then flushes what is
// left and returns.
func (r *PacingRecorder) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.FlushInterval)
	defer ticker.Stop()

	batch := make([]PacingSample, 0, r.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.DB.RecordPacing(ctx, batch); err != nil {
			log.Printf("[db] pacing flush of %d samples failed: %v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case s := <-r.ch:
			batch = append(batch, s)
			if len(batch) >= r.BatchSize {
				flush(ctx)
			}
		case now := <-ticker.C():
			flush(ctx)
			if r.Retention > 0 {
				cutoff := now.Add(-r.Retention)
				if _, err := r.DB.PrunePacing(ctx, float64(cutoff.UnixNano())/1e9); err != nil {
					log.Printf("[db] pacing prune failed: %v", err)
				}
			}
		case <-ctx.Done():
			for {
				select {
				case s := <-r.ch:
					batch = append(batch, s)
				default:
					flush(context.Background())
					return
				}
			}
		}
	}
}

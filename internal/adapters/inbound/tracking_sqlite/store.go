package tracking_sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/opunsoars/pitchly/internal/core/tracking"
	"github.com/opunsoars/pitchly/internal/telemetry"

	_ "modernc.org/sqlite"
)

// Store holds kinematic frame snapshots and match events written by the
// tracking and event collaborators. The evaluator only reads from it.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create frames store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS frames (
			id        INTEGER PRIMARY KEY,
			period    INTEGER NOT NULL DEFAULT 0,
			time_s    REAL    NOT NULL DEFAULT 0,
			attacking TEXT    NOT NULL DEFAULT '',
			ball_x    REAL,
			ball_y    REAL
		)`,
		`CREATE TABLE IF NOT EXISTS frame_players (
			frame_id  INTEGER NOT NULL,
			side      TEXT    NOT NULL,
			idx       INTEGER NOT NULL,
			player_id TEXT    NOT NULL,
			x         REAL,
			y         REAL,
			vx        REAL,
			vy        REAL,
			PRIMARY KEY (frame_id, side, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id          INTEGER PRIMARY KEY,
			type        TEXT    NOT NULL DEFAULT '',
			team        TEXT    NOT NULL,
			start_frame INTEGER NOT NULL,
			start_x     REAL,
			start_y     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start_frame ON events(start_frame)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init frames schema (%s): %w", stmt, err)
		}
	}

	var frames int64
	db.QueryRow(`SELECT COUNT(*) FROM frames`).Scan(&frames)

	telemetry.Plainf("frames store: opened %s  frames=%d", path, frames)
	return &Store{db: db}, nil
}

// InsertFrame writes f, replacing any previous snapshot with the same id.
func (s *Store) InsertFrame(ctx context.Context, f tracking.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin frame %d: %w", f.ID, err)
	}
	defer tx.Rollback()

	var bx, by any
	if f.Ball != nil {
		bx, by = nullable(f.Ball.X), nullable(f.Ball.Y)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO frames (id, period, time_s, attacking, ball_x, ball_y) VALUES (?,?,?,?,?,?)`,
		f.ID, f.Period, f.Time, string(f.Attacking), bx, by,
	); err != nil {
		return fmt.Errorf("insert frame %d: %w", f.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM frame_players WHERE frame_id = ?`, f.ID); err != nil {
		return fmt.Errorf("clear frame %d players: %w", f.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO frame_players (frame_id, side, idx, player_id, x, y, vx, vy) VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare frame %d players: %w", f.ID, err)
	}
	defer stmt.Close()

	for _, team := range []struct {
		side    tracking.Side
		players []tracking.Kinematics
	}{{tracking.Home, f.Home}, {tracking.Away, f.Away}} {
		for i, k := range team.players {
			if _, err := stmt.ExecContext(ctx, f.ID, string(team.side), i, k.PlayerID,
				nullable(k.X), nullable(k.Y), nullable(k.VX), nullable(k.VY)); err != nil {
				return fmt.Errorf("insert frame %d player %s: %w", f.ID, k.PlayerID, err)
			}
		}
	}
	return tx.Commit()
}

// InsertEvent writes ev, replacing any previous event with the same id.
func (s *Store) InsertEvent(ctx context.Context, ev tracking.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sx, sy any
	if ev.Start != nil {
		sx, sy = nullable(ev.Start.X), nullable(ev.Start.Y)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO events (id, type, team, start_frame, start_x, start_y) VALUES (?,?,?,?,?,?)`,
		ev.ID, ev.Type, string(ev.Team), ev.StartFrame, sx, sy,
	); err != nil {
		return fmt.Errorf("insert event %d: %w", ev.ID, err)
	}
	return nil
}

// LoadFrame returns the snapshot for id. Missing coordinates come back as
// NaN, a missing ball as nil. An unrecognised attacking label is left
// empty so the evaluator rejects the frame.
func (s *Store) LoadFrame(ctx context.Context, id int64) (tracking.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := tracking.Frame{ID: id}
	var attacking string
	var bx, by sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT period, time_s, attacking, ball_x, ball_y FROM frames WHERE id = ?`, id,
	).Scan(&f.Period, &f.Time, &attacking, &bx, &by)
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.Frame{}, fmt.Errorf("%w: %d", tracking.ErrFrameNotFound, id)
	}
	if err != nil {
		return tracking.Frame{}, fmt.Errorf("load frame %d: %w", id, err)
	}

	if side, err := tracking.ParseSide(attacking); err == nil {
		f.Attacking = side
	} else if attacking != "" {
		telemetry.ForFrame(id).Warn("frames store: unrecognised attacking side", "value", attacking)
	}
	if bx.Valid && by.Valid {
		f.Ball = &tracking.Vec{X: bx.Float64, Y: by.Float64}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT side, player_id, x, y, vx, vy FROM frame_players WHERE frame_id = ? ORDER BY side, idx`, id)
	if err != nil {
		return tracking.Frame{}, fmt.Errorf("load frame %d players: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var sideText string
		var k tracking.Kinematics
		var x, y, vx, vy sql.NullFloat64
		if err := rows.Scan(&sideText, &k.PlayerID, &x, &y, &vx, &vy); err != nil {
			return tracking.Frame{}, fmt.Errorf("scan frame %d player: %w", id, err)
		}
		k.X, k.Y, k.VX, k.VY = orNaN(x), orNaN(y), orNaN(vx), orNaN(vy)

		side, err := tracking.ParseSide(sideText)
		if err != nil {
			return tracking.Frame{}, fmt.Errorf("frame %d player %s: %w", id, k.PlayerID, err)
		}
		if side == tracking.Home {
			f.Home = append(f.Home, k)
		} else {
			f.Away = append(f.Away, k)
		}
	}
	return f, rows.Err()
}

func (s *Store) LoadEvent(ctx context.Context, id int64) (tracking.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := tracking.Event{ID: id}
	var team string
	var sx, sy sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT type, team, start_frame, start_x, start_y FROM events WHERE id = ?`, id,
	).Scan(&ev.Type, &team, &ev.StartFrame, &sx, &sy)
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.Event{}, fmt.Errorf("%w: %d", tracking.ErrEventNotFound, id)
	}
	if err != nil {
		return tracking.Event{}, fmt.Errorf("load event %d: %w", id, err)
	}

	if ev.Team, err = tracking.ParseSide(team); err != nil {
		return tracking.Event{}, fmt.Errorf("event %d: %w", id, err)
	}
	if sx.Valid && sy.Valid {
		ev.Start = &tracking.Vec{X: sx.Float64, Y: sy.Float64}
	}
	return ev, nil
}

// FrameIDs lists the stored frame ids in [from, to], ascending.
func (s *Store) FrameIDs(ctx context.Context, from, to int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM frames WHERE id BETWEEN ? AND ? ORDER BY id ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list frames %d..%d: %w", from, to, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// nullable maps non-finite coordinates to SQL NULL.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dutybot/internal/duty"
	logx "dutybot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const timeFormat = time.RFC3339Nano

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Store is the SQLite persistence layer: duty sessions, activity counters,
// verification history, and the panel message ref.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- duty sessions ----

func (s *Store) FindActiveSession(ctx context.Context, userID int64) (*duty.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, mode, start_time, end_time, status, end_cause
		 FROM sessions WHERE user_id = ? AND status = ?
		 ORDER BY start_time DESC LIMIT 1`,
		userID, string(duty.StatusActive))
	return scanSession(row)
}

func (s *Store) LastEndedSession(ctx context.Context, userID int64) (*duty.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, mode, start_time, end_time, status, end_cause
		 FROM sessions WHERE user_id = ? AND status IN (?, ?)
		 ORDER BY end_time DESC LIMIT 1`,
		userID, string(duty.StatusCompleted), string(duty.StatusTerminated))
	return scanSession(row)
}

func (s *Store) CreateSession(ctx context.Context, userID int64, mode duty.Mode, start time.Time) (*duty.Session, error) {
	sess := &duty.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Mode:      mode,
		StartTime: start,
		Status:    duty.StatusActive,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id, user_id, mode, start_time, status) VALUES(?,?,?,?,?)`,
		sess.ID, sess.UserID, string(sess.Mode), sess.StartTime.UTC().Format(timeFormat), string(sess.Status))
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// CloseSession flips an active session to its final status. The WHERE guard
// on status makes redundant close attempts report no change instead of
// double-writing.
func (s *Store) CloseSession(ctx context.Context, id string, status duty.Status, cause duty.Cause, end time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, end_cause = ?, end_time = ? WHERE id = ? AND status = ?`,
		string(status), string(cause), end.UTC().Format(timeFormat), id, string(duty.StatusActive))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ActiveSessions(ctx context.Context) ([]duty.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, mode, start_time, end_time, status, end_cause
		 FROM sessions WHERE status = ? ORDER BY start_time ASC`,
		string(duty.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// RecentEnded lists sessions that ended after since, newest first, for the
// panel's recently-off-duty block.
func (s *Store) RecentEnded(ctx context.Context, since time.Time, limit int) ([]duty.Session, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, mode, start_time, end_time, status, end_cause
		 FROM sessions WHERE status IN (?, ?) AND end_time > ?
		 ORDER BY end_time DESC LIMIT ?`,
		string(duty.StatusCompleted), string(duty.StatusTerminated),
		since.UTC().Format(timeFormat), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

type sessionScanner interface {
	Scan(dest ...any) error
}

func scanSession(row sessionScanner) (*duty.Session, error) {
	var (
		sess          duty.Session
		mode, status  string
		startRaw      string
		endRaw, cause sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.UserID, &mode, &startRaw, &endRaw, &status, &cause)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.Mode = duty.Mode(mode)
	sess.Status = duty.Status(status)
	if cause.Valid {
		sess.EndCause = duty.Cause(cause.String)
	}
	if sess.StartTime, err = time.Parse(timeFormat, startRaw); err != nil {
		return nil, fmt.Errorf("session %s: bad start_time: %w", sess.ID, err)
	}
	if endRaw.Valid && endRaw.String != "" {
		if sess.EndTime, err = time.Parse(timeFormat, endRaw.String); err != nil {
			return nil, fmt.Errorf("session %s: bad end_time: %w", sess.ID, err)
		}
	}
	return &sess, nil
}

func collectSessions(rows *sql.Rows) ([]duty.Session, error) {
	var out []duty.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// ---- activity counters ----

func (s *Store) HourlyCounters(ctx context.Context, userID int64) (duty.Counters, error) {
	var c duty.Counters
	err := s.db.QueryRowContext(ctx,
		`SELECT messages_hour, voice_minutes_hour FROM activity WHERE user_id = ?`,
		userID).Scan(&c.MessagesHour, &c.VoiceMinutesHour)
	if errors.Is(err, sql.ErrNoRows) {
		return duty.Counters{}, nil
	}
	return c, err
}

func (s *Store) AddMessages(ctx context.Context, userID int64, n int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity(user_id, messages_hour, messages_week, messages_total, last_updated)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   messages_hour = messages_hour + excluded.messages_hour,
		   messages_week = messages_week + excluded.messages_week,
		   messages_total = messages_total + excluded.messages_total,
		   last_updated = excluded.last_updated`,
		userID, n, n, n, at.UTC().Format(timeFormat))
	return err
}

func (s *Store) AddVoiceMinutes(ctx context.Context, userID int64, minutes int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity(user_id, voice_minutes_hour, voice_minutes_week, voice_minutes_total, last_updated)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   voice_minutes_hour = voice_minutes_hour + excluded.voice_minutes_hour,
		   voice_minutes_week = voice_minutes_week + excluded.voice_minutes_week,
		   voice_minutes_total = voice_minutes_total + excluded.voice_minutes_total,
		   last_updated = excluded.last_updated`,
		userID, minutes, minutes, minutes, at.UTC().Format(timeFormat))
	return err
}

// ResetHourlyCounters zeroes the rolling hourly counters for the given users.
// Called by the fixed-cadence sweep over active sessions.
func (s *Store) ResetHourlyCounters(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(userIDs)), ",")
	args := make([]any, 0, len(userIDs))
	for _, id := range userIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE activity SET messages_hour = 0, voice_minutes_hour = 0
		 WHERE user_id IN (`+placeholders+`)`, args...)
	return err
}

// ResetWeeklyCounters zeroes the weekly counters for everyone. Run once a
// week when the scoring window rolls over.
func (s *Store) ResetWeeklyCounters(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE activity SET messages_week = 0, voice_minutes_week = 0`)
	return err
}

// WeeklyActivity returns the 7-day counters used for points.
func (s *Store) WeeklyActivity(ctx context.Context, userID int64) (messages, voiceMinutes int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT messages_week, voice_minutes_week FROM activity WHERE user_id = ?`,
		userID).Scan(&messages, &voiceMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	return messages, voiceMinutes, err
}

func (s *Store) SetPoints(ctx context.Context, userID int64, points float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity(user_id, points, last_updated) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET points = excluded.points, last_updated = excluded.last_updated`,
		userID, points, time.Now().UTC().Format(timeFormat))
	return err
}

// ---- verification history ----

func (s *Store) AddVerification(ctx context.Context, userID int64, sessionID string, at time.Time, success bool) error {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verifications(user_id, session_id, at, outcome) VALUES(?,?,?,?)`,
		userID, nullStr(sessionID), at.UTC().Format(timeFormat), outcome)
	return err
}

// VerificationOutcomes counts successes and failures since the given time.
func (s *Store) VerificationOutcomes(ctx context.Context, userID int64, since time.Time) (successes, failures int, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM verifications
		 WHERE user_id = ? AND at >= ? GROUP BY outcome`,
		userID, since.UTC().Format(timeFormat))
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return 0, 0, err
		}
		if outcome == "success" {
			successes = n
		} else {
			failures = n
		}
	}
	return successes, failures, rows.Err()
}

// ---- panel message ref ----

func (s *Store) PanelRef(ctx context.Context) (chatID int64, messageID int, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT chat_id, message_id FROM panel WHERE kind = 'duty'`).Scan(&chatID, &messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return chatID, messageID, true, nil
}

func (s *Store) SavePanelRef(ctx context.Context, chatID int64, messageID int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO panel(kind, chat_id, message_id) VALUES('duty',?,?)
		 ON CONFLICT(kind) DO UPDATE SET chat_id = excluded.chat_id, message_id = excluded.message_id`,
		chatID, messageID)
	return err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

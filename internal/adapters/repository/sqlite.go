package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/okian/harvester/internal/domain/model"
	"github.com/okian/harvester/pkg/logger"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on a SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// NewSQLiteStore opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer keeps quota and cursor updates serial and lets ":memory:" share a database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	o.log.Info(ctx, "sqlite store ready", logger.String("path", path))
	return &SQLiteStore{db: db, opts: o}, nil
}

// DB exposes the underlying handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) MatchExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM matches WHERE external_id = ? LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) InsertMatch(ctx context.Context, m model.Match) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO matches (
			external_id, competition_id, competition, season, round, phase,
			home_team_id, home_team, away_team_id, away_team, match_date,
			venue, venue_city, home_goals, away_goals, home_xg, away_xg,
			status, harvested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ExternalID, m.CompetitionID, m.Competition, m.Season, m.Round, m.Phase,
		m.HomeTeamID, m.HomeTeamName, m.AwayTeamID, m.AwayTeamName, m.Date.UTC().Format(timeLayout),
		m.Venue, m.VenueCity, nullInt(m.HomeGoals), nullInt(m.AwayGoals), nullFloat(m.HomeXG), nullFloat(m.AwayXG),
		m.Status, m.HarvestedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert match %d: %w", m.ExternalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) PlayerStatsExist(ctx context.Context, matchID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM player_stats WHERE match_external_id = ? LIMIT 1", matchID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) InsertPlayerStats(ctx context.Context, stats []model.PlayerStat) (int, error) {
	if len(stats) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO player_stats (
			match_external_id, player_id, player_name, team_id, team_name,
			minutes_played, goals, assists, yellow_cards, red_cards, rating
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, p := range stats {
		res, err := stmt.ExecContext(ctx,
			p.MatchExternalID, p.PlayerID, p.PlayerName, p.TeamID, p.TeamName,
			p.MinutesPlayed, p.Goals, p.Assists, p.YellowCards, p.RedCards, nullFloat(p.Rating))
		if err != nil {
			return 0, fmt.Errorf("insert player stat %d/%d: %w", p.MatchExternalID, p.PlayerID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *SQLiteStore) ListMatches(ctx context.Context, f MatchFilter) ([]model.Match, error) {
	if f.Limit < 0 {
		return nil, ErrInvalidLimit
	}
	limit := f.Limit
	if limit == 0 || limit > s.opts.maxLimit {
		limit = s.opts.maxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE (? = 0 OR season = ?) AND (? = 0 OR competition_id = ?)
		ORDER BY match_date DESC, external_id DESC
		LIMIT ?`,
		f.Season, f.Season, f.CompetitionID, f.CompetitionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	matches := make([]model.Match, 0, limit)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

const matchColumns = `external_id, competition_id, competition, season, round, phase,
	home_team_id, home_team, away_team_id, away_team, match_date,
	venue, venue_city, home_goals, away_goals, home_xg, away_xg,
	status, harvested_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (model.Match, error) {
	var (
		m                    model.Match
		date, harvested      string
		homeGoals, awayGoals sql.NullInt64
		homeXG, awayXG       sql.NullFloat64
	)
	if err := row.Scan(
		&m.ExternalID, &m.CompetitionID, &m.Competition, &m.Season, &m.Round, &m.Phase,
		&m.HomeTeamID, &m.HomeTeamName, &m.AwayTeamID, &m.AwayTeamName, &date,
		&m.Venue, &m.VenueCity, &homeGoals, &awayGoals, &homeXG, &awayXG,
		&m.Status, &harvested,
	); err != nil {
		return model.Match{}, err
	}
	m.Date, _ = time.Parse(timeLayout, date)
	m.HarvestedAt, _ = time.Parse(timeLayout, harvested)
	m.HomeGoals = intFromNull(homeGoals)
	m.AwayGoals = intFromNull(awayGoals)
	m.HomeXG = floatFromNull(homeXG)
	m.AwayXG = floatFromNull(awayXG)
	return m, nil
}

func (s *SQLiteStore) GetMatch(ctx context.Context, id int64) (model.Match, bool, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx, "SELECT "+matchColumns+" FROM matches WHERE external_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Match{}, false, nil
	}
	if err != nil {
		return model.Match{}, false, err
	}
	return m, true, nil
}

func (s *SQLiteStore) SeasonTeams(ctx context.Context, competitionID, season int) ([]model.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT home_team_id, home_team FROM matches WHERE competition_id = ? AND season = ?
		UNION
		SELECT away_team_id, away_team FROM matches WHERE competition_id = ? AND season = ?
		ORDER BY 2`,
		competitionID, season, competitionID, season)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var teams []model.Team
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *SQLiteStore) GetQuota(ctx context.Context, date string, limit int) (model.QuotaState, error) {
	st := model.QuotaState{Date: date, DailyLimit: limit}
	err := s.db.QueryRowContext(ctx, "SELECT requests_used FROM quota WHERE date = ?", date).Scan(&st.RequestsUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return model.QuotaState{}, err
	}
	return st, nil
}

func (s *SQLiteStore) ConsumeQuota(ctx context.Context, date string, n, limit int) (model.QuotaState, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.QuotaState{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO quota (date, requests_used, daily_limit) VALUES (?, 0, ?)
		ON CONFLICT(date) DO UPDATE SET daily_limit = excluded.daily_limit`, date, limit); err != nil {
		return model.QuotaState{}, false, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE quota SET requests_used = requests_used + ?
		WHERE date = ? AND requests_used + ? <= daily_limit`, n, date, n)
	if err != nil {
		return model.QuotaState{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.QuotaState{}, false, err
	}

	st := model.QuotaState{Date: date, DailyLimit: limit}
	if err := tx.QueryRowContext(ctx, "SELECT requests_used FROM quota WHERE date = ?", date).Scan(&st.RequestsUsed); err != nil {
		return model.QuotaState{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.QuotaState{}, false, err
	}
	return st, affected == 1, nil
}

func (s *SQLiteStore) ResetQuota(ctx context.Context, date string, limit int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota (date, requests_used, daily_limit) VALUES (?, 0, ?)
		ON CONFLICT(date) DO UPDATE SET requests_used = 0, daily_limit = excluded.daily_limit`, date, limit)
	return err
}

func (s *SQLiteStore) GetCursor(ctx context.Context, harvesterID string, competitionID int) (model.HarvestCursor, bool, error) {
	c := model.HarvestCursor{HarvesterID: harvesterID, CompetitionID: competitionID}
	var updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT season, page, updated_at FROM harvest_cursors
		WHERE harvester_id = ? AND competition_id = ?`, harvesterID, competitionID).
		Scan(&c.Season, &c.Page, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.HarvestCursor{}, false, nil
	}
	if err != nil {
		return model.HarvestCursor{}, false, err
	}
	c.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return c, true, nil
}

func (s *SQLiteStore) SaveCursor(ctx context.Context, c model.HarvestCursor) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.opts.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO harvest_cursors (harvester_id, competition_id, season, page, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(harvester_id, competition_id) DO UPDATE SET
			season = excluded.season, page = excluded.page, updated_at = excluded.updated_at`,
		c.HarvesterID, c.CompetitionID, c.Season, c.Page, c.UpdatedAt.UTC().Format(timeLayout))
	return err
}

func (s *SQLiteStore) ListCursors(ctx context.Context, harvesterID string) ([]model.HarvestCursor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT competition_id, season, page, updated_at FROM harvest_cursors
		WHERE harvester_id = ? ORDER BY competition_id`, harvesterID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cursors []model.HarvestCursor
	for rows.Next() {
		c := model.HarvestCursor{HarvesterID: harvesterID}
		var updated string
		if err := rows.Scan(&c.CompetitionID, &c.Season, &c.Page, &updated); err != nil {
			return nil, err
		}
		c.UpdatedAt, _ = time.Parse(timeLayout, updated)
		cursors = append(cursors, c)
	}
	return cursors, rows.Err()
}

func (s *SQLiteStore) DeleteCursors(ctx context.Context, harvesterID string, competitionID int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM harvest_cursors
		WHERE harvester_id = ? AND (? = 0 OR competition_id = ?)`, harvesterID, competitionID, competitionID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) AddPending(ctx context.Context, u model.PendingUnit) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.opts.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_units (
			harvester_id, kind, competition_id, season, page, match_external_id,
			reason, attempts, last_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(harvester_id, kind, competition_id, season, page, match_external_id) DO UPDATE SET
			attempts = pending_units.attempts + 1,
			reason = excluded.reason,
			last_error = excluded.last_error`,
		u.HarvesterID, string(u.Kind), u.CompetitionID, u.Season, u.Page, u.MatchExternalID,
		string(u.Reason), u.LastError, u.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (s *SQLiteStore) ListPending(ctx context.Context, harvesterID string, maxAttempts int) ([]model.PendingUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, competition_id, season, page, match_external_id,
			reason, attempts, last_error, created_at
		FROM pending_units
		WHERE harvester_id = ? AND (? <= 0 OR attempts < ?)
		ORDER BY id`, harvesterID, maxAttempts, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var units []model.PendingUnit
	for rows.Next() {
		u := model.PendingUnit{HarvesterID: harvesterID}
		var kind, reason, created string
		if err := rows.Scan(&u.ID, &kind, &u.CompetitionID, &u.Season, &u.Page, &u.MatchExternalID,
			&reason, &u.Attempts, &u.LastError, &created); err != nil {
			return nil, err
		}
		u.Kind = model.UnitKind(kind)
		u.Reason = model.PendingReason(reason)
		u.CreatedAt, _ = time.Parse(timeLayout, created)
		units = append(units, u)
	}
	return units, rows.Err()
}

func (s *SQLiteStore) DeletePending(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM pending_units WHERE id = ?", id)
	return err
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.HarvestRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO harvest_runs (
			id, harvester_id, status, started_at, finished_at,
			matches_inserted, stats_inserted, requests_used, errors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.HarvesterID, string(run.Status),
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.MatchesInserted, run.StatsInserted, run.RequestsUsed, run.Errors)
	return err
}

func (s *SQLiteStore) LastRun(ctx context.Context, harvesterID string) (model.HarvestRun, bool, error) {
	run := model.HarvestRun{HarvesterID: harvesterID}
	var status, started, finished string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, started_at, finished_at, matches_inserted, stats_inserted, requests_used, errors
		FROM harvest_runs WHERE harvester_id = ?
		ORDER BY finished_at DESC LIMIT 1`, harvesterID).
		Scan(&run.ID, &status, &started, &finished, &run.MatchesInserted, &run.StatsInserted, &run.RequestsUsed, &run.Errors)
	if errors.Is(err, sql.ErrNoRows) {
		return model.HarvestRun{}, false, nil
	}
	if err != nil {
		return model.HarvestRun{}, false, err
	}
	run.Status = model.RunStatus(status)
	run.StartedAt, _ = time.Parse(timeLayout, started)
	run.FinishedAt, _ = time.Parse(timeLayout, finished)
	return run, true, nil
}

func (s *SQLiteStore) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := s.opts.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO harvest_locks (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE harvest_locks.expires_at <= ? OR harvest_locks.owner = excluded.owner`,
		name, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) ReleaseLock(ctx context.Context, name, owner string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM harvest_locks WHERE name = ? AND owner = ?", name, owner)
	return err
}

func (s *SQLiteStore) Counts(ctx context.Context, harvesterID string) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM matches),
			(SELECT COUNT(*) FROM player_stats),
			(SELECT COUNT(*) FROM pending_units WHERE harvester_id = ?),
			(SELECT COUNT(*) FROM harvest_runs WHERE harvester_id = ?)`, harvesterID, harvesterID).
		Scan(&c.Matches, &c.PlayerStats, &c.PendingUnits, &c.Runs)
	return c, err
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func floatFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var _ Store = (*SQLiteStore)(nil)

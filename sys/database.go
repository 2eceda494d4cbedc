package sys

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/datatypes"
)

// --- Connection & Lifecycle ---

// SQLiteStore keeps reminders in a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	loc *time.Location
}

// OpenSQLite opens (and creates if needed) the database at path. Due queries
// are evaluated in loc.
func OpenSQLite(ctx context.Context, path string, loc *time.Location) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := db.ExecContext(initCtx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	if err := createTables(initCtx, db); err != nil {
		db.Close()
		return nil, err
	}

	if loc == nil {
		loc = time.Local
	}

	LogDatabase(MsgDatabaseInitSuccess, "sqlite")
	return &SQLiteStore{db: db, loc: loc}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			message TEXT NOT NULL,
			time_of_day TEXT NOT NULL,
			days_of_week TEXT NOT NULL,
			frequency TEXT NOT NULL CHECK (frequency IN ('daily', 'weekly', 'monthly')),
			last_sent DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_guild ON reminders (guild_id)`,
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Bot Persistence ---

// GetBotConfig returns "" for a missing key.
func (s *SQLiteStore) GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, storageErr("get config", err)
}

func (s *SQLiteStore) SetBotConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return storageErr("set config", err)
}

// --- Reminders ---

const reminderColumns = `id, guild_id, channel_id, message, time_of_day, days_of_week, frequency, last_sent`

func (s *SQLiteStore) Create(ctx context.Context, r *Reminder) error {
	if err := r.Validate(); err != nil {
		return storageErr("create", err)
	}
	tag, err := frequencyTag(r.Frequency)
	if err != nil {
		return storageErr("create", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (guild_id, channel_id, message, time_of_day, days_of_week, frequency, last_sent)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
	`, r.GuildID.String(), r.ChannelID.String(), r.Message, encodeTime(r.TimeOfDay), encodeDays(r.Days), tag)
	if err != nil {
		return storageErr("create", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("create", err)
	}
	r.ID = id
	r.LastSent = nil
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, guildID snowflake.ID) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+reminderColumns+" FROM reminders WHERE guild_id = ? ORDER BY id ASC", guildID.String())
	if err != nil {
		return nil, storageErr("list", err)
	}
	reminders, err := scanReminders(rows, false)
	return reminders, storageErr("list", err)
}

// Delete is scoped to guildID and succeeds even when nothing matched.
func (s *SQLiteStore) Delete(ctx context.Context, guildID snowflake.ID, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = ? AND guild_id = ?", id, guildID.String())
	return storageErr("delete", err)
}

func (s *SQLiteStore) QueryDue(ctx context.Context, now time.Time) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+reminderColumns+" FROM reminders ORDER BY id ASC")
	if err != nil {
		return nil, storageErr("query due", err)
	}
	reminders, err := scanReminders(rows, true)
	if err != nil {
		return nil, storageErr("query due", err)
	}
	return FilterDue(reminders, now, s.loc), nil
}

func (s *SQLiteStore) MarkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE reminders SET last_sent = ? WHERE id = ?", at.UTC(), id)
	return storageErr("mark sent", err)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reminders").Scan(&count)
	return count, storageErr("count", err)
}

// scanReminders decodes every row. With skipInvalid, a row that fails to scan
// or decode is logged and left out instead of failing the whole result.
func scanReminders(rows *sql.Rows, skipInvalid bool) ([]*Reminder, error) {
	defer rows.Close()

	reminders := []*Reminder{}
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			if skipInvalid {
				LogReminderWarn(MsgReminderSkippedRow, err)
				continue
			}
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func scanReminder(rows *sql.Rows) (*Reminder, error) {
	var (
		r        Reminder
		gid, cid string
		tod      datatypes.Time
		days     datatypes.JSONSlice[int]
		freq     string
		lastSent sql.NullTime
	)
	if err := rows.Scan(&r.ID, &gid, &cid, &r.Message, &tod, &days, &freq, &lastSent); err != nil {
		return nil, err
	}

	var err error
	if r.GuildID, err = snowflake.Parse(gid); err != nil {
		return nil, fmt.Errorf("failed to parse guild ID '%s' for reminder %d: %w", gid, r.ID, err)
	}
	if r.ChannelID, err = snowflake.Parse(cid); err != nil {
		return nil, fmt.Errorf("failed to parse channel ID '%s' for reminder %d: %w", cid, r.ID, err)
	}
	if r.Days, err = decodeDays(days); err != nil {
		return nil, fmt.Errorf("reminder %d: %w", r.ID, err)
	}
	if r.Frequency, err = parseFrequencyTag(strings.TrimSpace(freq)); err != nil {
		return nil, fmt.Errorf("reminder %d: %w", r.ID, err)
	}
	r.TimeOfDay = decodeTime(tod)
	if lastSent.Valid {
		t := lastSent.Time.UTC()
		r.LastSent = &t
	}
	return &r, nil
}

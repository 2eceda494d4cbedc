package sys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// reminderRow is the Postgres shape of a Reminder.
type reminderRow struct {
	ID         int64                    `gorm:"primaryKey;autoIncrement"`
	GuildID    int64                    `gorm:"not null;index"`
	ChannelID  int64                    `gorm:"not null"`
	Message    string                   `gorm:"not null"`
	TimeOfDay  datatypes.Time           `gorm:"not null"`
	DaysOfWeek datatypes.JSONSlice[int] `gorm:"not null"`
	Frequency  string                   `gorm:"size:16;not null"`
	LastSent   *time.Time
	CreatedAt  time.Time
}

func (reminderRow) TableName() string { return "reminders" }

type botConfigRow struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

func (botConfigRow) TableName() string { return "bot_config" }

func toReminderRow(r *Reminder) (reminderRow, error) {
	tag, err := frequencyTag(r.Frequency)
	if err != nil {
		return reminderRow{}, err
	}
	return reminderRow{
		ID:         r.ID,
		GuildID:    int64(r.GuildID),
		ChannelID:  int64(r.ChannelID),
		Message:    r.Message,
		TimeOfDay:  encodeTime(r.TimeOfDay),
		DaysOfWeek: encodeDays(r.Days),
		Frequency:  tag,
		LastSent:   r.LastSent,
	}, nil
}

func (row reminderRow) toReminder() (*Reminder, error) {
	days, err := decodeDays(row.DaysOfWeek)
	if err != nil {
		return nil, fmt.Errorf("reminder %d: %w", row.ID, err)
	}
	freq, err := parseFrequencyTag(row.Frequency)
	if err != nil {
		return nil, fmt.Errorf("reminder %d: %w", row.ID, err)
	}
	r := &Reminder{
		ID:        row.ID,
		GuildID:   snowflake.ID(row.GuildID),
		ChannelID: snowflake.ID(row.ChannelID),
		Message:   row.Message,
		TimeOfDay: decodeTime(row.TimeOfDay),
		Days:      days,
		Frequency: freq,
	}
	if row.LastSent != nil {
		t := row.LastSent.UTC()
		r.LastSent = &t
	}
	return r, nil
}

// PostgresStore keeps reminders in Postgres through GORM.
type PostgresStore struct {
	db  *gorm.DB
	loc *time.Location
}

// OpenPostgres connects with retries, then migrates the reminder tables.
func OpenPostgres(ctx context.Context, dsn string, loc *time.Location) (*PostgresStore, error) {
	gormConfig := &gorm.Config{
		Logger:      newGormLogger(),
		PrepareStmt: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	const maxRetries = 5
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			break
		}
		LogDatabase(MsgDatabaseConnectRetry, i+1, err)
		if i < maxRetries-1 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	store, err := newGormStore(ctx, db, loc)
	if err != nil {
		return nil, err
	}
	LogDatabase(MsgDatabaseInitSuccess, "postgres")
	return store, nil
}

// newGormStore tunes the pool and migrates the tables on an open connection.
func newGormStore(ctx context.Context, db *gorm.DB, loc *time.Location) (*PostgresStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.WithContext(ctx).AutoMigrate(&reminderRow{}, &botConfigRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if loc == nil {
		loc = time.Local
	}
	return &PostgresStore{db: db, loc: loc}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) GetBotConfig(ctx context.Context, key string) (string, error) {
	var row botConfigRow
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return row.Value, storageErr("get config", err)
}

func (s *PostgresStore) SetBotConfig(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&botConfigRow{Key: key, Value: value}).Error
	return storageErr("set config", err)
}

func (s *PostgresStore) Create(ctx context.Context, r *Reminder) error {
	if err := r.Validate(); err != nil {
		return storageErr("create", err)
	}
	row, err := toReminderRow(r)
	if err != nil {
		return storageErr("create", err)
	}
	row.ID = 0
	row.LastSent = nil

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storageErr("create", err)
	}
	r.ID = row.ID
	r.LastSent = nil
	return nil
}

func (s *PostgresStore) List(ctx context.Context, guildID snowflake.ID) ([]*Reminder, error) {
	var rows []reminderRow
	if err := s.db.WithContext(ctx).Where("guild_id = ?", int64(guildID)).Order("id").Find(&rows).Error; err != nil {
		return nil, storageErr("list", err)
	}
	reminders, err := rowsToReminders(rows, false)
	return reminders, storageErr("list", err)
}

func (s *PostgresStore) Delete(ctx context.Context, guildID snowflake.ID, id int64) error {
	err := s.db.WithContext(ctx).Where("id = ? AND guild_id = ?", id, int64(guildID)).Delete(&reminderRow{}).Error
	return storageErr("delete", err)
}

func (s *PostgresStore) QueryDue(ctx context.Context, now time.Time) ([]*Reminder, error) {
	var rows []reminderRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, storageErr("query due", err)
	}
	reminders, err := rowsToReminders(rows, true)
	if err != nil {
		return nil, storageErr("query due", err)
	}
	return FilterDue(reminders, now, s.loc), nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, id int64, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&reminderRow{}).Where("id = ?", id).Update("last_sent", at.UTC()).Error
	return storageErr("mark sent", err)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&reminderRow{}).Count(&count).Error
	return int(count), storageErr("count", err)
}

// rowsToReminders mirrors scanReminders: with skipInvalid, undecodable rows
// are logged and dropped.
func rowsToReminders(rows []reminderRow, skipInvalid bool) ([]*Reminder, error) {
	reminders := make([]*Reminder, 0, len(rows))
	for _, row := range rows {
		r, err := row.toReminder()
		if err != nil {
			if skipInvalid {
				LogReminderWarn(MsgReminderSkippedRow, err)
				continue
			}
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, nil
}

// --- GORM logging ---

// gormLogWriter sends GORM's formatted output to the database component log.
type gormLogWriter struct{}

func (gormLogWriter) Printf(format string, v ...any) {
	LogDatabase(format, v...)
}

// FilteredGormLogger drops trace lines whose SQL contains any ignored pattern.
// The scheduler's full-table scan runs every tick and would otherwise flood the log.
type FilteredGormLogger struct {
	logger.Interface
	ignoredQueryPatterns []string
}

func NewFilteredGormLogger(l logger.Interface, ignoredPatterns ...string) *FilteredGormLogger {
	return &FilteredGormLogger{
		Interface:            l,
		ignoredQueryPatterns: ignoredPatterns,
	}
}

func (l *FilteredGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &FilteredGormLogger{
		Interface:            l.Interface.LogMode(level),
		ignoredQueryPatterns: l.ignoredQueryPatterns,
	}
}

func (l *FilteredGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	sql, rows := fc()
	for _, pattern := range l.ignoredQueryPatterns {
		if strings.Contains(sql, pattern) {
			return
		}
	}
	l.Interface.Trace(ctx, begin, func() (string, int64) { return sql, rows }, err)
}

func newGormLogger() logger.Interface {
	base := logger.New(gormLogWriter{}, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
	return NewFilteredGormLogger(base, `SELECT * FROM "reminders" ORDER BY`)
}

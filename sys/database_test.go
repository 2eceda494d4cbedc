package sys

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "keeper.db")
	store, err := OpenSQLite(context.Background(), path, time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func sampleReminder(guildID snowflake.ID) *Reminder {
	return &Reminder{
		GuildID:   guildID,
		ChannelID: 987654321098765432,
		Message:   "Water the plants 🌱",
		TimeOfDay: TimeOfDay{Hour: 9, Minute: 15},
		Days:      NewWeekdaySet(time.Monday, time.Wednesday),
		Frequency: FrequencyWeekly,
	}
}

func TestSQLiteStoreCreateAndList(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestSQLite(t)

	r := sampleReminder(111111111111111111)
	r.LastSent = timePtr(utcAt(2024, 1, 1, 0, 0))
	require.NoError(t, store.Create(ctx, r))
	assert.NotZero(t, r.ID)
	assert.Nil(t, r.LastSent, "new reminders start unsent")

	second := sampleReminder(111111111111111111)
	second.Frequency = FrequencyMonthly
	require.NoError(t, store.Create(ctx, second))
	assert.Greater(t, second.ID, r.ID)

	list, err := store.List(ctx, 111111111111111111)
	require.NoError(t, err)
	require.Len(t, list, 2)

	got := list[0]
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.GuildID, got.GuildID)
	assert.Equal(t, r.ChannelID, got.ChannelID)
	assert.Equal(t, r.Message, got.Message)
	assert.Equal(t, r.TimeOfDay, got.TimeOfDay)
	assert.Equal(t, r.Days, got.Days)
	assert.Equal(t, FrequencyWeekly, got.Frequency)
	assert.Nil(t, got.LastSent)
	assert.Equal(t, FrequencyMonthly, list[1].Frequency)
}

func TestSQLiteStoreListEmptyGuild(t *testing.T) {
	store, _ := openTestSQLite(t)

	list, err := store.List(context.Background(), 222222222222222222)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestSQLiteStoreCreateRejectsInvalid(t *testing.T) {
	store, _ := openTestSQLite(t)

	r := sampleReminder(111111111111111111)
	r.Days = 0
	err := store.Create(context.Background(), r)

	var serr *StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "create", serr.Op)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "days", verr.Field)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteStoreDeleteIsScoped(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestSQLite(t)

	guildA := snowflake.ID(111111111111111111)
	guildB := snowflake.ID(333333333333333333)

	rb := sampleReminder(guildB)
	require.NoError(t, store.Create(ctx, rb))

	require.NoError(t, store.Delete(ctx, guildA, rb.ID), "foreign id is a silent no-op")
	list, err := store.List(ctx, guildB)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, guildB, rb.ID))
	require.NoError(t, store.Delete(ctx, guildB, rb.ID), "second delete is idempotent")
	require.NoError(t, store.Delete(ctx, guildB, 424242))

	list, err = store.List(ctx, guildB)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteStoreMarkSentOverwrites(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestSQLite(t)

	r := sampleReminder(111111111111111111)
	require.NoError(t, store.Create(ctx, r))

	t1 := utcAt(2024, 1, 1, 9, 15)
	t2 := utcAt(2024, 1, 8, 9, 15)
	require.NoError(t, store.MarkSent(ctx, r.ID, t1))
	require.NoError(t, store.MarkSent(ctx, r.ID, t2))

	list, err := store.List(ctx, r.GuildID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LastSent)
	assert.True(t, list[0].LastSent.Equal(t2), "got %s", list[0].LastSent)

	// Local offsets are normalized to UTC on write.
	tokyo := mustLocation(t, "Asia/Tokyo")
	t3 := time.Date(2024, 1, 15, 18, 15, 0, 0, tokyo)
	require.NoError(t, store.MarkSent(ctx, r.ID, t3))
	list, err = store.List(ctx, r.GuildID)
	require.NoError(t, err)
	assert.True(t, list[0].LastSent.Equal(t3))
	assert.Equal(t, time.UTC, list[0].LastSent.Location())

	require.NoError(t, store.MarkSent(ctx, 9999, t2), "unknown ids are not an error")
}

func TestSQLiteStoreQueryDue(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestSQLite(t)

	// 2024-01-03 is a Wednesday.
	due := sampleReminder(111111111111111111)
	require.NoError(t, store.Create(ctx, due))

	later := sampleReminder(111111111111111111)
	later.TimeOfDay = TimeOfDay{Hour: 18}
	require.NoError(t, store.Create(ctx, later))

	otherDay := sampleReminder(333333333333333333)
	otherDay.Days = NewWeekdaySet(time.Friday)
	require.NoError(t, store.Create(ctx, otherDay))

	now := utcAt(2024, 1, 3, 10, 0)
	got, err := store.QueryDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)

	require.NoError(t, store.MarkSent(ctx, due.ID, now))
	got, err = store.QueryDue(ctx, now.Add(15*time.Second))
	require.NoError(t, err)
	assert.Empty(t, got, "marked reminder must not re-fire in the same window")

	got, err = store.QueryDue(ctx, utcAt(2024, 1, 3, 18, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, later.ID, got[0].ID)
}

func TestSQLiteStoreQueryDueSkipsCorruptRows(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestSQLite(t)

	good := sampleReminder(111111111111111111)
	require.NoError(t, store.Create(ctx, good))

	for _, days := range []string{"[]", "[7]", "not json"} {
		_, err := store.db.ExecContext(ctx, `
			INSERT INTO reminders (guild_id, channel_id, message, time_of_day, days_of_week, frequency)
			VALUES ('111111111111111111', '987654321098765432', 'broken', '09:00:00', ?, 'daily')
		`, days)
		require.NoError(t, err)
	}
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO reminders (guild_id, channel_id, message, time_of_day, days_of_week, frequency)
		VALUES ('not-a-snowflake', '987654321098765432', 'broken', '09:00:00', '[3]', 'daily')
	`)
	require.NoError(t, err)

	got, err := store.QueryDue(ctx, utcAt(2024, 1, 3, 10, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, good.ID, got[0].ID)

	_, err = store.List(ctx, 111111111111111111)
	var serr *StorageError
	assert.ErrorAs(t, err, &serr, "listing still reports the corrupt rows")
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	store, path := openTestSQLite(t)

	r := sampleReminder(111111111111111111)
	require.NoError(t, store.Create(ctx, r))
	require.NoError(t, store.MarkSent(ctx, r.ID, utcAt(2024, 1, 3, 9, 15)))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path, time.UTC)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.List(ctx, r.GuildID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LastSent)
	assert.True(t, list[0].LastSent.Equal(utcAt(2024, 1, 3, 9, 15)))

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStoreBotConfig(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestSQLite(t)

	v, err := store.GetBotConfig(ctx, "last_cmd_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, store.SetBotConfig(ctx, "last_cmd_hash", "abc"))
	require.NoError(t, store.SetBotConfig(ctx, "last_cmd_hash", "def"))

	v, err = store.GetBotConfig(ctx, "last_cmd_hash")
	require.NoError(t, err)
	assert.Equal(t, "def", v)
}

func TestSQLiteStoreClosedReturnsStorageError(t *testing.T) {
	store, _ := openTestSQLite(t)
	require.NoError(t, store.Close())

	_, err := store.QueryDue(context.Background(), time.Now())
	var serr *StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "query due", serr.Op)
}

package proc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/keeper/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	reminders []*sys.Reminder
	queryErrs []error
	markErr   error
	marked    []int64
	queries   int
	panics    int
}

func (s *fakeStore) QueryDue(_ context.Context, now time.Time) ([]*sys.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.panics > 0 {
		s.panics--
		panic("corrupted cursor")
	}
	if len(s.queryErrs) > 0 {
		err := s.queryErrs[0]
		s.queryErrs = s.queryErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return sys.FilterDue(s.reminders, now, time.UTC), nil
}

func (s *fakeStore) MarkSent(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	for _, r := range s.reminders {
		if r.ID == id {
			at := at.UTC()
			r.LastSent = &at
		}
	}
	s.marked = append(s.marked, id)
	return nil
}

type delivery struct {
	channelID snowflake.ID
	text      string
}

type recordingNotifier struct {
	mu        sync.Mutex
	sent      []delivery
	failing   map[snowflake.ID]bool
	onDeliver func()
}

func (n *recordingNotifier) Deliver(_ context.Context, channelID snowflake.ID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.onDeliver != nil {
		n.onDeliver()
	}
	if n.failing[channelID] {
		return &sys.DeliveryError{ChannelID: channelID, Err: errors.New("missing access")}
	}
	n.sent = append(n.sent, delivery{channelID, text})
	return nil
}

// panickyNotifier panics on its first delivery and records the rest.
type panickyNotifier struct {
	recordingNotifier
	calls int
}

func (n *panickyNotifier) Deliver(ctx context.Context, channelID snowflake.ID, text string) error {
	n.mu.Lock()
	n.calls++
	first := n.calls == 1
	n.mu.Unlock()
	if first {
		panic("nil embed")
	}
	return n.recordingNotifier.Deliver(ctx, channelID, text)
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func dailyReminder(id int64, channelID snowflake.ID, message string) *sys.Reminder {
	return &sys.Reminder{
		ID:        id,
		GuildID:   1,
		ChannelID: channelID,
		Message:   message,
		TimeOfDay: sys.TimeOfDay{Hour: 9},
		Days: sys.NewWeekdaySet(time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday),
		Frequency: sys.FrequencyDaily,
	}
}

func newTestScheduler(store Store, notifier Notifier, clock Clock) *Scheduler {
	return NewScheduler(store, notifier, clock, SchedulerOptions{
		Interval:       10 * time.Millisecond,
		QueryTimeout:   time.Second,
		DeliverTimeout: time.Second,
		Location:       time.UTC,
	})
}

func TestTickDeliversAndMarks(t *testing.T) {
	now := time.Date(2024, 1, 3, 9, 0, 30, 0, time.UTC)
	store := &fakeStore{reminders: []*sys.Reminder{
		dailyReminder(1, 10, "water the plants"),
		dailyReminder(2, 20, "**stand-up** <@&42>"),
	}}
	notifier := &recordingNotifier{}
	s := newTestScheduler(store, notifier, &fixedClock{now})

	report := s.Tick(context.Background())

	assert.Equal(t, TickReport{Due: 2, Delivered: 2}, report)
	assert.Equal(t, []delivery{{10, "water the plants"}, {20, "**stand-up** <@&42>"}}, notifier.sent)
	assert.Equal(t, []int64{1, 2}, store.marked)
	require.NotNil(t, store.reminders[0].LastSent)
	assert.True(t, store.reminders[0].LastSent.Equal(now))

	// Same day, later tick: nothing fires twice.
	report = s.Tick(context.Background())
	assert.Equal(t, 0, report.Due)
	assert.Len(t, notifier.sent, 2)
}

func TestTickNotDueYet(t *testing.T) {
	store := &fakeStore{reminders: []*sys.Reminder{dailyReminder(1, 10, "later")}}
	notifier := &recordingNotifier{}
	s := newTestScheduler(store, notifier, &fixedClock{time.Date(2024, 1, 3, 8, 59, 59, 0, time.UTC)})

	assert.Equal(t, TickReport{}, s.Tick(context.Background()))
	assert.Empty(t, notifier.sent)
}

func TestTickQueryFailureRecovers(t *testing.T) {
	queryErr := &sys.StorageError{Op: "query due", Err: errors.New("database is locked")}
	store := &fakeStore{
		reminders: []*sys.Reminder{dailyReminder(1, 10, "retry me")},
		queryErrs: []error{queryErr},
	}
	notifier := &recordingNotifier{}
	s := newTestScheduler(store, notifier, &fixedClock{time.Date(2024, 1, 3, 9, 1, 0, 0, time.UTC)})

	report := s.Tick(context.Background())
	assert.ErrorIs(t, report.QueryErr, queryErr)
	assert.Empty(t, notifier.sent)

	report = s.Tick(context.Background())
	assert.NoError(t, report.QueryErr)
	assert.Equal(t, 1, report.Delivered)
	assert.Len(t, notifier.sent, 1)
}

func TestTickDeliveryFailureSkipsMark(t *testing.T) {
	store := &fakeStore{reminders: []*sys.Reminder{
		dailyReminder(1, 10, "gone channel"),
		dailyReminder(2, 20, "fine"),
	}}
	notifier := &recordingNotifier{failing: map[snowflake.ID]bool{10: true}}
	s := newTestScheduler(store, notifier, &fixedClock{time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)})

	report := s.Tick(context.Background())
	assert.Equal(t, TickReport{Due: 2, Delivered: 1, Failed: 1}, report)
	assert.Equal(t, []int64{2}, store.marked)
	assert.Nil(t, store.reminders[0].LastSent)

	// The failed one is retried on the next tick.
	report = s.Tick(context.Background())
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Failed)
}

func TestTickMarkFailureRedelivers(t *testing.T) {
	store := &fakeStore{
		reminders: []*sys.Reminder{dailyReminder(1, 10, "at least once")},
		markErr:   errors.New("disk full"),
	}
	notifier := &recordingNotifier{}
	s := newTestScheduler(store, notifier, &fixedClock{time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)})

	report := s.Tick(context.Background())
	assert.Equal(t, TickReport{Due: 1, Delivered: 1, Unmarked: 1}, report)

	report = s.Tick(context.Background())
	assert.Equal(t, 1, report.Delivered)
	assert.Len(t, notifier.sent, 2, "unmarked reminder is delivered again")
}

func TestTickRecoversDeliveryPanic(t *testing.T) {
	store := &fakeStore{reminders: []*sys.Reminder{
		dailyReminder(1, 10, "explodes"),
		dailyReminder(2, 20, "still sent"),
	}}
	notifier := &panickyNotifier{}
	s := newTestScheduler(store, notifier, &fixedClock{time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)})

	var report TickReport
	require.NotPanics(t, func() { report = s.Tick(context.Background()) })
	assert.Equal(t, TickReport{Due: 2, Delivered: 1, Failed: 1}, report)
	assert.Equal(t, []delivery{{20, "still sent"}}, notifier.sent)
	assert.Equal(t, []int64{2}, store.marked)

	// The reminder that panicked stays unmarked and goes out next tick.
	report = s.Tick(context.Background())
	assert.Equal(t, TickReport{Due: 1, Delivered: 1}, report)
}

func TestTickStopsOnCancel(t *testing.T) {
	store := &fakeStore{reminders: []*sys.Reminder{
		dailyReminder(1, 10, "first"),
		dailyReminder(2, 20, "second"),
		dailyReminder(3, 30, "third"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifier := &recordingNotifier{onDeliver: cancel}
	s := newTestScheduler(store, notifier, &fixedClock{time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)})

	report := s.Tick(ctx)
	assert.Equal(t, 3, report.Due)
	assert.Equal(t, 1, report.Delivered)
	assert.Len(t, notifier.sent, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &fakeStore{}
	s := newTestScheduler(store, &recordingNotifier{}, &fixedClock{time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.queries >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunSurvivesPanics(t *testing.T) {
	store := &fakeStore{
		reminders: []*sys.Reminder{dailyReminder(1, 10, "eventually")},
		panics:    1,
	}
	notifier := &panickyNotifier{}
	s := newTestScheduler(store, notifier, &fixedClock{time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.marked) == 1 && store.queries >= 4
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, 2, notifier.calls)
}

func TestSchedulerDefaults(t *testing.T) {
	s := NewScheduler(&fakeStore{}, &recordingNotifier{}, nil, SchedulerOptions{})
	assert.Equal(t, sys.DefaultPollInterval, s.opts.Interval)
	assert.Equal(t, sys.DefaultQueryTimeout, s.opts.QueryTimeout)
	assert.Equal(t, sys.DefaultDeliverTimeout, s.opts.DeliverTimeout)
	assert.Equal(t, time.Local, s.opts.Location)
	assert.IsType(t, SystemClock{}, s.clock)
}

func TestReminderDaemonNeedsClient(t *testing.T) {
	ok, run, shutdown := ReminderDaemon(&fakeStore{}, &sys.Config{})(context.Background(), nil)
	assert.False(t, ok)
	assert.Nil(t, run)
	assert.Nil(t, shutdown)
}

package proc

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/keeper/sys"
)

// Store is the part of the reminder store the scheduler drives.
type Store interface {
	QueryDue(ctx context.Context, now time.Time) ([]*sys.Reminder, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
}

// Notifier delivers reminder text to a channel.
type Notifier interface {
	Deliver(ctx context.Context, channelID snowflake.ID, text string) error
}

// Clock is the scheduler's source of "now".
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type SchedulerOptions struct {
	Interval       time.Duration
	QueryTimeout   time.Duration
	DeliverTimeout time.Duration
	// Location only labels the startup log; due evaluation happens in the store.
	Location *time.Location
}

func (o SchedulerOptions) withDefaults() SchedulerOptions {
	if o.Interval <= 0 {
		o.Interval = sys.DefaultPollInterval
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = sys.DefaultQueryTimeout
	}
	if o.DeliverTimeout <= 0 {
		o.DeliverTimeout = sys.DefaultDeliverTimeout
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// TickReport summarizes one poll cycle.
type TickReport struct {
	Due       int
	Delivered int
	Failed    int
	// Unmarked counts deliveries whose MarkSent failed; those reminders fire again.
	Unmarked int
	QueryErr error
}

// Scheduler polls the store for due reminders and delivers them one at a time.
type Scheduler struct {
	store    Store
	notifier Notifier
	clock    Clock
	opts     SchedulerOptions
}

func NewScheduler(store Store, notifier Notifier, clock Clock, opts SchedulerOptions) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		clock:    clock,
		opts:     opts.withDefaults(),
	}
}

// Run blocks until ctx is cancelled, ticking every Interval. A tick that
// overruns the interval is followed by the next one straight away; ticks
// never run concurrently.
func (s *Scheduler) Run(ctx context.Context) {
	sys.LogReminder(sys.MsgReminderSchedulerStart, s.opts.Interval, s.opts.Location)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			report := s.safeTick(ctx)
			if report.Due > 0 {
				sys.LogReminder(sys.MsgReminderTickSummary, report.Due, report.Delivered, report.Failed)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one query, deliver and acknowledge cycle. Failures are logged and
// counted; none of them abort the loop.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	var report TickReport
	now := s.clock.Now()

	queryCtx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	due, err := s.store.QueryDue(queryCtx, now)
	cancel()
	if err != nil {
		sys.LogReminderWarn(sys.MsgReminderFailedToQueryDue, err)
		report.QueryErr = err
		return report
	}
	report.Due = len(due)

	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		s.step(ctx, r, now, &report)
	}

	return report
}

// step delivers and marks one reminder. A panic in either half is recovered
// and counted as a failed delivery so the rest of the batch still goes out.
func (s *Scheduler) step(ctx context.Context, r *sys.Reminder, now time.Time, report *TickReport) {
	defer func() {
		if rec := recover(); rec != nil {
			sys.LogReminderWarn(sys.MsgReminderTickPanic, r.ID, rec)
			report.Failed++
		}
	}()

	if err := s.deliver(ctx, r); err != nil {
		sys.LogReminderWarn(sys.MsgReminderFailedToSend, r.ID, r.ChannelID, err)
		report.Failed++
		return
	}
	report.Delivered++

	markCtx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	if err := s.store.MarkSent(markCtx, r.ID, now); err != nil {
		sys.LogReminderWarn(sys.MsgReminderFailedToMark, r.ID, err)
		report.Unmarked++
		return
	}
	sys.LogReminder(sys.MsgReminderSent, r.ID, r.ChannelID)
}

// safeTick keeps Run alive when a tick panics outside a single delivery.
func (s *Scheduler) safeTick(ctx context.Context) (report TickReport) {
	defer func() {
		if rec := recover(); rec != nil {
			sys.LogReminderWarn(sys.MsgReminderLoopPanic, rec)
		}
	}()
	return s.Tick(ctx)
}

func (s *Scheduler) deliver(ctx context.Context, r *sys.Reminder) error {
	deliverCtx, cancel := context.WithTimeout(ctx, s.opts.DeliverTimeout)
	defer cancel()
	return s.notifier.Deliver(deliverCtx, r.ChannelID, r.Message)
}

// --- Daemon ---

// ReminderDaemon returns the loader starter for the scheduler. The notifier is
// built from the connected client. The loader starts daemons once per process,
// so a single scheduler runs.
func ReminderDaemon(store Store, cfg *sys.Config) sys.DaemonStarter {
	return func(ctx context.Context, client *bot.Client) (bool, func(), func()) {
		if client == nil {
			return false, nil, nil
		}

		scheduler := NewScheduler(store, NewDiscordNotifier(client.Rest), SystemClock{}, SchedulerOptions{
			Interval:       cfg.PollInterval,
			QueryTimeout:   cfg.QueryTimeout,
			DeliverTimeout: cfg.DeliverTimeout,
			Location:       cfg.Location,
		})

		done := make(chan struct{})
		run := func() {
			defer close(done)
			scheduler.Run(ctx)
		}
		shutdown := func() {
			sys.LogReminder(sys.MsgDaemonStopping)
			select {
			case <-done:
			case <-time.After(cfg.DeliverTimeout + cfg.QueryTimeout):
			}
		}
		return true, run, shutdown
	}
}

package proc

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/leeineian/keeper/sys"
)

const configKeyStatus = "status_visible"

// StatusStore is what the rotator reads from the reminder store.
type StatusStore interface {
	Count(ctx context.Context) (int, error)
	GetBotConfig(ctx context.Context, key string) (string, error)
}

func GetRotationInterval() time.Duration {
	return time.Duration(15+rand.Intn(46)) * time.Second
}

// StatusRotator cycles the bot presence through a set of generated lines.
type StatusRotator struct {
	store     StatusStore
	startedAt time.Time
	now       func() time.Time
	pick      func(n int) int

	generators []func(ctx context.Context) string
	lastStatus string
}

func NewStatusRotator(store StatusStore, startedAt time.Time) *StatusRotator {
	r := &StatusRotator{
		store:     store,
		startedAt: startedAt,
		now:       time.Now,
		pick:      rand.Intn,
	}
	r.generators = []func(ctx context.Context) string{
		r.remindersStatus,
		r.uptimeStatus,
	}
	return r
}

// AddGenerator appends a status source; empty results are skipped.
func (r *StatusRotator) AddGenerator(gen func(ctx context.Context) string) {
	r.generators = append(r.generators, gen)
}

// NextStatus picks a non-empty status that differs from the previous one when
// there is a choice. It returns "" when the status is hidden.
func (r *StatusRotator) NextStatus(ctx context.Context) string {
	if visible, err := r.store.GetBotConfig(ctx, configKeyStatus); err != nil || visible == "false" {
		return ""
	}

	var available []string
	for _, gen := range r.generators {
		if text := gen(ctx); text != "" {
			available = append(available, text)
		}
	}
	if len(available) == 0 {
		available = append(available, r.uptimeStatus(ctx))
	}

	var choices []string
	for _, s := range available {
		if s != r.lastStatus {
			choices = append(choices, s)
		}
	}

	selected := available[0]
	if len(choices) > 0 {
		selected = choices[r.pick(len(choices))]
	}
	r.lastStatus = selected
	return selected
}

func (r *StatusRotator) update(ctx context.Context, client *bot.Client, next time.Duration) {
	status := r.NextStatus(ctx)
	if status == "" {
		if err := client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
			sys.LogSession(sys.MsgSessionUpdateFail, err)
		}
		return
	}

	err := client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithPlayingActivity(status),
	)
	if err != nil {
		sys.LogSession(sys.MsgSessionUpdateFail, err)
		return
	}
	sys.LogDebug(sys.MsgSessionRotated, status, next)
}

// Generators

func (r *StatusRotator) remindersStatus(ctx context.Context) string {
	count, err := r.store.Count(ctx)
	if err != nil || count == 0 {
		return ""
	}
	return fmt.Sprintf(sys.MsgSessionReminders, count)
}

func (r *StatusRotator) uptimeStatus(context.Context) string {
	uptime := r.now().Sub(r.startedAt)
	return fmt.Sprintf(sys.MsgSessionUptime,
		fmt.Sprintf("%dh %dm %ds", int(uptime.Hours()), int(uptime.Minutes())%60, int(uptime.Seconds())%60))
}

// StatusDaemon returns the loader starter for the presence rotator.
func StatusDaemon(store StatusStore, startedAt time.Time) sys.DaemonStarter {
	return func(ctx context.Context, client *bot.Client) (bool, func(), func()) {
		if client == nil {
			return false, nil, nil
		}
		rotator := NewStatusRotator(store, startedAt)
		rotator.AddGenerator(func(context.Context) string {
			ping := client.Gateway.Latency()
			if ping == 0 {
				return ""
			}
			return fmt.Sprintf("Ping: %dms", ping.Milliseconds())
		})

		return true, func() {
			for {
				next := GetRotationInterval()
				rotator.update(ctx, client, next)
				select {
				case <-time.After(next):
				case <-ctx.Done():
					return
				}
			}
		}, nil
	}
}
